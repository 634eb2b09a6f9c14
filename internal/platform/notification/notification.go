// Package notification delivers WhatsApp messages to patients about their
// referrals. It provides template rendering, a Twilio-compatible HTTP sender,
// in-memory delivery records with retry, and the inbound webhook handler that
// processes patient replies.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Built-in template ids.
const (
	TemplateReferralInitial   = "referral-initial"
	TemplateReferralConfirmed = "referral-confirmed"
	TemplateReferralCompleted = "referral-completed"
)

// Message represents a single outbound WhatsApp message.
type Message struct {
	ID           string            `json:"id"`
	Recipient    string            `json:"recipient"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	ReferralID   string            `json:"referral_id,omitempty"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Sender is the interface for delivering WhatsApp messages.
type Sender interface {
	SendWhatsApp(ctx context.Context, to, body string) error
}

// Template defines a reusable message template.
type Template struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Body string `json:"body"`
}

// TemplateEngine manages message templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in referral
// templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:   TemplateReferralInitial,
			Name: "Referral Created",
			Body: "Hi {{patient_name}}, your referral has been created for {{date}}. We will notify you once the receiving hospital confirms.",
		},
		{
			ID:   TemplateReferralConfirmed,
			Name: "Referral Confirmed",
			Body: "Hi {{patient_name}}, your referral has been confirmed for {{date}} at {{hospital_name}}, {{hospital_address}}, {{hospital_city}}. Please come at 09:00 AM.",
		},
		{
			ID:   TemplateReferralCompleted,
			Name: "Referral Completed",
			Body: "Hi {{patient_name}}, your referral has been completed. We wish you health!",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by id and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (string, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template %q not found", templateID)
	}

	body := t.Body
	for k, v := range data {
		body = strings.ReplaceAll(body, "{{"+k+"}}", v)
	}
	return body, nil
}

// TwilioSender delivers messages through the Twilio Messages API.
type TwilioSender struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	client     *http.Client
}

// NewTwilioSender creates a sender for the given account. baseURL is normally
// "https://api.twilio.com" and is overridable for tests. from is the WhatsApp
// sender number in E.164 format.
func NewTwilioSender(baseURL, accountSID, authToken, from string) *TwilioSender {
	return &TwilioSender{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

// SendWhatsApp posts a message to the Twilio Messages endpoint. to is the
// recipient number in E.164 format.
func (s *TwilioSender) SendWhatsApp(ctx context.Context, to, body string) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)

	form := url.Values{}
	form.Set("To", "whatsapp:"+to)
	form.Set("From", "whatsapp:"+s.from)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building message request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("message gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// WhatsAppCall records a single call to SendWhatsApp.
type WhatsAppCall struct {
	To   string
	Body string
}

// MockSender is a test double for Sender.
type MockSender struct {
	mu         sync.Mutex
	calls      []WhatsAppCall
	ShouldFail bool
	FailError  string
}

// SendWhatsApp records the call and optionally returns an error.
func (m *MockSender) SendWhatsApp(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, WhatsAppCall{To: to, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded calls.
func (m *MockSender) Calls() []WhatsAppCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WhatsAppCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Manager orchestrates sending, storage, and retry of messages.
type Manager struct {
	sender    Sender
	templates *TemplateEngine
	mu        sync.RWMutex
	messages  map[string]*Message
}

func NewManager(sender Sender, tpl *TemplateEngine) *Manager {
	return &Manager{
		sender:    sender,
		templates: tpl,
		messages:  make(map[string]*Message),
	}
}

// Send dispatches a message, assigns an id and timestamps, and records the
// outcome in memory. A delivery failure is recorded but still returned.
func (m *Manager) Send(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = time.Now().UTC()
	msg.Status = "pending"

	sendErr := m.sender.SendWhatsApp(ctx, msg.Recipient, msg.Body)
	if sendErr != nil {
		msg.Status = "failed"
		msg.Error = sendErr.Error()
	} else {
		msg.Status = "sent"
		sentAt := time.Now().UTC()
		msg.SentAt = &sentAt
	}

	m.mu.Lock()
	m.messages[msg.ID] = msg
	m.mu.Unlock()

	return sendErr
}

// SendFromTemplate renders a template and sends the resulting message.
func (m *Manager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient, referralID string) (*Message, error) {
	body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	msg := &Message{
		Recipient:    recipient,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
		ReferralID:   referralID,
	}

	if err := m.Send(ctx, msg); err != nil {
		return msg, err
	}
	return msg, nil
}

// GetMessage retrieves a message by id.
func (m *Manager) GetMessage(_ context.Context, id string) (*Message, error) {
	m.mu.RLock()
	msg, ok := m.messages[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("message %q not found", id)
	}
	return msg, nil
}

// ListByReferral returns messages recorded for a given referral.
func (m *Manager) ListByReferral(_ context.Context, referralID string) []*Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Message
	for _, msg := range m.messages {
		if msg.ReferralID == referralID {
			result = append(result, msg)
		}
	}
	return result
}

// Retry re-sends a failed message. Returns an error if the message is not in
// failed status.
func (m *Manager) Retry(ctx context.Context, id string) error {
	m.mu.RLock()
	msg, ok := m.messages[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("message %q not found", id)
	}
	if msg.Status != "failed" {
		return fmt.Errorf("message %q is not in failed status (current: %s)", id, msg.Status)
	}

	sendErr := m.sender.SendWhatsApp(ctx, msg.Recipient, msg.Body)

	m.mu.Lock()
	if sendErr != nil {
		msg.Status = "failed"
		msg.Error = sendErr.Error()
	} else {
		msg.Status = "sent"
		sentAt := time.Now().UTC()
		msg.SentAt = &sentAt
		msg.Error = ""
	}
	m.mu.Unlock()

	return sendErr
}

// Stats returns counts of messages grouped by status.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, msg := range m.messages {
		stats[msg.Status]++
	}
	return stats
}

// InboundConfirmer is invoked when a patient replies "Confirm" to a referral
// message. The referral service implements it to move the referral forward.
type InboundConfirmer interface {
	ConfirmByPhone(ctx context.Context, phone string) error
}

// Handler exposes message operations and the inbound webhook over HTTP.
type Handler struct {
	manager   *Manager
	confirmer InboundConfirmer
	logger    zerolog.Logger
}

func NewHandler(mgr *Manager, confirmer InboundConfirmer, logger zerolog.Logger) *Handler {
	return &Handler{manager: mgr, confirmer: confirmer, logger: logger}
}

// RegisterRoutes mounts message routes on the supplied Echo group. The
// inbound webhook is not included here: the gateway calls it without
// credentials, so the server mounts HandleInbound outside the auth group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications/stats", h.HandleStats)
	g.GET("/notifications/:id", h.HandleGet)
	g.POST("/notifications/:id/retry", h.HandleRetry)
}

const inboundReply = `<?xml version="1.0" encoding="UTF-8"?><Response><Message>Message received. Thank you!</Message></Response>`

// HandleInbound processes the gateway webhook for patient replies. The form
// carries Body and From; a trimmed "Confirm" reply confirms the sender's most
// recent referral. The response is TwiML so the gateway acknowledges receipt.
func (h *Handler) HandleInbound(c echo.Context) error {
	body := strings.TrimSpace(c.FormValue("Body"))
	from := strings.TrimPrefix(c.FormValue("From"), "whatsapp:")

	h.logger.Info().
		Str("from", from).
		Str("body", body).
		Msg("inbound message")

	if body == "Confirm" && h.confirmer != nil {
		if err := h.confirmer.ConfirmByPhone(c.Request().Context(), from); err != nil {
			h.logger.Error().Err(err).Str("from", from).Msg("inbound confirmation failed")
		}
	}

	return c.Blob(http.StatusOK, "text/xml", []byte(inboundReply))
}

func (h *Handler) HandleGet(c echo.Context) error {
	msg, err := h.manager.GetMessage(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, msg)
}

func (h *Handler) HandleRetry(c echo.Context) error {
	id := c.Param("id")
	if err := h.manager.Retry(c.Request().Context(), id); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	msg, _ := h.manager.GetMessage(c.Request().Context(), id)
	return c.JSON(http.StatusOK, msg)
}

func (h *Handler) HandleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Stats(c.Request().Context()))
}

package notification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestTemplateEngine_RenderBuiltIn(t *testing.T) {
	e := NewTemplateEngine()

	body, err := e.Render(TemplateReferralConfirmed, map[string]string{
		"patient_name":     "Thandi",
		"date":             "2026-09-03",
		"hospital_name":    "Groote Schuur Hospital",
		"hospital_address": "Main Road",
		"hospital_city":    "Cape Town",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "Hi Thandi, your referral has been confirmed for 2026-09-03 at Groote Schuur Hospital, Main Road, Cape Town. Please come at 09:00 AM."
	if body != want {
		t.Errorf("unexpected body:\n got: %s\nwant: %s", body, want)
	}
}

func TestTemplateEngine_MissingKeysLeftAsIs(t *testing.T) {
	e := NewTemplateEngine()
	body, err := e.Render(TemplateReferralInitial, map[string]string{"patient_name": "Sipho"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(body, "{{date}}") {
		t.Errorf("expected unreplaced placeholder to remain, got %s", body)
	}
}

func TestTemplateEngine_UnknownTemplate(t *testing.T) {
	e := NewTemplateEngine()
	if _, err := e.Render("no-such-template", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestManager_SendFromTemplate(t *testing.T) {
	sender := &MockSender{}
	mgr := NewManager(sender, NewTemplateEngine())

	msg, err := mgr.SendFromTemplate(context.Background(), TemplateReferralCompleted,
		map[string]string{"patient_name": "Thandi"}, "+27821234567", "ref-1")
	if err != nil {
		t.Fatalf("SendFromTemplate: %v", err)
	}
	if msg.Status != "sent" {
		t.Errorf("expected status sent, got %s", msg.Status)
	}
	if msg.SentAt == nil {
		t.Error("expected sent_at to be set")
	}

	calls := sender.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 send call, got %d", len(calls))
	}
	if calls[0].To != "+27821234567" {
		t.Errorf("unexpected recipient %s", calls[0].To)
	}
	if calls[0].Body != "Hi Thandi, your referral has been completed. We wish you health!" {
		t.Errorf("unexpected body %s", calls[0].Body)
	}
}

func TestManager_RetryFailedMessage(t *testing.T) {
	sender := &MockSender{ShouldFail: true, FailError: "gateway down"}
	mgr := NewManager(sender, NewTemplateEngine())

	msg := &Message{Recipient: "+27821234567", Body: "hello"}
	if err := mgr.Send(context.Background(), msg); err == nil {
		t.Fatal("expected send failure")
	}
	if msg.Status != "failed" {
		t.Fatalf("expected failed status, got %s", msg.Status)
	}

	sender.ShouldFail = false
	if err := mgr.Retry(context.Background(), msg.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	got, err := mgr.GetMessage(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Status != "sent" || got.Error != "" {
		t.Errorf("expected sent status with cleared error, got %s / %q", got.Status, got.Error)
	}
}

func TestManager_RetryRejectsSentMessage(t *testing.T) {
	mgr := NewManager(&MockSender{}, NewTemplateEngine())
	msg := &Message{Recipient: "+27821234567", Body: "hello"}
	if err := mgr.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := mgr.Retry(context.Background(), msg.ID); err == nil {
		t.Fatal("expected error retrying a sent message")
	}
}

func TestTwilioSender_PostsForm(t *testing.T) {
	var gotPath string
	var gotForm url.Values
	var gotUser, gotPass string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		gotForm = r.PostForm
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := NewTwilioSender(srv.URL, "AC123", "secret", "+15176843823")
	if err := s.SendWhatsApp(context.Background(), "+27821234567", "test body"); err != nil {
		t.Fatalf("SendWhatsApp: %v", err)
	}

	if gotPath != "/2010-04-01/Accounts/AC123/Messages.json" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotUser != "AC123" || gotPass != "secret" {
		t.Errorf("unexpected basic auth %s:%s", gotUser, gotPass)
	}
	if gotForm.Get("To") != "whatsapp:+27821234567" {
		t.Errorf("unexpected To %s", gotForm.Get("To"))
	}
	if gotForm.Get("From") != "whatsapp:+15176843823" {
		t.Errorf("unexpected From %s", gotForm.Get("From"))
	}
	if gotForm.Get("Body") != "test body" {
		t.Errorf("unexpected Body %s", gotForm.Get("Body"))
	}
}

func TestTwilioSender_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewTwilioSender(srv.URL, "AC123", "wrong", "+15176843823")
	if err := s.SendWhatsApp(context.Background(), "+27821234567", "body"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

type mockConfirmer struct {
	phones []string
	err    error
}

func (m *mockConfirmer) ConfirmByPhone(_ context.Context, phone string) error {
	m.phones = append(m.phones, phone)
	return m.err
}

func TestHandleInbound_ConfirmReply(t *testing.T) {
	confirmer := &mockConfirmer{}
	h := NewHandler(NewManager(&MockSender{}, NewTemplateEngine()), confirmer, zerolog.Nop())

	e := echo.New()
	form := url.Values{}
	form.Set("Body", " Confirm ")
	form.Set("From", "whatsapp:+27821234567")
	req := httptest.NewRequest(http.MethodPost, "/notifications/inbound", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandleInbound(c); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}

	if len(confirmer.phones) != 1 || confirmer.phones[0] != "+27821234567" {
		t.Errorf("expected confirmation for +27821234567, got %v", confirmer.phones)
	}
	if rec.Header().Get(echo.HeaderContentType) != "text/xml" {
		t.Errorf("expected text/xml response, got %s", rec.Header().Get(echo.HeaderContentType))
	}
	if !strings.Contains(rec.Body.String(), "Message received. Thank you!") {
		t.Errorf("unexpected TwiML body: %s", rec.Body.String())
	}
}

func TestHandleInbound_OtherReplyDoesNotConfirm(t *testing.T) {
	confirmer := &mockConfirmer{}
	h := NewHandler(NewManager(&MockSender{}, NewTemplateEngine()), confirmer, zerolog.Nop())

	e := echo.New()
	form := url.Values{}
	form.Set("Body", "Cancel")
	form.Set("From", "whatsapp:+27821234567")
	req := httptest.NewRequest(http.MethodPost, "/notifications/inbound", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandleInbound(c); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if len(confirmer.phones) != 0 {
		t.Errorf("expected no confirmation, got %v", confirmer.phones)
	}
}

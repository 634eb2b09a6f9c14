// Package summary generates clinical handover summaries for referrals using
// an LLM behind an OpenAI-compatible HTTP API.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Input carries the referral fields the prompt is built from. Empty fields
// render as "N/A".
type Input struct {
	Department         string
	Urgency            string
	Condition          string
	ReasonForReferral  string
	CurrentMedications string
	KnownAllergies     string
	PreferredDate      string
}

// BuildPrompt renders the clinical handover prompt for the given referral
// fields. The instructions keep the output to one factual paragraph with no
// identifying patient information.
func BuildPrompt(in Input) string {
	orNA := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "N/A"
		}
		return s
	}

	lines := []string{
		"You are a clinical handover assistant.",
		"Draft a single, concise referral summary as one continuous paragraph (~100 words).",
		"Do not include headings, labels, bullet points, or markdown formatting.",
		"Stay factual, neutral, and professional. Avoid speculation.",
		"Exclude all personally identifiable information (names, contact details, IDs, dates of birth, etc.).",
		"Cover only the following in narrative form: presenting problem, relevant history and findings, current treatment/medications, allergies, urgency and risks, requested department and rationale, and next steps for the receiving team.",
		"",
		"Department: " + orNA(in.Department),
		"Urgency: " + orNA(in.Urgency),
		"Medical Condition: " + orNA(in.Condition),
		"Reason for Referral: " + orNA(in.ReasonForReferral),
		"Current Treatment: " + orNA(in.CurrentMedications),
		"Allergies: " + orNA(in.KnownAllergies),
		"Preferred Date: " + orNA(in.PreferredDate),
	}
	return strings.Join(lines, "\n")
}

// Generator produces a summary from referral fields.
type Generator interface {
	Summarize(ctx context.Context, in Input) (string, error)
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewClient creates a summary client. baseURL is the API root, e.g.
// "https://api.openai.com/v1".
func NewClient(baseURL, apiKey, model string) *Client {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Summarize builds the handover prompt and returns the model's paragraph.
func (c *Client) Summarize(ctx context.Context, in Input) (string, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: BuildPrompt(in)},
		},
		Temperature: 0.2,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("POST %s/chat/completions: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("summary API returned status %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("summary API returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("summary API returned no choices")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// MockGenerator is a test double for Generator.
type MockGenerator struct {
	Result string
	Err    error
	Inputs []Input
}

func (m *MockGenerator) Summarize(_ context.Context, in Input) (string, error) {
	m.Inputs = append(m.Inputs, in)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Result, nil
}

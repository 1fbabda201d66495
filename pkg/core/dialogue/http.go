package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/vai-intake/pkg/core"
)

const (
	// DefaultChatPath is the dialogue route relative to the API base URL.
	DefaultChatPath = "/api/v1/patients/chat"
	// DefaultResetPath clears the server-side conversation.
	DefaultResetPath = "/api/v1/patients/chat/reset"
)

// HTTPBackend talks to the intake chat endpoint.
type HTTPBackend struct {
	baseURL    string
	chatPath   string
	resetPath  string
	token      string
	httpClient *http.Client
}

// HTTPOption configures an HTTPBackend.
type HTTPOption func(*HTTPBackend)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(b *HTTPBackend) {
		if hc != nil {
			b.httpClient = hc
		}
	}
}

// WithPaths overrides the chat and reset routes. Empty values keep defaults.
func WithPaths(chat, reset string) HTTPOption {
	return func(b *HTTPBackend) {
		if chat != "" {
			b.chatPath = chat
		}
		if reset != "" {
			b.resetPath = reset
		}
	}
}

// NewHTTPBackend creates a backend for baseURL authenticated with token.
func NewHTTPBackend(baseURL, token string, opts ...HTTPOption) *HTTPBackend {
	b := &HTTPBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatPath:   DefaultChatPath,
		resetPath:  DefaultResetPath,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Message             string        `json:"message"`
	ConversationHistory []chatMessage `json:"conversation_history"`
	Language            string        `json:"language"`
}

type chatResponse struct {
	Response           string   `json:"response"`
	FollowUpQuestions  []string `json:"follow_up_questions,omitempty"`
	CollectedSymptoms  []string `json:"collected_symptoms,omitempty"`
	SeverityAssessment *string  `json:"severity_assessment,omitempty"`
}

// Converse implements Backend.
func (b *HTTPBackend) Converse(ctx context.Context, req Request) (*Reply, error) {
	history := make([]chatMessage, 0, len(req.History))
	for _, t := range req.History {
		history = append(history, chatMessage{Role: string(t.Role), Content: t.Text})
	}

	var out chatResponse
	if err := b.post(ctx, b.chatPath, chatRequest{
		Message:             req.Message,
		ConversationHistory: history,
		Language:            req.Language,
	}, &out); err != nil {
		return nil, err
	}

	reply := &Reply{
		Text:      out.Response,
		Symptoms:  out.CollectedSymptoms,
		FollowUps: out.FollowUpQuestions,
	}
	if out.SeverityAssessment != nil {
		reply.Severity = *out.SeverityAssessment
	}
	return reply, nil
}

// Reset implements Resetter.
func (b *HTTPBackend) Reset(ctx context.Context) error {
	return b.post(ctx, b.resetPath, map[string]bool{"confirm": true}, nil)
}

func (b *HTTPBackend) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dialogue request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &core.HTTPStatusError{Op: "dialogue " + path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(errBody))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Package submission turns a finished conversation into an appointment
// request.
package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/vai-intake/pkg/core"
	"github.com/vango-go/vai-intake/pkg/core/types"
)

// DefaultPath is the appointment creation route relative to the API base URL.
const DefaultPath = "/api/v1/appointments"

// Patient identifies who the appointment is for.
type Patient struct {
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
	Phone string `json:"phone" yaml:"phone"`
}

// Receipt confirms a created appointment.
type Receipt struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

// Narrative joins the user turns of a conversation in order.
func Narrative(turns []types.Turn) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		if t.Role != types.RoleUser {
			continue
		}
		if text := strings.TrimSpace(t.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Finalizer submits conversations to the appointment endpoint.
type Finalizer struct {
	baseURL    string
	path       string
	token      string
	patient    Patient
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Finalizer.
type Option func(*Finalizer)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Finalizer) {
		if hc != nil {
			f.httpClient = hc
		}
	}
}

// WithPath overrides the appointment route.
func WithPath(path string) Option {
	return func(f *Finalizer) {
		if path != "" {
			f.path = path
		}
	}
}

// WithPatient sets the patient details sent with every submission.
func WithPatient(p Patient) Option {
	return func(f *Finalizer) { f.patient = p }
}

// WithLogger sets the finalizer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Finalizer) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFinalizer creates a Finalizer for baseURL.
func NewFinalizer(baseURL, token string, opts ...Option) *Finalizer {
	f := &Finalizer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		path:       DefaultPath,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type appointmentRequest struct {
	SessionID           string           `json:"session_id"`
	PatientName         string           `json:"patient_name"`
	PatientEmail        string           `json:"patient_email,omitempty"`
	PatientPhone        string           `json:"patient_phone,omitempty"`
	Symptoms            []string         `json:"symptoms"`
	SymptomDetails      string           `json:"symptom_details"`
	Severity            string           `json:"severity,omitempty"`
	Language            string           `json:"language"`
	Notes               string           `json:"notes,omitempty"`
	ConversationHistory []historyMessage `json:"conversation_history"`
}

func (f *Finalizer) buildRequest(s *types.ConversationSession) appointmentRequest {
	history := make([]historyMessage, 0, len(s.Turns))
	for _, t := range s.Turns {
		history = append(history, historyMessage{Role: string(t.Role), Content: t.Text})
	}
	symptoms := s.Symptoms.List()
	if symptoms == nil {
		symptoms = []string{}
	}
	name := f.patient.Name
	if name == "" {
		name = "Patient"
	}
	return appointmentRequest{
		SessionID:           s.ID,
		PatientName:         name,
		PatientEmail:        f.patient.Email,
		PatientPhone:        f.patient.Phone,
		Symptoms:            symptoms,
		SymptomDetails:      Narrative(s.Turns),
		Severity:            s.Severity,
		Language:            s.Language,
		Notes:               "Collected by voice intake assistant",
		ConversationHistory: history,
	}
}

// Submit sends the session to the appointment endpoint. On success the
// session is marked submitted and never sent again; on failure it is left
// unchanged so the caller can retry.
func (f *Finalizer) Submit(ctx context.Context, s *types.ConversationSession) (*Receipt, error) {
	if s.Submitted {
		return nil, core.ErrAlreadySubmitted
	}
	if s.UserTurnCount() == 0 {
		return nil, core.NewInvalidRequestError("conversation has no patient turns to submit")
	}

	payload, err := json.Marshal(f.buildRequest(s))
	if err != nil {
		return nil, core.NewSubmissionFailedError(fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+f.path, bytes.NewReader(payload))
	if err != nil {
		return nil, core.NewSubmissionFailedError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, core.NewSubmissionFailedError(fmt.Errorf("appointment request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, core.NewSubmissionFailedError(&core.HTTPStatusError{
			Op:         "create appointment",
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(errBody)),
		})
	}

	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, core.NewSubmissionFailedError(fmt.Errorf("decode response: %w", err))
	}
	if receipt.ID == "" {
		return nil, core.NewSubmissionFailedError(fmt.Errorf("response missing appointment id"))
	}

	s.Submitted = true
	s.SubmissionID = receipt.ID
	f.logger.Info("appointment submitted", "session_id", s.ID, "appointment_id", receipt.ID)
	return &receipt, nil
}

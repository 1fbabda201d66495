package live

import (
	"github.com/vango-go/vai-intake/pkg/core/types"
)

// Event is the interface for all conversation events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// StateChangedEvent is emitted on every state change.
type StateChangedEvent struct {
	From StateKind `json:"from"`
	To   StateKind `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// TurnAppendedEvent is emitted when a turn is added to the session.
type TurnAppendedEvent struct {
	Turn types.Turn `json:"turn"`
}

func (e *TurnAppendedEvent) EventType() string { return "turn.appended" }

// ReplyEvent carries the structured part of an assistant reply.
type ReplyEvent struct {
	Text      string   `json:"text"`
	FollowUps []string `json:"follow_ups,omitempty"`
	Severity  string   `json:"severity,omitempty"`
	Degraded  bool     `json:"degraded,omitempty"`
	Complete  bool     `json:"intake_complete,omitempty"`
}

func (e *ReplyEvent) EventType() string { return "reply" }

// SymptomsUpdatedEvent is emitted when new symptoms are recorded.
type SymptomsUpdatedEvent struct {
	Added    int      `json:"added"`
	Symptoms []string `json:"symptoms"`
}

func (e *SymptomsUpdatedEvent) EventType() string { return "symptoms.updated" }

// NoticeEvent reports something the user should know that is not an error.
type NoticeEvent struct {
	Message string `json:"message"`
}

func (e *NoticeEvent) EventType() string { return "notice" }

// ErrorEvent reports an error. Fatal is set when the machine moved to the
// error state.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal,omitempty"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// SubmissionEvent reports the outcome of an intake submission.
type SubmissionEvent struct {
	SessionID     string `json:"session_id"`
	AppointmentID string `json:"appointment_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

func (e *SubmissionEvent) EventType() string { return "submission" }

// SessionResetEvent is emitted when a fresh session replaces the old one.
type SessionResetEvent struct {
	SessionID string `json:"session_id"`
}

func (e *SessionResetEvent) EventType() string { return "session.reset" }

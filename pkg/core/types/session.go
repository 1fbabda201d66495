package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultLanguage is used when a session is created without a language tag.
const DefaultLanguage = "en-IN"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source identifies how a user turn was entered.
type Source string

const (
	SourceVoice Source = "voice"
	SourceText  Source = "text"
)

// Turn is one message in the conversation. Turns are append-only.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"content"`
	Source    Source    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationSession is the aggregate for one patient interaction.
type ConversationSession struct {
	ID           string     `json:"id"`
	Language     string     `json:"language"`
	Turns        []Turn     `json:"turns"`
	Symptoms     SymptomSet `json:"symptoms"`
	Severity     string     `json:"severity,omitempty"`
	Ended        bool       `json:"ended"`
	Submitted    bool       `json:"submitted"`
	SubmissionID string     `json:"submission_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// NewConversationSession creates an empty session for language.
func NewConversationSession(language string) *ConversationSession {
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}
	return &ConversationSession{
		ID:        uuid.NewString(),
		Language:  language,
		CreatedAt: time.Now(),
	}
}

// AppendUser records a user turn.
func (s *ConversationSession) AppendUser(text string, source Source) Turn {
	return s.append(RoleUser, text, source)
}

// AppendAssistant records an assistant turn.
func (s *ConversationSession) AppendAssistant(text string) Turn {
	return s.append(RoleAssistant, text, "")
}

func (s *ConversationSession) append(role Role, text string, source Source) Turn {
	turn := Turn{
		Role:      role,
		Text:      text,
		Source:    source,
		CreatedAt: time.Now(),
	}
	s.Turns = append(s.Turns, turn)
	return turn
}

// UserTurnCount returns the number of user turns recorded so far.
func (s *ConversationSession) UserTurnCount() int {
	n := 0
	for _, t := range s.Turns {
		if t.Role == RoleUser {
			n++
		}
	}
	return n
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *ConversationSession) Clone() ConversationSession {
	out := *s
	out.Turns = append([]Turn(nil), s.Turns...)
	out.Symptoms = s.Symptoms.Clone()
	return out
}

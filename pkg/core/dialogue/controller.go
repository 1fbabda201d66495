// Package dialogue exchanges patient utterances with the intake assistant.
package dialogue

import (
	"context"
	"log/slog"
	"strings"

	"github.com/vango-go/vai-intake/pkg/core/types"
)

// DefaultFallbackReply keeps the conversation going when the assistant
// cannot be reached.
const DefaultFallbackReply = "I'm here to help document your symptoms. Please describe what you're experiencing: " +
	"what symptoms do you have, when did they start, and how severe are they?"

// Request is one exchange sent to a Backend.
type Request struct {
	Message       string
	History       []types.Turn
	Language      string
	KnownSymptoms []string
}

// Reply is the assistant's answer to a Request.
type Reply struct {
	Text           string
	Symptoms       []string
	FollowUps      []string
	Severity       string
	IntakeComplete bool
	// Degraded is set when Text is the fallback reply.
	Degraded bool
}

// Backend produces assistant replies.
type Backend interface {
	Converse(ctx context.Context, req Request) (*Reply, error)
}

// Resetter is implemented by backends that hold server-side conversation
// state.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Controller wraps a Backend and never fails: backend errors degrade to a
// fallback reply.
type Controller struct {
	backend  Backend
	fallback string
	logger   *slog.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithFallbackReply overrides the degraded reply text.
func WithFallbackReply(text string) ControllerOption {
	return func(c *Controller) {
		if strings.TrimSpace(text) != "" {
			c.fallback = text
		}
	}
}

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewController creates a Controller around backend.
func NewController(backend Backend, opts ...ControllerOption) *Controller {
	c := &Controller{
		backend:  backend,
		fallback: DefaultFallbackReply,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Converse sends utterance with the prior turns and returns the reply.
func (c *Controller) Converse(ctx context.Context, utterance string, prior []types.Turn, language string, known []string) Reply {
	if c.backend == nil {
		return c.degraded()
	}
	reply, err := c.backend.Converse(ctx, Request{
		Message:       utterance,
		History:       prior,
		Language:      language,
		KnownSymptoms: known,
	})
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("dialogue backend failed, using fallback reply", "error", err)
		}
		return c.degraded()
	}
	if reply == nil || strings.TrimSpace(reply.Text) == "" {
		c.logger.Warn("dialogue backend returned an empty reply, using fallback reply")
		return c.degraded()
	}
	out := *reply
	out.Text = strings.TrimSpace(out.Text)
	return out
}

// Reset clears any server-side conversation state. Failures are logged and
// otherwise ignored.
func (c *Controller) Reset(ctx context.Context) {
	r, ok := c.backend.(Resetter)
	if !ok {
		return
	}
	if err := r.Reset(ctx); err != nil {
		c.logger.Warn("dialogue reset failed", "error", err)
	}
}

func (c *Controller) degraded() Reply {
	return Reply{Text: c.fallback, Degraded: true}
}

package live

import (
	"time"

	"github.com/vango-go/vai-intake/pkg/core/types"
	"github.com/vango-go/vai-intake/pkg/core/voice/audio"
)

// Config controls conversation behavior.
type Config struct {
	// Language is the BCP-47 tag sent with every request.
	Language string `json:"language" yaml:"language"`

	// Capture settings.
	Constraints audio.Constraints     `json:"constraints" yaml:"constraints"`
	Recorder    audio.RecorderOptions `json:"recorder" yaml:"recorder"`
	Meter       audio.MeterOptions    `json:"meter" yaml:"meter"`
	Silence     audio.SilenceConfig   `json:"silence" yaml:"silence"`
	// SilencePollInterval is how often the silence rules are evaluated.
	SilencePollInterval time.Duration `json:"silence_poll_interval" yaml:"silence_poll_interval"`

	// AutoContinue returns to Recording after each spoken reply.
	AutoContinue bool `json:"auto_continue" yaml:"auto_continue"`
	// MaxUserTurns stops auto-continue once reached. Zero means no limit.
	MaxUserTurns int `json:"max_user_turns" yaml:"max_user_turns"`
	// StopWhenComplete stops auto-continue once the assistant reports the
	// intake as complete.
	StopWhenComplete bool `json:"stop_when_complete" yaml:"stop_when_complete"`

	// RetryDelay is the pause before listening again after a failed
	// transcription. MaxRetries bounds automatic retries per utterance.
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`

	// SubmitOnEnd submits the intake when the conversation is ended.
	SubmitOnEnd bool `json:"submit_on_end" yaml:"submit_on_end"`
	// SubmitTimeout bounds each submission attempt.
	SubmitTimeout time.Duration `json:"submit_timeout" yaml:"submit_timeout"`

	// EventBuffer sizes the Events channel. Events are dropped when full.
	EventBuffer int `json:"event_buffer" yaml:"event_buffer"`
}

// DefaultConfig returns the default conversation configuration.
func DefaultConfig() Config {
	return Config{
		Language:            types.DefaultLanguage,
		Constraints:         audio.DefaultConstraints(),
		Silence:             audio.DefaultSilenceConfig(),
		SilencePollInterval: 50 * time.Millisecond,
		AutoContinue:        true,
		MaxUserTurns:        12,
		StopWhenComplete:    true,
		RetryDelay:          800 * time.Millisecond,
		MaxRetries:          1,
		SubmitOnEnd:         true,
		SubmitTimeout:       30 * time.Second,
		EventBuffer:         100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.SilencePollInterval <= 0 {
		c.SilencePollInterval = d.SilencePollInterval
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = d.SubmitTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	return c
}

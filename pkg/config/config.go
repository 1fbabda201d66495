// Package config loads settings for the intake voice client and the
// clinic live-update feed.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/vango-go/vai-intake/pkg/core/live"
	"github.com/vango-go/vai-intake/pkg/core/submission"
)

// Dialogue backends.
const (
	BackendHTTP   = "http"
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
)

// Transcription backends.
const (
	TranscriberIntake   = "intake"
	TranscriberCartesia = "cartesia"
)

// Config holds all client configuration.
type Config struct {
	// Intake API
	API APIConfig `json:"api" yaml:"api"`

	// Speech to text
	Transcription TranscriptionConfig `json:"transcription" yaml:"transcription"`

	// Assistant
	Dialogue DialogueConfig `json:"dialogue" yaml:"dialogue"`

	// Spoken replies
	Speech SpeechConfig `json:"speech" yaml:"speech"`

	// Conversation behavior
	Conversation live.Config `json:"conversation" yaml:"conversation"`

	// Patient details attached to the appointment
	Patient submission.Patient `json:"patient" yaml:"patient"`

	// Clinic dashboard feed
	LiveUpdate LiveUpdateConfig `json:"live_update" yaml:"live_update"`

	// Observability
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// APIConfig locates the intake backend.
type APIConfig struct {
	BaseURL          string        `json:"base_url" yaml:"base_url"`
	Token            string        `json:"token" yaml:"token"`
	TranscribePath   string        `json:"transcribe_path" yaml:"transcribe_path"`
	ChatPath         string        `json:"chat_path" yaml:"chat_path"`
	ChatResetPath    string        `json:"chat_reset_path" yaml:"chat_reset_path"`
	AppointmentsPath string        `json:"appointments_path" yaml:"appointments_path"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`
}

// TranscriptionConfig selects where clips are transcribed. The intake
// backend uses the API settings; cartesia calls Cartesia directly.
type TranscriptionConfig struct {
	Backend string `json:"backend" yaml:"backend"` // intake, cartesia
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// DialogueConfig selects and configures the assistant backend.
type DialogueConfig struct {
	Backend       string `json:"backend" yaml:"backend"` // http, gemini, openai
	Model         string `json:"model" yaml:"model"`
	APIKey        string `json:"api_key" yaml:"api_key"`
	BaseURL       string `json:"base_url" yaml:"base_url"`
	Project       string `json:"project" yaml:"project"`
	Location      string `json:"location" yaml:"location"`
	FallbackReply string `json:"fallback_reply" yaml:"fallback_reply"`
}

// SpeechConfig configures reply synthesis.
type SpeechConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	APIKey     string  `json:"api_key" yaml:"api_key"`
	BaseURL    string  `json:"base_url" yaml:"base_url"`
	Voice      string  `json:"voice" yaml:"voice"`
	Speed      float64 `json:"speed" yaml:"speed"`
	SampleRate int     `json:"sample_rate" yaml:"sample_rate"`
}

// LiveUpdateConfig configures the clinic WebSocket feed.
type LiveUpdateConfig struct {
	URL            string        `json:"url" yaml:"url"`
	ClinicID       string        `json:"clinic_id" yaml:"clinic_id"`
	Token          string        `json:"token" yaml:"token"`
	PingInterval   time.Duration `json:"ping_interval" yaml:"ping_interval"`
	ReconnectDelay time.Duration `json:"reconnect_delay" yaml:"reconnect_delay"`
}

// ObservabilityConfig configures metrics and logging.
type ObservabilityConfig struct {
	// Metrics
	MetricsEnabled   bool   `json:"metrics_enabled" yaml:"metrics_enabled"`
	MetricsAddr      string `json:"metrics_addr" yaml:"metrics_addr"`
	MetricsPath      string `json:"metrics_path" yaml:"metrics_path"`
	MetricsNamespace string `json:"metrics_namespace" yaml:"metrics_namespace"`

	// Logging
	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format"` // "json" or "text"
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 60 * time.Second,
		},
		Transcription: TranscriptionConfig{
			Backend: TranscriberIntake,
		},
		Dialogue: DialogueConfig{
			Backend: BackendHTTP,
		},
		Speech: SpeechConfig{
			Enabled:    true,
			Speed:      1.0,
			SampleRate: 24000,
		},
		Conversation: live.DefaultConfig(),
		LiveUpdate: LiveUpdateConfig{
			PingInterval:   30 * time.Second,
			ReconnectDelay: 3 * time.Second,
		},
		Observability: ObservabilityConfig{
			MetricsEnabled:   false,
			MetricsAddr:      "127.0.0.1:9464",
			MetricsPath:      "/metrics",
			MetricsNamespace: "intake",
			LogLevel:         "info",
			LogFormat:        "text",
		},
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL)
	}

	switch c.Transcription.Backend {
	case TranscriberIntake:
	case TranscriberCartesia:
		if c.Transcription.APIKey == "" {
			return fmt.Errorf("transcription.api_key is required for the cartesia backend")
		}
	default:
		return fmt.Errorf("unknown transcription backend %q", c.Transcription.Backend)
	}

	switch c.Dialogue.Backend {
	case BackendHTTP:
	case BackendGemini:
		if c.Dialogue.APIKey == "" && c.Dialogue.Project == "" {
			return fmt.Errorf("dialogue.api_key or dialogue.project is required for the gemini backend")
		}
	case BackendOpenAI:
		if c.Dialogue.APIKey == "" {
			return fmt.Errorf("dialogue.api_key is required for the openai backend")
		}
	default:
		return fmt.Errorf("unknown dialogue backend %q", c.Dialogue.Backend)
	}

	if c.Conversation.MaxUserTurns < 0 {
		return fmt.Errorf("conversation.max_user_turns must not be negative")
	}
	if c.Conversation.MaxRetries < 0 {
		return fmt.Errorf("conversation.max_retries must not be negative")
	}

	switch strings.ToLower(c.Observability.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Observability.LogLevel)
	}
	switch c.Observability.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Observability.LogFormat)
	}
	return nil
}

// LiveUpdateURL returns the WebSocket base URL for the clinic feed,
// derived from the API base URL when not set explicitly.
func (c *Config) LiveUpdateURL() string {
	if c.LiveUpdate.URL != "" {
		return strings.TrimRight(c.LiveUpdate.URL, "/")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return strings.TrimRight(u.String(), "/")
}

// LiveUpdateToken returns the feed token, falling back to the API token.
func (c *Config) LiveUpdateToken() string {
	if c.LiveUpdate.Token != "" {
		return c.LiveUpdate.Token
	}
	return c.API.Token
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv overrides fields from environment variables. Unset or
// malformed variables leave the current value in place.
func (c *Config) ApplyEnv() {
	c.API.BaseURL = envOr("INTAKE_API_URL", c.API.BaseURL)
	c.API.Token = envOr("INTAKE_API_TOKEN", c.API.Token)
	c.API.Timeout = envDurationOr("INTAKE_API_TIMEOUT", c.API.Timeout)

	c.Transcription.Backend = strings.ToLower(envOr("INTAKE_STT_BACKEND", c.Transcription.Backend))
	if c.Transcription.Backend == TranscriberCartesia {
		c.Transcription.APIKey = envOr("CARTESIA_API_KEY", c.Transcription.APIKey)
	}

	c.Dialogue.Backend = strings.ToLower(envOr("INTAKE_DIALOGUE_BACKEND", c.Dialogue.Backend))
	c.Dialogue.Model = envOr("INTAKE_DIALOGUE_MODEL", c.Dialogue.Model)
	switch c.Dialogue.Backend {
	case BackendGemini:
		c.Dialogue.APIKey = envOr("GEMINI_API_KEY", c.Dialogue.APIKey)
		c.Dialogue.Project = envOr("GOOGLE_CLOUD_PROJECT", c.Dialogue.Project)
		c.Dialogue.Location = envOr("GOOGLE_CLOUD_LOCATION", c.Dialogue.Location)
	case BackendOpenAI:
		c.Dialogue.APIKey = envOr("OPENAI_API_KEY", c.Dialogue.APIKey)
		c.Dialogue.BaseURL = envOr("OPENAI_BASE_URL", c.Dialogue.BaseURL)
	}

	c.Speech.Enabled = envBoolOr("INTAKE_SPEECH_ENABLED", c.Speech.Enabled)
	c.Speech.APIKey = envOr("CARTESIA_API_KEY", c.Speech.APIKey)
	c.Speech.Voice = envOr("INTAKE_VOICE", c.Speech.Voice)
	c.Speech.Speed = envFloat64Or("INTAKE_VOICE_SPEED", c.Speech.Speed)

	c.Conversation.Language = envOr("INTAKE_LANGUAGE", c.Conversation.Language)
	c.Conversation.AutoContinue = envBoolOr("INTAKE_AUTO_CONTINUE", c.Conversation.AutoContinue)
	c.Conversation.MaxUserTurns = envIntOr("INTAKE_MAX_TURNS", c.Conversation.MaxUserTurns)
	c.Conversation.RetryDelay = envDurationOr("INTAKE_RETRY_DELAY", c.Conversation.RetryDelay)
	c.Conversation.SubmitOnEnd = envBoolOr("INTAKE_SUBMIT_ON_END", c.Conversation.SubmitOnEnd)

	c.Patient.Name = envOr("PATIENT_NAME", c.Patient.Name)
	c.Patient.Email = envOr("PATIENT_EMAIL", c.Patient.Email)
	c.Patient.Phone = envOr("PATIENT_PHONE", c.Patient.Phone)

	c.LiveUpdate.URL = envOr("INTAKE_LIVE_URL", c.LiveUpdate.URL)
	c.LiveUpdate.ClinicID = envOr("INTAKE_CLINIC_ID", c.LiveUpdate.ClinicID)
	c.LiveUpdate.Token = envOr("INTAKE_LIVE_TOKEN", c.LiveUpdate.Token)

	c.Observability.MetricsEnabled = envBoolOr("INTAKE_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.MetricsAddr = envOr("INTAKE_METRICS_ADDR", c.Observability.MetricsAddr)
	c.Observability.LogLevel = strings.ToLower(envOr("INTAKE_LOG_LEVEL", c.Observability.LogLevel))
	c.Observability.LogFormat = strings.ToLower(envOr("INTAKE_LOG_FORMAT", c.Observability.LogFormat))
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/vai-intake/pkg/core"
	"github.com/vango-go/vai-intake/pkg/core/types"
	"github.com/vango-go/vai-intake/pkg/core/voice/tts"
)

const (
	cartesiaBaseURL = "https://api.cartesia.ai"
	cartesiaVersion = "2025-04-16"

	// DefaultCartesiaModel is the batch transcription model.
	DefaultCartesiaModel = "ink-whisper"
)

// Cartesia transcribes clips directly with Cartesia's batch STT API,
// bypassing the intake backend.
type Cartesia struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// CartesiaOption configures a Cartesia transcriber.
type CartesiaOption func(*Cartesia)

// WithCartesiaHTTPClient sets the HTTP client.
func WithCartesiaHTTPClient(hc *http.Client) CartesiaOption {
	return func(c *Cartesia) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithCartesiaBaseURL overrides the API base URL.
func WithCartesiaBaseURL(u string) CartesiaOption {
	return func(c *Cartesia) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithCartesiaModel overrides the transcription model.
func WithCartesiaModel(model string) CartesiaOption {
	return func(c *Cartesia) {
		if model != "" {
			c.model = model
		}
	}
}

// WithCartesiaLogger sets the logger.
func WithCartesiaLogger(logger *slog.Logger) CartesiaOption {
	return func(c *Cartesia) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCartesia creates a Cartesia transcriber.
func NewCartesia(apiKey string, opts ...CartesiaOption) *Cartesia {
	c := &Cartesia{
		apiKey:     apiKey,
		baseURL:    cartesiaBaseURL,
		model:      DefaultCartesiaModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type cartesiaTranscriptionResponse struct {
	Text     string   `json:"text"`
	Language *string  `json:"language,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

// Transcribe implements Transcriber. Failures map onto the same error
// types as Client so the retry policy is backend independent.
func (c *Cartesia) Transcribe(ctx context.Context, clip *types.AudioClip, language string) (string, error) {
	if clip.Size() == 0 {
		return "", core.NewNoSpeechDetectedError("empty audio clip")
	}
	if c.apiKey == "" {
		return "", core.NewTranscriptionFailedError(fmt.Errorf("cartesia api key is not set"))
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "audio."+clip.Extension())
	if err != nil {
		return "", core.NewTranscriptionFailedError(fmt.Errorf("create form file: %w", err))
	}
	if _, err := fw.Write(clip.Data); err != nil {
		return "", core.NewTranscriptionFailedError(fmt.Errorf("write audio data: %w", err))
	}
	if err := mw.WriteField("model", c.model); err != nil {
		return "", core.NewTranscriptionFailedError(fmt.Errorf("write model field: %w", err))
	}
	// Cartesia takes ISO 639-1 codes.
	if lang := tts.BaseLanguage(language); lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return "", core.NewTranscriptionFailedError(fmt.Errorf("write language field: %w", err))
		}
	}
	if err := mw.Close(); err != nil {
		return "", core.NewTranscriptionFailedError(fmt.Errorf("close multipart writer: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stt", &buf)
	if err != nil {
		return "", core.NewTranscriptionFailedError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", core.NewTranscriptionFailedError(fmt.Errorf("cartesia request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", core.NewTranscriptionFailedError(&core.HTTPStatusError{
			Op:         "cartesia stt",
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		})
	}

	var out cartesiaTranscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", core.NewTranscriptionFailedError(fmt.Errorf("parse response: %w", err))
	}

	text := strings.TrimSpace(out.Text)
	attrs := []any{"bytes", clip.Size(), "chars", len(text), "duration_ms", time.Since(start).Milliseconds()}
	if out.Language != nil {
		attrs = append(attrs, "detected_language", *out.Language)
	}
	if out.Duration != nil {
		attrs = append(attrs, "audio_seconds", *out.Duration)
	}
	c.logger.Debug("cartesia transcription complete", attrs...)

	if text == "" {
		return "", core.NewNoSpeechDetectedError("empty transcript")
	}
	return text, nil
}

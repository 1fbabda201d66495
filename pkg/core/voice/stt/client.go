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
	"net/textproto"
	"strings"
	"time"

	"github.com/vango-go/vai-intake/pkg/core"
	"github.com/vango-go/vai-intake/pkg/core/types"
)

// DefaultPath is the transcription route relative to the API base URL.
const DefaultPath = "/api/v1/audio/transcribe"

// Transcriber converts a finalized clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, clip *types.AudioClip, language string) (string, error)
}

// Client uploads clips to the intake transcription endpoint.
// It never retries; callers decide whether to try again.
type Client struct {
	baseURL    string
	path       string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for uploads.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithPath overrides the transcription route.
func WithPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.path = path
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a transcription client. token is sent as a bearer
// credential when non-empty.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		path:       DefaultPath,
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type transcriptionResponse struct {
	Transcript string `json:"transcript"`
}

// Transcribe uploads clip with its language tag and returns the transcript.
// Transport and status failures yield core.ErrTranscriptionFailed; an empty
// transcript yields core.ErrNoSpeechDetected.
func (c *Client) Transcribe(ctx context.Context, clip *types.AudioClip, language string) (string, error) {
	if clip.Size() == 0 {
		return "", core.NewNoSpeechDetectedError("empty audio clip")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="recording.%s"`, clip.Extension()))
	header.Set("Content-Type", clip.MIMEType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", core.NewTranscriptionFailedError(fmt.Errorf("create form file: %w", err))
	}
	if _, err := part.Write(clip.Data); err != nil {
		return "", core.NewTranscriptionFailedError(fmt.Errorf("write audio: %w", err))
	}
	if language != "" {
		if err := writer.WriteField("language", language); err != nil {
			return "", core.NewTranscriptionFailedError(fmt.Errorf("write language: %w", err))
		}
	}
	if err := writer.Close(); err != nil {
		return "", core.NewTranscriptionFailedError(fmt.Errorf("close writer: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, &body)
	if err != nil {
		return "", core.NewTranscriptionFailedError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", core.NewTranscriptionFailedError(fmt.Errorf("transcription request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", core.NewTranscriptionFailedError(&core.HTTPStatusError{
			Op:         "transcribe",
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(errBody)),
		})
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", core.NewTranscriptionFailedError(fmt.Errorf("decode response: %w", err))
	}

	text := strings.TrimSpace(out.Transcript)
	c.logger.Debug("transcription complete",
		"bytes", clip.Size(),
		"language", language,
		"chars", len(text),
		"duration_ms", time.Since(start).Milliseconds())

	if text == "" {
		return "", core.NewNoSpeechDetectedError("empty transcript")
	}
	return text, nil
}

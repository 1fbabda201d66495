package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vango-go/vai-intake/pkg/config"
	"github.com/vango-go/vai-intake/pkg/core/dialogue"
	"github.com/vango-go/vai-intake/pkg/core/live"
	"github.com/vango-go/vai-intake/pkg/core/submission"
	"github.com/vango-go/vai-intake/pkg/core/voice/audio"
	"github.com/vango-go/vai-intake/pkg/core/voice/playback"
	"github.com/vango-go/vai-intake/pkg/core/voice/stt"
	"github.com/vango-go/vai-intake/pkg/core/voice/tts"
	"github.com/vango-go/vai-intake/pkg/metrics"
)

// buildDeps wires the microphone, remote clients and speaker. The returned
// cleanup releases the audio devices.
func buildDeps(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (live.Deps, func(), error) {
	hc := &http.Client{Timeout: cfg.API.Timeout}

	backend, err := newDialogueBackend(ctx, cfg, hc)
	if err != nil {
		return live.Deps{}, nil, err
	}
	controller := dialogue.NewController(backend,
		dialogue.WithFallbackReply(cfg.Dialogue.FallbackReply),
		dialogue.WithLogger(logger),
	)

	device := audio.NewMalgoDevice(audio.WithMalgoLogger(logger))
	cleanup := func() { _ = device.Close() }

	deps := live.Deps{
		Device:      device,
		Transcriber: newTranscriber(cfg, hc, logger),
		Dialogue:    controller,
		Submitter: submission.NewFinalizer(cfg.API.BaseURL, cfg.API.Token,
			submission.WithHTTPClient(hc),
			submission.WithPath(cfg.API.AppointmentsPath),
			submission.WithPatient(cfg.Patient),
			submission.WithLogger(logger),
		),
		Metrics: m,
		Logger:  logger,
	}

	if cfg.Speech.Enabled && cfg.Speech.APIKey != "" {
		sink, err := playback.NewOtoSink(cfg.Speech.SampleRate)
		if err != nil {
			// Replies still show as text.
			logger.Warn("audio output unavailable", "error", err)
		} else {
			opts := []tts.CartesiaOption{}
			if cfg.Speech.BaseURL != "" {
				opts = append(opts, tts.WithBaseURL(cfg.Speech.BaseURL))
			}
			deps.Speech = playback.New(tts.NewCartesia(cfg.Speech.APIKey, opts...), sink, playback.Options{
				Voice:      cfg.Speech.Voice,
				Speed:      cfg.Speech.Speed,
				SampleRate: cfg.Speech.SampleRate,
				Logger:     logger,
			})
		}
	}

	return deps, cleanup, nil
}

func newTranscriber(cfg *config.Config, hc *http.Client, logger *slog.Logger) stt.Transcriber {
	if cfg.Transcription.Backend == config.TranscriberCartesia {
		return stt.NewCartesia(cfg.Transcription.APIKey,
			stt.WithCartesiaHTTPClient(hc),
			stt.WithCartesiaBaseURL(cfg.Transcription.BaseURL),
			stt.WithCartesiaModel(cfg.Transcription.Model),
			stt.WithCartesiaLogger(logger),
		)
	}
	return stt.NewClient(cfg.API.BaseURL, cfg.API.Token,
		stt.WithHTTPClient(hc),
		stt.WithPath(cfg.API.TranscribePath),
		stt.WithLogger(logger),
	)
}

func newDialogueBackend(ctx context.Context, cfg *config.Config, hc *http.Client) (dialogue.Backend, error) {
	switch cfg.Dialogue.Backend {
	case config.BackendGemini:
		b, err := dialogue.NewGeminiBackend(ctx, dialogue.GeminiConfig{
			APIKey:   cfg.Dialogue.APIKey,
			Model:    cfg.Dialogue.Model,
			Project:  cfg.Dialogue.Project,
			Location: cfg.Dialogue.Location,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BackendOpenAI:
		b, err := dialogue.NewOpenAIBackend(dialogue.OpenAIConfig{
			APIKey:     cfg.Dialogue.APIKey,
			BaseURL:    cfg.Dialogue.BaseURL,
			Model:      cfg.Dialogue.Model,
			HTTPClient: hc,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BackendHTTP, "":
		return dialogue.NewHTTPBackend(cfg.API.BaseURL, cfg.API.Token,
			dialogue.WithHTTPClient(hc),
			dialogue.WithPaths(cfg.API.ChatPath, cfg.API.ChatResetPath),
		), nil
	default:
		return nil, fmt.Errorf("unknown dialogue backend %q", cfg.Dialogue.Backend)
	}
}

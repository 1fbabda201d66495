// Command intake-voice runs a patient intake conversation from the terminal.
//
// Usage:
//
//	intake-voice -config intake.yaml
//
// Environment variables (a .env file in the working directory is loaded):
//
//	INTAKE_API_URL    - Intake backend base URL
//	INTAKE_API_TOKEN  - Bearer token for the intake backend
//	CARTESIA_API_KEY  - Enables spoken replies
//	GEMINI_API_KEY    - Used with INTAKE_DIALOGUE_BACKEND=gemini
//	OPENAI_API_KEY    - Used with INTAKE_DIALOGUE_BACKEND=openai
//
// Controls:
//
//	Enter         - Tap the orb (start, stop, or interrupt)
//	/t <text>     - Type a message instead of speaking
//	/end          - End the conversation and submit it
//	/submit       - Retry a failed submission
//	/retry        - Recover from an error
//	/reset        - Start over with a new session
//	/status       - Show the session summary
//	q             - Quit
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vango-go/vai-intake/pkg/config"
	"github.com/vango-go/vai-intake/pkg/core/live"
	"github.com/vango-go/vai-intake/pkg/metrics"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file (yaml/json)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// stdout belongs to the conversation transcript.
	logger := config.NewLogger(cfg.Observability, os.Stderr)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var m *metrics.Metrics
	var metricsServer *http.Server
	if cfg.Observability.MetricsEnabled {
		m = metrics.New(cfg.Observability.MetricsNamespace)
		metricsServer = serveMetrics(cfg.Observability, m, logger)
	}

	deps, cleanup, err := buildDeps(ctx, cfg, m, logger)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	machine, err := live.New(cfg.Conversation, deps)
	if err != nil {
		slog.Error("failed to create conversation", "error", err)
		os.Exit(1)
	}
	if err := machine.Start(ctx); err != nil {
		slog.Error("failed to start conversation", "error", err)
		os.Exit(1)
	}

	ui := newConsole(os.Stdout, machine)
	ui.banner(cfg)

	go ui.renderEvents()
	go ui.renderLevel(ctx)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

loop:
	for {
		select {
		case <-quit:
			fmt.Println("\nShutting down...")
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if !ui.handle(ctx, line) {
				break loop
			}
		}
	}

	cancel()
	if err := machine.Close(); err != nil {
		slog.Error("close conversation", "error", err)
	}
	if metricsServer != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics shutdown error", "error", err)
		}
	}
}

func serveMetrics(obs config.ObservabilityConfig, m *metrics.Metrics, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(obs.MetricsPath, m.Handler())
	srv := &http.Server{
		Addr:              obs.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", "addr", obs.MetricsAddr, "path", obs.MetricsPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return srv
}

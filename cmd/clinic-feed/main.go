// Command clinic-feed prints a clinic's live dashboard events: visit
// status updates and red-flag alerts.
//
// Usage:
//
//	clinic-feed -config intake.yaml [-clinic ID] [-json]
//
// The clinic defaults to the clinic_id claim of the access token.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vango-go/vai-intake/pkg/config"
	"github.com/vango-go/vai-intake/pkg/liveupdate"
	"github.com/vango-go/vai-intake/pkg/metrics"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file (yaml/json)")
	clinic := flag.String("clinic", "", "Clinic ID (overrides config and token)")
	asJSON := flag.Bool("json", false, "Print events as JSON lines")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *clinic != "" {
		cfg.LiveUpdate.ClinicID = *clinic
	}

	logger := config.NewLogger(cfg.Observability, os.Stderr)
	slog.SetDefault(logger)

	var m *metrics.Metrics
	if cfg.Observability.MetricsEnabled {
		m = metrics.New(cfg.Observability.MetricsNamespace)
	}

	client, err := liveupdate.New(liveupdate.Config{
		URL:            cfg.LiveUpdateURL(),
		ClinicID:       cfg.LiveUpdate.ClinicID,
		Token:          cfg.LiveUpdateToken(),
		PingInterval:   cfg.LiveUpdate.PingInterval,
		ReconnectDelay: cfg.LiveUpdate.ReconnectDelay,
	}, liveupdate.WithLogger(logger), liveupdate.WithMetrics(m))
	if err != nil {
		slog.Error("failed to create live update client", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	for e := range client.Events() {
		if *asJSON {
			printJSON(os.Stdout, e)
		} else {
			printEvent(os.Stdout, e)
		}
	}
	if err := <-done; err != nil {
		slog.Error("live update stopped", "error", err)
		os.Exit(1)
	}
}

func printEvent(w io.Writer, e liveupdate.Event) {
	ts := time.Now().Format("15:04:05")
	switch e := e.(type) {
	case *liveupdate.ConnectedEvent:
		fmt.Fprintf(w, "%s connected to clinic %s\n", ts, e.ClinicID)
	case *liveupdate.DisconnectedEvent:
		fmt.Fprintf(w, "%s disconnected: %v\n", ts, e.Err)
	case *liveupdate.VisitUpdateEvent:
		fmt.Fprintf(w, "%s visit %s: %s\n", ts, e.VisitID, e.Status)
	case *liveupdate.RedFlagAlertEvent:
		fmt.Fprintf(w, "%s RED FLAG visit %s severity %s %s\n", ts, e.VisitID, e.Severity, string(e.RedFlags))
	case *liveupdate.UnknownEvent:
		fmt.Fprintf(w, "%s %s %s\n", ts, e.Type, string(e.Raw))
	}
}

func printJSON(w io.Writer, e liveupdate.Event) {
	payload := map[string]any{"type": e.EventType(), "event": e}
	if d, ok := e.(*liveupdate.DisconnectedEvent); ok && d.Err != nil {
		payload["event"] = map[string]string{"error": d.Err.Error()}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintln(w, string(data))
}

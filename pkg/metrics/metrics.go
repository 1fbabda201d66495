// Package metrics exposes Prometheus instrumentation for the intake engine.
//
// All Record methods are safe to call on a nil *Metrics, so components can
// take an optional metrics dependency without guarding every call site.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the intake engine.
type Metrics struct {
	registry *prometheus.Registry

	// Conversation state
	StateTransitionsTotal *prometheus.CounterVec

	// Capture
	CaptureSessionsActive prometheus.Gauge
	CaptureBytesTotal     prometheus.Counter
	ClipsTotal            *prometheus.CounterVec

	// Remote calls
	TranscriptionsTotal   *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram
	DialogueTurnsTotal    *prometheus.CounterVec
	DialogueDuration      prometheus.Histogram
	PlaybackTotal         *prometheus.CounterVec
	SubmissionsTotal      *prometheus.CounterVec

	// Clinic live updates
	LiveUpdateConnected       prometheus.Gauge
	LiveUpdateReconnectsTotal prometheus.Counter
	LiveUpdateEventsTotal     *prometheus.CounterVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// New creates a Metrics instance with every collector registered on a
// private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "intake"
	}

	registry := prometheus.NewRegistry()

	stateTransitionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Conversation state transitions",
		},
		[]string{"from", "to"},
	)

	captureSessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capture_sessions_active",
			Help:      "Open microphone capture sessions",
		},
	)

	captureBytesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_bytes_total",
			Help:      "PCM bytes captured from the microphone",
		},
	)

	clipsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clips_total",
			Help:      "Recordings finalized, by outcome",
		},
		[]string{"outcome"},
	)

	transcriptionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Transcription requests, by outcome",
		},
		[]string{"outcome"},
	)

	transcriptionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Transcription request duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	dialogueTurnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_turns_total",
			Help:      "Assistant replies, by status",
		},
		[]string{"status"},
	)

	dialogueDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dialogue_duration_seconds",
			Help:      "Dialogue request duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	playbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_total",
			Help:      "Spoken replies, by outcome",
		},
		[]string{"outcome"},
	)

	submissionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Intake submissions, by status",
		},
		[]string{"status"},
	)

	liveUpdateConnected := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_update_connected",
			Help:      "1 while the clinic live-update socket is connected",
		},
	)

	liveUpdateReconnectsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_update_reconnects_total",
			Help:      "Clinic live-update reconnect attempts",
		},
	)

	liveUpdateEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_update_events_total",
			Help:      "Clinic live-update events received, by type",
		},
		[]string{"type"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	registry.MustRegister(
		stateTransitionsTotal,
		captureSessionsActive,
		captureBytesTotal,
		clipsTotal,
		transcriptionsTotal,
		transcriptionDuration,
		dialogueTurnsTotal,
		dialogueDuration,
		playbackTotal,
		submissionsTotal,
		liveUpdateConnected,
		liveUpdateReconnectsTotal,
		liveUpdateEventsTotal,
		errorsTotal,
	)

	return &Metrics{
		registry:                  registry,
		StateTransitionsTotal:     stateTransitionsTotal,
		CaptureSessionsActive:     captureSessionsActive,
		CaptureBytesTotal:         captureBytesTotal,
		ClipsTotal:                clipsTotal,
		TranscriptionsTotal:       transcriptionsTotal,
		TranscriptionDuration:     transcriptionDuration,
		DialogueTurnsTotal:        dialogueTurnsTotal,
		DialogueDuration:          dialogueDuration,
		PlaybackTotal:             playbackTotal,
		SubmissionsTotal:          submissionsTotal,
		LiveUpdateConnected:       liveUpdateConnected,
		LiveUpdateReconnectsTotal: liveUpdateReconnectsTotal,
		LiveUpdateEventsTotal:     liveUpdateEventsTotal,
		ErrorsTotal:               errorsTotal,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordTransition records a state change.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.StateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordCaptureOpened records a capture session opening.
func (m *Metrics) RecordCaptureOpened() {
	if m == nil {
		return
	}
	m.CaptureSessionsActive.Inc()
}

// RecordCaptureClosed records a capture session closing after capturing n bytes.
func (m *Metrics) RecordCaptureClosed(n int64) {
	if m == nil {
		return
	}
	m.CaptureSessionsActive.Dec()
	if n > 0 {
		m.CaptureBytesTotal.Add(float64(n))
	}
}

// RecordClip records a finalized recording outcome ("accepted" or "too_short").
func (m *Metrics) RecordClip(outcome string) {
	if m == nil {
		return
	}
	m.ClipsTotal.WithLabelValues(outcome).Inc()
}

// RecordTranscription records a completed transcription request.
func (m *Metrics) RecordTranscription(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TranscriptionsTotal.WithLabelValues(outcome).Inc()
	m.TranscriptionDuration.Observe(duration.Seconds())
}

// RecordDialogue records an assistant reply.
func (m *Metrics) RecordDialogue(degraded bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if degraded {
		status = "degraded"
	}
	m.DialogueTurnsTotal.WithLabelValues(status).Inc()
	m.DialogueDuration.Observe(duration.Seconds())
}

// RecordPlayback records how a spoken reply ended.
func (m *Metrics) RecordPlayback(outcome string) {
	if m == nil {
		return
	}
	m.PlaybackTotal.WithLabelValues(outcome).Inc()
}

// RecordSubmission records an intake submission attempt.
func (m *Metrics) RecordSubmission(status string) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(status).Inc()
}

// SetLiveUpdateConnected records the live-update connection state.
func (m *Metrics) SetLiveUpdateConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.LiveUpdateConnected.Set(1)
		return
	}
	m.LiveUpdateConnected.Set(0)
}

// RecordLiveUpdateReconnect records a reconnect attempt.
func (m *Metrics) RecordLiveUpdateReconnect() {
	if m == nil {
		return
	}
	m.LiveUpdateReconnectsTotal.Inc()
}

// RecordLiveUpdateEvent records a received live-update event.
func (m *Metrics) RecordLiveUpdateEvent(eventType string) {
	if m == nil {
		return
	}
	m.LiveUpdateEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordError records an error.
func (m *Metrics) RecordError(component, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

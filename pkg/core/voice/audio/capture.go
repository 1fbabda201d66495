package audio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vango-go/vai-intake/pkg/core"
)

// Device opens exclusive input streams on an audio input.
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an open hardware input. Frames is closed when the stream ends.
type Stream interface {
	Frames() <-chan []byte
	Close() error
}

// FrameSink receives every captured frame. WriteFrame must not block.
type FrameSink interface {
	WriteFrame(frame []byte)
}

// FrameSinkFunc adapts a function to FrameSink.
type FrameSinkFunc func(frame []byte)

// WriteFrame calls f(frame).
func (f FrameSinkFunc) WriteFrame(frame []byte) { f(frame) }

// recentWindowBytes bounds the history kept for level metering.
const recentWindowBytes = 8192

// CaptureSession owns one open input stream. Close must be called on every
// exit path; it is safe to call more than once.
type CaptureSession struct {
	constraints Constraints
	stream      Stream
	recent      *window
	logger      *slog.Logger

	sinksMu sync.Mutex
	sinks   []FrameSink

	bytesCaptured atomic.Int64
	lost          atomic.Bool
	closed        atomic.Bool

	pumpDone  chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// CaptureOption configures a CaptureSession.
type CaptureOption func(*CaptureSession)

// WithCaptureLogger sets the session logger.
func WithCaptureLogger(logger *slog.Logger) CaptureOption {
	return func(s *CaptureSession) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open requests a stream from device. Frames are held by the stream until
// Start is called, so sinks added before Start see every frame. Failures
// are reported as core.ErrPermissionDenied or core.ErrDeviceUnavailable.
func Open(ctx context.Context, device Device, c Constraints, opts ...CaptureOption) (*CaptureSession, error) {
	if device == nil {
		return nil, core.NewDeviceUnavailableError(errors.New("no capture device configured"))
	}
	c = c.withDefaults()

	stream, err := device.Open(ctx, c)
	if err != nil {
		return nil, classifyOpenError(err)
	}

	s := &CaptureSession{
		constraints: c,
		stream:      stream,
		recent:      newWindow(recentWindowBytes),
		logger:      slog.Default(),
		pumpDone:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins delivering frames to sinks. Safe to call more than once.
func (s *CaptureSession) Start() {
	s.startOnce.Do(func() {
		go s.pump()
	})
}

func classifyOpenError(err error) error {
	switch core.TypeOf(err) {
	case core.TypePermissionDenied, core.TypeDeviceUnavailable:
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return core.NewDeviceUnavailableError(err)
}

// pump drains the stream until its frame channel closes, so frames already
// buffered when Close is called still reach the sinks.
func (s *CaptureSession) pump() {
	defer close(s.pumpDone)

	for frame := range s.stream.Frames() {
		s.dispatch(frame)
	}
	if !s.closed.Load() {
		s.lost.Store(true)
		s.logger.Warn("capture stream ended unexpectedly")
	}
}

func (s *CaptureSession) dispatch(frame []byte) {
	if len(frame) == 0 {
		return
	}
	s.bytesCaptured.Add(int64(len(frame)))
	s.recent.Write(frame)

	s.sinksMu.Lock()
	sinks := s.sinks
	s.sinksMu.Unlock()
	for _, sink := range sinks {
		sink.WriteFrame(frame)
	}
}

// AddSink registers sink to receive subsequent frames.
func (s *CaptureSession) AddSink(sink FrameSink) {
	s.sinksMu.Lock()
	defer s.sinksMu.Unlock()
	s.sinks = append(append([]FrameSink(nil), s.sinks...), sink)
}

// Constraints returns the constraints the stream was opened with.
func (s *CaptureSession) Constraints() Constraints {
	return s.constraints
}

// Recent returns up to n of the most recently captured bytes.
func (s *CaptureSession) Recent(n int) []byte {
	return s.recent.Last(n)
}

// BytesCaptured returns the total number of bytes received so far.
func (s *CaptureSession) BytesCaptured() int64 {
	return s.bytesCaptured.Load()
}

// Closed reports whether Close has been called.
func (s *CaptureSession) Closed() bool {
	return s.closed.Load()
}

// Wait blocks until the stream stops delivering frames or ctx is done.
// It does not return before Start has been called.
// It returns core.ErrDeviceUnavailable if the stream was lost without
// Close being called.
func (s *CaptureSession) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.pumpDone:
	}
	if s.lost.Load() {
		return core.NewDeviceUnavailableError(errors.New("capture stream ended"))
	}
	return nil
}

// Close stops frame delivery and releases the device stream. Calls after
// the first are no-ops and return nil.
func (s *CaptureSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.Start()
		err = s.stream.Close()
		<-s.pumpDone
		s.recent.Reset()
		s.logger.Debug("capture session closed", "bytes", s.bytesCaptured.Load())
	})
	return err
}

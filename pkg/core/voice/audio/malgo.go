package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/vango-go/vai-intake/pkg/core"
)

// MalgoDevice captures from the system default input through miniaudio.
// The miniaudio context is created on first Open and shared by all streams;
// Close releases it.
type MalgoDevice struct {
	periodMs uint32
	logger   *slog.Logger

	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// MalgoOption configures a MalgoDevice.
type MalgoOption func(*MalgoDevice)

// WithPeriod sets the capture callback period in milliseconds.
func WithPeriod(ms uint32) MalgoOption {
	return func(d *MalgoDevice) {
		if ms > 0 {
			d.periodMs = ms
		}
	}
}

// WithMalgoLogger sets the device logger.
func WithMalgoLogger(logger *slog.Logger) MalgoOption {
	return func(d *MalgoDevice) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewMalgoDevice creates a capture device backed by the default input.
func NewMalgoDevice(opts ...MalgoOption) *MalgoDevice {
	d := &MalgoDevice{
		periodMs: 20,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open starts a capture device. miniaudio has no echo cancellation or noise
// suppression, so those constraints are logged and otherwise ignored.
func (d *MalgoDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx == nil {
		cfg := malgo.ContextConfig{}
		cfg.ThreadPriority = malgo.ThreadPriorityRealtime
		mctx, err := malgo.InitContext(nil, cfg, nil)
		if err != nil {
			return nil, classifyMalgoError(fmt.Errorf("init audio context: %w", err))
		}
		d.ctx = mctx
	}

	if c.EchoCancellation || c.NoiseSuppression {
		d.logger.Debug("input processing not supported by backend",
			"echo_cancellation", c.EchoCancellation,
			"noise_suppression", c.NoiseSuppression)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(c.Channels)
	deviceConfig.SampleRate = uint32(c.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = d.periodMs

	stream := &malgoStream{frames: make(chan []byte, 64)}
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			stream.push(input)
		},
	}

	device, err := malgo.InitDevice(d.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, classifyMalgoError(fmt.Errorf("init capture device: %w", err))
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, classifyMalgoError(fmt.Errorf("start capture device: %w", err))
	}
	stream.device = device

	d.logger.Debug("capture device started", "sample_rate", c.SampleRate, "channels", c.Channels)
	return stream, nil
}

// Close releases the miniaudio context.
func (d *MalgoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx == nil {
		return nil
	}
	err := d.ctx.Uninit()
	d.ctx.Free()
	d.ctx = nil
	return err
}

func classifyMalgoError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "access denied") {
		return core.NewPermissionDeniedError(err)
	}
	return core.NewDeviceUnavailableError(err)
}

type malgoStream struct {
	device *malgo.Device

	mu     sync.Mutex
	frames chan []byte
	closed bool
}

// push runs on the audio thread and must not block.
func (s *malgoStream) push(input []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(input) == 0 {
		return
	}
	frame := make([]byte, len(input))
	copy(frame, input)
	select {
	case s.frames <- frame:
	default:
	}
}

func (s *malgoStream) Frames() <-chan []byte {
	return s.frames
}

func (s *malgoStream) Close() error {
	var err error
	if s.device != nil {
		err = s.device.Stop()
		s.device.Uninit()
	}

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	s.mu.Unlock()
	return err
}

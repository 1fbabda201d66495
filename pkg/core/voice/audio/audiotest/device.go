// Package audiotest provides an in-memory capture device for tests.
package audiotest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/vango-go/vai-intake/pkg/core/voice/audio"
)

// Device is a scripted audio.Device. Each Open returns a stream that first
// delivers Script, then any frames passed to Emit.
type Device struct {
	// OpenErr, when set, is returned by Open.
	OpenErr error
	// Script is delivered on every new stream.
	Script [][]byte
	// OnOpen and OnClose observe handle lifetime.
	OnOpen  func()
	OnClose func()

	opened   atomic.Int64
	released atomic.Int64

	mu      sync.Mutex
	current *Stream
	last    audio.Constraints
}

// Open implements audio.Device.
func (d *Device) Open(ctx context.Context, c audio.Constraints) (audio.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	s := &Stream{
		device: d,
		frames: make(chan []byte, len(d.Script)+256),
	}
	for _, f := range d.Script {
		s.frames <- append([]byte(nil), f...)
	}

	d.mu.Lock()
	d.current = s
	d.last = c
	d.mu.Unlock()

	d.opened.Add(1)
	if d.OnOpen != nil {
		d.OnOpen()
	}
	return s, nil
}

// Emit delivers frame on the most recently opened stream. It reports false
// when there is no open stream.
func (d *Device) Emit(frame []byte) bool {
	d.mu.Lock()
	s := d.current
	d.mu.Unlock()
	if s == nil {
		return false
	}
	return s.emit(frame)
}

// Disconnect ends the current stream as if the hardware went away.
func (d *Device) Disconnect() {
	d.mu.Lock()
	s := d.current
	d.mu.Unlock()
	if s != nil {
		s.end()
	}
}

// Opened returns how many streams have been opened.
func (d *Device) Opened() int64 { return d.opened.Load() }

// Released returns how many streams have been closed.
func (d *Device) Released() int64 { return d.released.Load() }

// Active returns the number of streams opened but not yet closed.
func (d *Device) Active() int64 { return d.opened.Load() - d.released.Load() }

// LastConstraints returns the constraints of the most recent Open.
func (d *Device) LastConstraints() audio.Constraints {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Stream is a fake open input.
type Stream struct {
	device *Device

	mu     sync.Mutex
	frames chan []byte
	ended  bool
	closed bool
}

func (s *Stream) emit(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	select {
	case s.frames <- append([]byte(nil), frame...):
		return true
	default:
		return false
	}
}

func (s *Stream) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.ended = true
		close(s.frames)
	}
}

// Frames implements audio.Stream.
func (s *Stream) Frames() <-chan []byte { return s.frames }

// Close implements audio.Stream. A second close is an error so tests can
// detect double release.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("audiotest: stream closed twice")
	}
	s.closed = true
	s.mu.Unlock()

	s.end()
	s.device.released.Add(1)
	if s.device.OnClose != nil {
		s.device.OnClose()
	}
	return nil
}

// Tone returns n bytes of a loud square wave, useful as speech-like input.
func Tone(n int) []byte {
	out := make([]byte, n-n%2)
	for i := 0; i+1 < len(out); i += 2 {
		v := int16(12000)
		if (i/2/20)%2 == 1 {
			v = -12000
		}
		out[i] = byte(v)
		out[i+1] = byte(uint16(v) >> 8)
	}
	return out
}

// Silence returns n zero bytes.
func Silence(n int) []byte {
	return make([]byte, n-n%2)
}

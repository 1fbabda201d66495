package audio

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MeterOptions configures a LevelMeter.
type MeterOptions struct {
	// FrameInterval is the sampling period. Defaults to 60 frames per second.
	FrameInterval time.Duration `json:"frame_interval" yaml:"frame_interval"`
	// FFTSize is the analysis window in samples; must be a power of two.
	FFTSize int `json:"fft_size" yaml:"fft_size"`
}

func (o MeterOptions) withDefaults() MeterOptions {
	if o.FrameInterval <= 0 {
		o.FrameInterval = time.Second / 60
	}
	if o.FFTSize <= 0 || o.FFTSize&(o.FFTSize-1) != 0 {
		o.FFTSize = 256
	}
	return o
}

// LevelSource supplies the most recent captured PCM.
type LevelSource interface {
	Recent(n int) []byte
}

// LevelMeter samples a capture session on a fixed frame clock and publishes
// a loudness value in [0, 1]. It is display-only.
type LevelMeter struct {
	source LevelSource
	opts   MeterOptions

	level  atomic.Uint64
	levels chan float64

	cancel   context.CancelFunc
	loopDone chan struct{}
	stopOnce sync.Once
}

// StartLevelMeter attaches a meter to source and starts sampling.
// Stop must be called when the source closes.
func StartLevelMeter(source LevelSource, opts MeterOptions) *LevelMeter {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &LevelMeter{
		source:   source,
		opts:     opts,
		levels:   make(chan float64, 1),
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}
	go m.loop(ctx)
	return m
}

func (m *LevelMeter) loop(ctx context.Context) {
	defer close(m.loopDone)

	ticker := time.NewTicker(m.opts.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *LevelMeter) sample() {
	pcm := m.source.Recent(m.opts.FFTSize * 2)
	v := SpectrumLevel(pcm, m.opts.FFTSize)
	m.level.Store(math.Float64bits(v))

	select {
	case m.levels <- v:
	default:
		// Replace a stale unread value.
		select {
		case <-m.levels:
		default:
		}
		select {
		case m.levels <- v:
		default:
		}
	}
}

// Level returns the latest sampled level, or 0 after Stop.
func (m *LevelMeter) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

// Levels returns a channel carrying the latest level. Slow readers only see
// the newest value.
func (m *LevelMeter) Levels() <-chan float64 {
	return m.levels
}

// Stop ends the sampling loop and waits for it to exit. Safe to call more
// than once.
func (m *LevelMeter) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		<-m.loopDone
		m.level.Store(0)
	})
}

// Running reports whether the sampling loop is still active.
func (m *LevelMeter) Running() bool {
	select {
	case <-m.loopDone:
		return false
	default:
		return true
	}
}

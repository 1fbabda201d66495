// Package playback speaks assistant replies and supports immediate
// cancellation.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vango-go/vai-intake/pkg/core"
	"github.com/vango-go/vai-intake/pkg/core/voice/tts"
)

// Outcome describes how a Speak call ended.
type Outcome int

const (
	// Completed means the audio played to the end.
	Completed Outcome = iota
	// Interrupted means Cancel or context cancellation stopped playback.
	Interrupted
	// Skipped means nothing was played because synthesis or output failed.
	Skipped
)

// String returns a human-readable outcome.
func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Interrupted:
		return "interrupted"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Sink plays PCM and blocks until it has drained or ctx is done.
type Sink interface {
	Play(ctx context.Context, pcm []byte, sampleRate int) error
}

// Options configures a Playback.
type Options struct {
	Voice      string
	Speed      float64
	SampleRate int
	Logger     *slog.Logger
}

// Playback is the single speech output queue. Only one utterance plays at a
// time; starting a new one cancels the previous.
type Playback struct {
	synth tts.Synthesizer
	sink  Sink
	opts  Options

	mu     sync.Mutex
	cancel context.CancelFunc
	seq    uint64

	active              atomic.Int32
	unavailableReported atomic.Bool
}

// New creates a Playback. A nil synth or sink makes speech unavailable.
func New(synth tts.Synthesizer, sink Sink, opts Options) *Playback {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 24000
	}
	return &Playback{synth: synth, sink: sink, opts: opts}
}

// Speak synthesizes and plays text. Cancellation is reported as Interrupted
// with a nil error. The first time speech turns out to be unavailable the
// error is core.ErrSynthesisUnavailable; later calls skip silently.
func (p *Playback) Speak(ctx context.Context, text, language string) (Outcome, error) {
	if p.synth == nil || p.sink == nil {
		return p.unavailable(core.NewSynthesisUnavailableError("no speech output configured"))
	}

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.seq++
	seq := p.seq
	p.cancel = cancel
	p.mu.Unlock()

	p.active.Add(1)
	defer func() {
		p.active.Add(-1)
		p.mu.Lock()
		if p.seq == seq {
			p.cancel = nil
		}
		p.mu.Unlock()
		cancel()
	}()

	syn, err := p.synth.Synthesize(ctx, text, tts.SynthesizeOptions{
		Voice:      p.opts.Voice,
		Speed:      p.opts.Speed,
		Language:   language,
		SampleRate: p.opts.SampleRate,
	})
	if ctx.Err() != nil {
		return Interrupted, nil
	}
	if err != nil {
		if errors.Is(err, core.ErrSynthesisUnavailable) {
			return p.unavailable(err)
		}
		p.opts.Logger.Warn("speech synthesis failed", "error", err)
		return Skipped, err
	}
	if len(syn.Audio) == 0 {
		return Completed, nil
	}

	if err := p.sink.Play(ctx, syn.Audio, syn.SampleRate); err != nil {
		if ctx.Err() != nil {
			return Interrupted, nil
		}
		p.opts.Logger.Warn("speech playback failed", "error", err)
		return Skipped, err
	}
	if ctx.Err() != nil {
		return Interrupted, nil
	}
	return Completed, nil
}

func (p *Playback) unavailable(err error) (Outcome, error) {
	if p.unavailableReported.Swap(true) {
		return Skipped, nil
	}
	p.opts.Logger.Warn("speech synthesis unavailable", "error", err)
	return Skipped, err
}

// Cancel stops the current utterance immediately.
func (p *Playback) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// Active reports whether an utterance is being synthesized or played.
func (p *Playback) Active() bool {
	return p.active.Load() > 0
}

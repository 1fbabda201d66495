package playback

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoSink plays mono 16-bit PCM on the default output device. The process
// may hold only one oto context, so a single OtoSink should be shared.
type OtoSink struct {
	ctx        *oto.Context
	sampleRate int

	mu sync.Mutex
}

// NewOtoSink opens the output device at sampleRate and waits until it is
// ready.
func NewOtoSink(sampleRate int) (*OtoSink, error) {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   50 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio output: %w", err)
	}
	<-ready
	return &OtoSink{ctx: ctx, sampleRate: sampleRate}, nil
}

// Play implements Sink. Each call uses a fresh player that is closed before
// returning.
func (s *OtoSink) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	if sampleRate != 0 && sampleRate != s.sampleRate {
		return fmt.Errorf("sample rate %d does not match output rate %d", sampleRate, s.sampleRate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	player := s.ctx.NewPlayer(bytes.NewReader(pcm))
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

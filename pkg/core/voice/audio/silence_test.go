package audio

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDetector(cfg SilenceConfig) (*SilenceDetector, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	d := NewSilenceDetector(cfg)
	d.now = clock.now
	d.startedAt = clock.now()
	return d, clock
}

func loudFrame() []byte {
	samples := make([]int16, 160)
	for i := range samples {
		samples[i] = 8000
	}
	return EncodeSamples(samples)
}

func TestSilenceDetector_TrailingSilence(t *testing.T) {
	d, clock := newTestDetector(DefaultSilenceConfig())

	d.WriteFrame(loudFrame())
	if !d.HeardSpeech() {
		t.Fatal("loud frame should count as speech")
	}
	clock.advance(time.Second)
	d.WriteFrame(make([]byte, 320))
	if _, ok := d.Check(); ok {
		t.Fatal("should not fire before silence duration")
	}

	clock.advance(600 * time.Millisecond)
	reason, ok := d.Check()
	if !ok || reason != ReasonTrailingSilence {
		t.Fatalf("Check = %q, %v; want trailing silence", reason, ok)
	}
}

func TestSilenceDetector_NoSpeechTimeout(t *testing.T) {
	d, clock := newTestDetector(DefaultSilenceConfig())

	clock.advance(7 * time.Second)
	if _, ok := d.Check(); ok {
		t.Fatal("should not fire before no-speech timeout")
	}
	clock.advance(time.Second)
	reason, ok := d.Check()
	if !ok || reason != ReasonNoSpeech {
		t.Fatalf("Check = %q, %v; want no speech", reason, ok)
	}
}

func TestSilenceDetector_MaxDuration(t *testing.T) {
	cfg := DefaultSilenceConfig()
	cfg.MaxDuration = 5 * time.Second
	d, clock := newTestDetector(cfg)

	for i := 0; i < 10; i++ {
		d.WriteFrame(loudFrame())
		clock.advance(time.Second)
	}
	reason, ok := d.Check()
	if !ok || reason != ReasonMaxDuration {
		t.Fatalf("Check = %q, %v; want max duration", reason, ok)
	}
}

func TestSilenceDetector_WaitHonorsContext(t *testing.T) {
	d := NewSilenceDetector(SilenceConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := d.Wait(ctx, 5*time.Millisecond); err == nil {
		t.Fatal("expected context error when no rule is configured")
	}
}

func TestCalculateRMSEnergy(t *testing.T) {
	if got := CalculateRMSEnergy(nil); got != 0 {
		t.Fatalf("empty = %v, want 0", got)
	}
	if got := CalculateRMSEnergy(make([]byte, 64)); got != 0 {
		t.Fatalf("silence = %v, want 0", got)
	}
	got := CalculateRMSEnergy(EncodeSamples([]int16{16384, -16384}))
	if got < 0.49 || got > 0.51 {
		t.Fatalf("half scale = %v, want 0.5", got)
	}
}

func TestWindow_KeepsMostRecentBytes(t *testing.T) {
	w := newWindow(4)
	w.Write([]byte{1, 2, 3})
	w.Write([]byte{4, 5, 6})

	got := w.Last(10)
	if len(got) != 4 || got[0] != 3 || got[3] != 6 {
		t.Fatalf("Last = %v, want [3 4 5 6]", got)
	}
	w.Reset()
	if len(w.Last(4)) != 0 {
		t.Fatal("window not empty after Reset")
	}
}

func TestEncodeWAV_Header(t *testing.T) {
	pcm := EncodeSamples([]int16{1, 2, 3, 4})
	data := EncodeWAV(pcm, 16000, 1)
	if len(data) != WAVHeaderSize+len(pcm) {
		t.Fatalf("len = %d, want %d", len(data), WAVHeaderSize+len(pcm))
	}
	got, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 16000 || len(got) != len(pcm) {
		t.Fatalf("rate=%d len=%d", rate, len(got))
	}
	if _, _, err := DecodeWAV([]byte("RIFF")); err == nil {
		t.Fatal("expected error for short header")
	}
}

func TestConstraints_Durations(t *testing.T) {
	c := DefaultConstraints()
	if got := c.BytesPerSecond(); got != 32000 {
		t.Fatalf("BytesPerSecond = %d, want 32000", got)
	}
	if got := c.BytesForDuration(250 * time.Millisecond); got != 8000 {
		t.Fatalf("BytesForDuration = %d, want 8000", got)
	}
	if got := c.DurationOf(16000); got != 500*time.Millisecond {
		t.Fatalf("DurationOf = %v, want 500ms", got)
	}
}

package audio_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/vango-go/vai-intake/pkg/core/voice/audio"
	"github.com/vango-go/vai-intake/pkg/core/voice/audio/audiotest"
)

// recordClip captures pcmBytes of audio and returns the recorder result.
func recordClip(t *testing.T, pcmBytes int) (int, bool) {
	t.Helper()

	dev := &audiotest.Device{}
	session, err := audio.Open(context.Background(), dev, audio.DefaultConstraints())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rec := audio.NewRecorder(audio.RecorderOptions{})
	rec.Start(session)
	session.Start()

	dev.Emit(audiotest.Tone(pcmBytes))
	waitFor(t, time.Second, func() bool { return session.BytesCaptured() == int64(pcmBytes) })

	clip, ok := rec.Stop()
	if dev.Active() != 0 {
		t.Fatalf("capture handle still open after Stop")
	}
	return clip.Size(), ok
}

func TestRecorder_MinClipBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		clipBytes int
		wantClip  bool
	}{
		{clipBytes: 400, wantClip: false},
		{clipBytes: 600, wantClip: true},
	}

	for _, tt := range tests {
		size, ok := recordClip(t, tt.clipBytes-audio.WAVHeaderSize)
		if ok != tt.wantClip {
			t.Fatalf("%d-byte clip: ok = %v, want %v", tt.clipBytes, ok, tt.wantClip)
		}
		if ok && size != tt.clipBytes {
			t.Fatalf("clip size = %d, want %d", size, tt.clipBytes)
		}
	}
}

func TestRecorder_ConcatenatesChunksInOrder(t *testing.T) {
	t.Parallel()

	dev := &audiotest.Device{}
	session, err := audio.Open(context.Background(), dev, audio.DefaultConstraints())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rec := audio.NewRecorder(audio.RecorderOptions{FlushInterval: 10 * time.Millisecond})
	rec.Start(session)
	session.Start()

	first := bytes.Repeat([]byte{1, 0}, 300)
	second := bytes.Repeat([]byte{2, 0}, 300)
	dev.Emit(first)
	waitFor(t, time.Second, func() bool { return session.BytesCaptured() == 600 })
	time.Sleep(30 * time.Millisecond)
	dev.Emit(second)
	waitFor(t, time.Second, func() bool { return session.BytesCaptured() == 1200 })

	clip, ok := rec.Stop()
	if !ok {
		t.Fatal("expected a clip")
	}
	if clip.MIMEType != "audio/wav" {
		t.Fatalf("mime = %q, want audio/wav", clip.MIMEType)
	}
	pcm, rate, err := audio.DecodeWAV(clip.Data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 16000 {
		t.Fatalf("rate = %d, want 16000", rate)
	}
	if !bytes.Equal(pcm, append(append([]byte(nil), first...), second...)) {
		t.Fatal("clip payload does not match captured frames in order")
	}
	if clip.Duration <= 0 {
		t.Fatalf("duration = %v, want > 0", clip.Duration)
	}
}

func TestRecorder_StopReleasesEverything(t *testing.T) {
	t.Parallel()

	dev := &audiotest.Device{}
	session, err := audio.Open(context.Background(), dev, audio.DefaultConstraints())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rec := audio.NewRecorder(audio.RecorderOptions{})
	rec.Start(session)
	session.Start()
	if !rec.Active() {
		t.Fatal("flush loop should be running after Start")
	}

	if _, ok := rec.Stop(); ok {
		t.Fatal("empty recording should yield no clip")
	}
	if rec.Active() {
		t.Fatal("flush loop still running after Stop")
	}
	if !session.Closed() {
		t.Fatal("capture session not closed by Stop")
	}
	if dev.Released() != 1 {
		t.Fatalf("released = %d, want 1", dev.Released())
	}

	if _, ok := rec.Stop(); ok {
		t.Fatal("second Stop should yield no clip")
	}
}

func TestRecorder_AbortDiscardsAudio(t *testing.T) {
	t.Parallel()

	dev := &audiotest.Device{Script: [][]byte{audiotest.Tone(4000)}}
	session, err := audio.Open(context.Background(), dev, audio.DefaultConstraints())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rec := audio.NewRecorder(audio.RecorderOptions{})
	rec.Start(session)
	session.Start()
	rec.Abort()

	if rec.Active() {
		t.Fatal("flush loop still running after Abort")
	}
	if dev.Active() != 0 {
		t.Fatal("capture handle still open after Abort")
	}
	if _, ok := rec.Stop(); ok {
		t.Fatal("Stop after Abort should yield no clip")
	}
}

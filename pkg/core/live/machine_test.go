package live

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vango-go/vai-intake/pkg/core"
	"github.com/vango-go/vai-intake/pkg/core/dialogue"
	"github.com/vango-go/vai-intake/pkg/core/submission"
	"github.com/vango-go/vai-intake/pkg/core/types"
	"github.com/vango-go/vai-intake/pkg/core/voice/audio"
	"github.com/vango-go/vai-intake/pkg/core/voice/audio/audiotest"
	"github.com/vango-go/vai-intake/pkg/core/voice/playback"
	"github.com/vango-go/vai-intake/pkg/core/voice/stt"
)

// overlap counts concurrently active capture, transcription and playback
// work and remembers the peak.
type overlap struct {
	active atomic.Int64
	peak   atomic.Int64
}

func (p *overlap) enter() {
	n := p.active.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (p *overlap) exit() { p.active.Add(-1) }

type transcript struct {
	text  string
	err   error
	delay time.Duration
}

type fakeTranscriber struct {
	overlap *overlap

	mu      sync.Mutex
	results []transcript
	calls   int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, clip *types.AudioClip, language string) (string, error) {
	f.overlap.enter()
	defer f.overlap.exit()

	f.mu.Lock()
	r := f.results[min(f.calls, len(f.results)-1)]
	f.calls++
	f.mu.Unlock()

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.text, r.err
}

func (f *fakeTranscriber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDialogue struct {
	reply func(utterance string) dialogue.Reply
	// block, when set, holds every request until closed or canceled.
	block chan struct{}

	mu         sync.Mutex
	utterances []string
	resets     atomic.Int32
}

func (f *fakeDialogue) Converse(ctx context.Context, utterance string, prior []types.Turn, language string, known []string) dialogue.Reply {
	f.mu.Lock()
	f.utterances = append(f.utterances, utterance)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	if f.reply != nil {
		return f.reply(utterance)
	}
	return dialogue.Reply{Text: "Tell me more."}
}

func (f *fakeDialogue) Reset(ctx context.Context) { f.resets.Add(1) }

func (f *fakeDialogue) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.utterances...)
}

type fakeSpeaker struct {
	overlap *overlap
	// hold keeps speaking until canceled.
	hold bool

	mu       sync.Mutex
	spoken   []string
	canceled atomic.Int32
}

func (f *fakeSpeaker) Speak(ctx context.Context, text, language string) (playback.Outcome, error) {
	f.overlap.enter()
	defer f.overlap.exit()

	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	f.mu.Unlock()

	if f.hold {
		<-ctx.Done()
		f.canceled.Add(1)
		return playback.Interrupted, nil
	}
	return playback.Completed, nil
}

func (f *fakeSpeaker) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

type fakeSubmitter struct {
	// block, when set, holds every submission until closed.
	block chan struct{}

	mu       sync.Mutex
	err      error
	sessions []types.ConversationSession
}

func (f *fakeSubmitter) Submit(ctx context.Context, s *types.ConversationSession) (*submission.Receipt, error) {
	f.mu.Lock()
	f.sessions = append(f.sessions, s.Clone())
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s.Submitted = true
	s.SubmissionID = "apt-1"
	return &submission.Receipt{ID: "apt-1", Status: "pending"}, nil
}

func (f *fakeSubmitter) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

type harness struct {
	m       *Machine
	overlap *overlap
	dev     *audiotest.Device
	stt     *fakeTranscriber
	dlg     *fakeDialogue
	spk     *fakeSpeaker
	sub     *fakeSubmitter
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Silence = audio.SilenceConfig{}
	cfg.SilencePollInterval = 5 * time.Millisecond
	cfg.Meter = audio.MeterOptions{FrameInterval: 5 * time.Millisecond}
	cfg.RetryDelay = 10 * time.Millisecond
	return cfg
}

func newHarness(t *testing.T, cfg Config, setup func(h *harness)) *harness {
	t.Helper()

	p := &overlap{}
	h := &harness{
		overlap: p,
		dev: &audiotest.Device{
			Script:  [][]byte{audiotest.Tone(4000)},
			OnOpen:  p.enter,
			OnClose: p.exit,
		},
		stt: &fakeTranscriber{overlap: p, results: []transcript{{text: "I have a headache"}}},
		dlg: &fakeDialogue{},
		spk: &fakeSpeaker{overlap: p},
		sub: &fakeSubmitter{},
	}
	if setup != nil {
		setup(h)
	}

	m, err := New(cfg, Deps{
		Device:      h.dev,
		Transcriber: h.stt,
		Dialogue:    h.dlg,
		Speech:      h.spk,
		Submitter:   h.sub,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.m = m

	t.Cleanup(func() {
		_ = m.Close()
		if n := h.dev.Active(); n != 0 {
			t.Errorf("%d capture handles still open after Close", n)
		}
		if m.Level() != 0 {
			t.Errorf("level meter still reporting after Close")
		}
		if peak := p.peak.Load(); peak > 1 {
			t.Errorf("capture, transcription and playback overlapped (peak %d)", peak)
		}
	})
	return h
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func drain(m *Machine) []Event {
	var out []Event
	for {
		select {
		case e, ok := <-m.Events():
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestMachine_HappyPathAutoContinues(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), func(h *harness) {
		h.dlg.reply = func(string) dialogue.Reply {
			return dialogue.Reply{Text: "How long have you had it?", Symptoms: []string{"headache"}}
		}
	})

	must(t, h.m.StartListening())
	if got := h.m.State(); got != StateRecording {
		t.Fatalf("state = %s, want recording", got)
	}
	must(t, h.m.StopListening())

	eventually(t, "second recording", func() bool {
		return h.dev.Opened() == 2 && h.m.State() == StateRecording
	})

	s := h.m.Session()
	if len(s.Turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(s.Turns))
	}
	if s.Turns[0].Role != types.RoleUser || s.Turns[0].Text != "I have a headache" || s.Turns[0].Source != types.SourceVoice {
		t.Fatalf("user turn = %+v", s.Turns[0])
	}
	if s.Turns[1].Role != types.RoleAssistant || s.Turns[1].Text != "How long have you had it?" {
		t.Fatalf("assistant turn = %+v", s.Turns[1])
	}
	if !s.Symptoms.Contains("headache") || s.Symptoms.Len() != 1 {
		t.Fatalf("symptoms = %v, want [headache]", s.Symptoms.List())
	}
	if got := h.spk.texts(); len(got) != 1 || got[0] != "How long have you had it?" {
		t.Fatalf("spoken = %v", got)
	}

	var sawSymptoms bool
	for _, e := range drain(h.m) {
		if ev, ok := e.(*SymptomsUpdatedEvent); ok && ev.Added == 1 {
			sawSymptoms = true
		}
	}
	if !sawSymptoms {
		t.Fatal("expected a symptoms.updated event")
	}
}

func TestMachine_InterruptDuringPlayback(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), func(h *harness) { h.spk.hold = true })

	must(t, h.m.StartListening())
	must(t, h.m.StopListening())
	eventually(t, "speaking", func() bool { return h.m.State() == StateSpeaking })

	must(t, h.m.Interrupt())
	if got := h.m.State(); got != StateRecording {
		t.Fatalf("state after interrupt = %s, want recording", got)
	}
	if h.spk.canceled.Load() != 1 {
		t.Fatal("playback was not canceled before listening again")
	}
	if h.dev.Opened() != 2 {
		t.Fatalf("opened = %d, want a fresh capture", h.dev.Opened())
	}
	s := h.m.Session()
	if got := s.UserTurnCount(); got != 1 {
		t.Fatalf("user turns = %d, want 1", got)
	}
}

func TestMachine_TapCyclesStates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), func(h *harness) { h.spk.hold = true })

	must(t, h.m.Tap())
	if h.m.State() != StateRecording {
		t.Fatalf("first tap: state = %s", h.m.State())
	}
	must(t, h.m.Tap())
	eventually(t, "speaking", func() bool { return h.m.State() == StateSpeaking })
	must(t, h.m.Tap())
	if h.m.State() != StateRecording {
		t.Fatalf("tap while speaking: state = %s, want recording", h.m.State())
	}
}

func TestMachine_NoSpeechRetriesOnceThenFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), func(h *harness) {
		h.stt.results = []transcript{{err: core.NewNoSpeechDetectedError("empty transcript")}}
	})

	must(t, h.m.StartListening())
	must(t, h.m.StopListening())

	eventually(t, "automatic retry", func() bool {
		return h.dev.Opened() == 2 && h.m.State() == StateRecording
	})
	must(t, h.m.StopListening())
	eventually(t, "error state", func() bool { return h.m.State() == StateError })

	if got := h.stt.count(); got != 2 {
		t.Fatalf("transcription calls = %d, want 2", got)
	}
	if len(h.dlg.requests()) != 0 {
		t.Fatal("dialogue should not be called without a transcript")
	}

	var fatal *ErrorEvent
	for _, e := range drain(h.m) {
		if ev, ok := e.(*ErrorEvent); ok && ev.Fatal {
			fatal = ev
		}
	}
	if fatal == nil || fatal.Code != string(core.TypeNoSpeechDetected) {
		t.Fatalf("fatal error event = %+v, want no_speech_detected", fatal)
	}

	must(t, h.m.Retry())
	if h.m.State() != StateIdle {
		t.Fatalf("state after retry = %s, want idle", h.m.State())
	}
}

func TestMachine_TranscriptionTimeoutRetriesThenFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), func(h *harness) {
		h.stt.results = []transcript{{err: core.NewTranscriptionFailedError(context.DeadlineExceeded)}}
	})

	must(t, h.m.StartListening())
	must(t, h.m.StopListening())
	eventually(t, "automatic retry", func() bool {
		return h.dev.Opened() == 2 && h.m.State() == StateRecording
	})
	must(t, h.m.StopListening())
	eventually(t, "error state", func() bool { return h.m.State() == StateError })

	if got := h.stt.count(); got != 2 {
		t.Fatalf("transcription calls = %d, want 2", got)
	}
}

func TestMachine_HTTPClientTimeoutReachesErrorState(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(300 * time.Millisecond):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"transcript":"too late"}`))
	}))
	defer srv.Close()

	client := stt.NewClient(srv.URL, "tok", stt.WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))

	cfg := testConfig()
	cfg.MaxRetries = 0
	m, err := New(cfg, Deps{
		Device:      &audiotest.Device{Script: [][]byte{audiotest.Tone(4000)}},
		Transcriber: client,
		Dialogue:    &fakeDialogue{},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	must(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Close() })

	must(t, m.StartListening())
	must(t, m.StopListening())
	eventually(t, "error state after client timeout", func() bool { return m.State() == StateError })
}

func TestMachine_SuccessfulTranscriptionResetsRetryBudget(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.AutoContinue = false
	h := newHarness(t, cfg, func(h *harness) {
		h.stt.results = []transcript{
			{err: core.NewTranscriptionFailedError(errors.New("502"))},
			{text: "fever since yesterday"},
			{err: core.NewTranscriptionFailedError(errors.New("502"))},
			{text: "and a cough"},
		}
	})

	must(t, h.m.StartListening())
	must(t, h.m.StopListening())
	eventually(t, "retry recording", func() bool { return h.dev.Opened() == 2 && h.m.State() == StateRecording })
	must(t, h.m.StopListening())
	eventually(t, "idle after reply", func() bool { return h.m.State() == StateIdle && len(h.spk.texts()) == 1 })

	must(t, h.m.StartListening())
	must(t, h.m.StopListening())
	eventually(t, "second retry recording", func() bool { return h.dev.Opened() == 4 && h.m.State() == StateRecording })
	must(t, h.m.StopListening())
	eventually(t, "idle after second reply", func() bool { return h.m.State() == StateIdle && len(h.spk.texts()) == 2 })

	s := h.m.Session()
	if got := s.UserTurnCount(); got != 2 {
		t.Fatalf("user turns = %d, want 2", got)
	}
}

func TestMachine_LateReplyAfterEndIsDiscarded(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), func(h *harness) {
		h.dlg.block = make(chan struct{})
		h.dlg.reply = func(string) dialogue.Reply { return dialogue.Reply{Text: "late reply"} }
	})

	must(t, h.m.StartListening())
	must(t, h.m.StopListening())
	eventually(t, "dialoguing", func() bool { return h.m.State() == StateDialoguing })

	must(t, h.m.End())
	if h.m.State() != StateEnded {
		t.Fatalf("state = %s, want ended", h.m.State())
	}

	eventually(t, "submission", func() bool { return h.m.Session().Submitted })
	time.Sleep(20 * time.Millisecond)

	s := h.m.Session()
	if h.m.State() != StateEnded {
		t.Fatalf("state changed after end: %s", h.m.State())
	}
	for _, turn := range s.Turns {
		if turn.Role == types.RoleAssistant {
			t.Fatalf("late reply was recorded: %+v", turn)
		}
	}
	if len(h.spk.texts()) != 0 {
		t.Fatal("late reply was spoken")
	}
	if !s.Ended || s.SubmissionID != "apt-1" {
		t.Fatalf("session = %+v, want ended and submitted", s)
	}
	if h.sub.count() != 1 {
		t.Fatalf("submissions = %d, want 1", h.sub.count())
	}
}

func TestMachine_UtterancesKeepOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), func(h *harness) {
		h.stt.results = []transcript{
			{text: "one", delay: 60 * time.Millisecond},
			{text: "two", delay: 5 * time.Millisecond},
			{text: "three", delay: 30 * time.Millisecond},
		}
	})

	must(t, h.m.StartListening())
	for i := 1; i <= 3; i++ {
		eventually(t, "recording", func() bool {
			return h.dev.Opened() == int64(i) && h.m.State() == StateRecording
		})
		must(t, h.m.StopListening())
	}
	eventually(t, "three replies", func() bool { return len(h.spk.texts()) == 3 })

	var got []string
	for _, turn := range h.m.Session().Turns {
		if turn.Role == types.RoleUser {
			got = append(got, turn.Text)
		}
	}
	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("user turns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("user turns = %v, want %v", got, want)
		}
	}
}

func TestMachine_ShortClipIsNotTranscribed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)

	h.dev.Script = [][]byte{audiotest.Tone(400 - audio.WAVHeaderSize)}
	must(t, h.m.StartListening())
	must(t, h.m.StopListening())
	if h.m.State() != StateIdle {
		t.Fatalf("400-byte clip: state = %s, want idle", h.m.State())
	}
	if h.stt.count() != 0 {
		t.Fatal("400-byte clip was transcribed")
	}

	h.dev.Script = [][]byte{audiotest.Tone(600 - audio.WAVHeaderSize)}
	must(t, h.m.StartListening())
	must(t, h.m.StopListening())
	eventually(t, "transcription", func() bool { return h.stt.count() == 1 })
}

func TestMachine_SilenceStopsRecording(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.AutoContinue = false
	cfg.Silence = audio.SilenceConfig{NoSpeechTimeout: 30 * time.Millisecond}
	h := newHarness(t, cfg, func(h *harness) {
		h.dev.Script = [][]byte{audiotest.Silence(4000)}
	})

	must(t, h.m.StartListening())
	eventually(t, "silence-triggered transcription", func() bool { return h.stt.count() == 1 })
	eventually(t, "idle", func() bool { return h.m.State() == StateIdle })
}

func TestMachine_CaptureErrorsReturnToIdle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), func(h *harness) {
		h.dev.OpenErr = core.NewPermissionDeniedError(errors.New("denied by user"))
	})

	err := h.m.StartListening()
	if !errors.Is(err, core.ErrPermissionDenied) {
		t.Fatalf("err = %v, want permission denied", err)
	}
	if h.m.State() != StateIdle {
		t.Fatalf("state = %s, want idle", h.m.State())
	}

	h.dev.OpenErr = nil
	must(t, h.m.StartListening())
	h.dev.Disconnect()
	eventually(t, "idle after device loss", func() bool { return h.m.State() == StateIdle })

	var codes []string
	for _, e := range drain(h.m) {
		if ev, ok := e.(*ErrorEvent); ok {
			codes = append(codes, ev.Code)
		}
	}
	if len(codes) != 2 || codes[0] != "permission_denied" || codes[1] != "device_unavailable" {
		t.Fatalf("error codes = %v", codes)
	}
}

func TestMachine_TextInput(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.AutoContinue = false
	h := newHarness(t, cfg, nil)

	if err := h.m.SendText("   "); !errors.Is(err, core.ErrInvalidRequest) {
		t.Fatalf("empty text err = %v, want invalid request", err)
	}

	must(t, h.m.SendText("I have a fever"))
	eventually(t, "idle after reply", func() bool { return h.m.State() == StateIdle && len(h.spk.texts()) == 1 })

	s := h.m.Session()
	if len(s.Turns) != 2 || s.Turns[0].Source != types.SourceText {
		t.Fatalf("turns = %+v", s.Turns)
	}
	if h.dev.Opened() != 0 || h.stt.count() != 0 {
		t.Fatal("text input should not touch the microphone or transcription")
	}

	must(t, h.m.StartListening())
	must(t, h.m.SendText("also nausea"))
	if h.dev.Active() != 0 {
		t.Fatal("typing while recording should release the microphone")
	}
	eventually(t, "second reply", func() bool { return len(h.spk.texts()) == 2 })
}

func TestMachine_StopsListeningWhenDone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cfg   func(*Config)
		reply dialogue.Reply
	}{
		{
			name:  "turn limit",
			cfg:   func(c *Config) { c.MaxUserTurns = 1 },
			reply: dialogue.Reply{Text: "Thanks."},
		},
		{
			name:  "intake complete",
			cfg:   func(c *Config) {},
			reply: dialogue.Reply{Text: "I have everything I need.", IntakeComplete: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			tt.cfg(&cfg)
			h := newHarness(t, cfg, func(h *harness) {
				h.dlg.reply = func(string) dialogue.Reply { return tt.reply }
			})

			must(t, h.m.StartListening())
			must(t, h.m.StopListening())
			eventually(t, "idle", func() bool { return h.m.State() == StateIdle && len(h.spk.texts()) == 1 })
			if h.dev.Opened() != 1 {
				t.Fatalf("opened = %d, machine kept listening", h.dev.Opened())
			}
		})
	}
}

func TestMachine_ResetStartsFreshSession(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.AutoContinue = false
	h := newHarness(t, cfg, nil)

	must(t, h.m.SendText("headache"))
	eventually(t, "idle", func() bool { return h.m.State() == StateIdle && len(h.spk.texts()) == 1 })
	old := h.m.Session().ID

	must(t, h.m.Reset())
	s := h.m.Session()
	if s.ID == old || len(s.Turns) != 0 || s.Symptoms.Len() != 0 {
		t.Fatalf("session after reset = %+v", s)
	}
	eventually(t, "remote reset", func() bool { return h.dlg.resets.Load() == 1 })
}

func TestMachine_SubmitRetriesAfterFailure(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.AutoContinue = false
	cfg.SubmitOnEnd = false
	h := newHarness(t, cfg, func(h *harness) {
		h.sub.err = core.NewSubmissionFailedError(errors.New("503"))
	})

	must(t, h.m.SendText("chest pain"))
	eventually(t, "idle", func() bool { return h.m.State() == StateIdle && len(h.spk.texts()) == 1 })
	must(t, h.m.End())
	if h.sub.count() != 0 {
		t.Fatal("submission should not start on end when disabled")
	}

	ctx := context.Background()
	if _, err := h.m.Submit(ctx); !errors.Is(err, core.ErrSubmissionFailed) {
		t.Fatalf("first submit err = %v, want submission failed", err)
	}
	if h.m.Session().Submitted {
		t.Fatal("failed submission marked the session submitted")
	}

	h.sub.setErr(nil)
	receipt, err := h.m.Submit(ctx)
	must(t, err)
	if receipt.ID != "apt-1" {
		t.Fatalf("receipt = %+v", receipt)
	}
	if s := h.m.Session(); !s.Submitted || s.SubmissionID != "apt-1" {
		t.Fatalf("session = %+v, want submitted", s)
	}
	if _, err := h.m.Submit(ctx); !errors.Is(err, core.ErrAlreadySubmitted) {
		t.Fatalf("third submit err = %v, want already submitted", err)
	}
	h.sub.mu.Lock()
	submittedTurns := len(h.sub.sessions[1].Turns)
	h.sub.mu.Unlock()
	if submittedTurns != 2 {
		t.Fatalf("submitted turns = %d, want 2", submittedTurns)
	}
}

func TestMachine_SubmitOnEndWaitsForEarlierSubmission(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.AutoContinue = false
	h := newHarness(t, cfg, func(h *harness) { h.sub.block = make(chan struct{}) })

	must(t, h.m.SendText("headache"))
	eventually(t, "first reply", func() bool { return h.m.State() == StateIdle && len(h.spk.texts()) == 1 })
	must(t, h.m.End())
	eventually(t, "first submission", func() bool { return h.sub.count() == 1 })

	must(t, h.m.Reset())
	must(t, h.m.SendText("dizziness"))
	eventually(t, "second reply", func() bool { return h.m.State() == StateIdle && len(h.spk.texts()) == 2 })
	second := h.m.Session().ID
	must(t, h.m.End())
	if got := h.sub.count(); got != 1 {
		t.Fatalf("submissions while the first is in flight = %d, want 1", got)
	}

	close(h.sub.block)
	eventually(t, "second session submitted", func() bool { return h.m.Session().Submitted })

	h.sub.mu.Lock()
	defer h.sub.mu.Unlock()
	if len(h.sub.sessions) != 2 || h.sub.sessions[1].ID != second {
		t.Fatalf("submitted sessions = %d, want the ended session submitted second", len(h.sub.sessions))
	}
}

func TestMachine_InvalidCommands(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), nil)

	if err := h.m.StopListening(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("stop from idle err = %v", err)
	}
	if err := h.m.Retry(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("retry from idle err = %v", err)
	}
	must(t, h.m.End())
	must(t, h.m.End())
	if err := h.m.StartListening(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("start after end err = %v", err)
	}
	if h.sub.count() != 0 {
		t.Fatal("empty session should not be submitted on end")
	}
}

func TestMachine_Lifecycle(t *testing.T) {
	t.Parallel()

	m, err := New(testConfig(), Deps{Dialogue: &fakeDialogue{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Tap(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("tap before start err = %v", err)
	}
	must(t, m.Start(context.Background()))
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}

	must(t, m.Close())
	must(t, m.Close())
	if err := m.Tap(); !errors.Is(err, ErrClosed) {
		t.Fatalf("tap after close err = %v", err)
	}
	for range m.Events() {
	}

	if _, err := New(Config{}, Deps{}); !errors.Is(err, core.ErrInvalidRequest) {
		t.Fatalf("New without dialogue err = %v", err)
	}
}

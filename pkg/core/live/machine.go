package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vango-go/vai-intake/pkg/core"
	"github.com/vango-go/vai-intake/pkg/core/dialogue"
	"github.com/vango-go/vai-intake/pkg/core/submission"
	"github.com/vango-go/vai-intake/pkg/core/types"
	"github.com/vango-go/vai-intake/pkg/core/voice/audio"
	"github.com/vango-go/vai-intake/pkg/core/voice/playback"
	"github.com/vango-go/vai-intake/pkg/core/voice/stt"
	"github.com/vango-go/vai-intake/pkg/metrics"
)

var (
	// ErrClosed is returned by commands issued after Close.
	ErrClosed = errors.New("live: machine closed")
	// ErrNotStarted is returned by commands issued before Start.
	ErrNotStarted = errors.New("live: machine not started")
	// ErrSubmissionInProgress is returned when an earlier session is still
	// being submitted.
	ErrSubmissionInProgress = errors.New("live: submission in progress")
)

// resetTimeout bounds the best-effort remote history reset.
const resetTimeout = 5 * time.Second

// Conversant produces assistant replies. *dialogue.Controller implements it.
type Conversant interface {
	Converse(ctx context.Context, utterance string, prior []types.Turn, language string, known []string) dialogue.Reply
	Reset(ctx context.Context)
}

// Speaker speaks a reply and returns when playback has ended.
// *playback.Playback implements it.
type Speaker interface {
	Speak(ctx context.Context, text, language string) (playback.Outcome, error)
}

// Submitter finalizes a session. *submission.Finalizer implements it.
type Submitter interface {
	Submit(ctx context.Context, s *types.ConversationSession) (*submission.Receipt, error)
}

// Deps are the collaborators a Machine drives. Dialogue is required.
type Deps struct {
	Device      audio.Device
	Transcriber stt.Transcriber
	Dialogue    Conversant
	Speech      Speaker
	Submitter   Submitter
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Machine runs one conversation. Commands are safe to call from any
// goroutine; each returns once the machine has applied it.
type Machine struct {
	cfg     Config
	deps    Deps
	logger  *slog.Logger
	metrics *metrics.Metrics

	inbox  chan any
	events chan Event
	done   chan struct{}
	bg     sync.WaitGroup

	lifeMu  sync.Mutex
	started bool
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc

	// Owned by the run goroutine.
	state        EngineState
	epoch        uint64
	retries      int
	complete     bool
	submitting   bool
	submittingID string
	waiters      []chan submitResult
	// pendingSubmit is set when the session ended while an older session
	// was still being submitted.
	pendingSubmit bool

	// mu guards the fields read by State, Session and Level. Only the run
	// goroutine writes them.
	mu      sync.RWMutex
	kind    StateKind
	session *types.ConversationSession
	meter   *audio.LevelMeter
}

// New creates a machine in the Idle state with a fresh session.
func New(cfg Config, deps Deps) (*Machine, error) {
	if deps.Dialogue == nil {
		return nil, core.NewInvalidRequestError("dialogue controller is required")
	}
	cfg = cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		metrics: deps.Metrics,
		inbox:   make(chan any, 16),
		events:  make(chan Event, cfg.EventBuffer),
		done:    make(chan struct{}),
		state:   &Idle{},
		kind:    StateIdle,
		session: types.NewConversationSession(cfg.Language),
	}, nil
}

// Start runs the machine until ctx is canceled or Close is called.
func (m *Machine) Start(ctx context.Context) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.started {
		return fmt.Errorf("live: machine already started")
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	go m.run()
	return nil
}

// Close stops the machine, releases every resource and closes Events.
// Safe to call more than once.
func (m *Machine) Close() error {
	m.lifeMu.Lock()
	if m.closed {
		m.lifeMu.Unlock()
		return nil
	}
	m.closed = true
	started := m.started
	m.lifeMu.Unlock()

	if !started {
		close(m.done)
		close(m.events)
		return nil
	}
	m.cancel()
	<-m.done
	m.bg.Wait()
	return nil
}

// Events returns the channel of conversation events. It is closed when
// the machine stops.
func (m *Machine) Events() <-chan Event {
	return m.events
}

// State returns the current state.
func (m *Machine) State() StateKind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.kind
}

// Session returns a copy of the current conversation session.
func (m *Machine) Session() types.ConversationSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Clone()
}

// Level returns the live input level in [0,1], or 0 when not recording.
func (m *Machine) Level() float64 {
	m.mu.RLock()
	meter := m.meter
	m.mu.RUnlock()
	if meter == nil {
		return 0
	}
	return meter.Level()
}

// Tap is the single push-to-talk control. It starts listening from Idle,
// stops from Recording, interrupts while the assistant is busy and clears
// the error state.
func (m *Machine) Tap() error { return m.do(opTap, "") }

// StartListening opens the microphone.
func (m *Machine) StartListening() error { return m.do(opStart, "") }

// StopListening finalizes the current recording.
func (m *Machine) StopListening() error { return m.do(opStop, "") }

// Interrupt cancels in-flight work and playback.
func (m *Machine) Interrupt() error { return m.do(opInterrupt, "") }

// End ends the conversation and, when configured, submits it.
func (m *Machine) End() error { return m.do(opEnd, "") }

// Retry leaves the error state.
func (m *Machine) Retry() error { return m.do(opRetry, "") }

// SendText sends a typed message in place of speech.
func (m *Machine) SendText(text string) error { return m.do(opText, text) }

// Reset discards the session and starts a new one.
func (m *Machine) Reset() error { return m.do(opReset, "") }

// Submit finalizes the current session. Concurrent calls for the same
// session share one request.
func (m *Machine) Submit(ctx context.Context) (*submission.Receipt, error) {
	if err := m.checkRunning(); err != nil {
		return nil, err
	}
	req := submitRequest{reply: make(chan submitResult, 1)}
	select {
	case m.inbox <- req:
	case <-m.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res.receipt, res.err
	case <-m.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type op int

const (
	opTap op = iota
	opStart
	opStop
	opInterrupt
	opEnd
	opRetry
	opText
	opReset
)

type command struct {
	op    op
	text  string
	reply chan error
}

type submitRequest struct {
	reply chan submitResult
}

type submitResult struct {
	receipt *submission.Receipt
	err     error
}

// Task results. Each carries the epoch of the state that started it.
type (
	silenceElapsed struct {
		epoch  uint64
		reason audio.SilenceReason
	}
	captureLost struct {
		epoch uint64
		err   error
	}
	transcribed struct {
		epoch uint64
		text  string
		err   error
		took  time.Duration
	}
	retryElapsed struct {
		epoch uint64
	}
	replied struct {
		epoch uint64
		reply dialogue.Reply
		took  time.Duration
	}
	spoken struct {
		epoch   uint64
		outcome playback.Outcome
		err     error
	}
	submitted struct {
		sessionID string
		receipt   *submission.Receipt
		err       error
	}
)

func (m *Machine) checkRunning() error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if !m.started {
		return ErrNotStarted
	}
	return nil
}

func (m *Machine) do(op op, text string) error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	cmd := command{op: op, text: text, reply: make(chan error, 1)}
	select {
	case m.inbox <- cmd:
	case <-m.done:
		return ErrClosed
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-m.done:
		select {
		case err := <-cmd.reply:
			return err
		default:
			return ErrClosed
		}
	}
}

// post delivers a task result to the run goroutine, giving up once the
// machine has stopped.
func (m *Machine) post(msg any) {
	select {
	case m.inbox <- msg:
	case <-m.done:
	}
}

func (m *Machine) emit(event Event) {
	select {
	case m.events <- event:
	default:
		m.logger.Debug("event dropped", "type", event.EventType())
	}
}

func (m *Machine) run() {
	defer func() {
		close(m.done)
		close(m.events)
	}()

	for {
		select {
		case <-m.ctx.Done():
			m.leave()
			return
		case msg := <-m.inbox:
			m.handle(msg)
		}
	}
}

func (m *Machine) handle(msg any) {
	switch msg := msg.(type) {
	case command:
		msg.reply <- m.apply(msg)
	case submitRequest:
		m.requestSubmit(msg.reply)
	case silenceElapsed:
		if m.current(msg.epoch) {
			m.logger.Debug("silence detected", "reason", msg.reason)
			_ = m.stopRecording(TriggerSilenceTimeout)
		}
	case captureLost:
		if m.current(msg.epoch) {
			m.onCaptureLost(msg.err)
		}
	case transcribed:
		if m.current(msg.epoch) {
			m.onTranscribed(msg)
		}
	case retryElapsed:
		if m.current(msg.epoch) {
			m.onRetryElapsed()
		}
	case replied:
		if m.current(msg.epoch) {
			m.onReplied(msg)
		}
	case spoken:
		if m.current(msg.epoch) {
			m.onSpoken(msg)
		}
	case submitted:
		m.onSubmitted(msg)
	}
}

// current reports whether a result belongs to the active state. Results
// from states that have since been left are discarded.
func (m *Machine) current(epoch uint64) bool {
	if epoch != m.epoch {
		m.logger.Debug("discarding stale result", "epoch", epoch, "current", m.epoch)
		return false
	}
	return true
}

func (m *Machine) apply(cmd command) error {
	switch cmd.op {
	case opTap:
		return m.tap()
	case opStart:
		return m.userStart()
	case opStop:
		return m.stopRecording(TriggerUserStop)
	case opInterrupt:
		return m.interrupt()
	case opEnd:
		return m.end()
	case opRetry:
		return m.retry()
	case opText:
		return m.sendText(cmd.text)
	case opReset:
		return m.reset()
	}
	return fmt.Errorf("live: unknown command %d", cmd.op)
}

func (m *Machine) next(trigger Trigger, g Guards) (StateKind, error) {
	return Transition(m.state.Kind(), trigger, g)
}

func (m *Machine) guards() Guards {
	return Guards{
		Continue:       m.shouldContinue(),
		RetryAvailable: m.retries < m.cfg.MaxRetries,
	}
}

func (m *Machine) shouldContinue() bool {
	if m.session.Ended || !m.cfg.AutoContinue {
		return false
	}
	if m.cfg.MaxUserTurns > 0 && m.session.UserTurnCount() >= m.cfg.MaxUserTurns {
		return false
	}
	if m.cfg.StopWhenComplete && m.complete {
		return false
	}
	return true
}

// leave releases the current state and starts a new epoch. Every
// transition calls it exactly once before entering the next state.
func (m *Machine) leave() {
	m.state.release()
	if rec, ok := m.state.(*Recording); ok {
		m.metrics.RecordCaptureClosed(rec.capture.BytesCaptured())
	}
	m.epoch++
}

func (m *Machine) enter(st EngineState) {
	m.mu.Lock()
	from := m.kind
	m.kind = st.Kind()
	m.meter = nil
	if rec, ok := st.(*Recording); ok {
		m.meter = rec.meter
	}
	m.mu.Unlock()

	m.state = st
	if from == st.Kind() {
		return
	}
	m.metrics.RecordTransition(from.String(), st.Kind().String())
	m.logger.Debug("state changed", "from", from, "to", st.Kind(), "session_id", m.session.ID)
	m.emit(&StateChangedEvent{From: from, To: st.Kind()})
}

func (m *Machine) tap() error {
	switch m.state.Kind() {
	case StateIdle:
		return m.userStart()
	case StateRecording:
		return m.stopRecording(TriggerUserStop)
	case StateTranscribing, StateDialoguing, StateSpeaking:
		return m.interrupt()
	case StateError:
		return m.retry()
	}
	return fmt.Errorf("%w: tap on %s", ErrInvalidTransition, m.state.Kind())
}

func (m *Machine) userStart() error {
	if _, err := m.next(TriggerUserStart, Guards{}); err != nil {
		return err
	}
	m.retries = 0
	m.leave()
	return m.enterRecording()
}

// enterRecording opens the microphone and wires the recorder, level meter
// and silence detector to it. A failure to open lands in Idle.
func (m *Machine) enterRecording() error {
	capture, err := audio.Open(m.ctx, m.deps.Device, m.cfg.Constraints, audio.WithCaptureLogger(m.logger))
	if err != nil {
		m.captureFailed(err)
		return err
	}

	recorder := audio.NewRecorder(m.cfg.Recorder)
	recorder.Start(capture)
	detector := audio.NewSilenceDetector(m.cfg.Silence)
	capture.AddSink(detector)
	meter := audio.StartLevelMeter(capture, m.cfg.Meter)
	capture.Start()
	m.metrics.RecordCaptureOpened()

	epoch := m.epoch
	st := &Recording{
		capture:  capture,
		recorder: recorder,
		meter:    meter,
	}
	st.watch = startTask(m.ctx, func(ctx context.Context) (audio.SilenceReason, error) {
		return detector.Wait(ctx, m.cfg.SilencePollInterval)
	}, func(reason audio.SilenceReason, err error) {
		if err == nil {
			m.post(silenceElapsed{epoch: epoch, reason: reason})
		}
	})
	st.lost = startTask(m.ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, capture.Wait(ctx)
	}, func(_ struct{}, err error) {
		if err != nil && !isContextError(err) {
			m.post(captureLost{epoch: epoch, err: err})
		}
	})

	m.enter(st)
	return nil
}

func (m *Machine) captureFailed(err error) {
	code := errorCode(err)
	m.logger.Warn("capture failed", "error", err)
	m.metrics.RecordError("capture", code)
	m.emit(&ErrorEvent{Code: code, Message: err.Error()})
	m.enter(&Idle{Notice: err})
}

func (m *Machine) onCaptureLost(err error) {
	if _, terr := m.next(TriggerCaptureFailed, Guards{}); terr != nil {
		return
	}
	m.leave()
	m.captureFailed(err)
}

func (m *Machine) stopRecording(trigger Trigger) error {
	rec, ok := m.state.(*Recording)
	if !ok {
		_, err := m.next(trigger, Guards{})
		return err
	}

	clip, hasClip := rec.recorder.Stop()
	next, err := m.next(trigger, Guards{HasClip: hasClip})
	if err != nil {
		return err
	}
	m.leave()

	if next == StateIdle {
		m.metrics.RecordClip("too_short")
		m.emit(&NoticeEvent{Message: "Recording was too short; nothing was sent."})
		m.enter(&Idle{})
		return nil
	}
	m.metrics.RecordClip("accepted")
	m.enterTranscribing(clip)
	return nil
}

func (m *Machine) enterTranscribing(clip *types.AudioClip) {
	epoch := m.epoch
	language := m.session.Language
	start := time.Now()

	st := &Transcribing{}
	st.task = startTask(m.ctx, func(ctx context.Context) (string, error) {
		if m.deps.Transcriber == nil {
			return "", core.NewTranscriptionFailedError(errors.New("no transcriber configured"))
		}
		return m.deps.Transcriber.Transcribe(ctx, clip, language)
	}, func(text string, err error) {
		m.post(transcribed{epoch: epoch, text: text, err: err, took: time.Since(start)})
	})
	m.enter(st)
}

func (m *Machine) onTranscribed(msg transcribed) {
	if msg.err == nil {
		m.metrics.RecordTranscription("ok", msg.took)
		if _, err := m.next(TriggerTranscribed, Guards{}); err != nil {
			return
		}
		m.retries = 0
		m.leave()
		m.appendUser(msg.text, types.SourceVoice)
		m.enterDialoguing(msg.text)
		return
	}
	// A timeout inside the transcriber is an ordinary failure. Only the
	// machine's own shutdown is ignored.
	if m.ctx.Err() != nil {
		return
	}

	code := errorCode(msg.err)
	m.metrics.RecordTranscription(code, msg.took)
	m.logger.Warn("transcription failed", "error", msg.err, "attempt", m.retries+1)

	g := m.guards()
	g.RetryAvailable = g.RetryAvailable && retryable(msg.err)
	next, err := m.next(TriggerTranscriptionFailed, g)
	if err != nil {
		return
	}
	m.leave()

	if next == StateTranscribing {
		m.retries++
		m.emit(&ErrorEvent{Code: code, Message: msg.err.Error()})
		epoch := m.epoch
		st := &Transcribing{}
		st.retry = startTask(m.ctx, sleep(m.cfg.RetryDelay), func(_ struct{}, err error) {
			if err == nil {
				m.post(retryElapsed{epoch: epoch})
			}
		})
		m.enter(st)
		return
	}

	m.metrics.RecordError("transcription", code)
	m.emit(&ErrorEvent{Code: code, Message: msg.err.Error(), Fatal: true})
	m.enter(&Failed{Err: msg.err})
}

func (m *Machine) onRetryElapsed() {
	if _, err := m.next(TriggerRetryElapsed, Guards{}); err != nil {
		return
	}
	m.leave()
	_ = m.enterRecording()
}

func (m *Machine) appendUser(text string, source types.Source) {
	m.mu.Lock()
	turn := m.session.AppendUser(text, source)
	m.mu.Unlock()
	m.emit(&TurnAppendedEvent{Turn: turn})
}

// enterDialoguing asks the assistant to answer the user turn just appended.
func (m *Machine) enterDialoguing(utterance string) {
	epoch := m.epoch
	turns := m.session.Turns
	prior := append([]types.Turn(nil), turns[:len(turns)-1]...)
	known := m.session.Symptoms.List()
	language := m.session.Language
	start := time.Now()

	st := &Dialoguing{}
	st.task = startTask(m.ctx, func(ctx context.Context) (dialogue.Reply, error) {
		return m.deps.Dialogue.Converse(ctx, utterance, prior, language, known), nil
	}, func(reply dialogue.Reply, _ error) {
		m.post(replied{epoch: epoch, reply: reply, took: time.Since(start)})
	})
	m.enter(st)
}

func (m *Machine) onReplied(msg replied) {
	reply := msg.reply
	m.metrics.RecordDialogue(reply.Degraded, msg.took)

	m.mu.Lock()
	added := m.session.Symptoms.Add(reply.Symptoms...)
	if reply.Severity != "" {
		m.session.Severity = reply.Severity
	}
	turn := m.session.AppendAssistant(reply.Text)
	symptoms := m.session.Symptoms.List()
	m.mu.Unlock()

	if reply.IntakeComplete {
		m.complete = true
	}

	m.emit(&TurnAppendedEvent{Turn: turn})
	m.emit(&ReplyEvent{
		Text:      reply.Text,
		FollowUps: reply.FollowUps,
		Severity:  reply.Severity,
		Degraded:  reply.Degraded,
		Complete:  reply.IntakeComplete,
	})
	if added > 0 {
		m.emit(&SymptomsUpdatedEvent{Added: added, Symptoms: symptoms})
	}

	if _, err := m.next(TriggerReplied, Guards{}); err != nil {
		return
	}
	m.leave()
	m.enterSpeaking(reply.Text)
}

func (m *Machine) enterSpeaking(text string) {
	epoch := m.epoch
	language := m.session.Language

	st := &Speaking{Text: text}
	st.task = startTask(m.ctx, func(ctx context.Context) (playback.Outcome, error) {
		if m.deps.Speech == nil {
			return playback.Skipped, nil
		}
		return m.deps.Speech.Speak(ctx, text, language)
	}, func(outcome playback.Outcome, err error) {
		m.post(spoken{epoch: epoch, outcome: outcome, err: err})
	})
	m.enter(st)
}

func (m *Machine) onSpoken(msg spoken) {
	m.metrics.RecordPlayback(msg.outcome.String())
	if msg.err != nil {
		code := errorCode(msg.err)
		m.logger.Warn("playback failed", "error", msg.err)
		m.metrics.RecordError("playback", code)
		m.emit(&ErrorEvent{Code: code, Message: msg.err.Error()})
	}

	next, err := m.next(TriggerPlaybackComplete, m.guards())
	if err != nil {
		return
	}
	m.leave()
	_ = m.listenOrIdle(next)
}

func (m *Machine) listenOrIdle(next StateKind) error {
	if next == StateRecording {
		return m.enterRecording()
	}
	if m.cfg.AutoContinue && !m.session.Ended {
		m.emit(&NoticeEvent{Message: "Intake is ready to submit. End the conversation to send it to the clinic."})
	}
	m.enter(&Idle{})
	return nil
}

func (m *Machine) interrupt() error {
	next, err := m.next(TriggerUserInterrupt, m.guards())
	if err != nil {
		return err
	}
	if m.state.Kind() == StateSpeaking {
		m.metrics.RecordPlayback(playback.Interrupted.String())
	}
	m.logger.Debug("interrupted", "state", m.state.Kind())
	m.leave()
	return m.listenOrIdle(next)
}

func (m *Machine) end() error {
	if _, err := m.next(TriggerUserEnd, Guards{}); err != nil {
		return err
	}
	if m.state.Kind() == StateEnded {
		return nil
	}
	m.leave()

	m.mu.Lock()
	m.session.Ended = true
	m.mu.Unlock()
	m.enter(&Ended{})

	if m.cfg.SubmitOnEnd && m.deps.Submitter != nil &&
		m.session.UserTurnCount() > 0 && !m.session.Submitted {
		switch {
		case !m.submitting:
			m.startSubmit(nil)
		case m.submittingID != m.session.ID:
			m.pendingSubmit = true
		}
	}
	return nil
}

func (m *Machine) retry() error {
	if _, err := m.next(TriggerUserRetry, Guards{}); err != nil {
		return err
	}
	m.retries = 0
	m.leave()
	m.enter(&Idle{})
	return nil
}

func (m *Machine) sendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.NewInvalidRequestError("message is empty")
	}
	if _, err := m.next(TriggerTextInput, Guards{}); err != nil {
		return err
	}
	if m.state.Kind() == StateSpeaking {
		m.metrics.RecordPlayback(playback.Interrupted.String())
	}
	m.retries = 0
	m.leave()
	m.appendUser(text, types.SourceText)
	m.enterDialoguing(text)
	return nil
}

func (m *Machine) reset() error {
	m.leave()

	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		ctx, cancel := context.WithTimeout(m.ctx, resetTimeout)
		defer cancel()
		m.deps.Dialogue.Reset(ctx)
	}()

	session := types.NewConversationSession(m.cfg.Language)
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()
	m.retries = 0
	m.complete = false
	m.pendingSubmit = false

	m.enter(&Idle{})
	m.emit(&SessionResetEvent{SessionID: session.ID})
	return nil
}

func (m *Machine) requestSubmit(reply chan submitResult) {
	switch {
	case m.deps.Submitter == nil:
		reply <- submitResult{err: core.NewInvalidRequestError("no submitter configured")}
	case m.session.Submitted:
		reply <- submitResult{err: core.ErrAlreadySubmitted}
	case m.submitting && m.submittingID == m.session.ID:
		m.waiters = append(m.waiters, reply)
	case m.submitting:
		reply <- submitResult{err: ErrSubmissionInProgress}
	default:
		m.startSubmit(reply)
	}
}

// startSubmit sends a snapshot of the session. Submission runs outside
// the state machine so it survives state changes.
func (m *Machine) startSubmit(waiter chan submitResult) {
	snapshot := m.session.Clone()
	m.submitting = true
	m.submittingID = snapshot.ID
	if waiter != nil {
		m.waiters = append(m.waiters, waiter)
	}

	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.SubmitTimeout)
		defer cancel()
		receipt, err := m.deps.Submitter.Submit(ctx, &snapshot)
		m.post(submitted{sessionID: snapshot.ID, receipt: receipt, err: err})
	}()
}

func (m *Machine) onSubmitted(msg submitted) {
	m.submitting = false
	m.submittingID = ""
	waiters := m.waiters
	m.waiters = nil

	event := &SubmissionEvent{SessionID: msg.sessionID}
	if msg.err != nil {
		code := errorCode(msg.err)
		m.logger.Warn("submission failed", "session_id", msg.sessionID, "error", msg.err)
		m.metrics.RecordSubmission("failed")
		m.metrics.RecordError("submission", code)
		event.Error = msg.err.Error()
		m.emit(&ErrorEvent{Code: code, Message: msg.err.Error()})
	} else {
		m.logger.Info("intake submitted", "session_id", msg.sessionID, "appointment_id", msg.receipt.ID)
		m.metrics.RecordSubmission("submitted")
		event.AppointmentID = msg.receipt.ID
		if msg.sessionID == m.session.ID {
			m.mu.Lock()
			m.session.Submitted = true
			m.session.SubmissionID = msg.receipt.ID
			m.mu.Unlock()
		}
	}
	m.emit(event)

	for _, w := range waiters {
		w <- submitResult{receipt: msg.receipt, err: msg.err}
	}

	if m.pendingSubmit {
		m.pendingSubmit = false
		if m.session.Ended && !m.session.Submitted {
			m.startSubmit(nil)
		}
	}
}

func sleep(d time.Duration) func(ctx context.Context) (struct{}, error) {
	return func(ctx context.Context) (struct{}, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return struct{}{}, nil
		case <-ctx.Done():
			return struct{}{}, ctx.Err()
		}
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// retryable reports whether a transcription failure may be retried
// automatically. Untyped errors are treated as transcription failures.
func retryable(err error) bool {
	switch core.TypeOf(err) {
	case core.TypeNoSpeechDetected, core.TypeTranscriptionFailed, "":
		return true
	}
	return false
}

func errorCode(err error) string {
	if t := core.TypeOf(err); t != "" {
		return string(t)
	}
	return "internal"
}

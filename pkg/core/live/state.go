package live

import (
	"github.com/vango-go/vai-intake/pkg/core/dialogue"
	"github.com/vango-go/vai-intake/pkg/core/voice/audio"
	"github.com/vango-go/vai-intake/pkg/core/voice/playback"
)

// StateKind identifies a conversation state.
type StateKind int

const (
	StateIdle StateKind = iota
	StateRecording
	StateTranscribing
	StateDialoguing
	StateSpeaking
	StateEnded
	StateError
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateDialoguing:
		return "dialoguing"
	case StateSpeaking:
		return "speaking"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k StateKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// EngineState is one state of the machine together with the resources it
// owns. Leaving a state always calls release, which must stop every
// resource and wait for the state's background work to return.
type EngineState interface {
	Kind() StateKind
	release()
}

// Idle waits for the user. Notice holds the recoverable error that led
// here, if any.
type Idle struct {
	Notice error
}

func (*Idle) Kind() StateKind { return StateIdle }
func (*Idle) release()        {}

// Recording owns the open microphone and everything reading from it.
type Recording struct {
	capture  *audio.CaptureSession
	recorder *audio.Recorder
	meter    *audio.LevelMeter
	watch    *Task[audio.SilenceReason]
	lost     *Task[struct{}]
}

func (*Recording) Kind() StateKind { return StateRecording }

func (s *Recording) release() {
	s.watch.Cancel()
	s.lost.Cancel()
	s.meter.Stop()
	s.recorder.Abort()
	_ = s.capture.Close()
}

// Transcribing owns the in-flight transcription request, or the pending
// retry timer once a request has failed.
type Transcribing struct {
	task  *Task[string]
	retry *Task[struct{}]
}

func (*Transcribing) Kind() StateKind { return StateTranscribing }

func (s *Transcribing) release() {
	s.task.Cancel()
	s.retry.Cancel()
}

// RetryPending reports whether the state is waiting to listen again.
func (s *Transcribing) RetryPending() bool {
	return s.retry != nil
}

// Dialoguing owns the in-flight assistant request.
type Dialoguing struct {
	task *Task[dialogue.Reply]
}

func (*Dialoguing) Kind() StateKind { return StateDialoguing }
func (s *Dialoguing) release()      { s.task.Cancel() }

// Speaking owns the reply being spoken.
type Speaking struct {
	Text string
	task *Task[playback.Outcome]
}

func (*Speaking) Kind() StateKind { return StateSpeaking }
func (s *Speaking) release()      { s.task.Cancel() }

// Ended is terminal for the conversation until Reset.
type Ended struct{}

func (*Ended) Kind() StateKind { return StateEnded }
func (*Ended) release()        {}

// Failed is the error state. Err is the unrecoverable cause.
type Failed struct {
	Err error
}

func (*Failed) Kind() StateKind { return StateError }
func (*Failed) release()        {}

package live

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a command does not apply to the
// current state.
var ErrInvalidTransition = errors.New("live: invalid transition")

// Trigger is an input to the transition table.
type Trigger int

const (
	TriggerUserStart Trigger = iota
	TriggerUserStop
	TriggerSilenceTimeout
	TriggerCaptureFailed
	TriggerTranscribed
	TriggerTranscriptionFailed
	TriggerRetryElapsed
	TriggerReplied
	TriggerPlaybackComplete
	TriggerUserInterrupt
	TriggerUserEnd
	TriggerUserRetry
	TriggerTextInput
	TriggerReset
)

func (t Trigger) String() string {
	switch t {
	case TriggerUserStart:
		return "user_start"
	case TriggerUserStop:
		return "user_stop"
	case TriggerSilenceTimeout:
		return "silence_timeout"
	case TriggerCaptureFailed:
		return "capture_failed"
	case TriggerTranscribed:
		return "transcribed"
	case TriggerTranscriptionFailed:
		return "transcription_failed"
	case TriggerRetryElapsed:
		return "retry_elapsed"
	case TriggerReplied:
		return "replied"
	case TriggerPlaybackComplete:
		return "playback_complete"
	case TriggerUserInterrupt:
		return "user_interrupt"
	case TriggerUserEnd:
		return "user_end"
	case TriggerUserRetry:
		return "user_retry"
	case TriggerTextInput:
		return "text_input"
	case TriggerReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Guards carries the conditions some transitions depend on.
type Guards struct {
	// Continue is true when the machine should listen again after a reply.
	Continue bool
	// RetryAvailable is true while the automatic retry has not been used.
	RetryAvailable bool
	// HasClip is true when a stopped recording produced a usable clip.
	HasClip bool
}

// Transition returns the state that trigger leads to from from. It has no
// side effects; the machine performs entry and exit work.
func Transition(from StateKind, trigger Trigger, g Guards) (StateKind, error) {
	switch trigger {
	case TriggerUserEnd:
		return StateEnded, nil
	case TriggerReset:
		return StateIdle, nil
	}

	switch from {
	case StateIdle:
		switch trigger {
		case TriggerUserStart:
			return StateRecording, nil
		case TriggerTextInput:
			return StateDialoguing, nil
		}

	case StateRecording:
		switch trigger {
		case TriggerUserStop, TriggerSilenceTimeout:
			if g.HasClip {
				return StateTranscribing, nil
			}
			return StateIdle, nil
		case TriggerCaptureFailed:
			return StateIdle, nil
		case TriggerTextInput:
			return StateDialoguing, nil
		}

	case StateTranscribing:
		switch trigger {
		case TriggerTranscribed:
			return StateDialoguing, nil
		case TriggerTranscriptionFailed:
			if g.RetryAvailable {
				return StateTranscribing, nil
			}
			return StateError, nil
		case TriggerRetryElapsed:
			return StateRecording, nil
		case TriggerUserInterrupt:
			return listenOrIdle(g), nil
		}

	case StateDialoguing:
		switch trigger {
		case TriggerReplied:
			return StateSpeaking, nil
		case TriggerUserInterrupt:
			return listenOrIdle(g), nil
		}

	case StateSpeaking:
		switch trigger {
		case TriggerPlaybackComplete, TriggerUserInterrupt:
			return listenOrIdle(g), nil
		case TriggerTextInput:
			return StateDialoguing, nil
		}

	case StateError:
		if trigger == TriggerUserRetry {
			return StateIdle, nil
		}
	}

	return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, trigger, from)
}

func listenOrIdle(g Guards) StateKind {
	if g.Continue {
		return StateRecording
	}
	return StateIdle
}

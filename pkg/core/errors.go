package core

import (
	"errors"
	"fmt"
)

// Error is a typed intake engine error.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same type, so the
// package-level sentinels can be used with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// ErrorType categorizes errors.
type ErrorType string

const (
	TypePermissionDenied     ErrorType = "permission_denied"
	TypeDeviceUnavailable    ErrorType = "device_unavailable"
	TypeNoSpeechDetected     ErrorType = "no_speech_detected"
	TypeTranscriptionFailed  ErrorType = "transcription_failed"
	TypeSynthesisUnavailable ErrorType = "synthesis_unavailable"
	TypeSubmissionFailed     ErrorType = "submission_failed"
	TypeAlreadySubmitted     ErrorType = "already_submitted"
	TypeInvalidRequest       ErrorType = "invalid_request"
)

// Sentinels for errors.Is.
var (
	ErrPermissionDenied     = &Error{Type: TypePermissionDenied, Message: "microphone access denied"}
	ErrDeviceUnavailable    = &Error{Type: TypeDeviceUnavailable, Message: "audio device unavailable"}
	ErrNoSpeechDetected     = &Error{Type: TypeNoSpeechDetected, Message: "no speech detected"}
	ErrTranscriptionFailed  = &Error{Type: TypeTranscriptionFailed, Message: "transcription failed"}
	ErrSynthesisUnavailable = &Error{Type: TypeSynthesisUnavailable, Message: "speech synthesis unavailable"}
	ErrSubmissionFailed     = &Error{Type: TypeSubmissionFailed, Message: "submission failed"}
	ErrAlreadySubmitted     = &Error{Type: TypeAlreadySubmitted, Message: "session already submitted"}
	ErrInvalidRequest       = &Error{Type: TypeInvalidRequest, Message: "invalid request"}
)

// NewPermissionDeniedError creates a permission denied error.
func NewPermissionDeniedError(cause error) *Error {
	return &Error{Type: TypePermissionDenied, Message: "microphone access denied", Cause: cause}
}

// NewDeviceUnavailableError creates a device unavailable error.
func NewDeviceUnavailableError(cause error) *Error {
	return &Error{Type: TypeDeviceUnavailable, Message: "audio device unavailable", Cause: cause}
}

// NewNoSpeechDetectedError creates a no speech error.
func NewNoSpeechDetectedError(message string) *Error {
	return &Error{Type: TypeNoSpeechDetected, Message: message}
}

// NewTranscriptionFailedError creates a transcription error.
func NewTranscriptionFailedError(cause error) *Error {
	return &Error{Type: TypeTranscriptionFailed, Message: "transcription failed", Cause: cause}
}

// NewSynthesisUnavailableError creates a synthesis unavailable error.
func NewSynthesisUnavailableError(message string) *Error {
	return &Error{Type: TypeSynthesisUnavailable, Message: message}
}

// NewSubmissionFailedError creates a submission error.
func NewSubmissionFailedError(cause error) *Error {
	return &Error{Type: TypeSubmissionFailed, Message: "appointment submission failed", Cause: cause}
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: TypeInvalidRequest, Message: message}
}

// TypeOf returns the ErrorType of err, or "" when err is not an *Error.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// IsRetryable returns true if the conversation may retry the failed turn.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case TypeNoSpeechDetected, TypeTranscriptionFailed:
		return true
	default:
		return false
	}
}

// HTTPStatusError is returned for non-success responses from an endpoint.
type HTTPStatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

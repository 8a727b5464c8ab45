package live

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes session errors.
type ErrorKind string

const (
	// ErrDeviceAccessDenied: capture or output device could not be acquired.
	// Fatal before the session reaches Active.
	ErrDeviceAccessDenied ErrorKind = "device_access_denied"
	// ErrConnection: the remote channel failed to connect or broke. Fatal.
	ErrConnection ErrorKind = "connection_error"
	// ErrQuotaExceeded: the remote service refused the session on quota
	// grounds. Fatal, with its own user-facing message.
	ErrQuotaExceeded ErrorKind = "quota_exceeded"
	// ErrRemoteClose: the remote side closed the channel. Contextual — the
	// controller treats it as end-of-conversation while Active.
	ErrRemoteClose ErrorKind = "remote_close"
	// ErrChunkDecode: one inbound audio chunk was malformed. Local only.
	ErrChunkDecode ErrorKind = "chunk_decode"
	// ErrGeneration: a generation collaborator call failed. Fatal for
	// scenario/summary, absorbed for speech/image/hint.
	ErrGeneration ErrorKind = "generation_failure"
)

// Error is a classified session error.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a classified error wrapping an optional cause.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from err, or ErrConnection if it is unclassified.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrConnection
}

// UserMessage returns the user-facing message for a fatal error kind.
func UserMessage(kind ErrorKind) string {
	switch kind {
	case ErrDeviceAccessDenied:
		return "Microphone access was denied. Check your input device permissions and try again."
	case ErrQuotaExceeded:
		return "The conversation service quota is exhausted. Please try again later."
	case ErrGeneration:
		return "The scenario service is unavailable right now. Please try again."
	default:
		return "The connection to the conversation service failed."
	}
}

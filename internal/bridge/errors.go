package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout marks every error this package manufactures when a
	// correlated reply or the bridge itself did not show up in time.
	ErrTimeout = errors.New("bridge timeout")

	// ErrBusClosed is returned when the page bus closes under a pending call.
	ErrBusClosed = errors.New("page bus closed")
)

// Kind classifies an error for display.
type Kind string

const (
	KindTimeout    Kind = "timeout"
	KindRemote     Kind = "remote"
	KindValidation Kind = "validation"
	KindUnknown    Kind = "unknown"
)

// RemoteError is an error reported by the other side of the bridge. Its
// message is the remote text, unmodified.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// ValidationError is a local input error detected before any bus traffic.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func timeoutError(op string, after time.Duration) error {
	return fmt.Errorf("%w: %s: no reply within %s", ErrTimeout, op, after)
}

// KindOf reports the kind of err.
func KindOf(err error) Kind {
	var remote *RemoteError
	var invalid *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &remote):
		return KindRemote
	case errors.As(err, &invalid):
		return KindValidation
	default:
		return KindUnknown
	}
}

// Problem is the stable shape callers render: a kind and a message.
type Problem struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Describe turns err into a Problem. Remote errors keep their exact message.
func Describe(err error) Problem {
	if err == nil {
		return Problem{}
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return Problem{Kind: KindRemote, Message: remote.Message}
	}
	return Problem{Kind: KindOf(err), Message: err.Error()}
}

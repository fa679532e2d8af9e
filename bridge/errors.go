package bridge

import (
	"errors"
	"fmt"
)

// ErrorType classifies bridge failures the way script code observes them.
type ErrorType int

const (
	// InvalidArgument marks arity or type violations rejected before any mutation.
	InvalidArgument ErrorType = iota
	// InternalError marks a missing host invoker or a broken bridge invariant.
	InternalError
	// TypeError marks an asynchronous failure reported by the host.
	TypeError
	// HostError marks a synchronous failure reported by the host invoker.
	HostError
)

func (t ErrorType) String() string {
	switch t {
	case InvalidArgument:
		return "InvalidArgument"
	case InternalError:
		return "InternalError"
	case TypeError:
		return "TypeError"
	case HostError:
		return "HostError"
	default:
		return "UnknownError"
	}
}

// Error is a typed bridge failure.
type Error struct {
	Type    ErrorType
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s [%s]", e.Op, msg, e.Type)
	}
	return fmt.Sprintf("%s [%s]", msg, e.Type)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a typed error.
func NewError(t ErrorType, op, message string) *Error {
	return &Error{Type: t, Op: op, Message: message}
}

// ErrInvalidArgument creates an InvalidArgument error.
func ErrInvalidArgument(op, message string) *Error {
	return NewError(InvalidArgument, op, message)
}

// ErrInternal creates an InternalError.
func ErrInternal(op, message string) *Error {
	return NewError(InternalError, op, message)
}

// IsType reports whether err is a bridge Error of type t.
func IsType(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

var (
	// ErrContextDisposed is returned by operations on a torn-down context.
	ErrContextDisposed = errors.New("bridge: context disposed")

	// ErrTargetDisposed is returned by operations on a disposed target.
	ErrTargetDisposed = errors.New("bridge: target disposed")
)

// ListenerError wraps a failure raised by one listener during dispatch.
type ListenerError struct {
	TargetID int64
	Kind     string
	Err      error
	Panic    any
}

func (e *ListenerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("listener for %q on target %d panicked: %v", e.Kind, e.TargetID, e.Panic)
	}
	return fmt.Sprintf("listener for %q on target %d failed: %v", e.Kind, e.TargetID, e.Err)
}

func (e *ListenerError) Unwrap() error {
	return e.Err
}

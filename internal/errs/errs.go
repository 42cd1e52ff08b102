// Package errs defines the closed set of failures surfaced to the view layer.
//
// Errors are classified once, where they are produced (the HTTP gateway or
// input validation). Code further downstream switches on Kind and never
// inspects status codes or response bodies itself.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure.
type Kind int

const (
	// Unknown is reported for errors that did not originate in this package.
	Unknown Kind = iota
	// Network means no response was received (transport error, timeout, closed session).
	Network
	// Server means the backend answered with a non-2xx status not covered by another kind.
	Server
	// Validation means the input was rejected, locally before dispatch or by the backend.
	Validation
	// Conflict means a duplicate creation.
	Conflict
	// NotFound means the target entity does not exist locally or remotely.
	NotFound
	// Unauthorized means the token is missing, expired or rejected.
	Unauthorized
)

func (k Kind) String() string {
	switch k {
	case Network:
		return "network"
	case Server:
		return "server"
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	case NotFound:
		return "not_found"
	case Unauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Message is safe to show to a user.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error of the given kind.
func E(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

// Validationf returns a Validation error with a formatted message.
func Validationf(op, format string, args ...any) *Error {
	return E(Validation, op, fmt.Sprintf(format, args...))
}

// NotFoundf returns a NotFound error with a formatted message.
func NotFoundf(op, format string, args ...any) *Error {
	return E(NotFound, op, fmt.Sprintf(format, args...))
}

// Conflictf returns a Conflict error with a formatted message.
func Conflictf(op, format string, args ...any) *Error {
	return E(Conflict, op, fmt.Sprintf(format, args...))
}

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// UserMessage returns a short human-readable message for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "Something went wrong. Please try again."
	}
	switch e.Kind {
	case Network:
		return "Could not reach the server. Check your connection and try again."
	case Unauthorized:
		return "Your session has expired. Please sign in again."
	case NotFound:
		if e.Message != "" {
			return e.Message
		}
		return "That item no longer exists."
	case Validation, Conflict:
		if e.Message != "" {
			return e.Message
		}
		return "The request was rejected."
	default:
		return "The server could not complete the request."
	}
}

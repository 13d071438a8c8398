package service

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is against these to classify a failure.
var (
	// ErrAuth indicates bad credentials or an unauthenticated call.
	ErrAuth = errors.New("auth error")

	// ErrNetwork indicates a transport failure or a non-success status.
	ErrNetwork = errors.New("network error")

	// ErrNotFound indicates the referenced task does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStorage indicates a local persistence failure.
	ErrStorage = errors.New("storage error")

	// ErrValidation indicates invalid caller input, such as an empty title.
	ErrValidation = errors.New("validation error")
)

// Error carries the kind of a failure together with its context.
type Error struct {
	Kind    error  // one of the Err* kinds above
	Op      string // operation name, e.g. "login", "list tasks"
	Status  int    // HTTP status, 0 if the request never completed
	Message string // server-provided or default message
	Err     error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, msg, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds an Error of the given kind.
func NewError(kind error, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Validation returns an ErrValidation-kinded error.
func Validation(op, message string) error {
	return &Error{Kind: ErrValidation, Op: op, Message: message}
}

// Storage wraps a persistence failure.
func Storage(op string, err error) error {
	return &Error{Kind: ErrStorage, Op: op, Err: err}
}

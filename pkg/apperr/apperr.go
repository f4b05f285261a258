// Package apperr defines the error kinds shared by repositories, services and handlers.
package apperr

import "errors"

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("not found")
	ErrDuplicate             = errors.New("already exists")
	ErrDuplicateRegistration = errors.New("already registered for this event")
	ErrInvalidTransition     = errors.New("invalid state transition")
	ErrValidation            = errors.New("validation failed")
	ErrUnavailable           = errors.New("service unavailable")
	// ErrConflict marks a serialization failure or deadlock; callers may retry.
	ErrConflict = errors.New("concurrent update conflict")
)

// Error pairs an error kind with a message safe to show to API clients.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Is lets errors.Is match on the kind.
func (e *Error) Is(target error) bool { return e.Kind == target }

func (e *Error) Unwrap() error { return e.Cause }

// New returns an error of the given kind with a client-facing message.
func New(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap is New with an underlying cause kept for logs.
func Wrap(kind error, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Message returns the client-facing text for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

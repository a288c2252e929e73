package errors

import (
	goErrors "errors"
	"fmt"
)

// New creates a new error with the given message.
func New(msg string) error {
	return goErrors.New(msg)
}

// ContextError annotates an error with a short description of the operation
// that failed. Errors are rendered as "context: root cause".
type ContextError struct {
	Context string
	Err     error
}

func (err ContextError) Error() string {
	return fmt.Sprintf("%s: %s", err.Context, err.Err)
}

func (err ContextError) Unwrap() error {
	return err.Err
}

// WithContext wraps the given error with context on the operation that caused
// it.
func WithContext(err error, context string) error {
	return ContextError{Context: context, Err: err}
}

// RootCause peels away all the context annotations around an error and
// returns the original error.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(ContextError)
		if !ok {
			return err
		}
		err = ctxErr.Err
	}
}

// FriendlyError is an error whose message is meant to be read by end users.
// The CLI prints it as-is, without any wrapping context.
type FriendlyError struct {
	Message string
}

func (err FriendlyError) Error() string {
	return err.Message
}

// FriendlyMessage returns the user-facing message.
func (err FriendlyError) FriendlyMessage() string {
	return err.Message
}

// NewFriendlyError creates a new FriendlyError with the given format string.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{Message: fmt.Sprintf(format, args...)}
}

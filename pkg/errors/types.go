package errors

import (
	"fmt"
)

// ErrInvalidCredential is returned when the platform rejects the credential
// supplied at login.
var ErrInvalidCredential = New("invalid credential")

// ErrSessionExpired is returned when the platform signals that a previously
// valid session is no longer accepted. The scheduler reacts by logging out and
// re-authenticating with the saved credential.
var ErrSessionExpired = New("user session expired")

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// ConnectionError represents a transport-level failure reaching the platform.
// A download pass that fails this way is retried on the next tick rather than
// invalidating the session.
type ConnectionError struct {
	Err error
}

func (err ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %s", err.Err)
}

func (err ConnectionError) Unwrap() error {
	return err.Err
}

// IsConnectionError reports whether the root cause of err is a transport
// failure.
func IsConnectionError(err error) bool {
	_, ok := RootCause(err).(ConnectionError)
	return ok
}

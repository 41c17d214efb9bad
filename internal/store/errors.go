package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when the backend has no credentials.
	ErrNotConfigured = errors.New("store: credentials not configured")

	// ErrInvalidCredentials is returned by SignIn for a wrong email or password.
	ErrInvalidCredentials = errors.New("store: invalid login credentials")

	// ErrInvalidSession is returned for an unknown, expired or revoked access token.
	ErrInvalidSession = errors.New("store: invalid session")
)

// Error is a failure reported by the store itself.
type Error struct {
	Op      string
	Table   string
	Status  int
	Code    string
	Message string
	Details string
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Table != "" {
		return fmt.Sprintf("store: %s %s: %s", e.Op, e.Table, msg)
	}
	return fmt.Sprintf("store: %s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the store's own message for err, suitable for a client.
func Message(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Details returns the store's details for err, if any.
func Details(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Details
	}
	return ""
}

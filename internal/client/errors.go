package client

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrEmptyMessage is raised before any request is issued when a send
	// has neither content nor media.
	ErrEmptyMessage = errors.New("message needs content or media")

	// ErrForbidden covers AccessDenied and NotOwner rejections. Fatal for
	// the operation, never retried.
	ErrForbidden = errors.New("operation forbidden")

	// ErrNotFound means the conversation or message no longer exists.
	ErrNotFound = errors.New("not found")

	// ErrSessionClosed is returned by operations on a torn-down session.
	ErrSessionClosed = errors.New("session closed")
)

type transientError struct {
	err error
}

func (t *transientError) Error() string { return "transient: " + t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// Transient marks an error as a retryable network failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether the failure is worth retrying. Only read
// operations retry; sends roll back their optimistic entry instead.
func IsTransient(err error) bool {
	var t *transientError
	if errors.As(err, &t) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

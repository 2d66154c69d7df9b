package session

import "errors"

var (
	// ErrNoSession reports a mutating call made while no session is live.
	ErrNoSession = errors.New("no active session")

	// ErrQueueClosed reports a task submitted after the controller closed.
	ErrQueueClosed = errors.New("operation queue closed")

	// ErrWriteBack reports that the surface rejected a full-text replace.
	ErrWriteBack = errors.New("document write-back failed")

	// ErrTargetUnavailable reports that the surface could not produce the
	// target document at open time.
	ErrTargetUnavailable = errors.New("target unavailable")
)

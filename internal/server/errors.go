package server

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyShuttingDown is returned when a cleanup hook is registered after draining began.
	ErrAlreadyShuttingDown = errors.New("shutdown already in progress")

	// ErrShutdownTimeout indicates the hard deadline fired before shutdown completed.
	ErrShutdownTimeout = errors.New("shutdown hard deadline exceeded")

	// ErrHookAbandoned marks a cleanup hook that had not settled when the hard deadline fired.
	ErrHookAbandoned = errors.New("cleanup hook abandoned")

	// ErrHookPanicked marks a cleanup hook that panicked.
	ErrHookPanicked = errors.New("cleanup hook panicked")

	// ErrInvalidHook is returned for an empty hook name or a nil hook.
	ErrInvalidHook = errors.New("invalid cleanup hook")

	// ErrDuplicateHook is returned when a hook name is registered twice.
	ErrDuplicateHook = errors.New("cleanup hook already registered")

	// ErrNoServersConfigured indicates ServerManager was started without an HTTP server.
	ErrNoServersConfigured = errors.New("no servers configured: use WithHTTPServer()")
)

// ListenerCloseError reports that the listening socket failed to close.
type ListenerCloseError struct {
	Err error
}

func (e *ListenerCloseError) Error() string {
	return fmt.Sprintf("close listener: %v", e.Err)
}

func (e *ListenerCloseError) Unwrap() error {
	return e.Err
}

// CleanupTaskError reports the failure of a single named cleanup hook.
type CleanupTaskError struct {
	Name string
	Err  error
}

func (e *CleanupTaskError) Error() string {
	return fmt.Sprintf("cleanup hook %q: %v", e.Name, e.Err)
}

func (e *CleanupTaskError) Unwrap() error {
	return e.Err
}

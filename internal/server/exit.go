package server

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"
)

const (
	// ExitCodeClean is used when the listener closed and cleanup succeeded.
	ExitCodeClean = 0
	// ExitCodeFailure is used for forced or erroring shutdowns.
	ExitCodeFailure = 1
)

// ExitFunc terminates the process. os.Exit in production.
type ExitFunc func(code int)

// ExitPolicy decides the final exit code and enforces the hard deadline.
// Exit runs its ExitFunc at most once.
type ExitPolicy struct {
	exit               ExitFunc
	failOnCleanupError bool

	mu     sync.Mutex
	exited bool
	code   int
}

// ExitOption configures an ExitPolicy.
type ExitOption func(*ExitPolicy)

// WithExitFunc replaces os.Exit, mainly for tests.
func WithExitFunc(fn ExitFunc) ExitOption {
	return func(p *ExitPolicy) {
		if fn != nil {
			p.exit = fn
		}
	}
}

// WithCleanupFailureExit sets whether a failed cleanup hook forces a non-zero
// exit code. Enabled by default.
func WithCleanupFailureExit(enabled bool) ExitOption {
	return func(p *ExitPolicy) {
		p.failOnCleanupError = enabled
	}
}

// NewExitPolicy creates an ExitPolicy that calls os.Exit.
func NewExitPolicy(opts ...ExitOption) *ExitPolicy {
	p := &ExitPolicy{
		exit:               os.Exit,
		failOnCleanupError: true,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Code computes the exit code for a finished shutdown.
func (p *ExitPolicy) Code(report *ShutdownReport) int {
	if report == nil {
		return ExitCodeFailure
	}

	switch {
	case report.Forced:
		return ExitCodeFailure
	case report.ListenerErr != nil:
		return ExitCodeFailure
	case report.Cause.Kind == CauseFault:
		return ExitCodeFailure
	case p.failOnCleanupError && report.Cleanup.Failed():
		return ExitCodeFailure
	default:
		return ExitCodeClean
	}
}

// Exit terminates the process with code. Only the first call has an effect;
// it reports whether this call was the one that exited.
func (p *ExitPolicy) Exit(code int) bool {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return false
	}

	p.exited = true
	p.code = code
	p.mu.Unlock()

	p.exit(code)

	return true
}

// ExitCode returns the code passed to the effective Exit call, or -1.
func (p *ExitPolicy) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.exited {
		return -1
	}

	return p.code
}

// Arm starts the hard deadline. The returned context expires with it; when it
// expires, onExpire runs once. Calling cancel disarms the deadline.
func (p *ExitPolicy) Arm(parent context.Context, deadline time.Duration, onExpire func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, deadline)

	go func() {
		<-ctx.Done()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && onExpire != nil {
			onExpire()
		}
	}()

	return ctx, cancel
}

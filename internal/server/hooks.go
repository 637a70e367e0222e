package server

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// Hook is an asynchronous teardown callback, such as closing a database pool.
// The context is cancelled when the hard deadline fires.
type Hook func(ctx context.Context) error

type namedHook struct {
	name string
	hook Hook
}

// HookResult is the outcome of one cleanup hook.
type HookResult struct {
	Name     string
	Duration time.Duration
	Err      error
}

// CleanupReport lists the outcome of every hook in registration order.
type CleanupReport struct {
	Results []HookResult
}

// Failed reports whether any hook failed or was abandoned.
func (r *CleanupReport) Failed() bool {
	return len(r.Failures()) > 0
}

// Failures returns the results whose hook failed or was abandoned.
func (r *CleanupReport) Failures() []HookResult {
	if r == nil {
		return nil
	}

	var failed []HookResult

	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}

	return failed
}

// Succeeded returns the names of the hooks that completed without error.
func (r *CleanupReport) Succeeded() []string {
	if r == nil {
		return nil
	}

	var names []string

	for _, res := range r.Results {
		if res.Err == nil {
			names = append(names, res.Name)
		}
	}

	return names
}

// Err joins every hook failure, or returns nil.
func (r *CleanupReport) Err() error {
	var errs []error

	for _, res := range r.Failures() {
		errs = append(errs, res.Err)
	}

	return errors.Join(errs...)
}

// HookRegistry holds the cleanup hooks supplied by collaborators.
//
// Registration is rejected with ErrAlreadyShuttingDown once the registry is
// sealed. RunAll executes the hooks once; later calls return the same report.
type HookRegistry struct {
	mu     sync.Mutex
	hooks  []namedHook
	names  map[string]struct{}
	sealed bool

	runOnce sync.Once
	report  *CleanupReport
}

// NewHookRegistry creates an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{names: make(map[string]struct{})}
}

// Register appends a named hook.
func (r *HookRegistry) Register(name string, hook Hook) error {
	name = strings.TrimSpace(name)
	if name == "" || hook == nil {
		return ErrInvalidHook
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("register %q: %w", name, ErrAlreadyShuttingDown)
	}

	if _, ok := r.names[name]; ok {
		return fmt.Errorf("register %q: %w", name, ErrDuplicateHook)
	}

	r.names[name] = struct{}{}
	r.hooks = append(r.hooks, namedHook{name: name, hook: hook})

	return nil
}

// Seal rejects every later registration.
func (r *HookRegistry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sealed = true
}

// Len returns the number of registered hooks.
func (r *HookRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.hooks)
}

type hookOutcome struct {
	index  int
	result HookResult
}

// RunAll runs every hook concurrently and waits for all of them to settle.
// A failing hook never stops its siblings. When ctx ends first, the hooks
// still running are reported with ErrHookAbandoned and are not retried.
func (r *HookRegistry) RunAll(ctx context.Context) *CleanupReport {
	r.runOnce.Do(func() {
		r.mu.Lock()
		r.sealed = true
		hooks := make([]namedHook, len(r.hooks))
		copy(hooks, r.hooks)
		r.mu.Unlock()

		r.report = runHooks(ctx, hooks)
	})

	return r.report
}

func runHooks(ctx context.Context, hooks []namedHook) *CleanupReport {
	results := make([]HookResult, len(hooks))
	settled := make([]bool, len(hooks))
	outcomes := make(chan hookOutcome, len(hooks))
	start := time.Now()

	for i, h := range hooks {
		i, h := i, h

		go func() {
			outcomes <- hookOutcome{index: i, result: runHook(ctx, h)}
		}()
	}

	for pending := len(hooks); pending > 0; pending-- {
		select {
		case o := <-outcomes:
			results[o.index] = o.result
			settled[o.index] = true
		case <-ctx.Done():
			for i, h := range hooks {
				if !settled[i] {
					results[i] = HookResult{
						Name:     h.name,
						Duration: time.Since(start),
						Err:      &CleanupTaskError{Name: h.name, Err: ErrHookAbandoned},
					}
				}
			}

			return &CleanupReport{Results: results}
		}
	}

	return &CleanupReport{Results: results}
}

func runHook(ctx context.Context, h namedHook) (res HookResult) {
	start := time.Now()
	res.Name = h.name

	defer func() {
		if recovered := recover(); recovered != nil {
			res.Err = &CleanupTaskError{
				Name: h.name,
				Err:  fmt.Errorf("%w: %v\n%s", ErrHookPanicked, recovered, debug.Stack()),
			}
		}

		res.Duration = time.Since(start)
	}()

	if err := h.hook(ctx); err != nil {
		res.Err = &CleanupTaskError{Name: h.name, Err: err}
	}

	return res
}

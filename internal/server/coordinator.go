package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/LerianStudio/opsdemo/internal/log"
)

const (
	// DefaultHardDeadline bounds the whole shutdown.
	DefaultHardDeadline = 30 * time.Second
	// DefaultGraceWindow bounds the polite close of open connections.
	DefaultGraceWindow = 5 * time.Second

	logSyncTimeout = time.Second
)

// ListenerCloser is the listening socket as seen by the coordinator. Done is
// closed once no new connection can be accepted.
type ListenerCloser interface {
	Close() error
	Done() <-chan struct{}
}

// ShutdownReport summarizes one shutdown.
type ShutdownReport struct {
	Cause                Cause
	StartedAt            time.Time
	Duration             time.Duration
	ListenerErr          error
	ConnectionsEnded     int
	ConnectionsDestroyed int
	Cleanup              *CleanupReport
	Forced               bool
	ExitCode             int
}

// Err joins every error recorded during the shutdown.
func (r *ShutdownReport) Err() error {
	if r == nil {
		return nil
	}

	var errs []error

	if r.Forced {
		errs = append(errs, ErrShutdownTimeout)
	}

	if r.ListenerErr != nil {
		errs = append(errs, r.ListenerErr)
	}

	if r.Cleanup != nil {
		errs = append(errs, r.Cleanup.Err())
	}

	return errors.Join(errs...)
}

// Coordinator runs the shutdown state machine. The first trigger wins; every
// later trigger only logs that a shutdown is already in progress.
type Coordinator struct {
	conns  *ConnRegistry
	hooks  *HookRegistry
	exit   *ExitPolicy
	logger log.Logger

	hardDeadline time.Duration
	graceWindow  time.Duration

	state atomic.Int32

	mu        sync.Mutex
	listener  ListenerCloser
	observers []func(State)
	report    *ShutdownReport

	finishOnce sync.Once
	done       chan struct{}
}

// NewCoordinator creates a coordinator in the Running state. Nil collaborators
// are replaced with empty defaults.
func NewCoordinator(conns *ConnRegistry, hooks *HookRegistry, exit *ExitPolicy, logger log.Logger) *Coordinator {
	if conns == nil {
		conns = NewConnRegistry()
	}

	if hooks == nil {
		hooks = NewHookRegistry()
	}

	if exit == nil {
		exit = NewExitPolicy()
	}

	return &Coordinator{
		conns:        conns,
		hooks:        hooks,
		exit:         exit,
		logger:       log.OrNop(logger),
		hardDeadline: DefaultHardDeadline,
		graceWindow:  DefaultGraceWindow,
		done:         make(chan struct{}),
	}
}

// WithListener sets the listening socket closed on entry to Draining.
func (c *Coordinator) WithListener(l ListenerCloser) *Coordinator {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listener = l

	return c
}

// WithHardDeadline sets the absolute bound on shutdown. Non-positive values keep the default.
func (c *Coordinator) WithHardDeadline(d time.Duration) *Coordinator {
	if d > 0 {
		c.hardDeadline = d
	}

	return c
}

// WithGraceWindow sets how long connections may close politely. Non-positive values keep the default.
func (c *Coordinator) WithGraceWindow(d time.Duration) *Coordinator {
	if d > 0 {
		c.graceWindow = d
	}

	return c
}

// OnStateChange registers fn to be called synchronously on every transition.
func (c *Coordinator) OnStateChange(fn func(State)) {
	if fn == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.observers = append(c.observers, fn)
}

// Connections returns the connection registry.
func (c *Coordinator) Connections() *ConnRegistry {
	return c.conns
}

// Hooks returns the cleanup hook registry.
func (c *Coordinator) Hooks() *HookRegistry {
	return c.hooks
}

// State returns the current shutdown state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Draining reports whether shutdown has begun. Request handlers use it to
// stop issuing new work against pooled resources.
func (c *Coordinator) Draining() bool {
	return c.State() != StateRunning
}

// Done is closed once the coordinator reaches Exited.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the coordinator reaches Exited.
func (c *Coordinator) Wait() {
	<-c.done
}

// Report returns a copy of the shutdown report, or nil while Running.
func (c *Coordinator) Report() *ShutdownReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.report == nil {
		return nil
	}

	cp := *c.report

	return &cp
}

// Shutdown starts the drain sequence. Only the first call across all trigger
// sources has an effect; it returns true for that call.
func (c *Coordinator) Shutdown(cause Cause) bool {
	ctx := context.Background()

	if !c.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
		c.logger.Log(ctx, log.LevelInfo, "shutdown already in progress",
			log.String("cause", cause.String()),
			log.String("state", c.State().String()),
		)

		return false
	}

	c.hooks.Seal()

	c.mu.Lock()
	c.report = &ShutdownReport{Cause: cause, StartedAt: time.Now(), ExitCode: -1}
	c.mu.Unlock()

	c.logger.Log(ctx, log.LevelInfo, "Starting graceful shutdown",
		log.String("cause", cause.String()),
		log.Duration("hard_deadline", c.hardDeadline),
		log.Duration("grace_window", c.graceWindow),
		log.Int("open_connections", c.conns.Len()),
	)

	c.notify(StateDraining)

	go c.drain()

	return true
}

// Fault starts a shutdown for an unrecoverable error, such as a recovered
// panic or an error nobody handled.
func (c *Coordinator) Fault(err error) bool {
	if err == nil {
		err = errors.New("unspecified fault")
	}

	c.logger.Log(context.Background(), log.LevelError, "unrecoverable fault", log.Err(err))

	return c.Shutdown(FaultCause(err))
}

// HandleSignals starts shutdown on SIGINT or SIGTERM. Both behave the same;
// signals received after the first are logged and ignored.
func (c *Coordinator) HandleSignals() {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	c.WatchSignals(sigs, func() { signal.Stop(sigs) })
}

// WatchSignals feeds every signal from sigs into Shutdown until the
// coordinator exits, then calls stop if it is not nil.
func (c *Coordinator) WatchSignals(sigs <-chan os.Signal, stop func()) {
	go func() {
		if stop != nil {
			defer stop()
		}

		for {
			select {
			case sig := <-sigs:
				c.Shutdown(SignalCause(sig))
			case <-c.done:
				return
			}
		}
	}()
}

func (c *Coordinator) drain() {
	ctx, cancel := c.exit.Arm(context.Background(), c.hardDeadline, c.expire)
	defer cancel()

	listener := c.currentListener()

	listenerErr := closeListener(listener)
	if listenerErr != nil {
		c.logger.Log(ctx, log.LevelError, "failed to close listener", log.Err(listenerErr))
	}

	ended := c.conns.EndAll()
	c.logger.Log(ctx, log.LevelInfo, "Ending open connections",
		log.Int("closed_idle", ended),
		log.Int("remaining", c.conns.Len()),
	)

	c.record(func(r *ShutdownReport) {
		r.ListenerErr = listenerErr
		r.ConnectionsEnded = ended
	})

	graceCtx, graceCancel := context.WithTimeout(ctx, c.graceWindow)
	waitErr := c.conns.Wait(graceCtx)
	graceCancel()

	if ctx.Err() != nil {
		return
	}

	if waitErr != nil {
		destroyed := c.conns.DestroyAll()
		c.logger.Log(ctx, log.LevelWarn, "Grace window elapsed, destroying connections",
			log.Int("destroyed", destroyed),
		)
		c.record(func(r *ShutdownReport) { r.ConnectionsDestroyed = destroyed })
	}

	if listener != nil {
		select {
		case <-listener.Done():
		case <-ctx.Done():
			return
		}
	}

	c.transition(StateTerminating)
	c.logger.Log(ctx, log.LevelInfo, "Running cleanup hooks", log.Int("hooks", c.hooks.Len()))

	cleanup := c.hooks.RunAll(ctx)
	c.record(func(r *ShutdownReport) { r.Cleanup = cleanup })

	if ctx.Err() != nil {
		return
	}

	for _, res := range cleanup.Results {
		if res.Err != nil {
			c.logger.Log(ctx, log.LevelError, "cleanup hook failed",
				log.String("hook", res.Name),
				log.Duration("duration", res.Duration),
				log.Err(res.Err),
			)

			continue
		}

		c.logger.Log(ctx, log.LevelInfo, "cleanup hook completed",
			log.String("hook", res.Name),
			log.Duration("duration", res.Duration),
		)
	}

	c.finish()
}

// expire runs when the hard deadline fires before Exited.
func (c *Coordinator) expire() {
	c.logger.Log(context.Background(), log.LevelError, "Shutdown hard deadline exceeded, forcing exit",
		log.Duration("hard_deadline", c.hardDeadline),
		log.String("state", c.State().String()),
		log.Err(ErrShutdownTimeout),
	)

	c.record(func(r *ShutdownReport) { r.Forced = true })

	c.finish()
}

// finish moves to Exited and terminates the process, once.
func (c *Coordinator) finish() {
	c.finishOnce.Do(func() {
		var code int

		c.record(func(r *ShutdownReport) {
			code = c.exit.Code(r)
			r.ExitCode = code
			r.Duration = time.Since(r.StartedAt)
		})

		c.transition(StateExited)

		report := c.Report()
		fields := []log.Field{
			log.Int("exit_code", code),
			log.Duration("duration", report.Duration),
			log.Int("connections_destroyed", report.ConnectionsDestroyed),
		}

		if err := report.Err(); err != nil {
			c.logger.Log(context.Background(), log.LevelError, "Shutdown finished with errors", append(fields, log.Err(err))...)
		} else {
			c.logger.Log(context.Background(), log.LevelInfo, "Graceful shutdown completed", fields...)
		}

		syncCtx, cancel := context.WithTimeout(context.Background(), logSyncTimeout)
		_ = c.logger.Sync(syncCtx)
		cancel()

		c.exit.Exit(code)
		close(c.done)
	})
}

func (c *Coordinator) transition(next State) {
	for {
		current := c.state.Load()
		if current >= int32(next) {
			return
		}

		if c.state.CompareAndSwap(current, int32(next)) {
			break
		}
	}

	c.notify(next)
}

func (c *Coordinator) notify(state State) {
	c.mu.Lock()
	observers := make([]func(State), len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}

func (c *Coordinator) record(fn func(*ShutdownReport)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.report != nil {
		fn(c.report)
	}
}

func (c *Coordinator) currentListener() ListenerCloser {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.listener
}

func closeListener(l ListenerCloser) error {
	if l == nil {
		return nil
	}

	if err := l.Close(); err != nil {
		return &ListenerCloseError{Err: err}
	}

	return nil
}

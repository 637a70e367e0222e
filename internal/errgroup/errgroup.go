package errgroup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/LerianStudio/opsdemo/internal/log"
	"github.com/LerianStudio/opsdemo/internal/runtime"
)

// ErrPanicRecovered is returned when a task in the group panics.
var ErrPanicRecovered = errors.New("errgroup: panic recovered")

// Task is one unit of work. It should return promptly once ctx is cancelled.
type Task func(ctx context.Context) error

// Group manages a set of named tasks that share a cancellation context.
// The first error returned by any task cancels the group's context
// and is returned by Wait. Subsequent errors are discarded.
type Group struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	errOnce sync.Once
	err     error
	logger  log.Logger
}

// WithContext returns a new Group and a derived context.Context.
// The derived context is canceled when the first task returns a non-nil
// error or when Wait returns, whichever occurs first.
func WithContext(ctx context.Context) (*Group, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &Group{ctx: ctx, cancel: cancel}, ctx
}

// SetLogger sets an optional logger for panic recovery.
func (grp *Group) SetLogger(logger log.Logger) {
	if grp == nil {
		return
	}

	grp.logger = logger
}

func (grp *Group) effectiveCtx() context.Context {
	if grp.ctx != nil {
		return grp.ctx
	}

	return context.Background()
}

// Go starts task in a new goroutine. A failure is reported as "name: err".
func (grp *Group) Go(name string, task Task) {
	grp.wg.Add(1)

	go func() {
		defer grp.wg.Done()
		defer func() {
			if recovered := recover(); recovered != nil {
				runtime.HandlePanicValue(grp.effectiveCtx(), grp.logger, recovered, "errgroup", name, nil)
				grp.fail(fmt.Errorf("%s: %w: %v", name, ErrPanicRecovered, recovered))
			}
		}()

		if err := task(grp.effectiveCtx()); err != nil {
			grp.fail(fmt.Errorf("%s: %w", name, err))
		}
	}()
}

func (grp *Group) fail(err error) {
	grp.errOnce.Do(func() {
		grp.err = err
		if grp.cancel != nil {
			grp.cancel()
		}
	})
}

// Wait blocks until every task has returned, cancels the group context and
// returns the first recorded error.
func (grp *Group) Wait() error {
	grp.wg.Wait()

	if grp.cancel != nil {
		grp.cancel()
	}

	return grp.err
}

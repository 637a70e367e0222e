package runtime

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/LerianStudio/opsdemo/internal/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrPanicRecovered is wrapped by every error built from a recovered panic.
var ErrPanicRecovered = errors.New("panic recovered")

// PanicPolicy decides what happens after a panic has been logged.
type PanicPolicy int

const (
	// KeepRunning swallows the panic after logging it.
	KeepRunning PanicPolicy = iota
	// ReportFault hands the panic to the FaultHandler, which starts shutdown.
	ReportFault
	// CrashProcess re-panics.
	CrashProcess
)

// String returns the policy name.
func (p PanicPolicy) String() string {
	switch p {
	case KeepRunning:
		return "KeepRunning"
	case ReportFault:
		return "ReportFault"
	case CrashProcess:
		return "CrashProcess"
	default:
		return "Unknown"
	}
}

// FaultHandler receives unrecoverable errors. The shutdown coordinator's
// Fault method satisfies it.
type FaultHandler func(err error) bool

// PanicError carries a recovered panic value and the stack it was raised on.
type PanicError struct {
	Component string
	Name      string
	Value     any
	Stack     []byte
}

// Error implements error.
func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: %s/%s: %s", ErrPanicRecovered, e.Component, e.Name, formatPanicValue(e.Value))
}

// Unwrap lets errors.Is match ErrPanicRecovered, and the original error when
// the panic value was one.
func (e *PanicError) Unwrap() []error {
	if err, ok := e.Value.(error); ok {
		return []error{ErrPanicRecovered, err}
	}

	return []error{ErrPanicRecovered}
}

// RecoverWithPolicy recovers from a panic and applies policy. It must be
// called directly in a defer statement.
//
//	defer runtime.RecoverWithPolicy(ctx, logger, "http", "serve", runtime.ReportFault, coord.Fault)
func RecoverWithPolicy(ctx context.Context, logger log.Logger, component, name string, policy PanicPolicy, onFault FaultHandler) {
	if recovered := recover(); recovered != nil {
		handle(ctx, logger, recovered, debug.Stack(), component, name, policy, onFault)
	}
}

// HandlePanicValue processes a panic value that was already recovered by
// another mechanism, such as fiber's recover middleware.
func HandlePanicValue(ctx context.Context, logger log.Logger, panicValue any, component, name string, onFault FaultHandler) {
	if panicValue == nil {
		return
	}

	policy := KeepRunning
	if onFault != nil {
		policy = ReportFault
	}

	handle(ctx, logger, panicValue, debug.Stack(), component, name, policy, onFault)
}

// SafeGo runs fn in a goroutine. A panic in fn is logged, recorded on the
// current span and then handled according to policy.
func SafeGo(ctx context.Context, logger log.Logger, component, name string, policy PanicPolicy, onFault FaultHandler, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}

	go func() {
		defer RecoverWithPolicy(ctx, logger, component, name, policy, onFault)

		fn(ctx)
	}()
}

func handle(ctx context.Context, logger log.Logger, value any, stack []byte, component, name string, policy PanicPolicy, onFault FaultHandler) {
	perr := &PanicError{Component: component, Name: name, Value: value, Stack: stack}

	log.OrNop(logger).Log(ctx, log.LevelError, "panic recovered",
		log.String("component", component),
		log.String("source", name),
		log.String("panic_value", formatPanicValue(value)),
		log.String("stack_trace", string(stack)),
	)

	recordPanicToSpan(ctx, perr)

	switch policy {
	case ReportFault:
		if onFault != nil {
			onFault(perr)
		}
	case CrashProcess:
		panic(value)
	}
}

// recordPanicToSpan adds a panic.recovered event to the active span, if any.
func recordPanicToSpan(ctx context.Context, perr *PanicError) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	stack := string(perr.Stack)

	const maxStackLen = 4096
	if len(stack) > maxStackLen {
		stack = stack[:maxStackLen] + "\n...[truncated]"
	}

	span.AddEvent("panic.recovered", trace.WithAttributes(
		attribute.String("panic.component", perr.Component),
		attribute.String("panic.goroutine_name", perr.Name),
		attribute.String("panic.value", formatPanicValue(perr.Value)),
		attribute.String("panic.stack", stack),
	))
	span.SetStatus(codes.Error, "panic recovered")
}

func formatPanicValue(value any) string {
	if value == nil {
		return "<nil>"
	}

	switch val := value.(type) {
	case string:
		return val
	case error:
		return val.Error()
	default:
		return fmt.Sprintf("%v", value)
	}
}

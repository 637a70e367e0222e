package server

import (
	"fmt"
	"os"
)

// State is the process-wide shutdown state. It only moves forward.
type State int32

const (
	StateRunning State = iota
	StateDraining
	StateTerminating
	StateExited
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminating:
		return "terminating"
	case StateExited:
		return "exited"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// CauseKind classifies what triggered a shutdown.
type CauseKind string

const (
	CauseSignal CauseKind = "signal"
	CauseFault  CauseKind = "fault"
	CauseManual CauseKind = "manual"
)

// Cause describes the trigger that started a shutdown.
type Cause struct {
	Kind   CauseKind
	Signal os.Signal
	Err    error
	Reason string
}

// SignalCause builds the cause for an operating-system signal.
func SignalCause(sig os.Signal) Cause {
	return Cause{Kind: CauseSignal, Signal: sig}
}

// FaultCause builds the cause for a recovered panic or an unhandled error.
func FaultCause(err error) Cause {
	return Cause{Kind: CauseFault, Err: err}
}

// ManualCause builds the cause for a programmatic shutdown request.
func ManualCause(reason string) Cause {
	return Cause{Kind: CauseManual, Reason: reason}
}

// String returns a short human-readable description.
func (c Cause) String() string {
	switch c.Kind {
	case CauseSignal:
		if c.Signal != nil {
			return "signal: " + c.Signal.String()
		}

		return "signal"
	case CauseFault:
		if c.Err != nil {
			return "fault: " + c.Err.Error()
		}

		return "fault"
	case CauseManual:
		if c.Reason != "" {
			return "manual: " + c.Reason
		}

		return "manual"
	default:
		return "unknown"
	}
}

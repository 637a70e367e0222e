// Package server owns the process lifecycle of the HTTP service.
//
// A Coordinator moves the process through Running, Draining, Terminating and
// Exited exactly once, no matter how many signals or faults ask for it:
//
//	Running --trigger--> Draining --listener closed--> Terminating --hooks settled--> Exited
//
// While Draining it closes the listener, politely ends tracked connections and
// force-closes whatever is still open after the grace window. While
// Terminating it runs every registered cleanup hook concurrently. The
// ExitPolicy picks the exit code and enforces the hard deadline, after which
// the process exits with code 1 whatever is still pending.
//
// Manager wires a fiber application, a tracked listener and a Coordinator
// together for the common case.
package server

// Package runtime recovers panics in goroutines and request handlers.
//
// A recovered panic is logged with its stack, recorded on the active span and
// then handled by a PanicPolicy. ReportFault turns the panic into a
// *PanicError and hands it to a FaultHandler, which in this service starts a
// graceful shutdown.
package runtime

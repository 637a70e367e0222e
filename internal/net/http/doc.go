// Package http holds the fiber handlers and middleware of the service: the
// health endpoints that follow the shutdown state, the demo routes and the
// request-scoped logging, tracing and metrics middleware.
package http

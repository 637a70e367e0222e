// Package zap implements log.Logger on top of go.uber.org/zap.
//
// Use New to build a JSON logger whose profile follows the deployment
// environment. Entries written with a context that carries an OpenTelemetry
// span get trace_id and span_id fields.
package zap

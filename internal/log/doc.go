// Package log defines the service logging interface and typed logging fields.
//
// Adapters (such as the zap package) implement Logger so every component logs
// through the same calls regardless of backend.
package log

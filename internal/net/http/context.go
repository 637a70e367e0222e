package http

import (
	"context"

	"github.com/LerianStudio/opsdemo/internal/log"
)

// HeaderID is the request identifier header key.
const HeaderID = "X-Request-Id"

type contextKey string

const trackingKey = contextKey("tracking")

// tracking holds the request-scoped values attached by the middleware.
type tracking struct {
	requestID string
	logger    log.Logger
}

func trackingFrom(ctx context.Context) tracking {
	if ctx == nil {
		return tracking{}
	}

	if t, ok := ctx.Value(trackingKey).(tracking); ok {
		return t
	}

	return tracking{}
}

// ContextWithRequestID returns a copy of ctx carrying requestID.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	t := trackingFrom(ctx)
	t.requestID = requestID

	return context.WithValue(ctx, trackingKey, t)
}

// RequestIDFromContext returns the request id, or an empty string.
func RequestIDFromContext(ctx context.Context) string {
	return trackingFrom(ctx).requestID
}

// ContextWithLogger returns a copy of ctx carrying logger.
func ContextWithLogger(ctx context.Context, logger log.Logger) context.Context {
	t := trackingFrom(ctx)
	t.logger = logger

	return context.WithValue(ctx, trackingKey, t)
}

// LoggerFromContext returns the request logger, or a no-op logger.
//
//nolint:ireturn
func LoggerFromContext(ctx context.Context) log.Logger {
	return log.OrNop(trackingFrom(ctx).logger)
}

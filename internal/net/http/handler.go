package http

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/LerianStudio/opsdemo/internal/log"
	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HitsKey is the counter key incremented by the hits endpoint.
const HitsKey = "opsdemo:hits"

// DrainReader reports whether shutdown has begun. *server.Coordinator
// satisfies it.
type DrainReader interface {
	Draining() bool
}

// Counter increments a named counter.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
}

// HitObserver is notified of every counted hit.
type HitObserver interface {
	IncHits()
}

// MemoryCounter is a process-local Counter used when no cache is configured.
type MemoryCounter struct {
	n atomic.Int64
}

// Incr implements Counter. The key is ignored.
func (m *MemoryCounter) Incr(_ context.Context, _ string) (int64, error) {
	return m.n.Add(1), nil
}

// Ping returns HTTP Status 200 with response "pong".
func Ping(c *fiber.Ctx) error {
	return c.SendString("pong")
}

// Version returns HTTP Status 200 with given version.
func Version(version string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"version":     version,
			"requestDate": time.Now().UTC(),
		})
	}
}

// Welcome returns HTTP Status 200 with service info.
func Welcome(service string, description string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service":     service,
			"description": description,
		})
	}
}

// Hits increments the shared hit counter. Once draining begins it answers 503
// without touching the counter backend.
func Hits(drain DrainReader, counter Counter, observer HitObserver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if drain != nil && drain.Draining() {
			return ServiceUnavailableError(c, "shutting_down")
		}

		n, err := counter.Incr(c.UserContext(), HitsKey)
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return ServiceUnavailableError(c, "cache_unavailable")
			}

			return err
		}

		if observer != nil {
			observer.IncHits()
		}

		return c.JSON(fiber.Map{"hits": n})
	}
}

// FiberErrorHandler renders handler errors. Fiber errors keep their status;
// anything else is logged with the request logger and answered with a 500.
func FiberErrorHandler(c *fiber.Ctx, err error) error {
	ctx := c.UserContext()

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, "handler error")

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return WriteError(c, fe.Code, "request_error", fe.Message)
	}

	LoggerFromContext(ctx).Log(ctx, log.LevelError, "handler error",
		log.String("method", c.Method()),
		log.String("path", c.Path()),
		log.Err(err),
	)

	return InternalServerError(c)
}

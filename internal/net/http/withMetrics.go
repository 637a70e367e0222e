package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RouteUnmatched labels requests that matched no registered route.
const RouteUnmatched = "unmatched"

// RequestObserver records finished requests. *metrics.Metrics satisfies it.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// WithMetrics observes the count and latency of every request, labeled by
// method, matched route and status code. Place it outside WithRecover so
// panicking requests are counted as 500s.
func WithMetrics(observer RequestObserver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		observer.ObserveRequest(c.Method(), routeOf(c, err), statusOf(c, err), time.Since(start))

		return err
	}
}

// routeOf returns the matched route path. When no route matched, fiber leaves
// c.Route() on the last Use middleware and the stack ends in a 404 error.
func routeOf(c *fiber.Ctx, err error) string {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code == fiber.StatusNotFound {
		return RouteUnmatched
	}

	if route := c.Route().Path; route != "" {
		return route
	}

	return RouteUnmatched
}

package http

import (
	"strings"
	"time"

	"github.com/LerianStudio/opsdemo/internal/log"
	"github.com/gofiber/fiber/v2"
)

// WithHTTPLogging attaches a request logger to the user context and writes
// one access log line per request. Health and metrics routes are not logged.
func WithHTTPLogging(logger log.Logger) fiber.Handler {
	logger = log.OrNop(logger)

	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		reqLogger := logger.With(log.String("request_id", RequestIDFromContext(ctx)))
		c.SetUserContext(ContextWithLogger(ctx, reqLogger))

		if skipAccessLog(c.Path()) {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		reqLogger.Log(c.UserContext(), log.LevelInfo, "http request",
			log.String("method", c.Method()),
			log.String("path", c.Path()),
			log.String("route", c.Route().Path),
			log.Int("status", statusOf(c, err)),
			log.Duration("duration", time.Since(start)),
			log.String("remote_addr", c.IP()),
			log.String("user_agent", c.Get(fiber.HeaderUserAgent)),
		)

		return err
	}
}

func skipAccessLog(path string) bool {
	return path == "/metrics" || path == "/health" || strings.HasPrefix(path, "/health/")
}

// statusOf returns the status the error handler will write for err.
func statusOf(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}

	if fe, ok := err.(*fiber.Error); ok {
		return fe.Code
	}

	return fiber.StatusInternalServerError
}

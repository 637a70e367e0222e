package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const maxRequestIDLength = 128

// WithRequestID propagates the X-Request-Id header, generating a UUID when
// the client did not send a usable one.
func WithRequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := strings.TrimSpace(c.Get(HeaderID))
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.New().String()
			c.Request().Header.Set(HeaderID, requestID)
		}

		c.Set(HeaderID, requestID)
		c.SetUserContext(ContextWithRequestID(c.UserContext(), requestID))

		return c.Next()
	}
}

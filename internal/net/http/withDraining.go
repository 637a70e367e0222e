package http

import (
	"github.com/gofiber/fiber/v2"
)

// WithConnectionClose asks keep-alive clients to close their connection once
// shutdown has begun, so in-flight responses are the last ones on the socket.
func WithConnectionClose(drain DrainReader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if drain.Draining() {
			c.Set(fiber.HeaderConnection, "close")
		}

		return err
	}
}

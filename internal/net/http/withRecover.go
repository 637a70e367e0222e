package http

import (
	"github.com/LerianStudio/opsdemo/internal/log"
	"github.com/LerianStudio/opsdemo/internal/runtime"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// WithRecover turns a handler panic into a 500 answer. The panic is logged,
// recorded on the request span and passed to onFault, which may be nil.
// Register it last so metrics, logging and the draining marker still see
// the request as an ordinary error.
func WithRecover(logger log.Logger, onFault runtime.FaultHandler) fiber.Handler {
	return recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, panicValue any) {
			runtime.HandlePanicValue(c.UserContext(), logger, panicValue, "http", c.Method()+" "+c.Path(), onFault)
		},
	})
}

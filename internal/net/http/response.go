package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Code    string `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// WriteError writes a structured error response.
func WriteError(c *fiber.Ctx, status int, title, message string) error {
	return c.Status(status).JSON(ErrorResponse{
		Code:    strconv.Itoa(status),
		Title:   title,
		Message: message,
	})
}

// ServiceUnavailableError writes a 503 with a generic message.
func ServiceUnavailableError(c *fiber.Ctx, title string) error {
	return WriteError(c, fiber.StatusServiceUnavailable, title, "service unavailable")
}

// InternalServerError writes a 500 without leaking internal details.
func InternalServerError(c *fiber.Ctx) error {
	return WriteError(c, fiber.StatusInternalServerError, "internal_error", "internal server error")
}

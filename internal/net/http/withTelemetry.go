package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// WithTelemetry starts a server span per request, continuing any trace found
// in the incoming W3C headers. Requests to excluded paths are not traced.
func WithTelemetry(tracer trace.Tracer, propagator propagation.TextMapPropagator, excludedPaths ...string) fiber.Handler {
	excluded := make(map[string]struct{}, len(excludedPaths))
	for _, p := range excludedPaths {
		excluded[p] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if _, skip := excluded[c.Path()]; skip {
			return c.Next()
		}

		carrier := propagation.HeaderCarrier(http.Header(c.GetReqHeaders()))
		parent := propagator.Extract(c.UserContext(), carrier)

		ctx, span := tracer.Start(parent, c.Method()+" "+c.Path(), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		span.SetAttributes(
			semconv.HTTPRequestMethodKey.String(c.Method()),
			semconv.URLPath(c.Path()),
			attribute.String("app.request.request_id", RequestIDFromContext(ctx)),
		)

		c.SetUserContext(ctx)

		err := c.Next()

		status := statusOf(c, err)

		span.SetName(c.Method() + " " + c.Route().Path)
		span.SetAttributes(
			semconv.HTTPRoute(c.Route().Path),
			semconv.HTTPResponseStatusCode(status),
		)

		if status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		return err
	}
}

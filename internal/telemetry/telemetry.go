// Package telemetry configures the OpenTelemetry tracer provider and the
// W3C propagators used by the HTTP middleware.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/LerianStudio/opsdemo/internal/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ErrMissingEndpoint is returned when tracing is enabled without a collector endpoint.
var ErrMissingEndpoint = errors.New("telemetry enabled without collector endpoint")

var newExporterFn = func(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
	return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
}

// Config describes the service being traced and where spans are sent.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	Enabled        bool
	Logger         log.Logger
}

// Telemetry owns the tracer provider for the life of the process.
type Telemetry struct {
	provider   *sdktrace.TracerProvider
	propagator propagation.TextMapPropagator
	enabled    bool
	logger     log.Logger
}

// New builds the tracer provider and installs it, together with the
// TraceContext and Baggage propagators, as the global defaults. When tracing
// is disabled the provider records nothing.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	logger := log.OrNop(cfg.Logger)
	propagator := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})

	t := &Telemetry{propagator: propagator, enabled: cfg.Enabled, logger: logger}

	if !cfg.Enabled {
		logger.Log(ctx, log.LevelWarn, "telemetry turned off")

		t.provider = sdktrace.NewTracerProvider()
	} else {
		if cfg.Endpoint == "" {
			return nil, ErrMissingEndpoint
		}

		exporter, err := newExporterFn(ctx, cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("can't initialize tracer exporter: %w", err)
		}

		t.provider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(newResource(cfg)),
		)

		logger.Log(ctx, log.LevelInfo, "telemetry initialized", log.String("endpoint", cfg.Endpoint))
	}

	otel.SetTracerProvider(t.provider)
	otel.SetTextMapPropagator(propagator)

	return t, nil
}

func newResource(cfg Config) *sdkresource.Resource {
	return sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
		semconv.TelemetrySDKLanguageGo,
	)
}

// Tracer returns a named tracer from the provider.
//
//nolint:ireturn
func (t *Telemetry) Tracer(name string) trace.Tracer {
	return t.provider.Tracer(name)
}

// Propagator returns the composite W3C propagator.
//
//nolint:ireturn
func (t *Telemetry) Propagator() propagation.TextMapPropagator {
	return t.propagator
}

// Enabled reports whether spans are exported.
func (t *Telemetry) Enabled() bool {
	return t.enabled
}

// Shutdown flushes pending spans and stops the exporter. It runs as a
// shutdown cleanup hook and honors ctx as its deadline.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.provider.Shutdown(ctx); err != nil {
		t.logger.Log(ctx, log.LevelError, "can't shutdown tracer provider", log.Err(err))

		return fmt.Errorf("shutdown tracer provider: %w", err)
	}

	return nil
}

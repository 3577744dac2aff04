package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/exp/slog"
)

const tracerName = "github.com/ohowland/mtress/internal/pkg/metamodel"

// TracingConfig governs how tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Writer      io.Writer
}

// TracingConfigFromEnv reads MTRESS_TRACING_ENABLED and
// MTRESS_TRACING_SERVICE_NAME.
func TracingConfigFromEnv() TracingConfig {
	service := os.Getenv("MTRESS_TRACING_SERVICE_NAME")
	if service == "" {
		service = "mtress"
	}
	return TracingConfig{
		Enabled:     strings.EqualFold(os.Getenv("MTRESS_TRACING_ENABLED"), "true"),
		ServiceName: service,
	}
}

// InitTracing installs a global tracer provider exporting to stdout, or a
// noop provider when tracing is disabled. The returned function flushes and
// stops the provider.
func InitTracing(ctx context.Context, cfg TracingConfig, log *slog.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = slog.Default()
	}
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		log.Debug("tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	log.Info("tracing enabled", slog.String("service_name", cfg.ServiceName))
	return tp.Shutdown, nil
}

// StartPhase starts a span for one build phase of a meta model.
func StartPhase(ctx context.Context, model, phase string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "mtress/"+phase, trace.WithAttributes(
		attribute.String("mtress.model", model),
		attribute.String("mtress.phase", phase),
	))
}

// EndPhase records err on span and ends it.
func EndPhase(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/jbweber/hvctl"

// SetupTracing installs a global tracer provider for the given exporter and
// returns its shutdown function. "none" and "" leave the no-op provider in
// place.
func SetupTracing(exporter string, w io.Writer) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	var exp sdktrace.SpanExporter
	switch exporter {
	case "", "none":
		return noop, nil
	case "stdout":
		var err error
		exp, err = stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return noop, fmt.Errorf("failed to create trace exporter: %w", err)
		}
	default:
		return noop, fmt.Errorf("unsupported trace exporter: %s", exporter)
	}

	res := resource.NewSchemaless(attribute.String("service.name", "hvctl"))

	// Synchronous export; the process is short lived and spans are few.
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSyncer(exp),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

// Tracer returns the hvctl tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentation)
}

// RecordError marks span as failed with err.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

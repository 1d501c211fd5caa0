package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Provider owns the SDK tracer provider installed by Setup
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Setup installs a global tracer provider that batches spans to exporter and
// makes it the tracer returned by StartSpan.
func Setup(serviceName, environment string, exporter sdktrace.SpanExporter) *Provider {
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("deployment.environment", environment),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	SetTracer(tp.Tracer(serviceName))

	return &Provider{tp: tp}
}

// Shutdown flushes pending spans and detaches the tracer
func (p *Provider) Shutdown(ctx context.Context) error {
	SetTracer(nil)
	return p.tp.Shutdown(ctx)
}

// Package otelhelper provides tracing of graph walks.
package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of the engine.
const TracerName = "github.com/seentics/tracker"

const (
	// Common attribute keys.
	SiteIDKey       = "seentics.site.id"
	WorkflowIDKey   = "seentics.workflow.id"
	TriggerIDKey    = "seentics.trigger.id"
	TriggerTypeKey  = "seentics.trigger.type"
	NodeIDKey       = "seentics.node.id"
	NodeTitleKey    = "seentics.node.title"
	RunIDKey        = "seentics.run.id"
	RunOutcomeKey   = "seentics.run.outcome"
	ServerActionKey = "seentics.action.server"
	VisitorIDKey    = "seentics.visitor.id"
)

// Tracer returns the engine tracer of the global provider. It is a no-op until
// a provider is installed with NewTracerProvider.
//
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// NewTracerProvider installs an OTLP/HTTP exporting provider as the global
// one. Exporter settings come from the standard OTEL_EXPORTER_OTLP_* variables.
// Callers shut the provider down to flush pending spans.
func NewTracerProvider(ctx context.Context, serviceName string) (*sdktrace.TracerProvider, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp, nil
}

// nolint:ireturn,spancheck // Returning interface is intentional for OpenTelemetry tracing
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Package tracing carries OpenTelemetry spans through the fetch, normalize
// and prepare stages, the upstream clients and the MCP tools.
package tracing

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// ServiceName is reported as service.name on every span
	ServiceName = "osmplot"
	// TracerName is the instrumentation scope
	TracerName = "github.com/NERVsystems/osmplot"
)

// Tracer starts every span in osmplot. It is a no-op until Init or
// UseProvider installs a real provider.
var Tracer trace.Tracer = noop.NewTracerProvider().Tracer(TracerName)

// UseProvider routes spans started by this package through tp
func UseProvider(tp trace.TracerProvider) {
	Tracer = tp.Tracer(TracerName)
}

// Init exports spans over OTLP/gRPC to endpoint and returns a flush-and-stop
// func. An empty endpoint leaves tracing disabled.
func Init(ctx context.Context, endpoint, version string) (shutdown func(context.Context) error, err error) {
	if endpoint == "" {
		UseProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	))
	if err != nil {
		return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	// Schemaless so the merge never conflicts with the SDK's default schema.
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(version),
		attribute.String("deployment.environment", environment()),
	))
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	UseProvider(tp)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

func environment() string {
	if env := os.Getenv("OSMPLOT_ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}

// StartSpan starts a span on Tracer
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer.Start(ctx, name, opts...)
}

// AddEvent adds an event to the recording span in ctx, if any
func AddEvent(ctx context.Context, name string, opts ...trace.EventOption) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent(name, opts...)
	}
}

// SetAttributes sets attributes on the recording span in ctx, if any
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// EndStage records a pipeline stage's counts and outcome on span and ends it
func EndStage(span trace.Span, stage string, in, out, dropped int, err error) {
	span.SetAttributes(StageAttributes(stage, in, out, dropped)...)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(ErrorAttributes(err)...)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

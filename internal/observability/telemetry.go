// Package observability wires the outbox engine's metrics, tracing, and
// health-check surface: the C5 component of the engine.
package observability

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry owns the process-wide tracer and meter providers. Unlike a
// collector-backed deployment, no OTLP exporter is wired here: the meter
// provider's reader is supplied by the caller (a ManualReader in tests, a
// PeriodicReader wrapping whatever exporter the host process already sets
// up), so this package stays agnostic to where metrics end up.
type Telemetry struct {
	ServiceName    string
	ServiceVersion string
	DeploymentEnv  string
	TracerProvider *sdktrace.TracerProvider
	MetricProvider *sdkmetric.MeterProvider
	shutdown       func()
}

func (t *Telemetry) newResource() (*sdkresource.Resource, error) {
	return sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(t.ServiceName),
			semconv.ServiceVersion(t.ServiceVersion),
			semconv.DeploymentEnvironment(t.DeploymentEnv),
		),
	)
}

// Initialize builds and installs the tracer and meter providers globally.
// reader supplies the metric.Reader the meter provider exports through;
// passing a sdkmetric.NewManualReader() is appropriate for tests.
func (t *Telemetry) Initialize(reader sdkmetric.Reader) *Telemetry {
	r, err := t.newResource()
	if err != nil {
		log.Fatalf("can't initialize telemetry resource: %v", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(r))
	otel.SetTracerProvider(tp)
	t.TracerProvider = tp

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(r),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)
	t.MetricProvider = mp

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	t.shutdown = func() {
		ctx := context.Background()

		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("telemetry: tracer provider shutdown: %v", err)
		}

		if err := mp.Shutdown(ctx); err != nil {
			log.Printf("telemetry: meter provider shutdown: %v", err)
		}
	}

	return t
}

// Shutdown flushes and stops the tracer and meter providers.
func (t *Telemetry) Shutdown() {
	if t.shutdown != nil {
		t.shutdown()
	}
}

// Tracer returns the engine's tracer, scoped to its service name.
//
//nolint:ireturn
func (t *Telemetry) Tracer() trace.Tracer {
	if t.TracerProvider == nil {
		return otel.Tracer(t.ServiceName)
	}

	return t.TracerProvider.Tracer(t.ServiceName)
}

type tracerContextKey struct{}

// ContextWithTracer attaches tracer to ctx.
func ContextWithTracer(ctx context.Context, tracer trace.Tracer) context.Context {
	return context.WithValue(ctx, tracerContextKey{}, tracer)
}

// TracerFromContext returns the tracer attached to ctx, or the global
// default tracer ("outboxd") if none was attached.
//
//nolint:ireturn
func TracerFromContext(ctx context.Context) trace.Tracer {
	if tracer, ok := ctx.Value(tracerContextKey{}).(trace.Tracer); ok && tracer != nil {
		return tracer
	}

	return otel.Tracer("outboxd")
}

// StartSpan is a small convenience wrapper around the context tracer's Start.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return TracerFromContext(ctx).Start(ctx, name)
}

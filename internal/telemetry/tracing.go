package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns the named tracer for the orchestrator main loop and
// Brain.Process spans. Grounded on MrWong99-glyphoxa/lookatitude-
// beluga-ai's otel SDK wiring; no exporter is configured by default
// (spans are recorded but not shipped) since spec.md's Non-goals
// exclude a metrics/observability backend as a required feature —
// the tracer itself is ambient instrumentation, not a feature.
func Tracer() trace.Tracer {
	return otel.Tracer("buddy-orchestrator")
}

// InitTracing installs a TracerProvider using the given sampler ratio
// (1.0 traces everything; appropriate for a single-host assistant).
// Call once at startup; the returned shutdown func should run on exit.
func InitTracing(ctx context.Context, serviceName string, sampleRatio float64) (func(context.Context) error, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(sampleRatio)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

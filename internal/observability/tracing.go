package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this package's instrumentation scope to the otel
// SDK, per the convention every otel exporter example uses.
const tracerName = "github.com/actorcore/actorcored/internal/observability"

// TracingConfig controls whether dispatch spans are emitted at all and,
// when they are, which exporter receives them: disabled by default, so
// enabling it adds one interface call per dispatch and zero allocation
// when disabled.
type TracingConfig struct {
	Enabled     bool
	ServiceName string

	// Exporter selects the span destination: "stdout" (default when
	// Enabled), "jaeger", or "zipkin".
	Exporter string
	// Endpoint is the collector URL for the jaeger/zipkin exporters;
	// unused for "stdout".
	Endpoint string
}

// InitTracing installs a global TracerProvider. When cfg.Enabled is
// false, otel's built-in no-op provider stays installed and DispatchSpan
// becomes a single interface call that does nothing. No example file in
// the retrieval pack showed concrete otel.Initialize usage (the
// teacher's pkg/observability/otel package is referenced from
// cmd/enterprise/main.go but not present in the pack), so this wiring
// follows each exporter's own documented constructor instead of a teacher
// file. The teacher declares the jaeger and zipkin exporters in go.mod
// without ever importing them; rather than drop them as dead weight,
// Exporter gives both an actual caller alongside the stdout default.
func InitTracing(cfg TracingConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, err
	}

	name := cfg.ServiceName
	if name == "" {
		name = "actorcored"
	}
	res := resource.NewSchemaless(attribute.String("service.name", name))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func newExporter(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "", "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
		if err != nil {
			return nil, fmt.Errorf("observability: stdouttrace exporter: %w", err)
		}
		return exp, nil
	case "jaeger":
		exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
		if err != nil {
			return nil, fmt.Errorf("observability: jaeger exporter: %w", err)
		}
		return exp, nil
	case "zipkin":
		exp, err := zipkin.New(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("observability: zipkin exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("observability: unknown tracing exporter %q", cfg.Exporter)
	}
}

// DispatchSpan starts a "dispatch.<module>" span carrying handle/session/
// type attributes. Callers must call the returned
// func to end the span. With tracing disabled this resolves through
// otel's no-op tracer, costing one interface call and no allocation.
func DispatchSpan(ctx context.Context, module string, handle uint32, session int32, msgType uint8) (context.Context, func()) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "dispatch."+module,
		trace.WithAttributes(
			attribute.Int64("handle", int64(handle)),
			attribute.Int64("session", int64(session)),
			attribute.Int64("type", int64(msgType)),
		),
	)
	return ctx, func() { span.End() }
}

package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every reslot span.
const TracerName = "github.com/felixgeelhaar/reslot"

// Tracing exporters.
const (
	TracingExporterNone   = "none"
	TracingExporterStdout = "stdout"
	TracingExporterOTLP   = "otlp"
)

// TracingConfig configures the tracer provider.
type TracingConfig struct {
	// Exporter is one of none, stdout or otlp. Empty means none.
	Exporter string
	// Endpoint is the OTLP/HTTP endpoint URL. Empty defers to the
	// OTEL_EXPORTER_OTLP_* environment variables.
	Endpoint       string
	SampleRatio    float64
	ServiceName    string
	ServiceVersion string
	// Output receives stdout exporter spans. Defaults to os.Stdout.
	Output io.Writer
}

// TracingConfigFromEnv reads RESLOT_TRACING_EXPORTER, RESLOT_TRACING_ENDPOINT
// and RESLOT_TRACING_SAMPLE_RATIO.
func TracingConfigFromEnv() TracingConfig {
	cfg := TracingConfig{
		Exporter:       os.Getenv("RESLOT_TRACING_EXPORTER"),
		Endpoint:       os.Getenv("RESLOT_TRACING_ENDPOINT"),
		SampleRatio:    1,
		ServiceName:    "reslot",
		ServiceVersion: os.Getenv("RESLOT_VERSION"),
	}
	if v := os.Getenv("RESLOT_TRACING_SAMPLE_RATIO"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SampleRatio = r
		}
	}
	return cfg
}

// InitTracing installs a global tracer provider and returns its shutdown
// function. With no exporter the global no-op provider is left in place.
func InitTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "", TracingExporterNone:
		return noop, nil
	case TracingExporterStdout:
		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(out))
		if err != nil {
			return noop, fmt.Errorf("create stdout exporter: %w", err)
		}
		exporter = exp
	case TracingExporterOTLP:
		var opts []otlptracehttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(cfg.Endpoint))
		}
		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return noop, fmt.Errorf("create otlp exporter: %w", err)
		}
		exporter = exp
	default:
		return noop, fmt.Errorf("unknown tracing exporter %q", cfg.Exporter)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	name := cfg.ServiceName
	if name == "" {
		name = "reslot"
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", name),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// StartSpan starts a span on the global tracer provider. The caller ends it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartClientSpan starts a span for an outbound provider call.
func StartClientSpan(ctx context.Context, provider, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{
		attribute.String("calendar.provider", provider),
		attribute.String("calendar.operation", operation),
	}, attrs...)
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, provider+"."+operation,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpan records err, if any, and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// TraceIDFromContext returns the current trace id, or "" when not sampled.
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

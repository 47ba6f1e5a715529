// Package observability provides tracing, metrics, logging and the audit
// trail for flowlens.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for flowlens spans.
const TracerName = "github.com/efebarandurmaz/flowlens"

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g. "localhost:4317").
	// Tracing is a no-op when empty.
	OTLPEndpoint string

	// SampleRate is in [0, 1].
	SampleRate float64
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "flowlens",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes OpenTelemetry tracing and installs it globally.
// Without an endpoint it returns a provider backed by the global no-op
// tracer.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}
	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{tracer: otel.Tracer(TracerName)}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{provider: provider, tracer: provider.Tracer(TracerName)}, nil
}

// Shutdown flushes and stops the provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Span kinds recorded under flowlens.span.kind.
const (
	SpanKindAnalysis = "analysis"
	SpanKindOptimize = "optimize"
	SpanKindOracle   = "oracle"
	SpanKindHistory  = "history"
)

// StartAnalysisSpan starts a span for one analysis step (features, order,
// patterns) over a flow.
func StartAnalysisSpan(ctx context.Context, step, flowID string, blocks int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "analysis."+step,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("flowlens.span.kind", SpanKindAnalysis),
			attribute.String("flow.id", flowID),
			attribute.Int("flow.blocks", blocks),
		),
	)
}

// StartOptimizeSpan starts the root span of an optimization run.
func StartOptimizeSpan(ctx context.Context, flowID string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "optimize",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("flowlens.span.kind", SpanKindOptimize),
			attribute.String("flow.id", flowID),
		),
	)
}

// RecordOptimizeResult annotates an optimize span.
func RecordOptimizeResult(span trace.Span, signature string, cacheHit bool, applied int, improvement float64) {
	span.SetAttributes(
		attribute.String("optimize.signature", signature),
		attribute.Bool("optimize.cache_hit", cacheHit),
		attribute.Int("optimize.applied", applied),
		attribute.Float64("optimize.expected_improvement", improvement),
	)
}

// StartOracleSpan starts a client span for an oracle call.
func StartOracleSpan(ctx context.Context, provider string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "oracle.suggest",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("flowlens.span.kind", SpanKindOracle),
			attribute.String("oracle.provider", provider),
		),
	)
}

// StartHistorySpan starts a client span for a history backend call.
func StartHistorySpan(ctx context.Context, backend, op string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "history."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("flowlens.span.kind", SpanKindHistory),
			attribute.String("history.backend", backend),
		),
	)
}

// RecordError records err on span and marks it failed.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

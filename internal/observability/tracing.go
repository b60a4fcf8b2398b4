// Package observability provides OpenTelemetry tracing for the retrieval
// pipeline.
package observability

import (
	"context"
	"fmt"
	"time"

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

// TracerName identifies the kiln tracer.
const TracerName = "github.com/efebarandurmaz/kiln"

// TracingConfig configures trace export.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g. "localhost:4317").
	// Empty disables export; spans become no-ops.
	OTLPEndpoint string

	// SampleRate is the trace sampling rate in [0, 1], default 1.
	SampleRate float64
}

// DefaultTracingConfig returns development defaults.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "kiln",
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

// InitTracing initializes tracing. Returns a no-op provider when no
// endpoint is configured, so callers never need to branch.
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
func (tp *TracerProvider) Tracer() trace.Tracer { return tp.tracer }

// Span kinds for pipeline stages.
const (
	SpanKindIngest   = "ingest"
	SpanKindEmbed    = "embed"
	SpanKindRetrieve = "retrieve"
	SpanKindGenerate = "generate"
)

// StartIngestSpan starts a span covering one document's ingestion.
func StartIngestSpan(ctx context.Context, source string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "ingest.document",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("kiln.span.kind", SpanKindIngest),
			attribute.String("ingest.source", source),
		),
	)
}

// RecordIngestResult records chunk counts on an ingest span.
func RecordIngestResult(span trace.Span, chunks int, skipped bool) {
	span.SetAttributes(
		attribute.Int("ingest.chunks", chunks),
		attribute.Bool("ingest.skipped", skipped),
	)
}

// StartRetrieveSpan starts a span for a retrieval pass.
func StartRetrieveSpan(ctx context.Context, topK int) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "retrieve",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("kiln.span.kind", SpanKindRetrieve),
			attribute.Int("retrieve.top_k", topK),
		),
	)
}

// RecordRetrieveResult records hit count and best score on a retrieve span.
func RecordRetrieveResult(span trace.Span, hits int, topScore float64) {
	span.SetAttributes(
		attribute.Int("retrieve.hits", hits),
		attribute.Float64("retrieve.top_score", topScore),
	)
}

// StartGenerateSpan starts a span for answer generation.
func StartGenerateSpan(ctx context.Context, provider string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("kiln.span.kind", SpanKindGenerate),
			attribute.String("llm.provider", provider),
		),
	)
}

// RecordLLMMetrics records token accounting on a span.
func RecordLLMMetrics(span trace.Span, inputTokens, outputTokens int, duration time.Duration) {
	span.SetAttributes(
		attribute.Int("llm.input_tokens", inputTokens),
		attribute.Int("llm.output_tokens", outputTokens),
		attribute.Int("llm.total_tokens", inputTokens+outputTokens),
		attribute.Int64("llm.duration_ms", duration.Milliseconds()),
	)
}

// RecordError records an error and marks the span failed.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

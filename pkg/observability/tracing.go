// Package observability provides Prometheus metrics and OpenTelemetry tracing
// for the MCP engine.
package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ajitpratap0/mcp-engine"

// ExporterType selects where spans go
type ExporterType string

const (
	ExporterTypeOTLPGRPC ExporterType = "otlp-grpc"
	ExporterTypeOTLPHTTP ExporterType = "otlp-http"
	// ExporterTypeNoop records spans and drops them
	ExporterTypeNoop ExporterType = "noop"
)

// TracingConfig configures the tracer provider. The zero value records
// every span with the noop exporter.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	ExporterType ExporterType
	// Endpoint is the collector's host:port
	Endpoint string
	Headers  map[string]string
	Insecure bool
	// Exporter replaces the one ExporterType would build
	Exporter sdktrace.SpanExporter

	// SampleRate is the share of requests traced, 0 to 1. Methods in
	// AlwaysSample and NeverSample ignore it.
	SampleRate   float64
	AlwaysSample []string
	NeverSample  []string

	BatchTimeout time.Duration

	// SetGlobal installs the provider and a W3C propagator as the otel
	// globals.
	SetGlobal bool
}

func (c TracingConfig) withDefaults() TracingConfig {
	if c.ServiceName == "" {
		c.ServiceName = "mcp-engine"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "unknown"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.ExporterType == "" {
		c.ExporterType = ExporterTypeNoop
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = 5 * time.Second
	}
	return c
}

// TracingProvider starts "mcp.<method>" spans and moves trace context in
// and out of request metadata.
type TracingProvider struct {
	service        string
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	propagator     propagation.TextMapPropagator

	closeOnce sync.Once
	closeErr  error
}

// NewTracingProvider builds the exporter and the provider
func NewTracingProvider(ctx context.Context, config TracingConfig) (*TracingProvider, error) {
	config = config.withDefaults()

	exporter := config.Exporter
	if exporter == nil {
		var err error
		if exporter, err = newExporter(ctx, config); err != nil {
			return nil, fmt.Errorf("trace exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(config.BatchTimeout)),
		sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		)),
		sdktrace.WithSampler(newMethodSampler(config)),
	)
	prop := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	if config.SetGlobal {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	}

	return &TracingProvider{
		service:        config.ServiceName,
		tracerProvider: tp,
		tracer:         tp.Tracer(tracerName),
		propagator:     prop,
	}, nil
}

func newExporter(ctx context.Context, config TracingConfig) (sdktrace.SpanExporter, error) {
	var client otlptrace.Client
	switch config.ExporterType {
	case ExporterTypeNoop:
		return discardExporter{}, nil
	case ExporterTypeOTLPGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithHeaders(config.Headers)}
		if config.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(config.Endpoint))
		}
		if config.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		client = otlptracegrpc.NewClient(opts...)
	case ExporterTypeOTLPHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithHeaders(config.Headers)}
		if config.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(config.Endpoint))
		}
		if config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		client = otlptracehttp.NewClient(opts...)
	default:
		return nil, fmt.Errorf("unsupported exporter type %q", config.ExporterType)
	}
	return otlptrace.New(ctx, client)
}

// StartMethodSpan starts a span named "mcp.<method>".
func (tp *TracingProvider) StartMethodSpan(ctx context.Context, method string, kind trace.SpanKind) (context.Context, trace.Span) {
	return tp.tracer.Start(ctx, "mcp."+method,
		trace.WithSpanKind(kind),
		trace.WithAttributes(
			attribute.String(attrMethod, method),
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.service", tp.service),
		),
	)
}

// RecordError marks the span in ctx as failed.
func (tp *TracingProvider) RecordError(ctx context.Context, err error) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// Extract returns ctx with the trace context found in carrier
func (tp *TracingProvider) Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return tp.propagator.Extract(ctx, carrier)
}

// Inject writes the trace context of ctx into carrier
func (tp *TracingProvider) Inject(ctx context.Context, carrier propagation.TextMapCarrier) {
	tp.propagator.Inject(ctx, carrier)
}

// Shutdown flushes pending spans and stops the exporter. Only the first
// call does anything.
func (tp *TracingProvider) Shutdown(ctx context.Context) error {
	tp.closeOnce.Do(func() {
		tp.closeErr = tp.tracerProvider.Shutdown(ctx)
	})
	return tp.closeErr
}

const attrMethod = "mcp.method"

// methodSampler forces a decision for listed methods and defers to a
// ratio sampler for the rest.
type methodSampler struct {
	forced   map[string]sdktrace.SamplingDecision
	fallback sdktrace.Sampler
	rate     float64
}

func newMethodSampler(config TracingConfig) *methodSampler {
	s := &methodSampler{
		forced: make(map[string]sdktrace.SamplingDecision),
		rate:   config.SampleRate,
	}
	switch {
	case config.SampleRate >= 1:
		s.fallback = sdktrace.AlwaysSample()
	case config.SampleRate <= 0:
		s.fallback = sdktrace.NeverSample()
	default:
		s.fallback = sdktrace.TraceIDRatioBased(config.SampleRate)
	}
	for _, m := range config.NeverSample {
		s.forced[m] = sdktrace.Drop
	}
	// AlwaysSample wins when a method is in both lists
	for _, m := range config.AlwaysSample {
		s.forced[m] = sdktrace.RecordAndSample
	}
	return s
}

func (s *methodSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	method := p.Name
	for _, kv := range p.Attributes {
		if kv.Key == attrMethod {
			method = kv.Value.AsString()
			break
		}
	}
	if decision, ok := s.forced[method]; ok {
		return sdktrace.SamplingResult{
			Decision:   decision,
			Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
		}
	}
	return s.fallback.ShouldSample(p)
}

func (s *methodSampler) Description() string {
	return fmt.Sprintf("MethodSampler{rate=%.2f,forced=%d}", s.rate, len(s.forced))
}

type discardExporter struct{}

func (discardExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (discardExporter) Shutdown(context.Context) error                             { return nil }

// Package telemetry wires OpenTelemetry tracing and metrics for SwapGraph.
//
// Exporters:
//   - none: no-op tracer and meter (the default)
//   - stdout: spans pretty-printed to the configured writer, metrics kept
//     in an in-process reader
//   - otlp: spans and metrics pushed over gRPC to Endpoint
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
)

const instrumentationName = "github.com/LuisRevillaM/swapgraph-sub002"

// Config selects and configures exporters.
type Config struct {
	Exporter     string  // none | stdout | otlp
	Endpoint     string  // otlp gRPC endpoint, e.g. "localhost:4317"
	Insecure     bool    // otlp without TLS (dev only)
	SampleRate   float64 // 0.0 to 1.0
	ServiceName  string
	Environment  string
	MetricPeriod time.Duration
}

// Option customizes New. Used by tests to capture output.
type Option func(*options)

type options struct {
	spanExporter sdktrace.SpanExporter
	metricReader sdkmetric.Reader
	writer       io.Writer
	logger       *slog.Logger
}

// WithSpanExporter replaces the configured span exporter.
func WithSpanExporter(e sdktrace.SpanExporter) Option {
	return func(o *options) { o.spanExporter = e }
}

// WithMetricReader replaces the configured metric reader.
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.metricReader = r }
}

// WithWriter sets where the stdout exporter writes.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Provider owns the tracer and meter and the SwapGraph instruments.
// The zero value is not usable; use New or Noop.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	operations  metric.Int64Counter
	errors      metric.Int64Counter
	duration    metric.Float64Histogram
	transitions metric.Int64Counter
	runs        metric.Int64Counter
	cycles      metric.Int64Histogram
	shadowDelta metric.Int64Histogram
	agreement   metric.Int64Counter
}

// Noop returns a provider that records nothing.
func Noop() *Provider {
	p := &Provider{
		tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:  metricnoop.NewMeterProvider().Meter(instrumentationName),
		logger: slog.Default(),
	}
	// Instruments from a no-op meter never fail.
	_ = p.initInstruments()
	return p
}

// New builds a provider for cfg.
func New(ctx context.Context, cfg Config, opts ...Option) (*Provider, error) {
	o := options{writer: os.Stderr, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	exporter := strings.ToLower(strings.TrimSpace(cfg.Exporter))
	if exporter == "" || exporter == "none" {
		if o.spanExporter == nil && o.metricReader == nil {
			return Noop(), nil
		}
	}

	spanExp, reader, err := buildExporters(ctx, exporter, cfg, o)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "swapgraph"
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(ir.EngineVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	)

	p := &Provider{logger: o.logger.With("component", "telemetry")}
	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(spanExp),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	p.tracer = p.tracerProvider.Tracer(instrumentationName,
		trace.WithInstrumentationVersion(ir.EngineVersion))
	p.meter = p.meterProvider.Meter(instrumentationName,
		metric.WithInstrumentationVersion(ir.EngineVersion))

	if err := p.initInstruments(); err != nil {
		return nil, fmt.Errorf("init instruments: %w", err)
	}

	p.logger.InfoContext(ctx, "telemetry initialized",
		"exporter", exporter,
		"endpoint", cfg.Endpoint,
		"sample_rate", cfg.SampleRate,
	)
	return p, nil
}

func buildExporters(ctx context.Context, exporter string, cfg Config, o options) (sdktrace.SpanExporter, sdkmetric.Reader, error) {
	spanExp, reader := o.spanExporter, o.metricReader

	switch exporter {
	case "", "none":
		if spanExp == nil {
			spanExp = tracenoopExporter{}
		}
		if reader == nil {
			reader = sdkmetric.NewManualReader()
		}
	case "stdout":
		if spanExp == nil {
			exp, err := stdouttrace.New(stdouttrace.WithWriter(o.writer), stdouttrace.WithPrettyPrint())
			if err != nil {
				return nil, nil, fmt.Errorf("create stdout exporter: %w", err)
			}
			spanExp = exp
		}
		if reader == nil {
			reader = sdkmetric.NewManualReader()
		}
	case "otlp":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		if spanExp == nil {
			traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
			if cfg.Insecure {
				traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
			}
			exp, err := otlptracegrpc.New(ctx, traceOpts...)
			if err != nil {
				return nil, nil, fmt.Errorf("create trace exporter: %w", err)
			}
			spanExp = exp
		}
		if reader == nil {
			metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(endpoint)}
			if cfg.Insecure {
				metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
			}
			exp, err := otlpmetricgrpc.New(ctx, metricOpts...)
			if err != nil {
				return nil, nil, fmt.Errorf("create metric exporter: %w", err)
			}
			period := cfg.MetricPeriod
			if period <= 0 {
				period = 15 * time.Second
			}
			reader = sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(period))
		}
	default:
		return nil, nil, fmt.Errorf("unknown telemetry exporter %q", exporter)
	}
	return spanExp, reader, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0 || rate == 0:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case rate < 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

func (p *Provider) initInstruments() error {
	var err error
	if p.operations, err = p.meter.Int64Counter("swapgraph.operations.total",
		metric.WithDescription("Operations processed"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return err
	}
	if p.errors, err = p.meter.Int64Counter("swapgraph.errors.total",
		metric.WithDescription("Operations that returned an error, by kind"),
		metric.WithUnit("{error}"),
	); err != nil {
		return err
	}
	if p.duration, err = p.meter.Float64Histogram("swapgraph.operation.duration",
		metric.WithDescription("Operation duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}
	if p.transitions, err = p.meter.Int64Counter("swapgraph.settlement.transitions",
		metric.WithDescription("Committed settlement state transitions"),
		metric.WithUnit("{transition}"),
	); err != nil {
		return err
	}
	if p.runs, err = p.meter.Int64Counter("swapgraph.matching.runs",
		metric.WithDescription("Completed matching runs"),
		metric.WithUnit("{run}"),
	); err != nil {
		return err
	}
	if p.cycles, err = p.meter.Int64Histogram("swapgraph.matching.candidate_cycles",
		metric.WithDescription("Candidate cycles found per run"),
		metric.WithUnit("{cycle}"),
	); err != nil {
		return err
	}
	if p.shadowDelta, err = p.meter.Int64Histogram("swapgraph.matching.shadow_delta",
		metric.WithDescription("Optimizer total minus greedy total, in 1e-4 score units"),
	); err != nil {
		return err
	}
	if p.agreement, err = p.meter.Int64Counter("swapgraph.matching.shadow_comparisons",
		metric.WithDescription("Shadow comparisons by outcome"),
		metric.WithUnit("{comparison}"),
	); err != nil {
		return err
	}
	return nil
}

// StartSpan starts a span named name.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// TrackOperation starts a span and returns a function that ends it,
// recording count, duration and, on failure, the error kind.
// kindOf maps an error to its low-cardinality label.
func (p *Provider) TrackOperation(ctx context.Context, name string, kindOf func(error) string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	opAttr := attribute.String("operation", name)

	return ctx, func(err error) {
		p.operations.Add(ctx, 1, metric.WithAttributes(opAttr))
		p.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(opAttr))
		if err != nil {
			kind := "internal"
			if kindOf != nil {
				kind = kindOf(err)
			}
			p.errors.Add(ctx, 1, metric.WithAttributes(opAttr, attribute.String("error.kind", kind)))
			span.RecordError(err)
			span.SetStatus(codes.Error, kind)
		}
		span.End()
	}
}

// RecordTransition counts one committed settlement transition.
func (p *Provider) RecordTransition(ctx context.Context, from, to string) {
	p.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordRun records the statistics of a completed matching run.
func (p *Provider) RecordRun(ctx context.Context, run ir.MatchingRun) {
	method := attribute.String("method", run.Selection.Method)
	p.runs.Add(ctx, 1, metric.WithAttributes(
		method,
		attribute.Bool("timeout_reached", run.Stats.TimeoutReached),
		attribute.Bool("max_cycles_reached", run.Stats.MaxCyclesReached),
	))
	p.cycles.Record(ctx, int64(run.Stats.CandidateCycles), metric.WithAttributes(method))

	if run.Shadow == nil {
		return
	}
	outcome := "disagree"
	switch {
	case run.Shadow.Error != "":
		outcome = "error"
	case run.Shadow.Agreement:
		outcome = "agree"
	}
	p.agreement.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if run.Shadow.Error == "" {
		p.shadowDelta.Record(ctx, run.Shadow.Delta)
	}
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown trace provider", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown metric provider", "error", err)
		}
	}
	return nil
}

// tracenoopExporter discards spans. Used when only a metric reader is
// injected.
type tracenoopExporter struct{}

func (tracenoopExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (tracenoopExporter) Shutdown(context.Context) error                             { return nil }

// Package observability wires OpenTelemetry tracing and metrics for the
// remediation controller. When disabled every recording method is a no-op,
// so call sites never need to branch on telemetry state.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	remedycfg "github.com/Mindburn-Labs/remedy/pkg/config"
)

const instrumentationName = "remedy.controller"

// Provider manages the trace and metric pipelines and the controller's
// core instruments.
type Provider struct {
	enabled        bool
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	decisions      metric.Int64Counter
	executions     metric.Int64Counter
	rollbacks      metric.Int64Counter
	certifications metric.Int64Counter
	execDuration   metric.Float64Histogram
}

// New builds a provider from controller configuration. A disabled provider
// is valid and inert.
func New(ctx context.Context, cfg *remedycfg.Config) (*Provider, error) {
	p := &Provider{
		enabled: cfg.OTelEnabled,
		logger:  slog.Default().With("component", "observability"),
	}
	if !p.enabled {
		p.logger.Info("telemetry disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName("remedy"),
			semconv.ServiceVersion(remedycfg.Version()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	if err := p.initTraces(ctx, cfg.OTLPEndpoint, res); err != nil {
		return nil, err
	}
	if err := p.initMetrics(ctx, cfg.OTLPEndpoint, res); err != nil {
		return nil, err
	}

	p.tracer = otel.Tracer(instrumentationName)
	p.meter = otel.Meter(instrumentationName)
	if err := p.initInstruments(); err != nil {
		return nil, err
	}

	p.logger.Info("telemetry initialized", "endpoint", cfg.OTLPEndpoint)
	return p, nil
}

func (p *Provider) initTraces(ctx context.Context, endpoint string, res *resource.Resource) error {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("observability: trace exporter: %w", err)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetrics(ctx context.Context, endpoint string, res *resource.Resource) error {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("observability: metric exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second),
		)),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initInstruments() error {
	var err error

	p.decisions, err = p.meter.Int64Counter("remedy.decisions.total",
		metric.WithDescription("Decisions produced by the governor"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return fmt.Errorf("observability: decisions counter: %w", err)
	}

	p.executions, err = p.meter.Int64Counter("remedy.executions.total",
		metric.WithDescription("Strategy executions by terminal status"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return fmt.Errorf("observability: executions counter: %w", err)
	}

	p.rollbacks, err = p.meter.Int64Counter("remedy.rollbacks.total",
		metric.WithDescription("Patch rollbacks by success"),
		metric.WithUnit("{rollback}"),
	)
	if err != nil {
		return fmt.Errorf("observability: rollbacks counter: %w", err)
	}

	p.certifications, err = p.meter.Int64Counter("remedy.certifications.total",
		metric.WithDescription("Certification verdicts by outcome"),
		metric.WithUnit("{verdict}"),
	)
	if err != nil {
		return fmt.Errorf("observability: certifications counter: %w", err)
	}

	p.execDuration, err = p.meter.Float64Histogram("remedy.execution.duration",
		metric.WithDescription("Strategy execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300),
	)
	if err != nil {
		return fmt.Errorf("observability: duration histogram: %w", err)
	}
	return nil
}

// RecordDecision counts one governor decision.
func (p *Provider) RecordDecision(ctx context.Context, action, reason string) {
	if p.decisions == nil {
		return
	}
	p.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("reason", reason),
	))
}

// RecordExecution counts one execution and its duration.
func (p *Provider) RecordExecution(ctx context.Context, status string, d time.Duration) {
	if p.executions != nil {
		p.executions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
	if p.execDuration != nil {
		p.execDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
	}
}

// RecordRollback counts one patch rollback.
func (p *Provider) RecordRollback(ctx context.Context, success bool) {
	if p.rollbacks == nil {
		return
	}
	p.rollbacks.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordCertification counts one certification verdict.
func (p *Provider) RecordCertification(ctx context.Context, certified bool, reason string) {
	if p.certifications == nil {
		return
	}
	p.certifications.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("certified", certified),
		attribute.String("reason", reason),
	))
}

// StartSpan opens a span when telemetry is enabled; otherwise it returns a
// no-op span.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if p.tracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName).Start(ctx, name)
	}
	return p.tracer.Start(ctx, name, opts...)
}

// Shutdown flushes and stops both pipelines.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.Error("trace provider shutdown failed", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.Error("metric provider shutdown failed", "error", err)
		}
	}
	return nil
}

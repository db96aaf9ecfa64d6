// Package observability wires OpenTelemetry tracing and metrics for the
// navigation guard.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "navguard"

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// OTLPEndpoint is a gRPC host:port.
	OTLPEndpoint string
	// SampleRate is the fraction of evaluations traced, 0.0 to 1.0.
	SampleRate   float64
	BatchTimeout time.Duration
	Enabled      bool
	Insecure     bool
}

// DefaultConfig returns development defaults with export disabled.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "navguard",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
	}
}

// Provider records navigation telemetry. When export is disabled it records
// through the global tracer and meter, which are no-ops unless something else
// installed real ones.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	inst           *instruments
	logger         *slog.Logger
}

type instruments struct {
	operations metric.Int64Counter
	failures   metric.Int64Counter
	latency    metric.Float64Histogram
	inflight   metric.Int64UpDownCounter
	decisions  metric.Int64Counter
	fallbacks  metric.Int64Counter
}

func newInstruments(m metric.Meter) (*instruments, error) {
	var (
		in   instruments
		errs [6]error
	)
	in.operations, errs[0] = m.Int64Counter("navguard.requests.total",
		metric.WithDescription("Tracked operations started"), metric.WithUnit("{request}"))
	in.failures, errs[1] = m.Int64Counter("navguard.errors.total",
		metric.WithDescription("Tracked operations that ended in an error"), metric.WithUnit("{error}"))
	in.latency, errs[2] = m.Float64Histogram("navguard.operation.duration",
		metric.WithDescription("Tracked operation latency"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3))
	in.inflight, errs[3] = m.Int64UpDownCounter("navguard.operations.active",
		metric.WithDescription("Tracked operations in flight"), metric.WithUnit("{operation}"))
	in.decisions, errs[4] = m.Int64Counter("navguard.decisions.total",
		metric.WithDescription("Routing verdicts by kind and rule"), metric.WithUnit("{decision}"))
	in.fallbacks, errs[5] = m.Int64Counter("navguard.signal.failures.total",
		metric.WithDescription("Signals that fell back to their default"), metric.WithUnit("{failure}"))
	if err := errors.Join(errs[:]...); err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}
	return &in, nil
}

// New creates a provider exporting over OTLP gRPC when config.Enabled.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if config.Enabled {
		if err := p.startExport(ctx); err != nil {
			return nil, err
		}
	} else {
		p.tracer = otel.Tracer(scopeName)
		p.meter = otel.Meter(scopeName)
	}

	inst, err := newInstruments(p.meter)
	if err != nil {
		return nil, err
	}
	p.inst = inst

	p.logger.InfoContext(ctx, "observability configured",
		"export", config.Enabled,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate,
	)
	return p, nil
}

// NewWithReader records metrics into reader without exporting. Tests use it
// with an sdkmetric.ManualReader.
func NewWithReader(reader sdkmetric.Reader) (*Provider, error) {
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	p := &Provider{
		config:        DefaultConfig(),
		meterProvider: mp,
		tracer:        otel.Tracer(scopeName),
		meter:         mp.Meter(scopeName),
		logger:        slog.Default().With("component", "observability"),
	}
	inst, err := newInstruments(p.meter)
	if err != nil {
		return nil, err
	}
	p.inst = inst
	return p, nil
}

// Shutdown flushes and stops the exporting providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (p *Provider) Tracer() trace.Tracer { return p.tracer }

func (p *Provider) Meter() metric.Meter { return p.meter }

// RecordDecision counts one routing verdict.
func (p *Provider) RecordDecision(ctx context.Context, kind, rule string, impersonating bool) {
	p.inst.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("verdict", kind),
		attribute.String("rule", rule),
		attribute.Bool("impersonating", impersonating),
	))
}

// RecordSignalFailure counts a signal that fell back to its default.
func (p *Provider) RecordSignalFailure(ctx context.Context, signal string) {
	p.inst.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("signal", signal)))
}

// TrackOperation opens a span named name and counts it. The returned func
// must be called once with the operation's error.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	labels := append([]attribute.KeyValue{attribute.String("operation", name)}, attrs...)
	set := metric.WithAttributeSet(attribute.NewSet(labels...))

	start := time.Now()
	p.inst.operations.Add(ctx, 1, set)
	p.inst.inflight.Add(ctx, 1, set)

	return ctx, func(err error) {
		defer span.End()
		p.inst.inflight.Add(ctx, -1, set)
		p.inst.latency.Record(ctx, time.Since(start).Seconds(), set)
		if err == nil {
			return
		}
		span.RecordError(err)
		p.inst.failures.Add(ctx, 1, set)
	}
}

// Package telemetry wires OpenTelemetry traces, metrics and the zap log bridge
// for the export service.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/voucher-export/internal/infrastructure/config"
	otelpyroscope "github.com/grafana/otel-profiling-go"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InstrumentationName names the tracer and meter of the export service
const InstrumentationName = "github.com/erp/voucher-export"

// Providers holds the OpenTelemetry SDK providers. With telemetry disabled all
// providers are no-ops and Shutdown does nothing.
type Providers struct {
	tracer *sdktrace.TracerProvider
	// traces is tracer, wrapped for span profiles when they are enabled
	traces trace.TracerProvider
	meter  *sdkmetric.MeterProvider
	logs   *sdklog.LoggerProvider
	config config.TelemetryConfig
	logger *zap.Logger
}

// NewProviders creates the trace, metric and log providers and installs them globally
func NewProviders(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Providers{config: cfg, logger: logger}
	if !cfg.Enabled {
		logger.Info("Telemetry disabled, using no-op providers")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.CollectorEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.CollectorEndpoint)}
	logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}
	p.tracer = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SamplingRatio)),
	)

	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = p.tracer.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
	}
	interval := cfg.MetricsInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	p.meter = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval))),
	)

	logExporter, err := otlploggrpc.New(ctx, logOpts...)
	if err != nil {
		_ = p.tracer.Shutdown(ctx)
		_ = p.meter.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create OTLP logs exporter: %w", err)
	}
	p.logs = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)

	p.traces = linkSpanProfiles(p.tracer, cfg.Profiling)
	otel.SetTracerProvider(p.traces)
	otel.SetMeterProvider(p.meter)
	global.SetLoggerProvider(p.logs)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("OpenTelemetry providers initialized",
		zap.String("collector_endpoint", cfg.CollectorEndpoint),
		zap.Float64("sampling_ratio", cfg.SamplingRatio),
		zap.Duration("metrics_interval", interval),
		zap.String("service_name", cfg.ServiceName),
		zap.Bool("span_profiles", cfg.Profiling.Enabled && cfg.Profiling.SpanProfiles),
	)
	return p, nil
}

// linkSpanProfiles labels the CPU samples of every root span with its span id,
// so Pyroscope can show the profile of a single export run
func linkSpanProfiles(tp trace.TracerProvider, cfg config.ProfilingConfig) trace.TracerProvider {
	if !cfg.Enabled || !cfg.SpanProfiles {
		return tp
	}
	return otelpyroscope.NewTracerProvider(tp)
}

func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// IsEnabled returns whether telemetry is exported
func (p *Providers) IsEnabled() bool {
	return p.tracer != nil
}

// Tracer returns the export service tracer
func (p *Providers) Tracer() trace.Tracer {
	return p.TracerProvider().Tracer(InstrumentationName)
}

// TracerProvider returns the trace provider, a no-op one when disabled
func (p *Providers) TracerProvider() trace.TracerProvider {
	if p.traces == nil {
		return tracenoop.NewTracerProvider()
	}
	return p.traces
}

// Meter returns the export service meter
func (p *Providers) Meter() metric.Meter {
	if p.meter == nil {
		return metricnoop.NewMeterProvider().Meter(InstrumentationName)
	}
	return p.meter.Meter(InstrumentationName)
}

// BridgeLogger returns a logger that also ships entries at or above the base
// logger's level to the collector. Without telemetry the base logger is returned.
func (p *Providers) BridgeLogger(base *zap.Logger) *zap.Logger {
	if p.logs == nil {
		return base
	}
	otelCore := otelzap.NewCore(p.config.ServiceName, otelzap.WithLoggerProvider(p.logs))
	level := zapcore.LevelOf(base.Core())
	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, &levelFilterCore{Core: otelCore, minLevel: level})
	}))
}

// levelFilterCore drops entries below minLevel
type levelFilterCore struct {
	zapcore.Core
	minLevel zapcore.Level
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.minLevel && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return ce
	}
	return c.Core.Check(entry, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{Core: c.Core.With(fields), minLevel: c.minLevel}
}

// Shutdown flushes and stops all providers
func (p *Providers) Shutdown(ctx context.Context) error {
	if !p.IsEnabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs []error
	if err := p.tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer provider: %w", err))
	}
	if err := p.meter.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("meter provider: %w", err))
	}
	if err := p.logs.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("logger provider: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		p.logger.Error("Error shutting down telemetry", zap.Error(err))
		return err
	}
	p.logger.Info("OpenTelemetry providers shut down")
	return nil
}

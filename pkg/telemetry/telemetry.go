// Package telemetry sets up OpenTelemetry metrics and tracing for the
// idxtree binaries, with metrics exported in Prometheus format.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// shutdownTimeout bounds the final flush when the caller's context has no
// deadline of its own.
const shutdownTimeout = 5 * time.Second

// Config holds all the configuration for the telemetry system.
type Config struct {
	// Enabled toggles the entire telemetry system on or off.
	Enabled bool `yaml:"enabled"`
	// ServiceName appears in traces and metrics.
	ServiceName string `yaml:"service_name"`
	// TraceSampleRatio is the fraction of traces to sample (e.g., 0.01 for 1%).
	// Values outside (0, 1] sample everything.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
	// SetGlobal installs the providers as the otel globals.
	SetGlobal bool `yaml:"set_global"`
}

func (c Config) sampleRatio() float64 {
	if c.TraceSampleRatio <= 0 || c.TraceSampleRatio > 1 {
		return 1.0
	}
	return c.TraceSampleRatio
}

// Telemetry represents the active telemetry components.
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	// MetricsHandler serves the Prometheus scrape endpoint.
	MetricsHandler http.Handler
}

// ShutdownFunc flushes and stops the telemetry providers.
type ShutdownFunc func(ctx context.Context) error

// Noop returns telemetry whose tracer and meter discard everything.
func Noop() *Telemetry {
	return &Telemetry{
		Tracer:         nooptrace.NewTracerProvider().Tracer(""),
		Meter:          noop.NewMeterProvider().Meter(""),
		MetricsHandler: http.NotFoundHandler(),
	}
}

// New builds the SDK providers. Metrics go to a private Prometheus registry
// exposed through MetricsHandler, so several instances can live in one
// process.
func New(config Config) (*Telemetry, ShutdownFunc, error) {
	if !config.Enabled {
		return Noop(), func(context.Context) error { return nil }, nil
	}

	res, err := newResource(config.ServiceName)
	if err != nil {
		return nil, nil, err
	}
	meterProvider, metricsHandler, err := newMeterProvider(res)
	if err != nil {
		return nil, nil, err
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.sampleRatio()))),
	)

	if config.SetGlobal {
		otel.SetTracerProvider(tracerProvider)
		otel.SetMeterProvider(meterProvider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	}

	tel := &Telemetry{
		TracerProvider: tracerProvider,
		MeterProvider:  meterProvider,
		Tracer:         tracerProvider.Tracer(config.ServiceName),
		Meter:          meterProvider.Meter(config.ServiceName),
		MetricsHandler: metricsHandler,
	}
	return tel, shutdownFunc(tracerProvider, meterProvider), nil
}

// newResource describes this process: service name plus the module version
// stamped into the binary, when there is one.
func newResource(serviceName string) (*resource.Resource, error) {
	version := "devel"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		version = info.Main.Version
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func newMeterProvider(res *resource.Resource) (*sdkmetric.MeterProvider, http.Handler, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	return provider, handler, nil
}

// shutdownFunc stops both providers even when the first one fails.
func shutdownFunc(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider) ShutdownFunc {
	return func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
		}
		var errs []error
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
		if err := mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
		return errors.Join(errs...)
	}
}

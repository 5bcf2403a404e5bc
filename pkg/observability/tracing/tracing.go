// Package tracing configures the OpenTelemetry tracer provider used by the
// thread pool and the listener.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Exporter names accepted by Config.Exporter.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterZipkin = "zipkin"
	ExporterJaeger = "jaeger"
)

// Config selects the span exporter.
type Config struct {
	// Exporter is one of none, stdout, zipkin, jaeger. Empty means none.
	Exporter string `yaml:"exporter" json:"exporter"`

	// Endpoint is the zipkin or jaeger collector URL.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// ServiceName is reported as service.name. Defaults to "symphony".
	ServiceName string `yaml:"service_name" json:"service_name"`

	// SampleRatio is the fraction of root spans kept, in [0, 1].
	// Zero samples everything.
	SampleRatio float64 `yaml:"sample_ratio" json:"sample_ratio"`

	// Global installs the provider with otel.SetTracerProvider.
	Global bool `yaml:"global" json:"global"`

	// Writer receives stdout exporter output. Defaults to os.Stdout.
	Writer io.Writer `yaml:"-" json:"-"`
}

// ShutdownFunc flushes and stops the exporter.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Validate checks the exporter name and sample ratio.
func (c Config) Validate() error {
	switch strings.ToLower(c.Exporter) {
	case "", ExporterNone, ExporterStdout:
	case ExporterZipkin, ExporterJaeger:
		if c.Endpoint == "" {
			return fmt.Errorf("tracing: exporter %q requires an endpoint", c.Exporter)
		}
	default:
		return fmt.Errorf("tracing: unknown exporter %q", c.Exporter)
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("tracing: sample ratio %v out of range [0, 1]", c.SampleRatio)
	}
	return nil
}

// Setup builds a tracer provider for cfg. With no exporter configured it
// returns a noop provider, so callers can always start spans.
func Setup(ctx context.Context, cfg Config) (trace.TracerProvider, ShutdownFunc, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, nil, err
	}
	if exporter == nil {
		tp := noop.NewTracerProvider()
		if cfg.Global {
			otel.SetTracerProvider(tp)
		}
		return tp, noopShutdown, nil
	}

	name := cfg.ServiceName
	if name == "" {
		name = "symphony"
	}
	res := resource.NewSchemaless(attribute.String("service.name", name))

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	if cfg.Global {
		otel.SetTracerProvider(tp)
	}
	return tp, tp.Shutdown, nil
}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("tracing: stdout exporter: %w", err)
		}
		return exp, nil
	case ExporterZipkin:
		exp, err := zipkin.New(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("tracing: zipkin exporter: %w", err)
		}
		return exp, nil
	case ExporterJaeger:
		exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
		if err != nil {
			return nil, fmt.Errorf("tracing: jaeger exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, nil
	}
}

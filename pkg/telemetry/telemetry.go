// Package telemetry installs the global OpenTelemetry tracer provider that
// the pipeline spans are recorded on.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

var ErrUnknownExporter = errors.New("telemetry: unknown trace exporter")

type Config struct {
	// Exporter is one of none, stdout or otlp. Empty means none.
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	OTLPInsecure bool
	// Writer receives stdout spans; nil means os.Stdout.
	Writer io.Writer
}

// Init sets the global tracer provider and returns its shutdown, which
// flushes buffered spans. With no exporter the no-op provider stays in place.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	var (
		exp sdktrace.SpanExporter
		err error
	)
	switch cfg.Exporter {
	case "", ExporterNone:
		return noop, nil
	case ExporterStdout:
		opts := []stdouttrace.Option{}
		if cfg.Writer != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Writer))
		}
		exp, err = stdouttrace.New(opts...)
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err = otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("trace exporter %s: %w", cfg.Exporter, err)
	}

	res := resource.NewWithAttributes("", attribute.String("service.name", cfg.ServiceName))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

package otel

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	defaultJaegerEndpoint = "http://localhost:14268/api/traces"
	defaultZipkinEndpoint = "http://localhost:9411/api/v2/spans"
)

func newExporter(config Config, out io.Writer) (exp sdktrace.SpanExporter, err error) {
	switch config.Exporter {
	case ExporterJaeger:
		endpoint := orDefault(config.Endpoint, defaultJaegerEndpoint)
		exp, err = jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
	case ExporterZipkin:
		exp, err = zipkin.New(orDefault(config.Endpoint, defaultZipkinEndpoint))
	case ExporterStdout:
		if out == nil {
			out = os.Stdout
		}
		exp, err = stdouttrace.New(stdouttrace.WithWriter(out))
	case ExporterNone:
		return discardExporter{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExporter, config.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s exporter: %w", config.Exporter, err)
	}
	return exp, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// discardExporter drops every span. Sampling and propagation still run.
type discardExporter struct{}

func (discardExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (discardExporter) Shutdown(context.Context) error                             { return nil }

// Package otel installs the process-wide OpenTelemetry tracer and carries
// trace context through fasthttp headers.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var global struct {
	sync.RWMutex
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

var fallback = noop.NewTracerProvider().Tracer("workpool")

// Initialize builds a tracer provider for config and installs it globally.
// The stdout exporter writes to out, or os.Stdout when out is nil.
func Initialize(ctx context.Context, config Config, out io.Writer) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid tracing config: %w", err)
	}

	global.Lock()
	defer global.Unlock()
	if global.provider != nil {
		return errors.New("tracing already initialized")
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(config.ServiceName),
		semconv.ServiceVersionKey.String(config.ServiceVersion),
		attribute.String("environment", config.Environment),
	))
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := newExporter(config, out)
	if err != nil {
		return err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(Propagator())

	global.provider = tp
	global.tracer = tp.Tracer(config.ServiceName)
	return nil
}

// Propagator handles W3C trace context and baggage
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
}

// Tracer returns the installed tracer, or a no-op one before Initialize
func Tracer() trace.Tracer {
	global.RLock()
	defer global.RUnlock()
	if global.tracer == nil {
		return fallback
	}
	return global.tracer
}

func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

func IsInitialized() bool {
	global.RLock()
	defer global.RUnlock()
	return global.provider != nil
}

// Shutdown flushes buffered spans and uninstalls the provider. It is a
// no-op when nothing is installed.
func Shutdown(ctx context.Context) error {
	global.Lock()
	tp := global.provider
	global.provider, global.tracer = nil, nil
	global.Unlock()

	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

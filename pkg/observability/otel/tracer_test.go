package otel

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/trace"
)

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.ServiceName = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SampleRate = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Exporter = "kafka"
	assert.ErrorIs(t, cfg.Validate(), ErrUnsupportedExporter)
}

func TestTracerBeforeInitialize(t *testing.T) {
	require.False(t, IsInitialized())
	_, span := StartSpan(context.Background(), "noop")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
	require.NoError(t, Shutdown(context.Background()))
}

func TestInitializeStdout(t *testing.T) {
	var out bytes.Buffer
	cfg := DefaultConfig()
	cfg.Exporter = ExporterStdout

	require.NoError(t, Initialize(context.Background(), cfg, &out))
	assert.True(t, IsInitialized())
	assert.Error(t, Initialize(context.Background(), cfg, &out))

	_, span := StartSpan(context.Background(), "conn.handle")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, Shutdown(context.Background()))
	assert.False(t, IsInitialized())
	assert.Contains(t, out.String(), "conn.handle")
}

func TestPropagationThroughFastHTTPHeaders(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Initialize(context.Background(), cfg, nil))
	defer Shutdown(context.Background())

	ctx, span := StartSpan(context.Background(), "client")
	defer span.End()

	var req fasthttp.Request
	Propagator().Inject(ctx, RequestHeaderCarrier{Headers: &req.Header})
	assert.NotEmpty(t, req.Header.Peek("traceparent"))

	extracted := Propagator().Extract(context.Background(), RequestHeaderCarrier{Headers: &req.Header})
	got := trace.SpanContextFromContext(extracted)
	assert.Equal(t, span.SpanContext().TraceID(), got.TraceID())

	var resp fasthttp.Response
	Propagator().Inject(ctx, ResponseHeaderCarrier{Headers: &resp.Header})
	assert.NotEmpty(t, resp.Header.Peek("traceparent"))
	assert.Contains(t, ResponseHeaderCarrier{Headers: &resp.Header}.Keys(), "Traceparent")
}

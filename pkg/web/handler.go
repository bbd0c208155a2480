package web

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/workpool/pkg/core"
	"github.com/fluxorio/workpool/pkg/observability/otel"
)

const (
	indexFile    = "hello.html"
	notFoundFile = "404.html"
	contentType  = "text/html; charset=utf-8"
)

// HandlerConfig configures per-connection request handling
type HandlerConfig struct {
	// DocRoot is the directory holding hello.html and 404.html
	DocRoot string
	// ReadTimeout bounds reading the request
	ReadTimeout time.Duration
	// WriteTimeout bounds writing the response
	WriteTimeout time.Duration
	// SleepDelay is how long GET /sleep waits before answering
	SleepDelay time.Duration
}

// DefaultHandlerConfig returns the handler defaults
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		DocRoot:      ".",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		SleepDelay:   5 * time.Second,
	}
}

// ConnObserver is notified about every connection outcome
type ConnObserver interface {
	ConnHandled(status int)
	ConnDropped()
}

type noopConnObserver struct{}

func (noopConnObserver) ConnHandled(int) {}
func (noopConnObserver) ConnDropped()    {}

// ConnHandler answers exactly one request per connection and closes it
type ConnHandler struct {
	config   HandlerConfig
	logger   core.Logger
	observer ConnObserver
}

// NewConnHandler creates a connection handler. logger and observer may be nil.
func NewConnHandler(config HandlerConfig, logger core.Logger, observer ConnObserver) *ConnHandler {
	if logger == nil {
		logger = core.NewDefaultLogger()
	}
	if observer == nil {
		observer = noopConnObserver{}
	}
	return &ConnHandler{
		config:   config,
		logger:   logger,
		observer: observer,
	}
}

// Serve reads one request from conn, writes the response and closes conn.
func (h *ConnHandler) Serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	ctx = core.WithRequestID(ctx, core.NewRequestID())
	logger := h.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"remote_addr": conn.RemoteAddr().String(),
	})

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	if h.config.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	}

	if err := req.Read(bufio.NewReader(conn)); err != nil {
		var nothing fasthttp.ErrNothingRead
		if errors.As(err, &nothing) || errors.Is(err, io.EOF) {
			logger.Debug("connection closed before a request was sent")
			return
		}
		logger.Error(fmt.Sprintf("failed to read request: %v", err))
		writePlain(resp, fasthttp.StatusBadRequest)
		h.write(conn, resp, logger)
		return
	}

	method, target := string(req.Header.Method()), string(req.Header.RequestURI())
	spanCtx, span := otel.StartSpan(
		otel.Propagator().Extract(ctx, otel.RequestHeaderCarrier{Headers: &req.Header}),
		"conn.handle",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.HTTPMethodKey.String(method),
			semconv.HTTPTargetKey.String(target),
			attribute.String("request_id", core.GetRequestID(ctx)),
		),
	)
	defer span.End()

	logger.Info(fmt.Sprintf("Request: %s %s %s", method, target, req.Header.Protocol()))
	h.respond(spanCtx, route(method, target, req.Header.IsHTTP11()), resp, logger)

	status := resp.StatusCode()
	span.SetAttributes(semconv.HTTPStatusCodeKey.Int(status))
	if status >= 500 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
	} else {
		span.SetStatus(codes.Ok, "OK")
	}
	otel.Propagator().Inject(spanCtx, otel.ResponseHeaderCarrier{Headers: &resp.Header})

	h.write(conn, resp, logger)
}

// routed is the outcome of matching a request line
type routed struct {
	status int
	file   string
	sleep  bool
}

func (h *ConnHandler) respond(ctx context.Context, r routed, resp *fasthttp.Response, logger core.Logger) {
	if r.sleep {
		_, span := otel.StartSpan(ctx, "sleep")
		time.Sleep(h.config.SleepDelay)
		span.End()
	}

	body, err := os.ReadFile(filepath.Join(h.config.DocRoot, r.file))
	if err != nil {
		logger.Error(fmt.Sprintf("failed to read %s: %v", r.file, err))
		writePlain(resp, fasthttp.StatusInternalServerError)
		return
	}

	resp.SetStatusCode(r.status)
	resp.Header.SetContentType(contentType)
	resp.SetBody(body)
}

// route matches the exact request lines "GET / HTTP/1.1" and
// "GET /sleep HTTP/1.1". Anything else, including a query string or
// HTTP/1.0, gets the not-found page.
func route(method, target string, http11 bool) routed {
	if method == fasthttp.MethodGet && http11 {
		switch target {
		case "/":
			return routed{status: fasthttp.StatusOK, file: indexFile}
		case "/sleep":
			return routed{status: fasthttp.StatusOK, file: indexFile, sleep: true}
		}
	}
	return routed{status: fasthttp.StatusNotFound, file: notFoundFile}
}

func (h *ConnHandler) write(conn net.Conn, resp *fasthttp.Response, logger core.Logger) {
	resp.SetConnectionClose()
	if h.config.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
	}

	w := bufio.NewWriter(conn)
	if err := resp.Write(w); err != nil {
		logger.Error(fmt.Sprintf("failed to write response: %v", err))
		return
	}
	if err := w.Flush(); err != nil {
		logger.Error(fmt.Sprintf("failed to write response: %v", err))
		return
	}
	h.observer.ConnHandled(resp.StatusCode())
}

func writePlain(resp *fasthttp.Response, status int) {
	resp.SetStatusCode(status)
	resp.Header.SetContentType("text/plain; charset=utf-8")
	resp.SetBodyString(fasthttp.StatusMessage(status))
}

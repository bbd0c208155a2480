package web

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"

	"github.com/fluxorio/workpool/pkg/core"
	promexport "github.com/fluxorio/workpool/pkg/observability/prometheus"
	"github.com/fluxorio/workpool/pkg/web/health"
	"github.com/fluxorio/workpool/pkg/web/middleware"
)

// AdminServer exposes /metrics and /health over fasthttp
type AdminServer struct {
	server *fasthttp.Server
	logger core.Logger
}

// NewAdminServer creates the admin endpoint. details is embedded in /health
// responses and may be nil.
func NewAdminServer(registry *prometheus.Registry, aggregator *health.Aggregator, details func() interface{}, logger core.Logger) *AdminServer {
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	metrics := promexport.FastHTTPHandler(registry)
	healthHandler := aggregator.Handler(details)

	handler := func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/metrics":
			metrics(ctx)
		case "/health":
			healthHandler(ctx)
		default:
			ctx.Error(fasthttp.StatusMessage(fasthttp.StatusNotFound), fasthttp.StatusNotFound)
		}
	}

	logger = logger.WithFields(map[string]interface{}{"component": "admin"})
	logging := middleware.DefaultLoggingConfig()
	logging.Logger = logger

	return &AdminServer{
		server: &fasthttp.Server{
			Handler: middleware.Chain(handler,
				middleware.Recovery(logger),
				middleware.Logging(logging),
				middleware.Headers(middleware.DefaultHeadersConfig()),
			),
			Name:         "workpool-admin",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// ListenAndServe binds addr and serves until ctx is done
func (a *AdminServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done
func (a *AdminServer) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		if err := a.server.Shutdown(); err != nil {
			a.logger.Error(fmt.Sprintf("admin shutdown: %v", err))
		}
	})
	defer stop()

	a.logger.Info(fmt.Sprintf("admin listening on %s", ln.Addr()))
	if err := a.server.Serve(ln); err != nil && ctx.Err() == nil {
		return fmt.Errorf("admin server failed: %w", err)
	}
	return nil
}

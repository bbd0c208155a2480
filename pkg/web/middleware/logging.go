package middleware

import (
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/fluxorio/workpool/pkg/core"
)

// LoggingConfig configures request logging middleware
type LoggingConfig struct {
	// Logger is the logger to use (default: core.NewDefaultLogger())
	Logger core.Logger

	// SkipPaths are logged at DEBUG only
	SkipPaths []string
}

// DefaultLoggingConfig returns a default logging configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Logger:    core.NewDefaultLogger(),
		SkipPaths: []string{"/metrics"},
	}
}

// Logging logs one line per completed request
func Logging(config LoggingConfig) Middleware {
	logger := config.Logger
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()
			next(ctx)

			method, path := string(ctx.Method()), string(ctx.Path())
			status := ctx.Response.StatusCode()
			l := logger.WithFields(map[string]interface{}{
				"method":      method,
				"path":        path,
				"status":      status,
				"remote_addr": ctx.RemoteIP().String(),
				"duration_ms": time.Since(start).Milliseconds(),
			})

			msg := fmt.Sprintf("%s %s - %d", method, path, status)
			switch {
			case status >= 500:
				l.Error("Request error: " + msg)
			case skipped(path, config.SkipPaths):
				l.Debug("Request completed: " + msg)
			default:
				l.Info("Request completed: " + msg)
			}
		}
	}
}

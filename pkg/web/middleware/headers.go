package middleware

import "github.com/valyala/fasthttp"

// HeadersConfig configures response headers added to every admin response
type HeadersConfig struct {
	// XFrameOptions is DENY, SAMEORIGIN or empty to omit
	XFrameOptions string

	// XContentTypeOptions sets nosniff
	XContentTypeOptions bool

	// CacheControl is sent verbatim when set
	CacheControl string

	// CustomHeaders are set after the fixed ones
	CustomHeaders map[string]string
}

// DefaultHeadersConfig returns a default headers configuration
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		XFrameOptions:       "DENY",
		XContentTypeOptions: true,
		CacheControl:        "no-store",
	}
}

// Headers sets the configured headers before calling next
func Headers(config HeadersConfig) Middleware {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			h := &ctx.Response.Header
			if config.XFrameOptions != "" {
				h.Set("X-Frame-Options", config.XFrameOptions)
			}
			if config.XContentTypeOptions {
				h.Set("X-Content-Type-Options", "nosniff")
			}
			if config.CacheControl != "" {
				h.Set(fasthttp.HeaderCacheControl, config.CacheControl)
			}
			for key, value := range config.CustomHeaders {
				h.Set(key, value)
			}
			next(ctx)
		}
	}
}

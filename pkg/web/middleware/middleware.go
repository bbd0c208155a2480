// Package middleware wraps fasthttp handlers of the admin endpoint.
package middleware

import "github.com/valyala/fasthttp"

// Middleware decorates a request handler
type Middleware func(next fasthttp.RequestHandler) fasthttp.RequestHandler

// Chain wraps h so that the first middleware runs outermost
func Chain(h fasthttp.RequestHandler, mws ...Middleware) fasthttp.RequestHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func skipped(path string, skip []string) bool {
	for _, p := range skip {
		if path == p {
			return true
		}
	}
	return false
}

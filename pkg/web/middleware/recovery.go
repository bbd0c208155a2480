package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/valyala/fasthttp"

	"github.com/fluxorio/workpool/pkg/core"
)

// Recovery turns a handler panic into a 500 response
func Recovery(logger core.Logger) Middleware {
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(fmt.Sprintf("panic serving %s: %v\n%s", ctx.Path(), r, debug.Stack()))
					ctx.ResetBody()
					ctx.Error(fasthttp.StatusMessage(fasthttp.StatusInternalServerError), fasthttp.StatusInternalServerError)
				}
			}()
			next(ctx)
		}
	}
}

package otel

import (
	"github.com/valyala/fasthttp"
)

// RequestHeaderCarrier implements propagation.TextMapCarrier for fasthttp request headers
type RequestHeaderCarrier struct {
	Headers *fasthttp.RequestHeader
}

func (c RequestHeaderCarrier) Get(key string) string {
	return string(c.Headers.Peek(key))
}

func (c RequestHeaderCarrier) Set(key, value string) {
	c.Headers.Set(key, value)
}

func (c RequestHeaderCarrier) Keys() []string {
	var keys []string
	c.Headers.VisitAll(func(key, _ []byte) {
		keys = append(keys, string(key))
	})
	return keys
}

// ResponseHeaderCarrier implements propagation.TextMapCarrier for fasthttp response headers
type ResponseHeaderCarrier struct {
	Headers *fasthttp.ResponseHeader
}

func (c ResponseHeaderCarrier) Get(key string) string {
	return string(c.Headers.Peek(key))
}

func (c ResponseHeaderCarrier) Set(key, value string) {
	c.Headers.Set(key, value)
}

func (c ResponseHeaderCarrier) Keys() []string {
	var keys []string
	c.Headers.VisitAll(func(key, _ []byte) {
		keys = append(keys, string(key))
	})
	return keys
}

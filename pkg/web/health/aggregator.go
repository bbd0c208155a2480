package health

import (
	"context"
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"
)

// Aggregator folds the checks of a Registry into one status
type Aggregator struct {
	registry *Registry
}

// NewAggregator wraps registry; a nil registry reports UP with no checks.
func NewAggregator(registry *Registry) *Aggregator {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Aggregator{registry: registry}
}

// Report is the /health response body
type Report struct {
	Status  Status                 `json:"status"`
	Time    string                 `json:"time"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
	Details interface{}            `json:"details,omitempty"`
}

// Status is DOWN when any check is down
func (a *Aggregator) Status(ctx context.Context) (Status, map[string]CheckResult) {
	results := a.registry.Check(ctx)
	for _, r := range results {
		if r.Status == StatusDown {
			return StatusDown, results
		}
	}
	return StatusUp, results
}

// Handler serves a Report as JSON, with 503 when the status is DOWN.
// details is called per request when non-nil.
func (a *Aggregator) Handler(details func() interface{}) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		// each check has its own timeout
		status, results := a.Status(context.Background())

		report := Report{
			Status: status,
			Time:   time.Now().UTC().Format(time.RFC3339),
			Checks: results,
		}
		if details != nil {
			report.Details = details()
		}

		body, err := json.Marshal(report)
		if err != nil {
			ctx.Error("failed to encode health report", fasthttp.StatusInternalServerError)
			return
		}

		code := fasthttp.StatusOK
		if status == StatusDown {
			code = fasthttp.StatusServiceUnavailable
		}
		ctx.SetStatusCode(code)
		ctx.SetContentType("application/json")
		ctx.SetBody(body)
	}
}

package worker

import (
	"time"

	"github.com/fluxorio/workpool/pkg/core"
)

// Observer receives job lifecycle events. Implementations must be safe for
// concurrent use.
type Observer interface {
	JobQueued()
	JobStarted(workerID int)
	JobFinished(workerID int, d time.Duration, panicked bool)
}

type noopObserver struct{}

func (noopObserver) JobQueued()                           {}
func (noopObserver) JobStarted(int)                       {}
func (noopObserver) JobFinished(int, time.Duration, bool) {}

// Option configures a Pool.
type Option func(*options)

type options struct {
	queueCapacity int
	logger        core.Logger
	observer      Observer
	panicHandler  func(*PanicError)
}

func defaultOptions() options {
	return options{
		logger:   core.NewLogger(core.LoggerConfig{Level: "INFO"}),
		observer: noopObserver{},
	}
}

// WithQueueCapacity bounds the job queue. Zero (the default) leaves it
// unbounded; with a bound, Submit waits for space and TrySubmit fails with
// ErrQueueFull.
func WithQueueCapacity(n int) Option {
	return func(o *options) {
		o.queueCapacity = n
	}
}

// WithLogger sets the logger used for lifecycle events and job panics.
func WithLogger(logger core.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver registers a job lifecycle observer, e.g. a metrics collector.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithPanicHandler is called, on the worker goroutine, for every job that
// panics.
func WithPanicHandler(fn func(*PanicError)) Option {
	return func(o *options) {
		o.panicHandler = fn
	}
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxorio/workpool/pkg/core"
)

// Pool is a fixed-size pool of goroutines pulling jobs from one shared queue.
type Pool struct {
	size    int
	workers []*Worker
	sender  *Sender
	rx      *receiver

	logger       core.Logger
	observer     Observer
	panicHandler func(*PanicError)

	submitted atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
	busy      atomic.Int64

	closeOnce sync.Once
	closing   atomic.Bool
	stopped   chan struct{}
}

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	Workers   int    `json:"workers"`
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Panicked  uint64 `json:"panicked"`
	Queued    int    `json:"queued"`
	Busy      int    `json:"busy"`
}

// NewPool starts size workers sharing one job queue.
// It returns ErrNoWorkers without starting anything when size < 1.
func NewPool(size int, opts ...Option) (*Pool, error) {
	if err := core.ValidatePoolSize(size); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoWorkers, err)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.queueCapacity < 0 {
		return nil, fmt.Errorf("%w: queue capacity must not be negative", ErrInvalidConfig)
	}

	q := newQueue(o.queueCapacity)
	p := &Pool{
		size:         size,
		workers:      make([]*Worker, size),
		sender:       newSender(q),
		rx:           &receiver{q: q},
		logger:       o.logger.WithFields(map[string]interface{}{"component": "worker-pool"}),
		observer:     o.observer,
		panicHandler: o.panicHandler,
		stopped:      make(chan struct{}),
	}

	for id := range size {
		p.workers[id] = newWorker(id, p)
	}
	for _, w := range p.workers {
		go w.run()
	}

	p.logger.Info(fmt.Sprintf("worker pool started with %d workers", size))
	return p, nil
}

// MustNewPool is like NewPool but panics on a construction error.
func MustNewPool(size int, opts ...Option) *Pool {
	p, err := NewPool(size, opts...)
	core.FailFast(err)
	return p
}

// Submit enqueues job. It never waits for a free worker; with a bounded
// queue it waits for queue space. It returns ErrPoolClosed once Close has
// been called.
func (p *Pool) Submit(job Job) error {
	return p.submit(job, true)
}

// TrySubmit is like Submit but returns ErrQueueFull instead of waiting.
func (p *Pool) TrySubmit(job Job) error {
	return p.submit(job, false)
}

// Execute submits f as a job.
func (p *Pool) Execute(f func()) error {
	return p.Submit(JobFunc(f))
}

func (p *Pool) submit(job Job, wait bool) error {
	// counted up front so Completed never overtakes Submitted
	p.submitted.Add(1)

	var err error
	if wait {
		err = p.sender.Send(job)
	} else {
		err = p.sender.TrySend(job)
	}
	if err != nil {
		p.submitted.Add(^uint64(0))
		if errors.Is(err, ErrPoolClosed) {
			p.logger.Error("job submitted after pool close")
		}
		return err
	}

	p.observer.JobQueued()
	return nil
}

// Sender returns an additional producer handle on the pool's queue. The
// queue stays open, and Close keeps waiting, until every handle obtained
// here has been closed.
func (p *Pool) Sender() (*Sender, error) {
	return p.sender.Clone()
}

// Close stops intake and waits for every worker to finish the queued and
// in-flight jobs and exit. Workers are joined in id order. Later calls
// wait for the first one and return nil.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.logger.Info(fmt.Sprintf("closing worker pool, %d jobs queued", p.rx.q.len()))

		p.sender.Close()
		p.closing.Store(true)
		for _, w := range p.workers {
			w.join()
			p.logger.Debug(fmt.Sprintf("joined worker %d", w.id))
		}

		close(p.stopped)
		p.logger.Info("worker pool closed")
	})
	<-p.stopped
	return nil
}

// Shutdown is Close bounded by ctx. If ctx ends first it returns ctx.Err();
// the workers keep draining in the background and no job is dropped.
func (p *Pool) Shutdown(ctx context.Context) error {
	go func() {
		_ = p.Close()
	}()

	select {
	case <-p.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Close has joined every worker.
func (p *Pool) Done() <-chan struct{} {
	return p.stopped
}

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool {
	return p.closing.Load()
}

// Size returns the fixed number of workers.
func (p *Pool) Size() int {
	return p.size
}

// QueueLen returns the number of jobs waiting to be dequeued.
func (p *Pool) QueueLen() int {
	return p.rx.q.len()
}

// Busy returns the number of workers currently running a job.
func (p *Pool) Busy() int {
	return int(p.busy.Load())
}

// WorkerStates returns the state of every worker, indexed by id.
func (p *Pool) WorkerStates() []State {
	states := make([]State, len(p.workers))
	for i, w := range p.workers {
		states[i] = w.State()
	}
	return states
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.size,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
		Queued:    p.QueueLen(),
		Busy:      p.Busy(),
	}
}

func (p *Pool) jobStarted(workerID int) {
	p.busy.Add(1)
	p.guard("observer", func() { p.observer.JobStarted(workerID) })
}

func (p *Pool) jobFinished(workerID int, d time.Duration, perr *PanicError) {
	p.busy.Add(-1)

	if perr != nil {
		p.panicked.Add(1)
		p.logger.WithFields(map[string]interface{}{
			"worker": workerID,
			"panic":  fmt.Sprint(perr.Value),
		}).Error(fmt.Sprintf("job panicked, worker continues\n%s", perr.Stack))
		if p.panicHandler != nil {
			p.guard("panic handler", func() { p.panicHandler(perr) })
		}
	} else {
		p.completed.Add(1)
	}

	p.guard("observer", func() { p.observer.JobFinished(workerID, d, perr != nil) })
}

// guard runs a user callback on a worker goroutine. A panic in it is logged
// and swallowed so the worker keeps looping.
func (p *Pool) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(fmt.Sprintf("%s panicked: %v\n%s", name, r, debug.Stack()))
		}
	}()
	fn()
}

package worker

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// State is the position of a worker in its dequeue-then-run loop.
type State int32

const (
	StateIdle State = iota
	StateAcquiring
	StateDequeuing
	StateExecuting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateDequeuing:
		return "dequeuing"
	case StateExecuting:
		return "executing"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Worker is a long-lived goroutine owned by a Pool.
type Worker struct {
	id    int
	pool  *Pool
	state atomic.Int32
	done  chan struct{}
}

func newWorker(id int, pool *Pool) *Worker {
	return &Worker{
		id:   id,
		pool: pool,
		done: make(chan struct{}),
	}
}

// ID returns the worker's stable id.
func (w *Worker) ID() int {
	return w.id
}

// State returns the worker's current state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// run is the worker's execution loop. A job that calls runtime.Goexit
// takes the goroutine with it; the deferred handler accounts for the job
// and starts a fresh goroutine for the same worker.
func (w *Worker) run() {
	var (
		running bool
		start   time.Time
		stopped bool
	)
	defer func() {
		if stopped {
			close(w.done)
			return
		}
		if running {
			w.pool.jobFinished(w.id, time.Since(start), &PanicError{
				WorkerID: w.id,
				Value:    ErrJobExited,
				Stack:    debug.Stack(),
			})
		}
		w.setState(StateIdle)
		go w.run()
	}()

	for {
		job, ok := w.next()
		if !ok {
			w.setState(StateStopped)
			w.pool.logger.Debug(fmt.Sprintf("worker %d stopped", w.id))
			stopped = true
			return
		}

		w.setState(StateExecuting)
		start, running = time.Now(), true
		w.pool.jobStarted(w.id)
		perr := w.execute(job)
		running = false
		w.pool.jobFinished(w.id, time.Since(start), perr)
		w.setState(StateIdle)
	}
}

// next takes the next job under the shared consumer lock. The lock is
// released before the job runs.
func (w *Worker) next() (Job, bool) {
	rx := w.pool.rx

	w.setState(StateAcquiring)
	rx.mu.Lock()
	defer rx.mu.Unlock()

	w.setState(StateDequeuing)
	return rx.q.pop()
}

// execute runs job inside a fault boundary so a panic never unwinds the worker.
func (w *Worker) execute(job Job) (perr *PanicError) {
	defer func() {
		if r := recover(); r != nil {
			perr = &PanicError{
				WorkerID: w.id,
				Value:    r,
				Stack:    debug.Stack(),
			}
		}
	}()
	job.Run()
	return nil
}

func (w *Worker) join() {
	<-w.done
}

package worker

import (
	"sync"
	"sync/atomic"
)

// queue is a FIFO of jobs. capacity 0 means unbounded.
// It closes once every producer handle has been released.
type queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []Job
	capacity int
	senders  int
	closed   bool
}

func newQueue(capacity int) *queue {
	q := &queue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(job Job, wait bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.capacity > 0 && len(q.items) >= q.capacity && !q.closed {
		if !wait {
			return ErrQueueFull
		}
		q.notFull.Wait()
	}
	if q.closed {
		return ErrPoolClosed
	}

	q.items = append(q.items, job)
	q.notEmpty.Signal()
	return nil
}

// pop blocks until a job is available or the queue is closed and drained.
func (q *queue) pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if q.closed {
			return nil, false
		}
		q.notEmpty.Wait()
	}

	job := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		// drop the drained backing array
		q.items = nil
	}
	q.notFull.Signal()
	return job, true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue) addSender() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.senders++
	return true
}

func (q *queue) releaseSender() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.senders--
	if q.senders == 0 {
		q.closed = true
		q.notEmpty.Broadcast()
		q.notFull.Broadcast()
	}
}

// Sender is a producer handle on a pool's queue. Handles can be cloned for
// additional submitters; the queue closes when the last one is released.
type Sender struct {
	q        *queue
	released atomic.Bool
}

func newSender(q *queue) *Sender {
	q.addSender()
	return &Sender{q: q}
}

// Send enqueues job, waiting for space when the queue is bounded and full.
func (s *Sender) Send(job Job) error {
	if isNilJob(job) {
		return ErrNilJob
	}
	if s.released.Load() {
		return ErrPoolClosed
	}
	return s.q.push(job, true)
}

// TrySend enqueues job or returns ErrQueueFull without waiting.
func (s *Sender) TrySend(job Job) error {
	if isNilJob(job) {
		return ErrNilJob
	}
	if s.released.Load() {
		return ErrPoolClosed
	}
	return s.q.push(job, false)
}

// Clone returns a new producer handle on the same queue.
func (s *Sender) Clone() (*Sender, error) {
	if s.released.Load() || !s.q.addSender() {
		return nil, ErrPoolClosed
	}
	return &Sender{q: s.q}, nil
}

// Close releases the handle. Calling it more than once is a no-op.
func (s *Sender) Close() {
	if s.released.CompareAndSwap(false, true) {
		s.q.releaseSender()
	}
}

// receiver is the consumer endpoint shared by all workers of a pool.
type receiver struct {
	mu sync.Mutex
	q  *queue
}

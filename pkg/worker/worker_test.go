package worker_test

import (
	"context"
	"errors"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxorio/workpool/pkg/core"
	"github.com/fluxorio/workpool/pkg/worker"
)

func quietLogger() core.Logger {
	return core.NewLogger(core.LoggerConfig{Level: "ERROR", Output: io.Discard})
}

func TestWorkerPool_Submit(t *testing.T) {
	p, err := worker.NewPool(4)
	require.NoError(t, err)
	defer p.Close()

	var counter int32
	var wg sync.WaitGroup
	numJobs := 8
	wg.Add(numJobs)

	for i := 0; i < numJobs; i++ {
		require.NoError(t, p.Execute(func() {
			defer wg.Done()
			atomic.AddInt32(&counter, 1)
			time.Sleep(10 * time.Millisecond)
		}))
	}

	wg.Wait()
	assert.Equal(t, int32(numJobs), atomic.LoadInt32(&counter))
}

func TestWorkerPool_EachJobRunsExactlyOnce(t *testing.T) {
	for _, size := range []int{1, 2, 3, 8} {
		p, err := worker.NewPool(size)
		require.NoError(t, err)

		const numJobs = 500
		var runs [numJobs]int32
		for i := 0; i < numJobs; i++ {
			require.NoError(t, p.Execute(func() {
				atomic.AddInt32(&runs[i], 1)
			}))
		}
		require.NoError(t, p.Close())

		for i := range runs {
			require.Equalf(t, int32(1), runs[i], "size %d: job %d ran %d times", size, i, runs[i])
		}
		stats := p.Stats()
		assert.Equal(t, uint64(numJobs), stats.Submitted)
		assert.Equal(t, uint64(numJobs), stats.Completed)
	}
}

func TestWorkerPool_ConcurrentSubmitters(t *testing.T) {
	p, err := worker.NewPool(4)
	require.NoError(t, err)

	var counter atomic.Int32
	const submitters = 10
	const jobsPerSubmitter = 100

	var wg sync.WaitGroup
	for range submitters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobsPerSubmitter {
				_ = p.Execute(func() { counter.Add(1) })
			}
		}()
	}
	wg.Wait()
	require.NoError(t, p.Close())

	assert.Equal(t, int32(submitters*jobsPerSubmitter), counter.Load())
}

// startLog records job starts and tracks how many jobs run at once.
type startLog struct {
	mu         sync.Mutex
	started    []int
	running    int
	maxRunning int
}

func (l *startLog) start(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, id)
	l.running++
	if l.running > l.maxRunning {
		l.maxRunning = l.running
	}
}

func (l *startLog) finish() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running--
}

func TestWorkerPool_RunsJobsInParallel(t *testing.T) {
	const size = 2
	const d = 150 * time.Millisecond

	p, err := worker.NewPool(size)
	require.NoError(t, err)

	log := &startLog{}
	begin := time.Now()
	for id := 0; id < 4; id++ {
		require.NoError(t, p.Execute(func() {
			log.start(id)
			defer log.finish()
			time.Sleep(d)
		}))
	}
	require.NoError(t, p.Close())
	elapsed := time.Since(begin)

	assert.GreaterOrEqual(t, elapsed, 2*d)
	assert.Less(t, elapsed, 3*d, "jobs were serialized behind the dequeue lock")
	assert.Len(t, log.started, 4)
	assert.LessOrEqual(t, log.maxRunning, size)
	assert.Equal(t, size, log.maxRunning)
}

func TestWorkerPool_NeverExceedsSize(t *testing.T) {
	const size = 3
	p, err := worker.NewPool(size)
	require.NoError(t, err)

	log := &startLog{}
	for id := 0; id < 60; id++ {
		require.NoError(t, p.Execute(func() {
			log.start(id)
			defer log.finish()
			time.Sleep(time.Millisecond)
		}))
	}
	require.NoError(t, p.Close())

	assert.LessOrEqual(t, log.maxRunning, size)
	assert.Zero(t, log.running)
}

func TestWorkerPool_SingleWorkerPreservesOrder(t *testing.T) {
	p, err := worker.NewPool(1)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Execute(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	require.NoError(t, p.Close())

	require.Len(t, order, 100)
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestWorkerPool_CloseWaitsForInFlightJob(t *testing.T) {
	p, err := worker.NewPool(2)
	require.NoError(t, err)

	var mu sync.Mutex
	var log []string
	require.NoError(t, p.Execute(func() {
		time.Sleep(200 * time.Millisecond)
		mu.Lock()
		log = append(log, "done")
		mu.Unlock()
	}))

	require.NoError(t, p.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"done"}, log)
	for _, s := range p.WorkerStates() {
		assert.Equal(t, worker.StateStopped, s)
	}
}

func TestWorkerPool_CloseDrainsQueuedJobs(t *testing.T) {
	p, err := worker.NewPool(1)
	require.NoError(t, err)

	release := make(chan struct{})
	var counter atomic.Int32
	require.NoError(t, p.Execute(func() { <-release }))
	for range 10 {
		require.NoError(t, p.Execute(func() { counter.Add(1) }))
	}

	closed := make(chan struct{})
	go func() {
		_ = p.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a job was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-closed
	assert.Equal(t, int32(10), counter.Load())
}

func TestWorkerPool_ZeroSize(t *testing.T) {
	before := runtime.NumGoroutine()

	p, err := worker.NewPool(0)
	require.ErrorIs(t, err, worker.ErrNoWorkers)
	assert.Nil(t, p)

	_, err = worker.NewPool(-3)
	require.ErrorIs(t, err, worker.ErrNoWorkers)

	assert.LessOrEqual(t, runtime.NumGoroutine(), before)
}

func TestWorkerPool_MustNewPoolPanics(t *testing.T) {
	assert.Panics(t, func() { worker.MustNewPool(0) })

	p := worker.MustNewPool(1)
	assert.Equal(t, 1, p.Size())
	require.NoError(t, p.Close())
}

func TestWorkerPool_NegativeQueueCapacity(t *testing.T) {
	_, err := worker.NewPool(1, worker.WithQueueCapacity(-1))
	require.ErrorIs(t, err, worker.ErrInvalidConfig)
}

func TestWorkerPool_Stop(t *testing.T) {
	p, err := worker.NewPool(4)
	require.NoError(t, err)

	var counter int32
	for i := 0; i < 8; i++ {
		require.NoError(t, p.Execute(func() {
			atomic.AddInt32(&counter, 1)
			time.Sleep(10 * time.Millisecond)
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
	assert.Equal(t, int32(8), atomic.LoadInt32(&counter))

	// Submitting to a stopped pool should return an error.
	assert.ErrorIs(t, p.Execute(func() {}), worker.ErrPoolClosed)
	assert.True(t, p.Closed())

	// Close is idempotent.
	require.NoError(t, p.Close())
}

func TestWorkerPool_ShutdownDeadline(t *testing.T) {
	p, err := worker.NewPool(1)
	require.NoError(t, err)

	release := make(chan struct{})
	require.NoError(t, p.Execute(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)

	close(release)
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("pool did not finish draining after the deadline")
	}
}

func TestWorkerPool_NilJob(t *testing.T) {
	p, err := worker.NewPool(1)
	require.NoError(t, err)
	defer p.Close()

	assert.ErrorIs(t, p.Submit(nil), worker.ErrNilJob)
	assert.ErrorIs(t, p.Execute(nil), worker.ErrNilJob)
	assert.Zero(t, p.Stats().Submitted)
}

func TestWorkerPool_PanickingJobKeepsCapacity(t *testing.T) {
	var mu sync.Mutex
	var panics []*worker.PanicError

	p, err := worker.NewPool(2, worker.WithPanicHandler(func(perr *worker.PanicError) {
		mu.Lock()
		panics = append(panics, perr)
		mu.Unlock()
	}))
	require.NoError(t, err)

	boom := errors.New("boom")
	for range 4 {
		require.NoError(t, p.Execute(func() { panic(boom) }))
	}

	// both workers must still be alive to run these two at the same time
	var wg sync.WaitGroup
	wg.Add(2)
	both := make(chan struct{})
	for range 2 {
		require.NoError(t, p.Execute(func() {
			wg.Done()
			wg.Wait()
		}))
	}
	go func() {
		wg.Wait()
		close(both)
	}()

	select {
	case <-both:
	case <-time.After(2 * time.Second):
		t.Fatal("pool lost capacity after panicking jobs")
	}
	require.NoError(t, p.Close())

	stats := p.Stats()
	assert.Equal(t, uint64(4), stats.Panicked)
	assert.Equal(t, uint64(2), stats.Completed)
	assert.Equal(t, 2, stats.Workers)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, panics, 4)
	for _, perr := range panics {
		assert.ErrorIs(t, perr, boom)
		assert.NotEmpty(t, perr.Stack)
		assert.Contains(t, []int{0, 1}, perr.WorkerID)
	}
}

func TestWorkerPool_BoundedQueue(t *testing.T) {
	p, err := worker.NewPool(1, worker.WithQueueCapacity(1))
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, p.Execute(func() {
		close(started)
		<-release
	}))
	<-started

	require.NoError(t, p.TrySubmit(worker.JobFunc(func() {})))
	assert.ErrorIs(t, p.TrySubmit(worker.JobFunc(func() {})), worker.ErrQueueFull)
	assert.Equal(t, 1, p.QueueLen())

	// Submit waits for space instead of failing
	submitted := make(chan error, 1)
	go func() {
		submitted <- p.Execute(func() {})
	}()
	select {
	case <-submitted:
		t.Fatal("Submit did not wait on a full queue")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-submitted)
	require.NoError(t, p.Close())
	assert.Equal(t, uint64(3), p.Stats().Completed)
}

func TestWorkerPool_ExtraSenderKeepsQueueOpen(t *testing.T) {
	p, err := worker.NewPool(2)
	require.NoError(t, err)

	s, err := p.Sender()
	require.NoError(t, err)

	var counter atomic.Int32
	closed := make(chan struct{})
	go func() {
		_ = p.Close()
		close(closed)
	}()

	require.Eventually(t, p.Closed, time.Second, time.Millisecond)
	assert.ErrorIs(t, p.Execute(func() {}), worker.ErrPoolClosed)

	// the clone still feeds the workers
	require.NoError(t, s.Send(worker.JobFunc(func() { counter.Add(1) })))
	select {
	case <-closed:
		t.Fatal("Close returned while a producer handle was still open")
	case <-time.After(30 * time.Millisecond):
	}

	s.Close()
	<-closed
	assert.Equal(t, int32(1), counter.Load())
	assert.ErrorIs(t, s.Send(worker.JobFunc(func() {})), worker.ErrPoolClosed)
}

type countingObserver struct {
	queued, started, finished, panicked atomic.Int32
}

func (o *countingObserver) JobQueued()     { o.queued.Add(1) }
func (o *countingObserver) JobStarted(int) { o.started.Add(1) }
func (o *countingObserver) JobFinished(_ int, _ time.Duration, panicked bool) {
	o.finished.Add(1)
	if panicked {
		o.panicked.Add(1)
	}
}

func TestWorkerPool_Observer(t *testing.T) {
	obs := &countingObserver{}
	p, err := worker.NewPool(2, worker.WithObserver(obs))
	require.NoError(t, err)

	for range 5 {
		require.NoError(t, p.Execute(func() {}))
	}
	require.NoError(t, p.Execute(func() { panic("bad job") }))
	require.NoError(t, p.Close())

	assert.Equal(t, int32(6), obs.queued.Load())
	assert.Equal(t, int32(6), obs.started.Load())
	assert.Equal(t, int32(6), obs.finished.Load())
	assert.Equal(t, int32(1), obs.panicked.Load())
	assert.Zero(t, p.Busy())
}

func TestWorkerPool_PanickingCallbacksAreContained(t *testing.T) {
	var handled atomic.Int32
	p, err := worker.NewPool(2,
		worker.WithLogger(quietLogger()),
		worker.WithPanicHandler(func(*worker.PanicError) {
			handled.Add(1)
			panic("handler bug")
		}),
		worker.WithObserver(panickingObserver{}),
	)
	require.NoError(t, err)

	for range 3 {
		require.NoError(t, p.Execute(func() { panic("bad job") }))
	}

	var ran atomic.Int32
	for range 4 {
		require.NoError(t, p.Execute(func() { ran.Add(1) }))
	}

	done := make(chan error, 1)
	go func() { done <- p.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after callbacks panicked")
	}

	assert.Equal(t, int32(3), handled.Load())
	assert.Equal(t, int32(4), ran.Load())
	assert.Equal(t, uint64(3), p.Stats().Panicked)
	assert.Equal(t, uint64(4), p.Stats().Completed)
	assert.Zero(t, p.Busy())
}

type panickingObserver struct{}

func (panickingObserver) JobQueued()                           {}
func (panickingObserver) JobStarted(int)                       { panic("observer bug") }
func (panickingObserver) JobFinished(int, time.Duration, bool) { panic("observer bug") }

func TestWorkerPool_GoexitJobKeepsCapacity(t *testing.T) {
	var exits []*worker.PanicError
	var mu sync.Mutex
	p, err := worker.NewPool(1,
		worker.WithLogger(quietLogger()),
		worker.WithPanicHandler(func(perr *worker.PanicError) {
			mu.Lock()
			exits = append(exits, perr)
			mu.Unlock()
		}),
	)
	require.NoError(t, err)

	require.NoError(t, p.Execute(func() { runtime.Goexit() }))

	// the single worker must come back for this one
	ran := make(chan struct{})
	require.NoError(t, p.Execute(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive runtime.Goexit")
	}

	require.NoError(t, p.Close())
	assert.Zero(t, p.Busy())
	assert.Equal(t, []worker.State{worker.StateStopped}, p.WorkerStates())

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Panicked)
	assert.Equal(t, uint64(1), stats.Completed)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, exits, 1)
	assert.ErrorIs(t, exits[0], worker.ErrJobExited)
	assert.Equal(t, 0, exits[0].WorkerID)
}

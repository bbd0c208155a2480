// Package worker provides a fixed-size goroutine pool for short-lived jobs.
//
// All workers pull from one FIFO queue. The queue's consumer side is guarded
// by a single mutex: a worker holds it only while taking the next job and
// releases it before running that job, so jobs run in parallel on up to
// Size() workers.
//
// # Basic Usage
//
//	pool, err := worker.NewPool(4)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	pool.Execute(func() {
//	    // do work
//	})
//
// # Shutdown
//
// Close releases the pool's producer handle, which closes the queue once no
// other producer handle remains. Workers drain every buffered job, observe
// the closed queue and exit. Close joins them in id order and returns only
// after all of them have stopped, so no submitted job is dropped.
//
// # Failures
//
// A panicking job is recovered inside the worker loop, logged and reported
// to the handler set with WithPanicHandler. The worker keeps running, so
// the pool never loses capacity.
package worker

package worker

import (
	"errors"
	"fmt"
)

var (
	ErrNoWorkers     = errors.New("worker pool has no workers")
	ErrPoolClosed    = errors.New("worker pool is closed")
	ErrQueueFull     = errors.New("worker pool queue is full")
	ErrNilJob        = errors.New("job cannot be nil")
	ErrInvalidConfig = errors.New("invalid worker pool configuration")

	// ErrJobExited is the PanicError value for a job that ended its
	// goroutine with runtime.Goexit.
	ErrJobExited = errors.New("job called runtime.Goexit")
)

// PanicError describes a job that panicked while a worker was running it.
type PanicError struct {
	WorkerID int
	Value    interface{}
	Stack    []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker %d: job panicked: %v", e.WorkerID, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

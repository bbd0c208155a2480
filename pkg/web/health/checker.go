// Package health runs named liveness checks and serves their aggregate.
package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a check registered without its own timeout
const DefaultTimeout = 5 * time.Second

// Status is UP or DOWN
type Status string

const (
	StatusUp   Status = "UP"
	StatusDown Status = "DOWN"
)

// Checker returns nil when the component it watches is healthy
type Checker func(ctx context.Context) error

// CheckResult is the outcome of one check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency"`
}

type check struct {
	fn      Checker
	timeout time.Duration
}

// Registry holds named checks. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	checks map[string]check
}

func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]check)}
}

// Register adds or replaces a check bounded by DefaultTimeout
func (r *Registry) Register(name string, fn Checker) {
	r.RegisterWithTimeout(name, fn, DefaultTimeout)
}

// RegisterWithTimeout adds or replaces a check. A timeout <= 0 means DefaultTimeout.
func (r *Registry) RegisterWithTimeout(name string, fn Checker, timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r.mu.Lock()
	r.checks[name] = check{fn: fn, timeout: timeout}
	r.mu.Unlock()
}

// Names lists registered checks in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs every check concurrently, each under its own timeout
func (r *Registry) Check(ctx context.Context) map[string]CheckResult {
	r.mu.RLock()
	snapshot := make(map[string]check, len(r.checks))
	for name, c := range r.checks {
		snapshot[name] = c
	}
	r.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(snapshot))
		g       errgroup.Group
	)
	for name, c := range snapshot {
		g.Go(func() error {
			res := c.run(ctx)
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c check) run(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.fn(ctx)
	res := CheckResult{Status: StatusUp, Latency: time.Since(start).String()}
	if err != nil {
		res.Status, res.Message = StatusDown, err.Error()
	}
	return res
}

// ErrPoolClosed is reported by PoolCheck once the pool stops accepting jobs
var ErrPoolClosed = errors.New("worker pool is not accepting jobs")

// PoolCheck is DOWN once pool has been closed
func PoolCheck(pool interface{ Closed() bool }) Checker {
	return func(context.Context) error {
		if pool.Closed() {
			return ErrPoolClosed
		}
		return nil
	}
}

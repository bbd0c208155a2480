package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/fluxorio/workpool/pkg/core"
	"github.com/fluxorio/workpool/pkg/worker"
)

// Submitter accepts jobs for asynchronous execution, e.g. a *worker.Pool
type Submitter interface {
	Submit(job worker.Job) error
}

// Server accepts connections one at a time and hands each one, as a single
// job, to a Submitter
type Server struct {
	addr     string
	pool     Submitter
	handler  *ConnHandler
	logger   core.Logger
	observer ConnObserver

	mu sync.Mutex
	ln net.Listener
}

// NewServer creates a server for addr. logger and observer may be nil.
func NewServer(addr string, pool Submitter, handler *ConnHandler, logger core.Logger, observer ConnObserver) *Server {
	if logger == nil {
		logger = core.NewDefaultLogger()
	}
	if observer == nil {
		observer = noopConnObserver{}
	}
	return &Server{
		addr:     addr,
		pool:     pool,
		handler:  handler,
		logger:   logger.WithFields(map[string]interface{}{"component": "listener"}),
		observer: observer,
	}
}

// ListenAndServe binds the configured address and serves until ctx is done
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on ln until ctx is done or the server is
// closed; both count as an orderly stop and return nil. Connections already
// submitted keep running on the pool.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	s.logger.Info(fmt.Sprintf("listening on %s", ln.Addr()))

	// jobs outlive the accept loop, so they only keep ctx's values
	jobCtx := context.WithoutCancel(ctx)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.logger.Info("listener stopped")
				return nil
			}
			if retryable(err) {
				backoff = nextBackoff(backoff)
				s.logger.Error(fmt.Sprintf("accept error: %v; retrying in %v", err, backoff))
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
				}
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		backoff = 0
		s.dispatch(jobCtx, conn)
	}
}

// retryable reports accept errors that pass on their own, such as running
// out of file descriptors or a peer aborting before the accept completed
func retryable(err error) bool {
	for _, errno := range []syscall.Errno{syscall.EMFILE, syscall.ENFILE, syscall.ENOBUFS, syscall.ENOMEM, syscall.ECONNABORTED, syscall.ECONNRESET} {
		if errors.Is(err, errno) {
			return true
		}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var temp interface{ Temporary() bool }
	return errors.As(err, &temp) && temp.Temporary()
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}

// dispatch submits exactly one job owning conn
func (s *Server) dispatch(ctx context.Context, conn net.Conn) {
	job := &connJob{ctx: ctx, conn: conn, handler: s.handler}
	if err := s.pool.Submit(job); err != nil {
		s.logger.Error(fmt.Sprintf("dropping connection from %s: %v", conn.RemoteAddr(), err))
		s.observer.ConnDropped()
		_ = conn.Close()
	}
}

// Addr returns the bound address, or nil before Serve
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops accepting connections
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

// connJob is the unit of work for one accepted connection
type connJob struct {
	ctx     context.Context
	conn    net.Conn
	handler *ConnHandler
}

func (j *connJob) Run() {
	j.handler.Serve(j.ctx, j.conn)
}

package supervisor

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Supervisor manages the lifecycle of goroutines that outlive the step which
// started them: future awaits and connection result deliveries.
//
// Each child runs with its own context, cancelled when the caller's context
// is done or when the supervisor shuts down. The child context carries none
// of the caller's values. A panicking child is recovered and reported at
// DPanic level, which panics under a development logger.
type Supervisor struct {
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

func New(logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{ctx: ctx, cancel: cancel, logger: logger}
}

// Go starts fn unless the supervisor is shut down, and reports whether it did.
func (s *Supervisor) Go(parent context.Context, fn func(ctx context.Context)) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	childCtx, cancel := context.WithCancel(s.ctx)
	stop := context.AfterFunc(parent, cancel)

	go func() {
		defer s.wg.Done()
		defer stop()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				s.logger.DPanic("panic in supervised routine", zap.Any("error", r))
			}
		}()
		fn(childCtx)
	}()
	return true
}

// Shutdown refuses new children, cancels the running ones and waits for them.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.logger.Debug("context cancelled, waiting for all routines to finish")
	s.cancel()
	s.Wait()
	s.logger.Debug("all routines finished")
}

// Wait blocks until every running child returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

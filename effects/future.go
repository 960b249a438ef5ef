package effects

import (
	"context"
	"sync"
	"time"
)

// Future is a single-shot asynchronous result. Await blocks until the
// result is available or ctx is done.
type Future interface {
	Await(ctx context.Context) (any, error)
}

// Task adapts a blocking function to Future.
type Task func(ctx context.Context) (any, error)

func (t Task) Await(ctx context.Context) (any, error) {
	return t(ctx)
}

// Delay resolves with value after d.
func Delay(d time.Duration, value any) Future {
	return Task(func(ctx context.Context) (any, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return value, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

// Promise is a Future settled from the outside, exactly once.
type Promise struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Resolve settles p with value. Later settlements are ignored.
func (p *Promise) Resolve(value any) {
	p.settle(value, nil)
}

// Reject settles p with err. Later settlements are ignored.
func (p *Promise) Reject(err error) {
	p.settle(nil, err)
}

func (p *Promise) settle(value any, err error) {
	p.once.Do(func() {
		p.value, p.err = value, err
		close(p.done)
	})
}

func (p *Promise) Await(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

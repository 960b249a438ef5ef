package effects

import (
	"context"
	"sync"
	"sync/atomic"
)

type loopKey struct{ loop *Loop }

// step marks one run of a Loop. A context is inside the loop only while the
// step it was derived from is still running.
type step struct{}

// Loop serialises interpreter steps. At most one step of all programs
// sharing a Loop runs at a time.
//
// A context derived from a step carries that step, so calls made from inside
// it re-enter without locking. Such a context must not be handed to another
// goroutine that runs concurrently with the step. Once the step is over the
// context no longer counts as inside and locks like any other.
type Loop struct {
	mu      sync.Mutex
	current atomic.Pointer[step]
	// guarded by mu
	after []func()
}

func NewLoop() *Loop {
	return &Loop{}
}

// Enter runs fn inside the loop, locking only when ctx is not already inside.
func (l *Loop) Enter(ctx context.Context, fn func(ctx context.Context)) {
	if l.Inside(ctx) {
		fn(ctx)
		return
	}
	l.Resume(ctx, fn)
}

// Resume always locks. It is used by goroutines that bring a result back, whose
// context may still carry the step that started them. Functions queued with
// Defer during the step run after the loop is released.
func (l *Loop) Resume(ctx context.Context, fn func(ctx context.Context)) {
	var after []func()
	func() {
		l.mu.Lock()
		st := &step{}
		l.current.Store(st)
		defer func() {
			l.current.Store(nil)
			after, l.after = l.after, nil
			l.mu.Unlock()
		}()
		fn(context.WithValue(ctx, loopKey{l}, st))
	}()
	for _, f := range after {
		f()
	}
}

// Defer queues fn until the running step releases the loop, so fn may call
// back into anything that enters the loop. With no step running fn is called
// at once. Defer must be called from the goroutine running the step.
func (l *Loop) Defer(fn func()) {
	if l.current.Load() == nil {
		fn()
		return
	}
	l.after = append(l.after, fn)
}

// Inside reports whether ctx belongs to the running step of l.
func (l *Loop) Inside(ctx context.Context) bool {
	st, ok := ctx.Value(loopKey{l}).(*step)
	return ok && st == l.current.Load()
}

package effects

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/on-the-ground/cliser/effects/collection"
	"github.com/on-the-ground/cliser/effects/deps"
	"github.com/on-the-ground/cliser/effects/emitter"
	"github.com/on-the-ground/cliser/effects/token"
	"go.uber.org/zap"
)

// Env is what Process needs from its surroundings. A Store builds one per
// dispatched program.
type Env struct {
	Token *token.Token

	// Dispatch runs a nested program or action for a Dispatched descriptor.
	Dispatch func(ctx context.Context, target, payload any, env *Env, onSuccess func(any), onError func(error))
	// HandleAction routes storage actions.
	HandleAction func(ctx context.Context, action collection.Action, env *Env, onSuccess func(any), onError func(error))
	// Subscribe registers a signal handler.
	Subscribe func(event string, handler emitter.Handler) (unsubscribe func())
	// Dependencies may be nil.
	Dependencies deps.Recorder

	Loop *Loop
	// Go starts a goroutine that may outlive the step. Defaults to a bare go
	// statement.
	Go     func(ctx context.Context, fn func(ctx context.Context))
	Logger *zap.Logger
	// OnAbandon is called after a delivery found the token cancelled and the
	// enclosing scope was torn down. It may be nil.
	OnAbandon func()

	disposer *disposer
}

// WithToken returns a copy of env governed by tk.
func (env *Env) WithToken(tk *token.Token) *Env {
	cp := *env
	cp.Token = tk
	return &cp
}

// Scoped returns a copy of env whose suspended work (signal subscriptions,
// sequences) is torn down by dispose.
func (env *Env) Scoped() (scoped *Env, dispose func()) {
	d := &disposer{}
	return env.withDisposer(d), d.dispose
}

func (env *Env) withDisposer(d *disposer) *Env {
	cp := *env
	cp.disposer = d
	return &cp
}

// track registers teardown with the innermost enclosing group, if any. The
// returned release drops it again once the tracked work has settled.
func (env *Env) track(teardown func()) (release func()) {
	if env.disposer == nil {
		return func() {}
	}
	return env.disposer.add(teardown)
}

// Abandon tears down the innermost enclosing scope once its token is found
// cancelled, then calls OnAbandon.
func (env *Env) Abandon() {
	if env.disposer != nil {
		env.disposer.dispose()
	}
	if env.OnAbandon != nil {
		env.OnAbandon()
	}
}

func (env *Env) spawn(ctx context.Context, fn func(ctx context.Context)) {
	if env.Go != nil {
		env.Go(ctx, fn)
		return
	}
	go fn(ctx)
}

func (env *Env) resume(ctx context.Context, fn func(ctx context.Context)) {
	if env.Loop == nil {
		fn(ctx)
		return
	}
	env.Loop.Resume(ctx, fn)
}

func (env *Env) logger() *zap.Logger {
	if env.Logger == nil {
		return zap.NewNop()
	}
	return env.Logger
}

func (env *Env) cancelled() bool {
	return env.Token != nil && env.Token.Cancelled()
}

// disposer collects the teardowns of the work a scope has suspended.
type disposer struct {
	mu        sync.Mutex
	next      uint64
	teardowns map[uint64]func()
	disposed  bool
}

func (d *disposer) add(teardown func()) (release func()) {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		teardown()
		return func() {}
	}
	if d.teardowns == nil {
		d.teardowns = make(map[uint64]func())
	}
	id := d.next
	d.next++
	d.teardowns[id] = teardown
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.teardowns, id)
		d.mu.Unlock()
	}
}

func (d *disposer) size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.teardowns)
}

func (d *disposer) dispose() {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.disposed = true
	teardowns := d.teardowns
	d.teardowns = nil
	d.mu.Unlock()

	// in registration order
	for _, id := range slices.Sorted(maps.Keys(teardowns)) {
		teardowns[id]()
	}
}

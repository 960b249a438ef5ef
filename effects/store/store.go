// Package store runs effect programs against collections and connections.
//
// A Store owns the event emitter, the memory executor and the loop that
// serialises interpreter steps. Connection calls leave the loop: they are
// queued on a worker pool partitioned by collection name and their results
// re-enter the loop on supervised goroutines.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/on-the-ground/cliser/effects"
	"github.com/on-the-ground/cliser/effects/collection"
	"github.com/on-the-ground/cliser/effects/deps"
	"github.com/on-the-ground/cliser/effects/emitter"
	"github.com/on-the-ground/cliser/effects/internal/supervisor"
	"github.com/on-the-ground/cliser/effects/internal/workers"
	"github.com/on-the-ground/cliser/effects/memory"
	"github.com/on-the-ground/cliser/effects/token"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrNoConnection = errors.New("no connection for storage")
	ErrClosed       = errors.New("store closed")
)

type Store struct {
	emitter     *emitter.Emitter
	executor    *memory.Executor
	loop        *effects.Loop
	supervisor  *supervisor.Supervisor
	calls       workers.Queue[call]
	connections map[string]collection.Connection
	workers     workers.Config
	logger      *zap.Logger

	mu          sync.Mutex
	closed      bool
	scopes      map[*token.Token]func()
	unsubscribe []func()
}

func New(opts ...Option) *Store {
	s := &Store{
		emitter:     emitter.New(),
		executor:    memory.New(),
		loop:        effects.NewLoop(),
		connections: make(map[string]collection.Connection),
		workers:     workers.NewConfig(16, 4),
		logger:      zap.NewNop(),
		scopes:      make(map[*token.Token]func()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.supervisor = supervisor.New(s.logger)
	s.calls = workers.NewPartitionedQueue(context.Background(), s.workers, s.runCall)

	for id, c := range s.connections {
		n, ok := c.(collection.Notifier)
		if !ok {
			continue
		}
		s.logger.Debug("subscribing to connection changes", zap.String("connection", id))
		s.unsubscribe = append(s.unsubscribe, n.Subscribe(func(change collection.Change) {
			s.Notify(context.Background(), change)
		}))
	}
	return s
}

// Dispatch runs target with payload and returns the token governing the run.
//
// target may be a signal name, which emits payload on that event, an
// effects.Program or func(any) any, which is called with payload to build the
// descriptor, or any descriptor, collection.Action included. Dispatch returns
// as soon as the program suspends; the outcome is reported through OnSuccess
// and OnError once the step that settled the program has released the loop,
// so both may dispatch again with any context.
func (s *Store) Dispatch(ctx context.Context, target any, payload any, opts ...DispatchOption) *token.Token {
	cfg := dispatchConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	tk := token.New(cfg.parent)

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()

	env := &effects.Env{
		Token:        tk,
		Dispatch:     s.dispatchNested,
		HandleAction: s.handleAction,
		Subscribe:    s.emitter.On,
		Dependencies: cfg.dependencies,
		Loop:         s.loop,
		Go:           s.spawn,
		Logger:       s.logger,
	}
	env, dispose := env.Scoped()
	s.track(tk, dispose)

	log := s.logger.With(zap.String("token", tk.ID()))
	log.Debug("dispatch started", zap.String("target", describe(target)))

	env.OnAbandon = func() {
		if tk.Cancelled() && s.untrack(tk) {
			log.Debug("dispatch abandoned", zap.Duration("elapsed", tk.Span().Duration()))
		}
	}
	onSuccess := func(result any) {
		tk.Settle(result)
		s.untrack(tk)
		log.Debug("dispatch settled", zap.Duration("elapsed", tk.Span().Duration()))
		if cfg.onSuccess != nil {
			s.loop.Defer(func() { cfg.onSuccess(result) })
		}
	}
	onError := func(err error) {
		tk.Settle(err)
		s.untrack(tk)
		log.Debug("dispatch failed", zap.Error(err), zap.Duration("elapsed", tk.Span().Duration()))
		if cfg.onError == nil {
			s.loop.Defer(func() { panic(err) })
			return
		}
		s.loop.Defer(func() { cfg.onError(err) })
	}

	s.loop.Enter(ctx, func(ctx context.Context) {
		if closed {
			onError(ErrClosed)
			return
		}
		s.run(ctx, target, payload, env, onSuccess, onError)
	})
	return tk
}

// Emit broadcasts payload on event.
func (s *Store) Emit(ctx context.Context, event string, payload any) {
	s.loop.Enter(ctx, func(ctx context.Context) {
		s.emitter.Emit(ctx, event, payload)
	})
}

// Notify broadcasts a change made outside the Store, for instance by a
// connection served to other processes.
func (s *Store) Notify(ctx context.Context, change collection.Change) {
	s.loop.Enter(ctx, func(ctx context.Context) {
		s.notify(ctx, change)
	})
}

// Subscribe registers handler for every change notification.
//
// Handlers run after the emitting step has released the loop, so they may
// dispatch again. The context they receive is no longer inside the loop.
func (s *Store) Subscribe(handler emitter.Handler) (unsubscribe func()) {
	return s.SubscribeTo(emitter.Wildcard, handler)
}

// SubscribeTo registers handler for event, for instance a signal name or
// collection.ChannelOf(c). Handlers run like those of Subscribe.
func (s *Store) SubscribeTo(event string, handler emitter.Handler) (unsubscribe func()) {
	return s.emitter.On(event, func(ctx context.Context, payload any) {
		s.loop.Defer(func() { handler(ctx, payload) })
	})
}

// Pending is the number of dispatched programs that have neither settled nor
// been abandoned.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scopes)
}

// Close abandons suspended programs, stops the connection workers, waits for
// in-flight deliveries and closes the connections that are io.Closers.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	scopes := s.scopes
	s.scopes = make(map[*token.Token]func())
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	for _, unsub := range unsubscribe {
		unsub()
	}
	s.loop.Enter(context.Background(), func(context.Context) {
		for tk, dispose := range scopes {
			tk.Cancel()
			dispose()
		}
	})
	s.calls.Stop()
	s.supervisor.Shutdown()

	var err error
	for id, c := range s.connections {
		closer, ok := c.(io.Closer)
		if !ok {
			continue
		}
		if cerr := closer.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("closing connection %q: %w", id, cerr))
		}
	}
	return err
}

func (s *Store) run(ctx context.Context, target, payload any, env *effects.Env, onSuccess func(any), onError func(error)) {
	switch t := target.(type) {
	case string:
		s.emitter.Emit(ctx, t, payload)
		onSuccess(nil)
	case effects.Program:
		effects.Process(ctx, t(payload), env, onSuccess, onError)
	case func(any) any:
		effects.Process(ctx, t(payload), env, onSuccess, onError)
	default:
		effects.Process(ctx, target, env, onSuccess, onError)
	}
}

// dispatchNested runs a Dispatched descriptor under a child of the current
// token, sharing the caller's dependency recorder.
func (s *Store) dispatchNested(ctx context.Context, target, payload any, env *effects.Env, onSuccess func(any), onError func(error)) {
	s.run(ctx, target, payload, env.WithToken(env.Token.Child()), onSuccess, onError)
}

func (s *Store) handleAction(ctx context.Context, action collection.Action, env *effects.Env, onSuccess func(any), onError func(error)) {
	if action.Collection == nil {
		onError(fmt.Errorf("%w: %s without collection", collection.ErrInvalidArgument, action.Name))
		return
	}
	if env.Dependencies != nil {
		env.Dependencies.AddDependency(deps.KindCollection, action.Collection)
	}

	if action.Collection.IsMemory() {
		out, err := s.executor.Execute(action)
		if err != nil {
			onError(err)
			return
		}
		if out.Updated {
			s.notify(ctx, collection.NewChange(action, out.Result))
		}
		onSuccess(out.Result)
		return
	}

	conn, ok := s.connectionFor(action.Collection.StorageID())
	if !ok {
		onError(fmt.Errorf("%w: %q", ErrNoConnection, action.Collection.StorageID()))
		return
	}
	c := call{
		ctx:    ctx,
		action: action,
		conn:   conn,
		env:    env,
		ok:     onSuccess,
		fail:   onError,
	}
	if err := s.calls.Submit(ctx, c); err != nil {
		onError(err)
	}
}

func (s *Store) connectionFor(storageID string) (collection.Connection, bool) {
	if conn, ok := s.connections[storageID]; ok {
		return conn, true
	}
	conn, ok := s.connections[DefaultConnection]
	return conn, ok
}

// notify broadcasts change on the wildcard and on the collection's channel.
func (s *Store) notify(ctx context.Context, change collection.Change) {
	s.emitter.Emit(ctx, emitter.Wildcard, change)
	s.emitter.Emit(ctx, collection.ChannelOf(change.Collection), change)
}

func (s *Store) spawn(ctx context.Context, fn func(ctx context.Context)) {
	if !s.supervisor.Go(ctx, fn) {
		s.logger.Warn("store closed, dropping routine")
	}
}

func (s *Store) track(tk *token.Token, dispose func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[tk] = dispose
}

func (s *Store) untrack(tk *token.Token) bool {
	s.mu.Lock()
	dispose, ok := s.scopes[tk]
	delete(s.scopes, tk)
	s.mu.Unlock()
	if ok {
		dispose()
	}
	return ok
}

func describe(target any) string {
	switch t := target.(type) {
	case string:
		return "signal " + t
	case collection.Action:
		return t.Name
	default:
		return fmt.Sprintf("%T", target)
	}
}

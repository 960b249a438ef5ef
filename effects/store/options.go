package store

import (
	"github.com/on-the-ground/cliser/effects/collection"
	"github.com/on-the-ground/cliser/effects/deps"
	"github.com/on-the-ground/cliser/effects/internal/workers"
	"github.com/on-the-ground/cliser/effects/token"
	"go.uber.org/zap"
)

// DefaultConnection serves collections whose storage id has no connection of
// its own.
const DefaultConnection = "default"

// Option configures a Store.
type Option func(*Store)

// WithConnection registers c for collections stored under id.
func WithConnection(id string, c collection.Connection) Option {
	return func(s *Store) {
		s.connections[id] = c
	}
}

func WithDefaultConnection(c collection.Connection) Option {
	return WithConnection(DefaultConnection, c)
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithWorkers sizes the pool that runs connection calls. Calls against the
// same collection always run on the same worker, in dispatch order.
func WithWorkers(bufferSize, numWorkers int) Option {
	return func(s *Store) {
		s.workers = workers.NewConfig(bufferSize, numWorkers)
	}
}

// DispatchOption configures one Dispatch call.
type DispatchOption func(*dispatchConfig)

type dispatchConfig struct {
	onSuccess    func(any)
	onError      func(error)
	parent       *token.Token
	dependencies deps.Recorder
}

// OnSuccess receives the program's terminal value.
func OnSuccess(fn func(result any)) DispatchOption {
	return func(c *dispatchConfig) {
		c.onSuccess = fn
	}
}

// OnError receives the program's failure. Without it a failure panics.
func OnError(fn func(err error)) DispatchOption {
	return func(c *dispatchConfig) {
		c.onError = fn
	}
}

// WithParent makes the program's token a child of parent, so cancelling
// parent cancels the program.
func WithParent(parent *token.Token) DispatchOption {
	return func(c *dispatchConfig) {
		c.parent = parent
	}
}

// WithDependencies records the collections and invalidation keys the
// program touches.
func WithDependencies(recorder deps.Recorder) DispatchOption {
	return func(c *dispatchConfig) {
		c.dependencies = recorder
	}
}

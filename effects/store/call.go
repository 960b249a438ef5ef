package store

import (
	"context"

	"github.com/on-the-ground/cliser/effects"
	"github.com/on-the-ground/cliser/effects/collection"
	"go.uber.org/zap"
)

// call is one connection dispatch waiting for a worker.
type call struct {
	ctx    context.Context
	action collection.Action
	conn   collection.Connection
	env    *effects.Env
	ok     func(any)
	fail   func(error)
}

func (c call) PartitionKey() string {
	return c.action.Collection.StorageID() + "/" + c.action.Collection.Name()
}

// runCall runs on a worker. The worker never waits for the loop: the result is
// handed to a supervised goroutine.
func (s *Store) runCall(_ context.Context, c call) {
	result, err := c.conn.Dispatch(c.ctx, c.action)
	if err != nil {
		s.logger.Warn("connection dispatch failed",
			zap.String("collection", c.action.Collection.Name()),
			zap.String("action", c.action.Name),
			zap.Error(err),
		)
	}
	s.spawn(c.ctx, func(context.Context) {
		s.loop.Resume(c.ctx, func(ctx context.Context) {
			if err == nil && result.Updated {
				s.notify(ctx, collection.NewChange(c.action, result.Value))
			}
			if c.env.Token.Cancelled() {
				c.env.Abandon()
				return
			}
			if err != nil {
				c.fail(err)
				return
			}
			c.ok(result.Value)
		})
	})
}

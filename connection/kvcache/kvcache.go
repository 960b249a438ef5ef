// Package kvcache is a key/value connection over a ristretto cache. It serves
// Call("get", key), Call("set", key, value[, ttl]) and Call("delete", key).
package kvcache

import (
	"context"
	"fmt"
	"time"

	ristretto "github.com/dgraph-io/ristretto/v2"
	"github.com/on-the-ground/cliser/effects/collection"
	"github.com/on-the-ground/cliser/effects/memory"
	"github.com/on-the-ground/cliser/shared/helper"
)

const (
	ActionGet    = "get"
	ActionSet    = "set"
	ActionDelete = "delete"
)

const itemCost = int64(1 << 15)

// Connection keys entries by collection name and key, so collections sharing
// a cache never collide.
type Connection struct {
	cache *ristretto.Cache[string, any]
}

func New(cacheSize int) (*Connection, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: 1e7,              // number of keys to track frequency of (10M).
		MaxCost:     1 << 30,          // maximum cost of cache (1GB).
		BufferItems: int64(cacheSize), // number of keys per Get buffer.
	})
	if err != nil {
		return nil, err
	}
	return &Connection{cache: cache}, nil
}

var _ collection.Connection = (*Connection)(nil)

func (c *Connection) Dispatch(ctx context.Context, action collection.Action) (collection.Result, error) {
	if err := ctx.Err(); err != nil {
		return collection.Result{}, err
	}
	switch action.Name {
	case ActionGet, ActionSet, ActionDelete:
	default:
		return collection.Result{}, fmt.Errorf("%w: %s", memory.ErrUnsupportedAction, action.Name)
	}

	key, err := helper.ArgOf[string](action.Args, 0)
	if err != nil {
		return collection.Result{}, fmt.Errorf("%w: key: %w", collection.ErrInvalidArgument, err)
	}
	if key == "" {
		return collection.Result{}, fmt.Errorf("%w: empty key", collection.ErrInvalidArgument)
	}
	key = action.Collection.Name() + "/" + key

	switch action.Name {
	case ActionGet:
		v, _ := c.cache.Get(key)
		return collection.Result{Value: v}, nil
	case ActionSet:
		ttl, err := helper.ArgOf[time.Duration](action.Args, 2)
		if err != nil {
			return collection.Result{}, fmt.Errorf("%w: ttl: %w", collection.ErrInvalidArgument, err)
		}
		var stored bool
		if ttl > 0 {
			stored = c.cache.SetWithTTL(key, action.Arg(1), itemCost, ttl)
		} else {
			stored = c.cache.Set(key, action.Arg(1), itemCost)
		}
		// make the write visible to the next get
		c.cache.Wait()
		return collection.Result{Value: stored, Updated: stored}, nil
	default:
		c.cache.Del(key)
		return collection.Result{Value: true, Updated: true}, nil
	}
}

func (c *Connection) Close() error {
	c.cache.Close()
	return nil
}

// Package redisrelay shares change notifications between processes through a
// redis pub/sub channel.
package redisrelay

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/on-the-ground/cliser/effects/collection"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const DefaultChannel = "cliser:changes"

// Relay wraps a Connection. Every updating action is published on the
// channel, and changes published by other relays are reported to
// subscribers. A relay never reports its own publications.
type Relay struct {
	conn    collection.Connection
	client  *redis.Client
	channel string
	origin  string
	logger  *zap.Logger
}

type Option func(*Relay)

func WithChannel(channel string) Option {
	return func(r *Relay) { r.channel = channel }
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func New(conn collection.Connection, client *redis.Client, opts ...Option) *Relay {
	r := &Relay{
		conn:    conn,
		client:  client,
		channel: DefaultChannel,
		origin:  uuid.NewString(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewClient builds the redis client for addr.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

var (
	_ collection.Connection = (*Relay)(nil)
	_ collection.Notifier   = (*Relay)(nil)
)

// Dispatch forwards to the wrapped connection. A failed publication is
// logged; the action result stands.
func (r *Relay) Dispatch(ctx context.Context, action collection.Action) (collection.Result, error) {
	res, err := r.conn.Dispatch(ctx, action)
	if err != nil || !res.Updated {
		return res, err
	}
	payload, encErr := encode(r.origin, collection.NewChange(action, res.Value))
	if encErr == nil {
		encErr = r.client.Publish(ctx, r.channel, payload).Err()
	}
	if encErr != nil {
		r.logger.Error("failed to publish change",
			zap.String("collection", action.Collection.Name()),
			zap.String("action", action.Name),
			zap.Error(encErr),
		)
	}
	return res, nil
}

// Subscribe reports changes published by other relays until unsubscribe is
// called.
func (r *Relay) Subscribe(notify func(collection.Change)) (unsubscribe func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := r.client.Subscribe(ctx, r.channel)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for msg := range sub.Channel() {
			origin, change, err := decode(msg.Payload)
			if err != nil {
				r.logger.Error("dropping relayed change", zap.Error(err))
				continue
			}
			if origin == r.origin {
				continue
			}
			notify(change)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			if err := sub.Close(); err != nil {
				r.logger.Debug("closing subscription", zap.Error(err))
			}
			wg.Wait()
		})
	}
}

// Close closes the redis client and the wrapped connection when it is an
// io.Closer.
func (r *Relay) Close() error {
	err := r.client.Close()
	if closer, ok := r.conn.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	return err
}

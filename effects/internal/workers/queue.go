package workers

import (
	"context"
	"errors"
	"sync"

	"github.com/cespare/xxhash/v2"
)

var ErrStopped = errors.New("worker queue stopped")

// --- common interface ---

type Queue[T any] interface {
	// Submit blocks while the target worker's buffer is full.
	Submit(ctx context.Context, msg T) error
	// Stop halts the workers after their current message and waits for them.
	// Buffered messages are dropped.
	Stop()
}

type queue[T any] struct {
	chs    []chan T
	pick   func(msg T, n int) int
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (q *queue[T]) Submit(ctx context.Context, msg T) error {
	ch := q.chs[q.pick(msg, len(q.chs))]
	// a stopped queue must not accept work even if the buffer has room
	if q.ctx.Err() != nil {
		return ErrStopped
	}
	select {
	case ch <- msg:
		return nil
	case <-q.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *queue[T]) Stop() {
	q.cancel()
	q.wg.Wait()
}

func (q *queue[T]) start(numWorkers, bufferSize int, handleFn func(context.Context, T)) {
	q.chs = make([]chan T, numWorkers)
	ready := sync.WaitGroup{}
	for i := 0; i < numWorkers; i++ {
		ch := make(chan T, bufferSize)
		q.chs[i] = ch
		ready.Add(1)
		q.wg.Add(1)
		go func(ch chan T) {
			defer q.wg.Done()
			ready.Done()
			for {
				select {
				case msg := <-ch:
					handleFn(q.ctx, msg)
				case <-q.ctx.Done():
					return
				}
			}
		}(ch)
	}
	ready.Wait()
}

// --- single queue ---

func NewSingleQueue[T any](
	ctx context.Context,
	bufferSize int,
	handleFn func(context.Context, T),
) Queue[T] {
	q := &queue[T]{pick: func(T, int) int { return 0 }}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.start(1, bufferSize, handleFn)
	return q
}

// --- partitioned queue ---

func NewPartitionedQueue[T Partitionable](
	ctx context.Context,
	cfg Config,
	handleFn func(context.Context, T),
) Queue[T] {
	cfg = NewConfig(cfg.BufferSize, cfg.NumWorkers)
	q := &queue[T]{pick: func(msg T, n int) int { return indexOf(msg, n) }}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.start(cfg.NumWorkers, cfg.BufferSize, handleFn)
	return q
}

func hash(key string) uint64 {
	return xxhash.Sum64String(key)
}

func indexOf(msg Partitionable, numChs int) int {
	switch numChs {
	case 0:
		panic("number of channels cannot be 0")
	case 1:
		return 0
	default:
		return int(hash(msg.PartitionKey()) % uint64(numChs))
	}
}

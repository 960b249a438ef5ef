// Package token provides the hierarchical cancellation token that governs one
// dispatched effect program.
//
// Cancellation is advisory: nothing is preempted. The interpreter checks the
// token at every resume point and silently drops continuations of a cancelled
// program. A token reports cancelled when it or any ancestor was cancelled;
// descendants are never mutated, they observe the ancestor lazily.
package token

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rickb777/date/v2/timespan"
)

// Token is a monotonic cancel flag chained to an optional parent.
type Token struct {
	id        string
	parent    *Token
	cancelled atomic.Bool

	mu        sync.Mutex
	startedAt time.Time
	settledAt time.Time
	result    any
}

// New creates a token. A nil parent makes a root token.
func New(parent *Token) *Token {
	return &Token{
		id:        uuid.New().String(),
		parent:    parent,
		startedAt: time.Now(),
	}
}

// Child creates a token whose cancellation also follows t.
func (t *Token) Child() *Token {
	return New(t)
}

// ID identifies the token in logs.
func (t *Token) ID() string {
	return t.id
}

// Parent returns the parent token, nil for a root token.
func (t *Token) Parent() *Token {
	return t.parent
}

// Cancel sets the token's own flag. Calling it again is a no-op.
func (t *Token) Cancel() {
	t.cancelled.CompareAndSwap(false, true)
}

// Cancelled reports whether t or any of its ancestors was cancelled.
func (t *Token) Cancelled() bool {
	for cur := t; cur != nil; cur = cur.parent {
		if cur.cancelled.Load() {
			return true
		}
	}
	return false
}

// Settle records the terminal value of the governed program.
// Only the first call is kept.
func (t *Token) Settle(result any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.settledAt.IsZero() {
		return
	}
	t.settledAt = time.Now()
	t.result = result
}

// Settled reports whether the governed program reached its terminal value.
func (t *Token) Settled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.settledAt.IsZero()
}

// Result returns the value recorded by Settle.
func (t *Token) Result() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Span is the time between token creation and settlement, or now when the
// program has not settled yet.
func (t *Token) Span() timespan.TimeSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	end := t.settledAt
	if end.IsZero() {
		end = time.Now()
	}
	return timespan.BetweenTimes(t.startedAt, end)
}

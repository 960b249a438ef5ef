// Package emitter is the ordered publish/subscribe registry owned by a Store.
package emitter

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

// Wildcard receives every state-change notification of a Store.
const Wildcard = "*"

// Handler receives an emitted payload. ctx is the emitting context.
type Handler func(ctx context.Context, payload any)

type registration struct {
	handler Handler
}

// Emitter maps event names to handler lists in registration order.
type Emitter struct {
	mu     sync.Mutex
	events map[string][]*registration
}

func New() *Emitter {
	return &Emitter{events: make(map[string][]*registration)}
}

// On registers handler for event and returns its unsubscribe function.
// Unsubscribing twice is a no-op.
func (e *Emitter) On(event string, handler Handler) (unsubscribe func()) {
	reg := &registration{handler: handler}
	e.add(event, reg)

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(event, reg) })
	}
}

// Once registers handler for the next delivery of event only.
func (e *Emitter) Once(event string, handler Handler) (unsubscribe func()) {
	var fired atomic.Bool
	reg := &registration{}
	reg.handler = func(ctx context.Context, payload any) {
		if !fired.CompareAndSwap(false, true) {
			return
		}
		e.remove(event, reg)
		handler(ctx, payload)
	}
	e.add(event, reg)

	return func() {
		if fired.CompareAndSwap(false, true) {
			e.remove(event, reg)
		}
	}
}

func (e *Emitter) add(event string, reg *registration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events[event] = append(e.events[event], reg)
}

func (e *Emitter) remove(event string, reg *registration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	regs := e.events[event]
	idx := slices.Index(regs, reg)
	if idx == -1 {
		return
	}
	// never edit in place: in-flight emits iterate over the old backing array
	regs = slices.Delete(slices.Clone(regs), idx, idx+1)
	if len(regs) == 0 {
		delete(e.events, event)
		return
	}
	e.events[event] = regs
}

// Emit delivers payload synchronously to a snapshot of the handlers
// registered for event, in registration order.
func (e *Emitter) Emit(ctx context.Context, event string, payload any) {
	e.mu.Lock()
	snapshot := slices.Clone(e.events[event])
	e.mu.Unlock()

	for _, reg := range snapshot {
		reg.handler(ctx, payload)
	}
}

// Count returns the number of handlers registered for event.
func (e *Emitter) Count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events[event])
}

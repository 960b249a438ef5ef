package effects

import (
	"maps"
	"slices"
	"strconv"
)

// Program builds the descriptor of an effect program from its payload.
type Program func(payload any) any

// Value resolves immediately with V.
type Value struct {
	V any
}

func Return(v any) Value {
	return Value{V: v}
}

// Signal waits for the next emission of the named event.
// A bare string yielded by a program is read as a Signal.
type Signal string

// Dispatched runs Target (a Program, a collection.Action or any descriptor)
// with Payload under a child token of the current program.
type Dispatched struct {
	Target  any
	Payload any
}

func Dispatch(target any, payload any) Dispatched {
	return Dispatched{Target: target, Payload: payload}
}

// Invalidation declares dependency keys to the recorder of the Env.
type Invalidation struct {
	Keys []any
}

func Invalidate(keys ...any) Invalidation {
	return Invalidation{Keys: keys}
}

// Forked runs Effect detached; its outcome is never reported to the caller.
type Forked struct {
	Effect any
}

func Fork(effect any) Forked {
	return Forked{Effect: effect}
}

type waitMode int

const (
	waitAll waitMode = iota
	waitAny
)

// Group is a fan-out over keyed descriptors. Map groups resolve to
// map[string]any, list groups to []any of the same length.
type Group struct {
	mode    waitMode
	list    bool
	keys    []string
	entries []any
}

// All waits for every entry; the first failure fails the group.
func All(entries map[string]any) Group {
	return mapGroup(waitAll, entries)
}

// AllOf is All over an ordered list.
func AllOf(entries ...any) Group {
	return listGroup(waitAll, entries)
}

// Any resolves with the first entry to settle, success or failure.
func Any(entries map[string]any) Group {
	return mapGroup(waitAny, entries)
}

// AnyOf is Any over an ordered list.
func AnyOf(entries ...any) Group {
	return listGroup(waitAny, entries)
}

// IsAll reports whether g waits for every entry.
func (g Group) IsAll() bool { return g.mode == waitAll }

// Len is the number of entries.
func (g Group) Len() int { return len(g.entries) }

// keys are sorted so registration order, and thus tie-breaks, are stable
func mapGroup(mode waitMode, entries map[string]any) Group {
	keys := slices.Sorted(maps.Keys(entries))
	values := make([]any, len(keys))
	for i, k := range keys {
		values[i] = entries[k]
	}
	return Group{mode: mode, keys: keys, entries: values}
}

func listGroup(mode waitMode, entries []any) Group {
	keys := make([]string, len(entries))
	for i := range entries {
		keys[i] = strconv.Itoa(i)
	}
	return Group{mode: mode, list: true, keys: keys, entries: slices.Clone(entries)}
}

func (g Group) newResults() any {
	if g.list {
		return make([]any, len(g.entries))
	}
	return make(map[string]any, len(g.entries))
}

func (g Group) put(results any, idx int, value any) {
	if g.list {
		results.([]any)[idx] = value
		return
	}
	results.(map[string]any)[g.keys[idx]] = value
}

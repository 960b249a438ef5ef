// Package deps records what an effect program read or asked to invalidate,
// so that an observer layer can decide which programs a change affects.
package deps

import (
	"reflect"
	"slices"
	"sync"

	"github.com/on-the-ground/cliser/effects/collection"
)

// Dependency kinds reported by the interpreter.
const (
	KindCollection = "collection"
	KindInvalidate = "invalidate"
)

// Recorder receives dependencies while a program runs.
type Recorder interface {
	AddDependency(kind string, key any)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(kind string, key any)

func (f RecorderFunc) AddDependency(kind string, key any) { f(kind, key) }

// Set is a Recorder keeping the collections a program touched and the
// invalidation keys it declared, in first-seen order.
type Set struct {
	mu          sync.Mutex
	collections []*collection.Collection
	keys        []any
}

func NewSet() *Set {
	return &Set{}
}

func (s *Set) AddDependency(kind string, key any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case KindCollection:
		c, ok := key.(*collection.Collection)
		if ok && !slices.Contains(s.collections, c) {
			s.collections = append(s.collections, c)
		}
	case KindInvalidate:
		if !containsKey(s.keys, key) {
			s.keys = append(s.keys, key)
		}
	}
}

func (s *Set) Collections() []*collection.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.collections)
}

func (s *Set) Keys() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.keys)
}

// Affected reports whether change touches a recorded collection. Collections
// rebuilt from wire messages match by name and storage id.
func (s *Set) Affected(change collection.Change) bool {
	if change.Collection == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.collections {
		if c == change.Collection ||
			(c.Name() == change.Collection.Name() && c.StorageID() == change.Collection.StorageID()) {
			return true
		}
	}
	return false
}

// Invalidates reports whether key was declared through an invalidation marker.
func (s *Set) Invalidates(key any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return containsKey(s.keys, key)
}

// containsKey matches keys by value. Keys of uncomparable types, such as
// slices or maps, are compared deeply instead of with ==.
func containsKey(keys []any, key any) bool {
	plain := key == nil || reflect.TypeOf(key).Comparable()
	return slices.ContainsFunc(keys, func(k any) bool {
		if plain && (k == nil || reflect.TypeOf(k).Comparable()) {
			return k == key
		}
		return reflect.DeepEqual(k, key)
	})
}

// Package collection declares named record collections and the data-access
// actions they produce.
//
// Calling a factory method such as FindMany or InsertOne only builds an
// Action descriptor; nothing runs until a Store interprets it. A collection
// without a storage id is memory resident and owns its item slice. Any other
// collection is a reference to records held by a named Connection.
package collection

import (
	"maps"
	"sync"
)

// Action names understood by the memory executor and the bundled connections.
const (
	ActionFindOne    = "findOne"
	ActionFindMany   = "findMany"
	ActionInsertOne  = "insertOne"
	ActionInsertMany = "insertMany"
	ActionUpdateOne  = "updateOne"
	ActionUpdateMany = "updateMany"
	ActionCount      = "count"
	ActionRemoveOne  = "removeOne"
	ActionRemoveMany = "removeMany"
)

// Collection is a named, optionally remotely backed, sequence of records.
type Collection struct {
	name    string
	storage string
	options map[string]any

	mu    sync.RWMutex
	items []any
}

// Option configures a Collection at creation time.
type Option func(*Collection)

// WithItems seeds a memory collection.
func WithItems(items ...any) Option {
	return func(c *Collection) {
		c.items = items
	}
}

// WithStorage binds the collection to the Connection registered under id.
func WithStorage(id string) Option {
	return func(c *Collection) {
		c.storage = id
	}
}

// WithOptions attaches free-form options, forwarded to connections.
func WithOptions(options map[string]any) Option {
	return func(c *Collection) {
		c.options = maps.Clone(options)
	}
}

// New creates a collection. Without WithStorage it is memory resident.
func New(name string, opts ...Option) *Collection {
	c := &Collection{name: name}
	for _, opt := range opts {
		opt(c)
	}
	if c.items == nil {
		c.items = []any{}
	}
	return c
}

// Ref returns a reference to a collection held by a connection. It is used
// when a collection is rebuilt from a wire message.
func Ref(name, storage string) *Collection {
	return New(name, WithStorage(storage))
}

func (c *Collection) Name() string { return c.name }

// StorageID is empty for memory collections.
func (c *Collection) StorageID() string { return c.storage }

func (c *Collection) IsMemory() bool { return c.storage == "" }

func (c *Collection) Options() map[string]any { return c.options }

// Items returns the current item slice. The slice is replaced, never edited,
// by mutations, so callers may keep it as a snapshot.
func (c *Collection) Items() []any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items
}

// ReplaceItems swaps the item slice. Only storage executors call it.
func (c *Collection) ReplaceItems(items []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = items
}

func (c *Collection) action(name string, args ...any) Action {
	return Action{Name: name, Collection: c, Args: args}
}

// FindOne yields the first item passing filter after ordering, mapped when
// mapper is set. filter, mapper and orderBy may be nil.
func (c *Collection) FindOne(filter any, mapper Mapper, orderBy OrderBy) Action {
	return c.action(ActionFindOne, filter, mapper, orderBy)
}

// FindMany yields every item passing filter after ordering.
func (c *Collection) FindMany(filter any, mapper Mapper, orderBy OrderBy) Action {
	return c.action(ActionFindMany, filter, mapper, orderBy)
}

func (c *Collection) InsertOne(item any) Action {
	return c.action(ActionInsertOne, item)
}

func (c *Collection) InsertMany(items []any) Action {
	return c.action(ActionInsertMany, items)
}

// UpdateOne replaces the first match with update, or appends it when nothing
// matched and upsert is set. update is a value or an UpdateFunc.
func (c *Collection) UpdateOne(filter any, update any, upsert bool) Action {
	return c.action(ActionUpdateOne, filter, update, upsert)
}

// UpdateMany replaces every match, upserting once when nothing matched.
func (c *Collection) UpdateMany(filter any, update any, upsert bool) Action {
	return c.action(ActionUpdateMany, filter, update, upsert)
}

func (c *Collection) Count(filter any) Action {
	return c.action(ActionCount, filter)
}

func (c *Collection) RemoveOne(filter any) Action {
	return c.action(ActionRemoveOne, filter)
}

func (c *Collection) RemoveMany(filter any) Action {
	return c.action(ActionRemoveMany, filter)
}

// Call builds an action with an arbitrary name, for connection-specific
// operations.
func (c *Collection) Call(name string, args ...any) Action {
	return c.action(name, args...)
}

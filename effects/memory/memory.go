// Package memory executes collection actions against memory-resident item
// slices.
//
// Every action is a pure transform from the current items and the action
// arguments to an optional replacement slice and a result. The stored slice is
// never edited in place; a mutation installs a new slice, which is how the
// Store detects that a change notification is due.
package memory

import (
	"errors"
	"fmt"
	"slices"

	"github.com/on-the-ground/cliser/effects/collection"
	"github.com/on-the-ground/cliser/shared/helper"
)

var (
	ErrUnsupportedAction = errors.New("unsupported action")
	ErrTransformPanic    = errors.New("panic in collection transform")
)

// Outcome is the result of one executed action.
type Outcome struct {
	Result any
	// Updated is true when the collection's item slice was replaced.
	Updated bool
}

// transform returns the replacement items (nil keeps the current slice) and
// the action result.
type transform func(items []any, args []any) (next []any, result any, err error)

// Executor dispatches actions by name to their transforms.
type Executor struct {
	transforms map[string]transform
}

func New() *Executor {
	return &Executor{
		transforms: map[string]transform{
			collection.ActionFindOne:    findOne,
			collection.ActionFindMany:   findMany,
			collection.ActionInsertOne:  insertOne,
			collection.ActionInsertMany: insertMany,
			collection.ActionUpdateOne:  updateOne,
			collection.ActionUpdateMany: updateMany,
			collection.ActionCount:      count,
			collection.ActionRemoveOne:  removeOne,
			collection.ActionRemoveMany: removeMany,
		},
	}
}

// Supports reports whether name has a transform.
func (e *Executor) Supports(name string) bool {
	_, ok := e.transforms[name]
	return ok
}

// Execute runs action against its collection's items.
// Panics raised by user callbacks are returned as ErrTransformPanic.
func (e *Executor) Execute(action collection.Action) (out Outcome, err error) {
	tf, ok := e.transforms[action.Name]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnsupportedAction, action.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			out = Outcome{}
			if rerr, ok := r.(error); ok {
				err = fmt.Errorf("%w: %s: %w", ErrTransformPanic, action.Name, rerr)
				return
			}
			err = fmt.Errorf("%w: %s: %v", ErrTransformPanic, action.Name, r)
		}
	}()

	prev := action.Collection.Items()
	next, result, err := tf(prev, action.Args)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s on %s: %w", action.Name, action.Collection.Name(), err)
	}
	if next != nil {
		action.Collection.ReplaceItems(next)
	}
	return Outcome{Result: result, Updated: next != nil}, nil
}

// Find applies filter, then a stable ordering on orderBy keys. The input slice
// is never reordered.
func Find(items []any, filter collection.Filter, orderBy collection.OrderBy) []any {
	var found []any
	if filter != nil {
		found = make([]any, 0, len(items))
		for i, item := range items {
			if filter(item, i) {
				found = append(found, item)
			}
		}
	} else {
		found = slices.Clone(items)
	}
	if orderBy != nil {
		slices.SortStableFunc(found, func(a, b any) int {
			return collection.CompareKeys(orderBy(a), orderBy(b))
		})
	}
	return found
}

func findArgs(args []any) (collection.Filter, collection.Mapper, collection.OrderBy, error) {
	filter, err := collection.AsFilter(arg(args, 0))
	if err != nil {
		return nil, nil, nil, err
	}
	mapper, err := helper.ArgOf[collection.Mapper](args, 1)
	if err != nil {
		return nil, nil, nil, err
	}
	orderBy, err := helper.ArgOf[collection.OrderBy](args, 2)
	if err != nil {
		return nil, nil, nil, err
	}
	return filter, mapper, orderBy, nil
}

func findOne(items []any, args []any) ([]any, any, error) {
	filter, mapper, orderBy, err := findArgs(args)
	if err != nil {
		return nil, nil, err
	}
	found := Find(items, filter, orderBy)
	if len(found) == 0 {
		return nil, nil, nil
	}
	if mapper != nil {
		return nil, mapper(found[0], 0), nil
	}
	return nil, found[0], nil
}

func findMany(items []any, args []any) ([]any, any, error) {
	filter, mapper, orderBy, err := findArgs(args)
	if err != nil {
		return nil, nil, err
	}
	found := Find(items, filter, orderBy)
	if mapper != nil {
		for i, item := range found {
			found[i] = mapper(item, i)
		}
	}
	return nil, found, nil
}

func insertOne(items []any, args []any) ([]any, any, error) {
	return append(slices.Clip(items), arg(args, 0)), 1, nil
}

func insertMany(items []any, args []any) ([]any, any, error) {
	newItems, err := helper.ArgOf[[]any](args, 0)
	if err != nil {
		return nil, nil, err
	}
	if len(newItems) == 0 {
		return nil, 0, nil
	}
	return append(slices.Clip(items), newItems...), len(newItems), nil
}

func updateOne(items []any, args []any) ([]any, any, error) {
	return update(items, args, 1)
}

func updateMany(items []any, args []any) ([]any, any, error) {
	return update(items, args, -1)
}

// update replaces up to limit matches, every match when limit < 0.
func update(items []any, args []any, limit int) ([]any, any, error) {
	filter, err := collection.AsFilter(arg(args, 0))
	if err != nil {
		return nil, nil, err
	}
	change := arg(args, 1)
	upsert, err := helper.ArgOf[bool](args, 2)
	if err != nil {
		return nil, nil, err
	}

	var next []any
	updated := 0
	for i, item := range items {
		if limit >= 0 && updated >= limit {
			break
		}
		if filter != nil && !filter(item, i) {
			continue
		}
		if next == nil {
			next = slices.Clone(items)
		}
		next[i] = collection.ApplyUpdate(change, item, i)
		updated++
	}
	if updated > 0 {
		return next, updated, nil
	}
	if upsert {
		return append(slices.Clip(items), collection.ApplyUpdate(change, nil, -1)), 1, nil
	}
	return nil, 0, nil
}

func count(items []any, args []any) ([]any, any, error) {
	filter, err := collection.AsFilter(arg(args, 0))
	if err != nil {
		return nil, nil, err
	}
	return nil, len(Find(items, filter, nil)), nil
}

func removeOne(items []any, args []any) ([]any, any, error) {
	return remove(items, args, 1)
}

func removeMany(items []any, args []any) ([]any, any, error) {
	return remove(items, args, -1)
}

// remove drops up to limit matches, every match when limit < 0.
func remove(items []any, args []any, limit int) ([]any, any, error) {
	filter, err := collection.AsFilter(arg(args, 0))
	if err != nil {
		return nil, nil, err
	}
	kept := make([]any, 0, len(items))
	removed := 0
	for i, item := range items {
		if (limit < 0 || removed < limit) && (filter == nil || filter(item, i)) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	if removed == 0 {
		return nil, 0, nil
	}
	return kept, removed, nil
}

func arg(args []any, i int) any {
	if i < 0 || i >= len(args) {
		return nil
	}
	return args[i]
}

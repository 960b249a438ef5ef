// Package document plans collection actions against stores that keep one
// record per item, so backends apply the memory executor's semantics without
// rewriting whole collections.
package document

import (
	"fmt"

	"github.com/on-the-ground/cliser/effects/collection"
	"github.com/on-the-ground/cliser/effects/memory"
	"github.com/on-the-ground/cliser/shared/helper"
)

// Doc is a stored item in collection order.
type Doc struct {
	ID    string
	Value any
}

// Plan is the write set of one action.
type Plan struct {
	Inserts []any
	Updates []Doc
	Deletes []string
	Result  any
}

func (p Plan) Updated() bool {
	return len(p.Inserts)+len(p.Updates)+len(p.Deletes) > 0
}

var executor = memory.New()

// PlanAction computes what action does to docs. Reads are answered by the
// memory executor over a snapshot and produce an empty write set.
func PlanAction(docs []Doc, action collection.Action) (plan Plan, err error) {
	defer func() {
		if r := recover(); r != nil {
			plan, err = Plan{}, fmt.Errorf("%w: %s: %v", memory.ErrTransformPanic, action.Name, r)
		}
	}()

	switch action.Name {
	case collection.ActionFindOne, collection.ActionFindMany, collection.ActionCount:
		snapshot := collection.New(action.Collection.Name(), collection.WithItems(Values(docs)...))
		out, err := executor.Execute(collection.Action{Name: action.Name, Collection: snapshot, Args: action.Args})
		return Plan{Result: out.Result}, err
	case collection.ActionInsertOne:
		return Plan{Inserts: []any{action.Arg(0)}, Result: 1}, nil
	case collection.ActionInsertMany:
		items, err := helper.ArgOf[[]any](action.Args, 0)
		if err != nil {
			return Plan{}, err
		}
		return Plan{Inserts: items, Result: len(items)}, nil
	case collection.ActionUpdateOne:
		return update(docs, action.Args, 1)
	case collection.ActionUpdateMany:
		return update(docs, action.Args, -1)
	case collection.ActionRemoveOne:
		return remove(docs, action.Args, 1)
	case collection.ActionRemoveMany:
		return remove(docs, action.Args, -1)
	default:
		return Plan{}, fmt.Errorf("%w: %s", memory.ErrUnsupportedAction, action.Name)
	}
}

func Values(docs []Doc) []any {
	values := make([]any, len(docs))
	for i, d := range docs {
		values[i] = d.Value
	}
	return values
}

func update(docs []Doc, args []any, limit int) (Plan, error) {
	filter, err := collection.AsFilter(arg(args, 0))
	if err != nil {
		return Plan{}, err
	}
	change := arg(args, 1)
	upsert, err := helper.ArgOf[bool](args, 2)
	if err != nil {
		return Plan{}, err
	}

	var plan Plan
	for i, d := range docs {
		if limit >= 0 && len(plan.Updates) >= limit {
			break
		}
		if filter != nil && !filter(d.Value, i) {
			continue
		}
		plan.Updates = append(plan.Updates, Doc{ID: d.ID, Value: collection.ApplyUpdate(change, d.Value, i)})
	}
	switch {
	case len(plan.Updates) > 0:
		plan.Result = len(plan.Updates)
	case upsert:
		plan.Inserts = []any{collection.ApplyUpdate(change, nil, -1)}
		plan.Result = 1
	default:
		plan.Result = 0
	}
	return plan, nil
}

func remove(docs []Doc, args []any, limit int) (Plan, error) {
	filter, err := collection.AsFilter(arg(args, 0))
	if err != nil {
		return Plan{}, err
	}
	var plan Plan
	for i, d := range docs {
		if limit >= 0 && len(plan.Deletes) >= limit {
			break
		}
		if filter == nil || filter(d.Value, i) {
			plan.Deletes = append(plan.Deletes, d.ID)
		}
	}
	plan.Result = len(plan.Deletes)
	return plan, nil
}

func arg(args []any, i int) any {
	if i < 0 || i >= len(args) {
		return nil
	}
	return args[i]
}

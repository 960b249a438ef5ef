package remote

import (
	"errors"
	"fmt"

	"github.com/on-the-ground/cliser/effects/collection"
)

var ErrNotSerializable = errors.New("argument cannot cross the wire")

// Request is the body POSTed for one action.
type Request struct {
	Action     string        `json:"action"`
	Args       []any         `json:"args"`
	Collection CollectionRef `json:"collection"`
}

type CollectionRef struct {
	Name    string `json:"name"`
	Storage string `json:"storage"`
}

// Response carries either the action result or the error message.
type Response struct {
	Result  any    `json:"result"`
	Updated bool   `json:"updated"`
	Error   string `json:"error,omitempty"`
}

// NewRequest encodes action. Function arguments (filters, mappers, update
// functions) cannot be sent; Where filters can.
func NewRequest(action collection.Action) (Request, error) {
	args := make([]any, len(action.Args))
	for i, a := range action.Args {
		switch v := a.(type) {
		case collection.Where:
			args[i] = map[string]any(v)
		case collection.Filter, collection.Mapper, collection.OrderBy, collection.UpdateFunc,
			func(any) bool, func(any, int) bool, func(any) any, func(any, int) any:
			if isNilFunc(v) {
				args[i] = nil
				continue
			}
			return Request{}, fmt.Errorf("%w: %s argument %d is %T", ErrNotSerializable, action.Name, i, a)
		default:
			args[i] = a
		}
	}
	return Request{
		Action: action.Name,
		Args:   args,
		Collection: CollectionRef{
			Name:    action.Collection.Name(),
			Storage: action.Collection.StorageID(),
		},
	}, nil
}

// Decode rebuilds the action on the serving side.
func (r Request) Decode() collection.Action {
	return collection.Ref(r.Collection.Name, r.Collection.Storage).Call(r.Action, r.Args...)
}

func isNilFunc(v any) bool {
	switch f := v.(type) {
	case collection.Filter:
		return f == nil
	case collection.Mapper:
		return f == nil
	case collection.OrderBy:
		return f == nil
	case collection.UpdateFunc:
		return f == nil
	case func(any) bool:
		return f == nil
	case func(any, int) bool:
		return f == nil
	case func(any) any:
		return f == nil
	case func(any, int) any:
		return f == nil
	}
	return false
}

package collection

import (
	"cmp"
	"errors"
	"fmt"
	"reflect"
	"time"
)

var ErrInvalidArgument = errors.New("invalid action argument")

// Filter selects items. index is the item's position in the scanned slice.
type Filter func(item any, index int) bool

// Mapper projects a selected item.
type Mapper func(item any, index int) any

// OrderBy extracts the sort key of an item. Keys are compared with CompareKeys.
type OrderBy func(item any) any

// UpdateFunc computes the replacement of a matched item. On upsert it is
// called with (nil, -1).
type UpdateFunc func(item any, index int) any

// Where is a serialisable filter matching items whose fields equal the given
// values. Items may be maps keyed by string or structs.
type Where map[string]any

// Match reports whether item carries every field of w with an equal value.
func (w Where) Match(item any, _ int) bool {
	for field, want := range w {
		got, ok := fieldOf(item, field)
		if !ok || !ValuesEqual(got, want) {
			return false
		}
	}
	return true
}

// AsFilter normalises the accepted filter forms. A nil filter matches all.
func AsFilter(arg any) (Filter, error) {
	switch f := arg.(type) {
	case nil:
		return nil, nil
	case Filter:
		return f, nil
	case func(any, int) bool:
		return f, nil
	case func(any) bool:
		if f == nil {
			return nil, nil
		}
		return func(item any, _ int) bool { return f(item) }, nil
	case Where:
		return f.Match, nil
	case map[string]any:
		return Where(f).Match, nil
	default:
		return nil, fmt.Errorf("%w: unsupported filter %T", ErrInvalidArgument, arg)
	}
}

// ApplyUpdate resolves an update argument against one item.
func ApplyUpdate(update any, item any, index int) any {
	switch u := update.(type) {
	case UpdateFunc:
		return u(item, index)
	case func(any, int) any:
		return u(item, index)
	case func(any) any:
		return u(item)
	default:
		return update
	}
}

// CompareKeys is the three-way comparison used by OrderBy. Numbers compare
// numerically across kinds; strings, bools and times compare naturally;
// anything else compares by its formatted representation.
func CompareKeys(a, b any) int {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return cmp.Compare(af, bf)
		}
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return cmp.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			default:
				return 1
			}
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	}
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// ValuesEqual compares two values, treating all numeric kinds as numbers so
// that decoded JSON matches Go literals.
func ValuesEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func fieldOf(item any, field string) (any, bool) {
	rv := reflect.ValueOf(item)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(field).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Struct:
		f := rv.FieldByName(field)
		if !f.IsValid() || !f.CanInterface() {
			return nil, false
		}
		return f.Interface(), true
	}
	return nil, false
}

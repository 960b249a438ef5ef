package helper

import (
	"errors"
	"fmt"
	"reflect"
	"time"
)

var ErrUnexpectedType = errors.New("unexpected type")

// GetTypedValueOf safely asserts the result of a getter function to the expected type T.
// Returns an error if type assertion fails.
func GetTypedValueOf[T any](getFn func() (any, error)) (T, error) {
	var zero T

	res, err := getFn()
	if err != nil {
		return zero, fmt.Errorf("failed to get value: %w", err)
	}

	val, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %T", ErrUnexpectedType, res)
	}

	return val, nil
}

// ArgOf returns the i-th positional argument as T.
// Missing arguments and nil values (including typed nils) yield the zero T.
func ArgOf[T any](args []any, i int) (T, error) {
	var zero T
	if i < 0 || i >= len(args) || isNil(args[i]) {
		return zero, nil
	}
	return GetTypedValueOf[T](func() (any, error) {
		return args[i], nil
	})
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Map, reflect.Pointer, reflect.Slice, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

var ErrMaxAttempts = fmt.Errorf("max attempts reached")

// Retry calls fn until it succeeds, at most maxAttempts times, sleeping
// backoff between attempts. It stops early when fn returns a permanent error.
func Retry(maxAttempts int, backoff time.Duration, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		var perm permanent
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= maxAttempts {
			return fmt.Errorf("%w: %d, %w", ErrMaxAttempts, attempt, err)
		}
		time.Sleep(backoff)
	}
}

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return permanent{err: err}
}

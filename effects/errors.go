package effects

import "errors"

var (
	// ErrInvalidEffect means a program produced a value that is not a descriptor.
	ErrInvalidEffect = errors.New("invalid effect")

	ErrSequencePanic = errors.New("panic in effect sequence")
)

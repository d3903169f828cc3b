package tensor

import "github.com/pkg/errors"

// Error kinds shared by every layer of the engine. Callers test for them with errors.Is,
// the returned errors wrap them with context.
var (
	// ErrShapeMismatch is returned when operand shapes are incompatible.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrOutOfRange is returned (or panicked with) when an index or axis is out of bounds.
	ErrOutOfRange = errors.New("out of range")

	// ErrInvalidArgument is returned for arguments that are invalid regardless of shapes.
	ErrInvalidArgument = errors.New("invalid argument")
)

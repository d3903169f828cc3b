package tensor

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Shape represents the dimensions of a tensor.
// Axes can be addressed with negative indices, -1 being the last axis.
type Shape []int

// Rank returns the number of axes.
func (s Shape) Rank() int {
	return len(s)
}

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that no dimension is negative.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim < 0 {
			return errors.Wrapf(ErrInvalidArgument, "invalid dimension at index %d: %d (must be >= 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// Axis normalizes a possibly negative axis index to [0, Rank()).
func (s Shape) Axis(axis int) (int, error) {
	normalized := axis
	if normalized < 0 {
		normalized += len(s)
	}
	if normalized < 0 || normalized >= len(s) {
		return 0, errors.Wrapf(ErrOutOfRange, "axis %d out of range for shape %s", axis, s)
	}
	return normalized, nil
}

// Dim returns the extent of the given axis. Negative axes count from the end.
// It panics with an ErrOutOfRange error if the axis does not exist.
func (s Shape) Dim(axis int) int {
	normalized, err := s.Axis(axis)
	if err != nil {
		panic(err)
	}
	return s[normalized]
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// HasSuffix reports whether the trailing dimensions of s are exactly suffix.
func (s Shape) HasSuffix(suffix Shape) bool {
	if len(suffix) > len(s) {
		return false
	}
	return s[len(s)-len(suffix):].Equal(suffix)
}

// String renders the shape as "(2, 3, 4)".
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, dim := range s {
		parts[i] = strconv.Itoa(dim)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// BroadcastShapes implements the restricted broadcasting rule: shapes combine when they are
// equal, or when the lower-rank shape is exactly the trailing dimensions of the higher-rank
// one. Dimensions of length one are not stretched.
//
// Examples:
//
//	(2, 3, 4) + (3, 4) → (2, 3, 4)
//	(2, 3, 4) + (4)    → (2, 3, 4)
//	(2, 3, 4) + ()     → (2, 3, 4)
//	(2, 3, 4) + (1, 4) → Error
//	(3, 4)    + (4, 4) → Error
func BroadcastShapes(a, b Shape) (Shape, error) {
	switch {
	case len(a) >= len(b) && a.HasSuffix(b):
		return a.Clone(), nil
	case len(b) > len(a) && b.HasSuffix(a):
		return b.Clone(), nil
	}
	return nil, errors.Wrapf(ErrShapeMismatch, "shapes %s and %s cannot be broadcast: the lower-rank shape must match the trailing dimensions", a, b)
}

// Package tensor provides strided n-dimensional arrays with non-copying views,
// the restricted broadcasting rule and the random initializers used by the engine.
package tensor

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Float is the constraint for tensor element types.
type Float interface {
	constraints.Float
}

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	Float64
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// ParseDataType is the inverse of DataType.String.
func ParseDataType(name string) (DataType, error) {
	switch name {
	case "float32":
		return Float32, nil
	case "float64":
		return Float64, nil
	}
	return 0, errors.Wrapf(ErrInvalidArgument, "unknown data type %q", name)
}

// DataTypeOf returns the DataType matching T.
func DataTypeOf[T Float]() DataType {
	var zero T
	if unsafe.Sizeof(zero) == 4 {
		return Float32
	}
	return Float64
}

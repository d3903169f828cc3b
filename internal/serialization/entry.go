package serialization

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// Entry is a named tensor in its stored form: little-endian element bytes in row-major order.
type Entry struct {
	Name  string
	DType tensor.DataType
	Shape tensor.Shape
	Data  []byte
}

// EncodeTensor converts t into an Entry.
func EncodeTensor[T tensor.Float](name string, t *tensor.Tensor[T]) Entry {
	dtype := tensor.DataTypeOf[T]()
	values := t.Values()
	data := make([]byte, len(values)*dtype.Size())
	for i, v := range values {
		if dtype == tensor.Float32 {
			binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(float32(v)))
		} else {
			binary.LittleEndian.PutUint64(data[i*8:], math.Float64bits(float64(v)))
		}
	}
	return Entry{Name: name, DType: dtype, Shape: t.Shape().Clone(), Data: data}
}

// Values decodes the entry's elements, converting them to T if it was stored with the
// other precision.
func Values[T tensor.Float](e Entry) ([]T, error) {
	n := e.Shape.NumElements()
	if len(e.Data) != n*e.DType.Size() {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "tensor %q: %d bytes do not hold %d %s elements",
			e.Name, len(e.Data), n, e.DType)
	}
	values := make([]T, n)
	for i := range values {
		if e.DType == tensor.Float32 {
			values[i] = T(math.Float32frombits(binary.LittleEndian.Uint32(e.Data[i*4:])))
		} else {
			values[i] = T(math.Float64frombits(binary.LittleEndian.Uint64(e.Data[i*8:])))
		}
	}
	return values, nil
}

// DecodeTensor converts an Entry back into a tensor of element type T.
func DecodeTensor[T tensor.Float](e Entry) (*tensor.Tensor[T], error) {
	values, err := Values[T](e)
	if err != nil {
		return nil, err
	}
	return tensor.FromSlice(values, e.Shape...)
}

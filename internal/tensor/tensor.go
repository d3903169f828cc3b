package tensor

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Tensor is a strided n-dimensional array over a flat buffer.
//
// A Tensor either owns its buffer or is a view borrowing the buffer of another Tensor.
// Views never copy: writes through a view are visible in the owner and in every other view
// of the same buffer. A view must not be used after its owner has been resized to a
// different number of elements, since the owner then moves to a fresh buffer.
type Tensor[T Float] struct {
	data    []T   // Shared buffer
	offset  int   // Offset of element (0, ..., 0) in data
	shape   Shape // Tensor dimensions
	strides []int // Memory strides (row-major for non-partial tensors)
	view    bool  // Borrows the buffer of another Tensor
	partial bool  // View that does not cover a contiguous range of the buffer
}

// New creates a zero-filled tensor with the given dimensions.
// It panics if a dimension is negative.
func New[T Float](dims ...int) *Tensor[T] {
	return FromShape[T](Shape(dims))
}

// FromShape creates a zero-filled tensor with the given shape.
// It panics if a dimension is negative.
func FromShape[T Float](shape Shape) *Tensor[T] {
	if err := shape.Validate(); err != nil {
		panic(err)
	}
	return &Tensor[T]{
		data:    make([]T, shape.NumElements()),
		shape:   shape.Clone(),
		strides: shape.ComputeStrides(),
	}
}

// FromSlice creates a tensor with the given dimensions, copying data in row-major order.
func FromSlice[T Float](data []T, dims ...int) (*Tensor[T], error) {
	shape := Shape(dims)
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if len(data) != shape.NumElements() {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d values do not fit shape %s (%d elements)",
			len(data), shape, shape.NumElements())
	}
	t := FromShape[T](shape)
	copy(t.data, data)
	return t, nil
}

// Scalar creates a rank-0 tensor holding v.
func Scalar[T Float](v T) *Tensor[T] {
	t := New[T]()
	t.data[0] = v
	return t
}

// Shape returns the tensor's shape. The returned slice must not be modified.
func (t *Tensor[T]) Shape() Shape {
	return t.shape
}

// Strides returns the tensor's memory strides.
func (t *Tensor[T]) Strides() []int {
	return t.strides
}

// Rank returns the number of axes.
func (t *Tensor[T]) Rank() int {
	return len(t.shape)
}

// Dim returns the extent of an axis, negative axes counting from the end.
func (t *Tensor[T]) Dim(axis int) int {
	return t.shape.Dim(axis)
}

// Stride returns the stride of an axis, negative axes counting from the end.
func (t *Tensor[T]) Stride(axis int) int {
	normalized, err := t.shape.Axis(axis)
	if err != nil {
		panic(err)
	}
	return t.strides[normalized]
}

// NumElements returns the total number of elements.
func (t *Tensor[T]) NumElements() int {
	return t.shape.NumElements()
}

// IsScalar reports whether the tensor has rank 0.
func (t *Tensor[T]) IsScalar() bool {
	return len(t.shape) == 0
}

// IsView reports whether the tensor borrows another tensor's buffer.
func (t *Tensor[T]) IsView() bool {
	return t.view
}

// IsPartialView reports whether the tensor is a view over a non-contiguous part of a buffer.
func (t *Tensor[T]) IsPartialView() bool {
	return t.partial
}

// SharesBuffer reports whether t and other read and write the same memory.
func (t *Tensor[T]) SharesBuffer(other *Tensor[T]) bool {
	if len(t.data) == 0 || len(other.data) == 0 {
		return false
	}
	return &t.data[0] == &other.data[0]
}

// offsetOf maps a multi-index to a buffer position. Negative indices count from the end
// of their axis. It panics with an ErrOutOfRange error on bad indices.
func (t *Tensor[T]) offsetOf(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(errors.Wrapf(ErrOutOfRange, "tensor of shape %s indexed with %d indices", t.shape, len(idx)))
	}
	pos := t.offset
	for axis, i := range idx {
		dim := t.shape[axis]
		if i < 0 {
			i += dim
		}
		if i < 0 || i >= dim {
			panic(errors.Wrapf(ErrOutOfRange, "index %d out of range for axis %d of shape %s", idx[axis], axis, t.shape))
		}
		pos += i * t.strides[axis]
	}
	return pos
}

// At returns the element at the given multi-index.
func (t *Tensor[T]) At(idx ...int) T {
	return t.data[t.offsetOf(idx)]
}

// Set stores v at the given multi-index.
func (t *Tensor[T]) Set(v T, idx ...int) {
	t.data[t.offsetOf(idx)] = v
}

// AddAt adds v to the element at the given multi-index.
func (t *Tensor[T]) AddAt(v T, idx ...int) {
	t.data[t.offsetOf(idx)] += v
}

func (t *Tensor[T]) flatPos(i int) int {
	if t.partial {
		exceptions.Panicf("flat access on a partial view of shape %s", t.shape)
	}
	if i < 0 || i >= t.NumElements() {
		panic(errors.Wrapf(ErrOutOfRange, "flat index %d out of range for shape %s", i, t.shape))
	}
	return t.offset + i
}

// Flat returns the i-th element in row-major order.
func (t *Tensor[T]) Flat(i int) T {
	return t.data[t.flatPos(i)]
}

// SetFlat stores v as the i-th element in row-major order.
func (t *Tensor[T]) SetFlat(v T, i int) {
	t.data[t.flatPos(i)] = v
}

// AddFlat adds v to the i-th element in row-major order.
func (t *Tensor[T]) AddFlat(v T, i int) {
	t.data[t.flatPos(i)] += v
}

// Data returns the elements of a non-partial tensor in row-major order.
// WARNING: the slice aliases the tensor's buffer.
func (t *Tensor[T]) Data() []T {
	if t.partial {
		exceptions.Panicf("Data() on a partial view of shape %s", t.shape)
	}
	return t.data[t.offset : t.offset+t.NumElements()]
}

// SetDims changes the tensor's dimensions. Values are kept when the number of elements is
// unchanged, otherwise an owning tensor moves to a fresh zero-filled buffer. Views can
// only be re-dimensioned to the same number of elements.
func (t *Tensor[T]) SetDims(dims ...int) error {
	shape := Shape(dims)
	if err := shape.Validate(); err != nil {
		return err
	}
	if t.partial {
		return errors.Wrapf(ErrInvalidArgument, "cannot set dims %s on a partial view", shape)
	}
	if shape.NumElements() != t.NumElements() {
		if t.view {
			return errors.Wrapf(ErrInvalidArgument, "cannot resize view of shape %s to %s", t.shape, shape)
		}
		t.data = make([]T, shape.NumElements())
		t.offset = 0
	}
	t.shape = shape.Clone()
	t.strides = shape.ComputeStrides()
	return nil
}

// ForEach calls fn with every multi-index of the tensor in row-major order.
// The idx slice is reused between calls.
func (t *Tensor[T]) ForEach(fn func(idx []int)) {
	if t.NumElements() == 0 {
		return
	}
	idx := make([]int, len(t.shape))
	for {
		fn(idx)
		axis := len(idx) - 1
		for ; axis >= 0; axis-- {
			idx[axis]++
			if idx[axis] < t.shape[axis] {
				break
			}
			idx[axis] = 0
		}
		if axis < 0 {
			return
		}
	}
}

// positions calls fn with the buffer position of every element in row-major order.
func (t *Tensor[T]) positions(fn func(k, pos int)) {
	if !t.partial {
		n := t.NumElements()
		for k := 0; k < n; k++ {
			fn(k, t.offset+k)
		}
		return
	}
	k := 0
	t.ForEach(func(idx []int) {
		pos := t.offset
		for axis, i := range idx {
			pos += i * t.strides[axis]
		}
		fn(k, pos)
		k++
	})
}

// Apply replaces every element v by fn(v).
func (t *Tensor[T]) Apply(fn func(v T) T) {
	t.positions(func(_, pos int) {
		t.data[pos] = fn(t.data[pos])
	})
}

// SetAll sets every element to v.
func (t *Tensor[T]) SetAll(v T) {
	t.positions(func(_, pos int) {
		t.data[pos] = v
	})
}

// SetFlattened sets the elements from values given in row-major order.
func (t *Tensor[T]) SetFlattened(values []T) error {
	if len(values) != t.NumElements() {
		return errors.Wrapf(ErrInvalidArgument, "%d values given for tensor of shape %s (%d elements)",
			len(values), t.shape, t.NumElements())
	}
	t.positions(func(k, pos int) {
		t.data[pos] = values[k]
	})
	return nil
}

// Values returns a row-major copy of the elements.
func (t *Tensor[T]) Values() []T {
	out := make([]T, t.NumElements())
	t.positions(func(k, pos int) {
		out[k] = t.data[pos]
	})
	return out
}

// Copy returns a deep copy owning a fresh contiguous buffer.
func (t *Tensor[T]) Copy() *Tensor[T] {
	out := FromShape[T](t.shape)
	t.positions(func(k, pos int) {
		out.data[k] = t.data[pos]
	})
	return out
}

// Assign copies the values of src into t. An owning tensor takes src's shape if it differs;
// views require equal shapes.
func (t *Tensor[T]) Assign(src *Tensor[T]) error {
	if !t.shape.Equal(src.shape) {
		if t.view {
			return errors.Wrapf(ErrShapeMismatch, "cannot assign shape %s into view of shape %s", src.shape, t.shape)
		}
		if err := t.SetDims(src.shape...); err != nil {
			return err
		}
	}
	values := src.Values()
	t.positions(func(k, pos int) {
		t.data[pos] = values[k]
	})
	return nil
}

// Sum returns the sum of all elements.
func (t *Tensor[T]) Sum() T {
	var sum T
	t.positions(func(_, pos int) {
		sum += t.data[pos]
	})
	return sum
}

// ArgMax returns, for every position of the leading axes, the index of the largest element
// along the last axis. The result has the shape of t without its last axis.
func (t *Tensor[T]) ArgMax() (*Tensor[T], error) {
	if t.Rank() == 0 {
		return nil, errors.Wrap(ErrInvalidArgument, "ArgMax of a scalar")
	}
	rows, err := t.ViewWithNDimsOnTheRight(2)
	if err != nil {
		return nil, err
	}
	out := FromShape[T](t.shape[:t.Rank()-1])
	n, k := rows.Dim(0), rows.Dim(1)
	for i := 0; i < n; i++ {
		best := 0
		for j := 1; j < k; j++ {
			if rows.At(i, j) > rows.At(i, best) {
				best = j
			}
		}
		out.data[i] = T(best)
	}
	return out, nil
}

package tensor

import (
	"slices"

	"github.com/pkg/errors"
)

func (t *Tensor[T]) viewAs(shape Shape, offset int, strides []int) *Tensor[T] {
	return &Tensor[T]{
		data:    t.data,
		offset:  offset,
		shape:   shape,
		strides: strides,
		view:    true,
		partial: !contiguous(shape, strides),
	}
}

// contiguous reports whether shape and strides describe a row-major block. Axes of length
// one may carry any stride.
func contiguous(shape Shape, strides []int) bool {
	expected := 1
	for axis := len(shape) - 1; axis >= 0; axis-- {
		if shape[axis] == 1 {
			continue
		}
		if strides[axis] != expected {
			return false
		}
		expected *= shape[axis]
	}
	return true
}

// Reshape returns a view with the given dimensions over the same elements. One dimension
// may be -1, in which case it is inferred from the others.
func (t *Tensor[T]) Reshape(dims ...int) (*Tensor[T], error) {
	if t.partial {
		return nil, errors.Wrapf(ErrInvalidArgument, "cannot reshape a partial view of shape %s", t.shape)
	}
	shape := Shape(dims).Clone()
	inferred := -1
	known := 1
	for axis, dim := range shape {
		switch {
		case dim == -1 && inferred < 0:
			inferred = axis
		case dim < 0:
			return nil, errors.Wrapf(ErrInvalidArgument, "invalid dimension %d in reshape to %s", dim, shape)
		default:
			known *= dim
		}
	}
	if inferred >= 0 {
		if known == 0 || t.NumElements()%known != 0 {
			return nil, errors.Wrapf(ErrShapeMismatch, "cannot infer dimension reshaping %s to %s", t.shape, shape)
		}
		shape[inferred] = t.NumElements() / known
	}
	if shape.NumElements() != t.NumElements() {
		return nil, errors.Wrapf(ErrShapeMismatch, "cannot reshape %s (%d elements) to %s (%d elements)",
			t.shape, t.NumElements(), shape, shape.NumElements())
	}
	return t.viewAs(shape, t.offset, shape.ComputeStrides()), nil
}

// Flatten returns a rank-1 view over all elements.
func (t *Tensor[T]) Flatten() (*Tensor[T], error) {
	return t.Reshape(t.NumElements())
}

// ViewFromIndices groups axes into a new view. The given axes, together with the first axis,
// start a group; every other axis is merged into the group to its left. Repeated axes and
// axes outside [1, Rank()) insert groups of length one. For a tensor of shape (2, 2, 2):
//
//	ViewFromIndices(1)       → (2, 4)
//	ViewFromIndices(2)       → (4, 2)
//	ViewFromIndices(1, 2)    → (2, 2, 2)
//	ViewFromIndices(0, 1)    → (1, 2, 4)
//	ViewFromIndices(2, 3)    → (4, 2, 1)
//	ViewFromIndices(1, 2, 2) → (2, 2, 1, 2)
//	ViewFromIndices()        → (8)
func (t *Tensor[T]) ViewFromIndices(axes ...int) (*Tensor[T], error) {
	sorted := make([]int, len(axes))
	for i, axis := range axes {
		if axis < 0 {
			axis += t.Rank()
		}
		sorted[i] = axis
	}
	slices.Sort(sorted)

	shape := make(Shape, len(sorted)+1)
	current := 0
	for i, axis := range sorted {
		shape[i] = 1
		end := 0
		switch {
		case axis >= t.Rank():
			end = t.Rank()
		case axis >= 0:
			end = axis
		}
		for ; current < end; current++ {
			shape[i] *= t.shape[current]
		}
	}
	shape[len(shape)-1] = 1
	for ; current < t.Rank(); current++ {
		shape[len(shape)-1] *= t.shape[current]
	}
	return t.Reshape(shape...)
}

// ViewWithNDimsOnTheLeft keeps the first n-1 axes and merges the remaining ones into the
// last axis, appending axes of length one if the tensor has fewer than n axes.
//
//	(2, 2, 2) with n=2 → (2, 4)
//	(2)       with n=2 → (2, 1)
func (t *Tensor[T]) ViewWithNDimsOnTheLeft(n int) (*Tensor[T], error) {
	if n <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "cannot view tensor of shape %s with %d dims", t.shape, n)
	}
	shape := make(Shape, n)
	axis := 0
	for ; axis < min(t.Rank(), n-1); axis++ {
		shape[axis] = t.shape[axis]
	}
	if n <= t.Rank() {
		rest := 1
		for i := n - 1; i < t.Rank(); i++ {
			rest *= t.shape[i]
		}
		shape[n-1] = rest
	} else {
		for ; axis < n; axis++ {
			shape[axis] = 1
		}
	}
	return t.Reshape(shape...)
}

// ViewWithNDimsOnTheRight keeps the last n-1 axes and merges the remaining ones into the
// first axis, prepending axes of length one if the tensor has fewer than n axes.
//
//	(2, 2, 2) with n=2 → (4, 2)
//	(2)       with n=2 → (1, 2)
func (t *Tensor[T]) ViewWithNDimsOnTheRight(n int) (*Tensor[T], error) {
	if n <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "cannot view tensor of shape %s with %d dims", t.shape, n)
	}
	shape := make(Shape, n)
	kept := min(t.Rank(), n-1)
	for i := 1; i <= kept; i++ {
		shape[n-i] = t.shape[t.Rank()-i]
	}
	if n <= t.Rank() {
		rest := 1
		for i := 0; i <= t.Rank()-n; i++ {
			rest *= t.shape[i]
		}
		shape[0] = rest
	} else {
		for i := kept + 1; i <= n; i++ {
			shape[n-i] = 1
		}
	}
	return t.Reshape(shape...)
}

// Index returns the sub-tensor at position i of the leading axis, as a view.
func (t *Tensor[T]) Index(i int) (*Tensor[T], error) {
	if t.Rank() == 0 {
		return nil, errors.Wrap(ErrInvalidArgument, "cannot index a scalar")
	}
	dim := t.shape[0]
	if i < 0 {
		i += dim
	}
	if i < 0 || i >= dim {
		return nil, errors.Wrapf(ErrOutOfRange, "index %d out of range for shape %s", i, t.shape)
	}
	return t.viewAs(t.shape[1:].Clone(), t.offset+i*t.strides[0], append([]int(nil), t.strides[1:]...)), nil
}

// Slice returns a view restricted to [start, end) along the given axis.
func (t *Tensor[T]) Slice(axis, start, end int) (*Tensor[T], error) {
	normalized, err := t.shape.Axis(axis)
	if err != nil {
		return nil, err
	}
	if start < 0 || end < start || end > t.shape[normalized] {
		return nil, errors.Wrapf(ErrOutOfRange, "slice [%d, %d) out of range for axis %d of shape %s",
			start, end, axis, t.shape)
	}
	shape := t.shape.Clone()
	shape[normalized] = end - start
	return t.viewAs(shape, t.offset+start*t.strides[normalized], append([]int(nil), t.strides...)), nil
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides strided n-dimensional arrays for the snnl engine.
//
// # Overview
//
// Tensors hold float32 or float64 elements in a flat row-major buffer. This package provides:
//   - Generic tensors (Tensor[T]) with negative-axis addressing
//   - Views that reinterpret or restrict a buffer without copying
//   - Restricted broadcasting: the lower-rank operand must equal the trailing dims
//   - Random initializers (Uniform, Normal, Xavier, HeNormal)
//
// # Basic Usage
//
//	x := tensor.New[float64](2, 3)
//	x.Uniform(-1, 1)
//	rows, err := x.ViewWithNDimsOnTheRight(2)
//	sum, err := tensor.Add(x, rows)
package tensor

import (
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// Float is the constraint for tensor element types.
type Float = tensor.Float

// Shape represents tensor dimensions.
type Shape = tensor.Shape

// Tensor is a strided n-dimensional array.
type Tensor[T Float] = tensor.Tensor[T]

// DataType identifies the element type at runtime.
type DataType = tensor.DataType

// Supported data types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
)

// Error kinds.
var (
	ErrShapeMismatch   = tensor.ErrShapeMismatch
	ErrOutOfRange      = tensor.ErrOutOfRange
	ErrInvalidArgument = tensor.ErrInvalidArgument
)

// New creates a zero-filled tensor with the given dimensions.
func New[T Float](dims ...int) *Tensor[T] {
	return tensor.New[T](dims...)
}

// FromSlice creates a tensor with the given dimensions from row-major data.
//
// Example:
//
//	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
func FromSlice[T Float](data []T, dims ...int) (*Tensor[T], error) {
	return tensor.FromSlice(data, dims...)
}

// Scalar creates a rank-0 tensor holding v.
func Scalar[T Float](v T) *Tensor[T] {
	return tensor.Scalar(v)
}

// Add returns a + b under the restricted broadcasting rule.
func Add[T Float](a, b *Tensor[T]) (*Tensor[T], error) {
	return tensor.Add(a, b)
}

// Sub returns a - b under the restricted broadcasting rule.
func Sub[T Float](a, b *Tensor[T]) (*Tensor[T], error) {
	return tensor.Sub(a, b)
}

// Mul returns the element-wise product a * b under the restricted broadcasting rule.
func Mul[T Float](a, b *Tensor[T]) (*Tensor[T], error) {
	return tensor.Mul(a, b)
}

// Div returns the element-wise quotient a / b under the restricted broadcasting rule.
func Div[T Float](a, b *Tensor[T]) (*Tensor[T], error) {
	return tensor.Div(a, b)
}

// BroadcastShapes returns the shape of an element-wise combination of a and b.
func BroadcastShapes(a, b Shape) (Shape, error) {
	return tensor.BroadcastShapes(a, b)
}

// Seed re-seeds the generator used by the random initializers.
func Seed(seed int64) {
	tensor.Seed(seed)
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package autodiff

import (
	"github.com/hsandmeyer/snnl-sub000/internal/autodiff/ops"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// Operator constructors. Each returns a fresh connector; connecting it several times
// shares its weights between the connections.

// NewDense returns a dense connector with outUnits outputs. Its weights are allocated on
// the first connection, from the input's last dimension.
func NewDense[T tensor.Float](outUnits int) *Connector[T] {
	return ops.NewDense[T](outUnits)
}

// NewDenseWithInput returns a dense connector whose weights can be allocated before the
// first connection with BuildFor.
func NewDenseWithInput[T tensor.Float](inUnits, outUnits int) *Connector[T] {
	return ops.NewDenseWithInput[T](inUnits, outUnits)
}

// NewConcatenate returns a connector joining its inputs along axis.
func NewConcatenate[T tensor.Float](axis int) *Connector[T] {
	return ops.NewConcatenate[T](axis)
}

// NewAveragePooling returns a connector averaging pw x ph blocks of images.
func NewAveragePooling[T tensor.Float](pw, ph int) *Connector[T] {
	return ops.NewAveragePooling[T](pw, ph)
}

// NewUpSample2D returns a connector spreading every pixel over a pw x ph block.
func NewUpSample2D[T tensor.Float](pw, ph int) *Connector[T] {
	return ops.NewUpSample2D[T](pw, ph)
}

// One-shot helpers: each creates a connector and connects it once.

// Dense connects a dense layer with outUnits outputs to x.
func Dense[T tensor.Float](x *Node[T], outUnits int) (*Node[T], error) {
	return ops.Dense(x, outUnits)
}

// Linear connects W·x + B for explicit weight nodes.
func Linear[T tensor.Float](w, b, x *Node[T]) (*Node[T], error) {
	return ops.Linear(w, b, x)
}

// Sin connects sin(x).
func Sin[T tensor.Float](x *Node[T]) (*Node[T], error) {
	return ops.Sin(x)
}

// Cos connects cos(x).
func Cos[T tensor.Float](x *Node[T]) (*Node[T], error) {
	return ops.Cos(x)
}

// Sigmoid connects 1 / (1 + exp(-x)).
func Sigmoid[T tensor.Float](x *Node[T]) (*Node[T], error) {
	return ops.Sigmoid(x)
}

// ReLU connects max(x, 0).
func ReLU[T tensor.Float](x *Node[T]) (*Node[T], error) {
	return ops.ReLU(x)
}

// Tanh connects tanh(x).
func Tanh[T tensor.Float](x *Node[T]) (*Node[T], error) {
	return ops.Tanh(x)
}

// Exp connects exp(x).
func Exp[T tensor.Float](x *Node[T]) (*Node[T], error) {
	return ops.Exp(x)
}

// Add connects a + b.
func Add[T tensor.Float](a, b *Node[T]) (*Node[T], error) {
	return ops.Add(a, b)
}

// Subtract connects a - b.
func Subtract[T tensor.Float](a, b *Node[T]) (*Node[T], error) {
	return ops.Subtract(a, b)
}

// Mult connects the element-wise product a * b.
func Mult[T tensor.Float](a, b *Node[T]) (*Node[T], error) {
	return ops.Mult(a, b)
}

// Divide connects the element-wise quotient a / b.
func Divide[T tensor.Float](a, b *Node[T]) (*Node[T], error) {
	return ops.Divide(a, b)
}

// Sum connects the sum of all elements of x.
func Sum[T tensor.Float](x *Node[T]) (*Node[T], error) {
	return ops.Sum(x)
}

// MSE connects the mean squared error of prediction against target.
func MSE[T tensor.Float](prediction, target *Node[T]) (*Node[T], error) {
	return ops.MSE(prediction, target)
}

// SoftMax connects the softmax of x over its last axis.
func SoftMax[T tensor.Float](x *Node[T]) (*Node[T], error) {
	return ops.SoftMax(x)
}

// SparseCategoricalCrossEntropy connects the cross entropy of probs against integer class labels.
func SparseCategoricalCrossEntropy[T tensor.Float](probs, labels *Node[T]) (*Node[T], error) {
	return ops.SparseCategoricalCrossEntropy(probs, labels)
}

// Flatten connects x reshaped to [batch, rest].
func Flatten[T tensor.Float](x *Node[T]) (*Node[T], error) {
	return ops.Flatten(x)
}

// Dot connects the dot product of a and b.
func Dot[T tensor.Float](a, b *Node[T]) (*Node[T], error) {
	return ops.Dot(a, b)
}

// Conv2D connects the convolution of images with kernel.
func Conv2D[T tensor.Float](kernel, images *Node[T]) (*Node[T], error) {
	return ops.Conv2D(kernel, images)
}

// AveragePooling connects the average of pw x ph blocks of images.
func AveragePooling[T tensor.Float](images *Node[T], pw, ph int) (*Node[T], error) {
	return ops.AveragePooling(images, pw, ph)
}

// UpSample2D connects images spread over pw x ph blocks.
func UpSample2D[T tensor.Float](images *Node[T], pw, ph int) (*Node[T], error) {
	return ops.UpSample2D(images, pw, ph)
}

// Concatenate connects the inputs joined along axis.
func Concatenate[T tensor.Float](axis int, inputs ...*Node[T]) (*Node[T], error) {
	return ops.Concatenate(axis, inputs...)
}

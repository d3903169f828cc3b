package nn

import (
	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/autodiff/ops"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// Activation wraps a single-input operator without weights into a Module, so that it can be
// placed in a Sequential.
type Activation[T tensor.Float] struct {
	name string
	fn   func(x *autodiff.Node[T]) (*autodiff.Node[T], error)
}

// NewActivation creates a module applying fn.
func NewActivation[T tensor.Float](name string, fn func(x *autodiff.Node[T]) (*autodiff.Node[T], error)) *Activation[T] {
	return &Activation[T]{name: name, fn: fn}
}

// NewSigmoid creates a sigmoid activation module.
func NewSigmoid[T tensor.Float]() *Activation[T] { return NewActivation("Sigmoid", ops.Sigmoid[T]) }

// NewReLU creates a ReLU activation module.
func NewReLU[T tensor.Float]() *Activation[T] { return NewActivation("ReLU", ops.ReLU[T]) }

// NewTanh creates a tanh activation module.
func NewTanh[T tensor.Float]() *Activation[T] { return NewActivation("Tanh", ops.Tanh[T]) }

// NewSoftMax creates a module applying softmax over the last axis.
func NewSoftMax[T tensor.Float]() *Activation[T] { return NewActivation("SoftMax", ops.SoftMax[T]) }

// NewFlatten creates a module flattening all but the leading axis.
func NewFlatten[T tensor.Float]() *Activation[T] { return NewActivation("Flatten", ops.Flatten[T]) }

// Name returns the activation name.
func (a *Activation[T]) Name() string { return a.name }

// Call implements Module.
func (a *Activation[T]) Call(inputs ...*autodiff.Node[T]) (*autodiff.Node[T], error) {
	x, err := single(a.name, inputs)
	if err != nil {
		return nil, err
	}
	return a.fn(x)
}

// Weights returns nil: activations have no trainable weights.
func (a *Activation[T]) Weights() []*autodiff.Node[T] { return nil }

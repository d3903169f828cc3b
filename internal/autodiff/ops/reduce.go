package ops

import (
	"github.com/pkg/errors"

	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

type sumOp[T tensor.Float] struct{}

// NewSum returns a connector summing all elements of its input into a tensor of shape [1].
func NewSum[T tensor.Float]() *autodiff.Connector[T] {
	return autodiff.NewConnector[T](sumOp[T]{})
}

// Sum connects the sum of all elements of x.
func Sum[T tensor.Float](x *autodiff.Node[T]) (*autodiff.Node[T], error) {
	return NewSum[T]().Connect(x)
}

func (sumOp[T]) Name() string { return "Sum" }

func (op sumOp[T]) OutputDims(inputs []*autodiff.Node[T]) (tensor.Shape, error) {
	if err := checkArity(op.Name(), inputs, 1); err != nil {
		return nil, err
	}
	return tensor.Shape{1}, nil
}

func (sumOp[T]) Forward(inputs, _ []*autodiff.Node[T], output *autodiff.Node[T]) error {
	output.SetValue(inputs[0].Values().Sum(), 0)
	return nil
}

func (sumOp[T]) Backward(output *autodiff.Node[T], _, inputs []*autodiff.Node[T]) error {
	inputs[0].Gradient().AddScalar(output.Grad(0))
	return nil
}

// mseOp is the mean squared error between two tensors of the same shape.
type mseOp[T tensor.Float] struct{}

// NewMSE returns a connector computing mean((a-b)²) into a tensor of shape [1].
func NewMSE[T tensor.Float]() *autodiff.Connector[T] {
	return autodiff.NewConnector[T](mseOp[T]{})
}

// MSE connects the mean squared error between prediction and target.
func MSE[T tensor.Float](prediction, target *autodiff.Node[T]) (*autodiff.Node[T], error) {
	return NewMSE[T]().Connect(prediction, target)
}

func (mseOp[T]) Name() string { return "MSE" }

func (op mseOp[T]) OutputDims(inputs []*autodiff.Node[T]) (tensor.Shape, error) {
	if err := checkArity(op.Name(), inputs, 2); err != nil {
		return nil, err
	}
	if !inputs[0].Shape().Equal(inputs[1].Shape()) {
		return nil, errors.Wrapf(autodiff.ErrShapeMismatch, "MSE between shapes %s and %s",
			inputs[0].Shape(), inputs[1].Shape())
	}
	return tensor.Shape{1}, nil
}

func (mseOp[T]) Forward(inputs, _ []*autodiff.Node[T], output *autodiff.Node[T]) error {
	a, b := inputs[0].Values().Data(), inputs[1].Values().Data()
	var sum T
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	if len(a) > 0 {
		sum /= T(len(a))
	}
	output.SetValue(sum, 0)
	return nil
}

func (mseOp[T]) Backward(output *autodiff.Node[T], _, inputs []*autodiff.Node[T]) error {
	a, b := inputs[0].Values().Data(), inputs[1].Values().Data()
	ga, gb := inputs[0].Gradient().Data(), inputs[1].Gradient().Data()
	if len(a) == 0 {
		return nil
	}
	scale := 2 * output.Grad(0) / T(len(a))
	for i := range a {
		d := scale * (a[i] - b[i])
		ga[i] += d
		gb[i] -= d
	}
	return nil
}

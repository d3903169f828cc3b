package ops

import (
	"github.com/pkg/errors"

	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

type flattenOp[T tensor.Float] struct{}

// NewFlatten returns a connector reshaping [b, d1, d2, ...] into [b, d1*d2*...].
func NewFlatten[T tensor.Float]() *autodiff.Connector[T] {
	return autodiff.NewConnector[T](flattenOp[T]{})
}

// Flatten connects x flattened to rank 2, keeping the leading axis.
func Flatten[T tensor.Float](x *autodiff.Node[T]) (*autodiff.Node[T], error) {
	return NewFlatten[T]().Connect(x)
}

func (flattenOp[T]) Name() string { return "Flatten" }

func (op flattenOp[T]) OutputDims(inputs []*autodiff.Node[T]) (tensor.Shape, error) {
	if err := checkArity(op.Name(), inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	if err := checkMinRank(op.Name(), x, 1); err != nil {
		return nil, err
	}
	return tensor.Shape{x.Dim(0), x.Shape()[1:].NumElements()}, nil
}

func (flattenOp[T]) Forward(inputs, _ []*autodiff.Node[T], output *autodiff.Node[T]) error {
	copy(output.Values().Data(), inputs[0].Values().Data())
	return nil
}

func (flattenOp[T]) Backward(output *autodiff.Node[T], _, inputs []*autodiff.Node[T]) error {
	gx := inputs[0].Gradient().Data()
	for i, g := range output.Gradient().Data() {
		gx[i] += g
	}
	return nil
}

// concatenateOp joins its inputs along one axis. All inputs must agree on every other axis.
type concatenateOp[T tensor.Float] struct {
	axis int
}

// NewConcatenate returns a connector concatenating its inputs along axis. Negative axes
// count from the end.
func NewConcatenate[T tensor.Float](axis int) *autodiff.Connector[T] {
	return autodiff.NewConnector[T](&concatenateOp[T]{axis: axis})
}

// Concatenate connects the concatenation of inputs along axis.
func Concatenate[T tensor.Float](axis int, inputs ...*autodiff.Node[T]) (*autodiff.Node[T], error) {
	return NewConcatenate[T](axis).Connect(inputs...)
}

func (op *concatenateOp[T]) Name() string { return "Concatenate" }

func (op *concatenateOp[T]) OutputDims(inputs []*autodiff.Node[T]) (tensor.Shape, error) {
	if len(inputs) == 0 {
		return nil, errors.Wrap(autodiff.ErrInvalidArgument, "Concatenate needs at least one input")
	}
	first := inputs[0].Shape()
	axis, err := first.Axis(op.axis)
	if err != nil {
		return nil, errors.Wrapf(autodiff.ErrInvalidArgument, "Concatenate along axis %d of shape %s", op.axis, first)
	}
	out := first.Clone()
	out[axis] = 0
	for _, in := range inputs {
		shape := in.Shape()
		if shape.Rank() != first.Rank() {
			return nil, errors.Wrapf(autodiff.ErrShapeMismatch, "Concatenate of shapes %s and %s", first, shape)
		}
		for i := range shape {
			if i != axis && shape[i] != first[i] {
				return nil, errors.Wrapf(autodiff.ErrShapeMismatch, "Concatenate along axis %d of shapes %s and %s",
					axis, first, shape)
			}
		}
		out[axis] += shape[axis]
	}
	return out, nil
}

// blocks views t as [outer, t.Dim(axis), inner].
func blocks[T tensor.Float](t *tensor.Tensor[T], axis int) *tensor.Tensor[T] {
	outer := t.Shape()[:axis].NumElements()
	inner := t.Shape()[axis+1:].NumElements()
	return reshaped(t, outer, t.Dim(axis), inner)
}

func (op *concatenateOp[T]) Forward(inputs, _ []*autodiff.Node[T], output *autodiff.Node[T]) error {
	axis, _ := output.Shape().Axis(op.axis)
	out := blocks(output.Values(), axis)
	od := out.Data()
	op.walk(inputs, out, func(in *autodiff.Node[T], dst, src, n int) {
		copy(od[dst:dst+n], in.Values().Data()[src:src+n])
	})
	return nil
}

func (op *concatenateOp[T]) Backward(output *autodiff.Node[T], _, inputs []*autodiff.Node[T]) error {
	axis, _ := output.Shape().Axis(op.axis)
	g := blocks(output.Gradient(), axis).Data()
	op.walk(inputs, blocks(output.Values(), axis), func(in *autodiff.Node[T], dst, src, n int) {
		gx := in.Gradient().Data()[src : src+n]
		for i := range gx {
			gx[i] += g[dst+i]
		}
	})
	return nil
}

// walk calls fn for every contiguous run of n elements that input in contributes to the
// output, with the run's offsets in the output and input buffers.
func (op *concatenateOp[T]) walk(inputs []*autodiff.Node[T], out *tensor.Tensor[T],
	fn func(in *autodiff.Node[T], dst, src, n int)) {
	outer, total, inner := out.Dim(0), out.Dim(1), out.Dim(2)
	axis, _ := inputs[0].Shape().Axis(op.axis)
	for o := range outer {
		start := 0
		for _, in := range inputs {
			length := in.Dim(axis)
			fn(in, (o*total+start)*inner, o*length*inner, length*inner)
			start += length
		}
	}
}

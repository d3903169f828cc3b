package autodiff

import (
	"math"

	"github.com/pkg/errors"

	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// Minimal operators used to exercise the dispatch protocol without the ops package.

// sumOp adds any number of equally shaped inputs.
type sumOp struct {
	forwards, backwards int
}

func (op *sumOp) Name() string { return "sum" }

func (op *sumOp) OutputDims(inputs []*Node[float64]) (tensor.Shape, error) {
	shape := inputs[0].Shape()
	for _, in := range inputs[1:] {
		if !in.Shape().Equal(shape) {
			return nil, errors.Wrapf(ErrShapeMismatch, "sum of %s and %s", shape, in.Shape())
		}
	}
	return shape.Clone(), nil
}

func (op *sumOp) Forward(inputs, _ []*Node[float64], output *Node[float64]) error {
	op.forwards++
	out := output.Values().Data()
	for i := range out {
		out[i] = 0
		for _, in := range inputs {
			out[i] += in.Values().Flat(i)
		}
	}
	return nil
}

func (op *sumOp) Backward(output *Node[float64], _, inputs []*Node[float64]) error {
	op.backwards++
	for _, in := range inputs {
		if err := in.Gradient().AddAssign(output.Gradient()); err != nil {
			return err
		}
	}
	return nil
}

// sinOp applies sin element-wise.
type sinOp struct {
	forwards, backwards int
}

func (op *sinOp) Name() string { return "sin" }

func (op *sinOp) OutputDims(inputs []*Node[float64]) (tensor.Shape, error) {
	if len(inputs) != 1 {
		return nil, errors.Wrapf(ErrInvalidArgument, "sin takes 1 input, got %d", len(inputs))
	}
	return inputs[0].Shape().Clone(), nil
}

func (op *sinOp) Forward(inputs, _ []*Node[float64], output *Node[float64]) error {
	op.forwards++
	x, out := inputs[0].Values().Data(), output.Values().Data()
	for i := range out {
		out[i] = math.Sin(x[i])
	}
	return nil
}

func (op *sinOp) Backward(output *Node[float64], _, inputs []*Node[float64]) error {
	op.backwards++
	x, g := inputs[0].Values().Data(), output.Gradient().Data()
	for i := range g {
		inputs[0].Gradient().AddFlat(g[i]*math.Cos(x[i]), i)
	}
	return nil
}

// affineOp computes w*x + b element-wise with connector-owned weights w (shaped like x) and b
// (one element).
type affineOp struct {
	builds int
}

func (op *affineOp) Name() string { return "affine" }

func (op *affineOp) Build(c *Connector[float64], shapes []tensor.Shape) error {
	op.builds++
	if len(shapes) != 1 {
		return errors.Wrapf(ErrInvalidArgument, "affine takes 1 input, got %d", len(shapes))
	}
	w := c.AddWeight(shapes[0]...)
	w.SetAllValues(1)
	c.AddWeight(1)
	return nil
}

func (op *affineOp) OutputDims(inputs []*Node[float64]) (tensor.Shape, error) {
	if len(inputs) != 1 {
		return nil, errors.Wrapf(ErrInvalidArgument, "affine takes 1 input, got %d", len(inputs))
	}
	return inputs[0].Shape().Clone(), nil
}

func (op *affineOp) Forward(inputs, weights []*Node[float64], output *Node[float64]) error {
	x, w, out := inputs[0].Values().Data(), weights[0].Values().Data(), output.Values().Data()
	b := weights[1].Value(0)
	for i := range out {
		out[i] = w[i]*x[i] + b
	}
	return nil
}

func (op *affineOp) Backward(output *Node[float64], weights, inputs []*Node[float64]) error {
	x, w, g := inputs[0].Values().Data(), weights[0].Values().Data(), output.Gradient().Data()
	for i := range g {
		inputs[0].Gradient().AddFlat(g[i]*w[i], i)
		weights[0].Gradient().AddFlat(g[i]*x[i], i)
		weights[1].Gradient().AddFlat(g[i], 0)
	}
	return nil
}

// outOfRangeOp reads past the end of its input.
type outOfRangeOp struct{}

func (outOfRangeOp) Name() string { return "out_of_range" }

func (outOfRangeOp) OutputDims(inputs []*Node[float64]) (tensor.Shape, error) {
	return inputs[0].Shape().Clone(), nil
}

func (outOfRangeOp) Forward(inputs, _ []*Node[float64], output *Node[float64]) error {
	output.SetValue(inputs[0].Value(inputs[0].Dim(0)), 0)
	return nil
}

func (outOfRangeOp) Backward(*Node[float64], []*Node[float64], []*Node[float64]) error {
	return nil
}

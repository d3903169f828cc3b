package ops

import (
	"math"

	"github.com/pkg/errors"

	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

type softMaxOp[T tensor.Float] struct{}

// NewSoftMax returns a connector normalizing the last axis of its input with softmax.
func NewSoftMax[T tensor.Float]() *autodiff.Connector[T] {
	return autodiff.NewConnector[T](softMaxOp[T]{})
}

// SoftMax connects softmax(x) over the last axis.
func SoftMax[T tensor.Float](x *autodiff.Node[T]) (*autodiff.Node[T], error) {
	return NewSoftMax[T]().Connect(x)
}

func (softMaxOp[T]) Name() string { return "SoftMax" }

func (op softMaxOp[T]) OutputDims(inputs []*autodiff.Node[T]) (tensor.Shape, error) {
	if err := checkArity(op.Name(), inputs, 1); err != nil {
		return nil, err
	}
	if err := checkMinRank(op.Name(), inputs[0], 1); err != nil {
		return nil, err
	}
	return inputs[0].Shape().Clone(), nil
}

// Forward subtracts the row maximum before exponentiating.
func (softMaxOp[T]) Forward(inputs, _ []*autodiff.Node[T], output *autodiff.Node[T]) error {
	xs, ys := rightView(inputs[0].Values(), 2), rightView(output.Values(), 2)
	rows, n := xs.Dim(0), xs.Dim(1)
	xd, yd := xs.Data(), ys.Data()
	for r := range rows {
		x, y := xd[r*n:(r+1)*n], yd[r*n:(r+1)*n]
		maxX := math.Inf(-1)
		for _, v := range x {
			maxX = math.Max(maxX, float64(v))
		}
		var norm float64
		for i, v := range x {
			e := math.Exp(float64(v) - maxX)
			y[i] = T(e)
			norm += e
		}
		for i := range y {
			y[i] = T(float64(y[i]) / norm)
		}
	}
	return nil
}

// Backward applies dx_i = y_i (g_i - Σ_j g_j y_j) per row.
func (softMaxOp[T]) Backward(output *autodiff.Node[T], _, inputs []*autodiff.Node[T]) error {
	ys, gys := rightView(output.Values(), 2), rightView(output.Gradient(), 2)
	gxs := rightView(inputs[0].Gradient(), 2)
	rows, n := ys.Dim(0), ys.Dim(1)
	yd, gyd, gxd := ys.Data(), gys.Data(), gxs.Data()
	for r := range rows {
		y, g, gx := yd[r*n:(r+1)*n], gyd[r*n:(r+1)*n], gxd[r*n:(r+1)*n]
		var dot T
		for i := range y {
			dot += g[i] * y[i]
		}
		for i := range y {
			gx[i] += y[i] * (g[i] - dot)
		}
	}
	return nil
}

// tiny returns the smallest normal value of T. It keeps log and its derivative finite for
// probabilities that underflowed to zero.
func tiny[T tensor.Float]() float64 {
	if tensor.DataTypeOf[T]() == tensor.Float32 {
		return 0x1p-126
	}
	return 0x1p-1022
}

type crossEntropyOp[T tensor.Float] struct{}

// NewSparseCategoricalCrossEntropy returns a connector computing -Σ log(p[..., label]) for
// probabilities p of shape [..., classes] and integer-valued labels of shape [...]. The
// result, summed over all positions, has shape [1]. Labels receive no gradient.
func NewSparseCategoricalCrossEntropy[T tensor.Float]() *autodiff.Connector[T] {
	return autodiff.NewConnector[T](crossEntropyOp[T]{})
}

// SparseCategoricalCrossEntropy connects the cross entropy of probs against labels.
func SparseCategoricalCrossEntropy[T tensor.Float](probs, labels *autodiff.Node[T]) (*autodiff.Node[T], error) {
	return NewSparseCategoricalCrossEntropy[T]().Connect(probs, labels)
}

func (crossEntropyOp[T]) Name() string { return "SparseCategoricalCrossEntropy" }

func (op crossEntropyOp[T]) OutputDims(inputs []*autodiff.Node[T]) (tensor.Shape, error) {
	if err := checkArity(op.Name(), inputs, 2); err != nil {
		return nil, err
	}
	probs, labels := inputs[0], inputs[1]
	if err := checkMinRank(op.Name(), probs, 1); err != nil {
		return nil, err
	}
	if !labels.Shape().Equal(probs.Shape()[:probs.Rank()-1]) {
		return nil, errors.Wrapf(autodiff.ErrShapeMismatch,
			"labels of shape %s do not match probabilities of shape %s", labels.Shape(), probs.Shape())
	}
	return tensor.Shape{1}, nil
}

// label converts a label value into a class index, panicking with ErrOutOfRange for
// values outside [0, classes).
func label[T tensor.Float](v T, classes int) int {
	c := int(v)
	if T(c) != v || c < 0 || c >= classes {
		panic(errors.Wrapf(autodiff.ErrOutOfRange, "label %v is not a class index in [0, %d)", v, classes))
	}
	return c
}

func (crossEntropyOp[T]) Forward(inputs, _ []*autodiff.Node[T], output *autodiff.Node[T]) error {
	ps := rightView(inputs[0].Values(), 2)
	rows, classes := ps.Dim(0), ps.Dim(1)
	pd, ld := ps.Data(), inputs[1].Values().Data()
	eps := tiny[T]()
	var loss float64
	for r := range rows {
		loss -= math.Log(float64(pd[r*classes+label(ld[r], classes)]) + eps)
	}
	output.SetValue(T(loss), 0)
	return nil
}

func (crossEntropyOp[T]) Backward(output *autodiff.Node[T], _, inputs []*autodiff.Node[T]) error {
	ps := rightView(inputs[0].Values(), 2)
	gps := rightView(inputs[0].Gradient(), 2)
	rows, classes := ps.Dim(0), ps.Dim(1)
	pd, gpd, ld := ps.Data(), gps.Data(), inputs[1].Values().Data()
	g, eps := float64(output.Grad(0)), tiny[T]()
	for r := range rows {
		pos := r*classes + label(ld[r], classes)
		gpd[pos] += T(-g / (float64(pd[pos]) + eps))
	}
	return nil
}

package ops

import (
	"github.com/pkg/errors"

	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/parallel"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// dotOp is a generalized tensor product with the semantics of numpy.dot:
//   - if either operand is a scalar, the product is element-wise;
//   - if b is a vector, the last axis of a is contracted with it;
//   - otherwise the last axis of a is contracted with the second to last axis of b, giving
//     shape a[:-1] + b[:-2] + b[-1:].
type dotOp[T tensor.Float] struct{}

// NewDot returns a connector computing the dot product of its two inputs.
func NewDot[T tensor.Float]() *autodiff.Connector[T] {
	return autodiff.NewConnector[T](dotOp[T]{})
}

// Dot connects dot(a, b).
func Dot[T tensor.Float](a, b *autodiff.Node[T]) (*autodiff.Node[T], error) {
	return NewDot[T]().Connect(a, b)
}

func (dotOp[T]) Name() string { return "Dot" }

func (op dotOp[T]) OutputDims(inputs []*autodiff.Node[T]) (tensor.Shape, error) {
	if err := checkArity(op.Name(), inputs, 2); err != nil {
		return nil, err
	}
	a, b := inputs[0].Shape(), inputs[1].Shape()
	switch {
	case a.Rank() == 0:
		return b.Clone(), nil
	case b.Rank() == 0:
		return a.Clone(), nil
	}
	contracted := b.Dim(0)
	if b.Rank() >= 2 {
		contracted = b.Dim(-2)
	}
	if a.Dim(-1) != contracted {
		return nil, errors.Wrapf(autodiff.ErrShapeMismatch, "Dot of shapes %s and %s", a, b)
	}
	out := a[:a.Rank()-1].Clone()
	if b.Rank() >= 2 {
		out = append(out, b[:b.Rank()-2]...)
		out = append(out, b.Dim(-1))
	}
	return out, nil
}

// dotDims returns the sizes of the views used by the kernels: a as [rows, k] and b as
// [blocks, k, cols].
func dotDims(a, b tensor.Shape) (rows, blocks, k, cols int) {
	k = a.Dim(-1)
	rows = a.NumElements() / max(k, 1)
	if b.Rank() == 1 {
		return rows, 1, k, 1
	}
	cols = b.Dim(-1)
	return rows, b.NumElements() / max(k*cols, 1), k, cols
}

func (dotOp[T]) Forward(inputs, _ []*autodiff.Node[T], output *autodiff.Node[T]) error {
	a, b := inputs[0].Values(), inputs[1].Values()
	ad, bd, od := a.Data(), b.Data(), output.Values().Data()
	if a.IsScalar() || b.IsScalar() {
		for i := range od {
			od[i] = ad[i%len(ad)] * bd[i%len(bd)]
		}
		return nil
	}
	rows, blocks, k, cols := dotDims(a.Shape(), b.Shape())
	parallel.Rows(rows, func(start, end int) {
		for i := start; i < end; i++ {
			ar := ad[i*k : (i+1)*k]
			for j := range blocks {
				for l := range cols {
					var sum T
					for kk, v := range ar {
						sum += v * bd[(j*k+kk)*cols+l]
					}
					od[(i*blocks+j)*cols+l] = sum
				}
			}
		}
	})
	return nil
}

func (dotOp[T]) Backward(output *autodiff.Node[T], _, inputs []*autodiff.Node[T]) error {
	a, b := inputs[0].Values(), inputs[1].Values()
	ad, bd := a.Data(), b.Data()
	gad, gbd := inputs[0].Gradient().Data(), inputs[1].Gradient().Data()
	gd := output.Gradient().Data()
	if a.IsScalar() || b.IsScalar() {
		for i, g := range gd {
			gad[i%len(ad)] += g * bd[i%len(bd)]
			gbd[i%len(bd)] += g * ad[i%len(ad)]
		}
		return nil
	}
	rows, blocks, k, cols := dotDims(a.Shape(), b.Shape())
	for i := range rows {
		for j := range blocks {
			for l := range cols {
				g := gd[(i*blocks+j)*cols+l]
				for kk := range k {
					pos := (j*k+kk)*cols + l
					gad[i*k+kk] += g * bd[pos]
					gbd[pos] += g * ad[i*k+kk]
				}
			}
		}
	}
	return nil
}

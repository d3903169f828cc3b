package ops

import (
	"github.com/pkg/errors"

	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/parallel"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// denseOp is a fully connected layer owning its weights: y = W·x + B over the last axis
// of x, with W of shape [out, in] and B of shape [out].
type denseOp[T tensor.Float] struct {
	declaredIn int // 0 when inferred from the first connection
	inUnits    int
	outUnits   int
}

// NewDense returns a dense connector with outUnits output units. The number of input units
// is taken from the last axis of the first connected input.
func NewDense[T tensor.Float](outUnits int) *autodiff.Connector[T] {
	return autodiff.NewConnector[T](&denseOp[T]{outUnits: outUnits})
}

// NewDenseWithInput returns a dense connector for inputs whose last axis is inUnits.
// Its weights can be built upfront with BuildFor(tensor.Shape{inUnits}).
func NewDenseWithInput[T tensor.Float](inUnits, outUnits int) *autodiff.Connector[T] {
	return autodiff.NewConnector[T](&denseOp[T]{declaredIn: inUnits, outUnits: outUnits})
}

// Dense connects x to a new dense layer with outUnits output units.
func Dense[T tensor.Float](x *autodiff.Node[T], outUnits int) (*autodiff.Node[T], error) {
	return NewDense[T](outUnits).Connect(x)
}

func (op *denseOp[T]) Name() string { return "Dense" }

// Build allocates W with Xavier initialization and a zero B.
func (op *denseOp[T]) Build(c *autodiff.Connector[T], shapes []tensor.Shape) error {
	if len(shapes) != 1 || shapes[0].Rank() == 0 {
		return errors.Wrapf(autodiff.ErrInvalidArgument, "Dense takes one input of rank >= 1, got %v", shapes)
	}
	if op.outUnits <= 0 {
		return errors.Wrapf(autodiff.ErrInvalidArgument, "Dense with %d output units", op.outUnits)
	}
	in := shapes[0].Dim(-1)
	if op.declaredIn > 0 && in != op.declaredIn {
		return errors.Wrapf(autodiff.ErrShapeMismatch, "Dense expects %d input units, got shape %s",
			op.declaredIn, shapes[0])
	}
	op.inUnits = in
	w := c.AddWeight(op.outUnits, in)
	w.Values().Xavier(in, op.outUnits)
	c.AddWeight(op.outUnits)
	return nil
}

func (op *denseOp[T]) OutputDims(inputs []*autodiff.Node[T]) (tensor.Shape, error) {
	if err := checkArity(op.Name(), inputs, 1); err != nil {
		return nil, err
	}
	x := inputs[0]
	if err := checkMinRank(op.Name(), x, 1); err != nil {
		return nil, err
	}
	if x.Dim(-1) != op.inUnits {
		return nil, errors.Wrapf(autodiff.ErrShapeMismatch, "Dense with %d input units applied to shape %s",
			op.inUnits, x.Shape())
	}
	return withLastDim(x.Shape(), op.outUnits), nil
}

func (op *denseOp[T]) Forward(inputs, weights []*autodiff.Node[T], output *autodiff.Node[T]) error {
	denseForward(weights[0].Values(), weights[1].Values(), inputs[0].Values(), output.Values())
	return nil
}

func (op *denseOp[T]) Backward(output *autodiff.Node[T], weights, inputs []*autodiff.Node[T]) error {
	denseBackward(weights[0], weights[1], inputs[0], output)
	return nil
}

// linearOp is the dense transform with the weights passed as inputs (W, B, x), for weights
// owned by a module rather than by the connector.
type linearOp[T tensor.Float] struct{}

// NewLinear returns a connector computing W·x + B for inputs (W, B, x).
func NewLinear[T tensor.Float]() *autodiff.Connector[T] {
	return autodiff.NewConnector[T](linearOp[T]{})
}

// Linear connects W·x + B.
func Linear[T tensor.Float](w, b, x *autodiff.Node[T]) (*autodiff.Node[T], error) {
	return NewLinear[T]().Connect(w, b, x)
}

func (linearOp[T]) Name() string { return "Linear" }

func (op linearOp[T]) OutputDims(inputs []*autodiff.Node[T]) (tensor.Shape, error) {
	if err := checkArity(op.Name(), inputs, 3); err != nil {
		return nil, err
	}
	w, b, x := inputs[0], inputs[1], inputs[2]
	if w.Rank() != 2 || b.Rank() != 1 || x.Rank() == 0 {
		return nil, errors.Wrapf(autodiff.ErrInvalidArgument,
			"Linear takes W of rank 2, B of rank 1 and x of rank >= 1, got %s, %s and %s",
			w.Shape(), b.Shape(), x.Shape())
	}
	if b.Dim(0) != w.Dim(0) || x.Dim(-1) != w.Dim(1) {
		return nil, errors.Wrapf(autodiff.ErrShapeMismatch, "Linear with W %s and B %s applied to shape %s",
			w.Shape(), b.Shape(), x.Shape())
	}
	return withLastDim(x.Shape(), w.Dim(0)), nil
}

func (linearOp[T]) Forward(inputs, _ []*autodiff.Node[T], output *autodiff.Node[T]) error {
	denseForward(inputs[0].Values(), inputs[1].Values(), inputs[2].Values(), output.Values())
	return nil
}

func (linearOp[T]) Backward(output *autodiff.Node[T], _, inputs []*autodiff.Node[T]) error {
	denseBackward(inputs[0], inputs[1], inputs[2], output)
	return nil
}

// denseForward computes out[r, i] = B[i] + Σ_j W[i, j] x[r, j], rows r running over all
// leading axes of x.
func denseForward[T tensor.Float](w, b, x, out *tensor.Tensor[T]) {
	xs, ys := rightView(x, 2), rightView(out, 2)
	rows, in, units := xs.Dim(0), xs.Dim(1), ys.Dim(1)
	xd, yd, wd, bd := xs.Data(), ys.Data(), w.Data(), b.Data()
	parallel.Rows(rows, func(start, end int) {
		for r := start; r < end; r++ {
			xr := xd[r*in : (r+1)*in]
			yr := yd[r*units : (r+1)*units]
			for i := range units {
				sum := bd[i]
				wr := wd[i*in : (i+1)*in]
				for j, v := range xr {
					sum += wr[j] * v
				}
				yr[i] = sum
			}
		}
	})
}

func denseBackward[T tensor.Float](w, b, x, output *autodiff.Node[T]) {
	xs := rightView(x.Values(), 2)
	gxs := rightView(x.Gradient(), 2)
	gys := rightView(output.Gradient(), 2)
	rows, in, units := xs.Dim(0), xs.Dim(1), gys.Dim(1)
	xd, gxd, gyd := xs.Data(), gxs.Data(), gys.Data()
	wd, gwd, gbd := w.Values().Data(), w.Gradient().Data(), b.Gradient().Data()

	parallel.Rows(rows, func(start, end int) {
		for r := start; r < end; r++ {
			gxr := gxd[r*in : (r+1)*in]
			for i := range units {
				g := gyd[r*units+i]
				wr := wd[i*in : (i+1)*in]
				for j := range gxr {
					gxr[j] += wr[j] * g
				}
			}
		}
	})
	// Every worker owns a range of output units, so W and B rows are never shared.
	parallel.Rows(units, func(start, end int) {
		for i := start; i < end; i++ {
			gwr := gwd[i*in : (i+1)*in]
			for r := range rows {
				g := gyd[r*units+i]
				gbd[i] += g
				xr := xd[r*in : (r+1)*in]
				for j, v := range xr {
					gwr[j] += v * g
				}
			}
		}
	})
}

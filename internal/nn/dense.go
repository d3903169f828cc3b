package nn

import (
	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/autodiff/ops"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// Dense is a fully connected layer: y = x·Wᵀ + B over the last axis of x.
//
// W has shape [out, in] and starts with Xavier values; B has shape [out] and starts at zero.
// Inputs of shape [..., in] produce outputs of shape [..., out].
type Dense[T tensor.Float] struct {
	Base[T]
	w, b    *autodiff.Node[T]
	in, out int
}

// NewDense creates a dense layer mapping in units to out units.
func NewDense[T tensor.Float](in, out int) *Dense[T] {
	d := &Dense[T]{in: in, out: out}
	d.w = d.AddWeight(out, in)
	d.b = d.AddWeight(out)
	d.w.Values().Xavier(in, out)
	logCreated("Dense", 2, d.NumParameters())
	return d
}

// Call implements Module.
func (d *Dense[T]) Call(inputs ...*autodiff.Node[T]) (*autodiff.Node[T], error) {
	x, err := single("Dense", inputs)
	if err != nil {
		return nil, err
	}
	return ops.Linear(d.w, d.b, x)
}

// W returns the weight matrix.
func (d *Dense[T]) W() *autodiff.Node[T] { return d.w }

// B returns the bias.
func (d *Dense[T]) B() *autodiff.Node[T] { return d.b }

// InUnits returns the size of the input's last axis.
func (d *Dense[T]) InUnits() int { return d.in }

// OutUnits returns the size of the output's last axis.
func (d *Dense[T]) OutUnits() int { return d.out }

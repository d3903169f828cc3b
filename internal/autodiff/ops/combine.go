package ops

import (
	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// combineOp applies a binary function element-wise with the restricted broadcasting rule of
// tensor.BroadcastShapes: the lower-rank operand must match the trailing axes of the other
// and is repeated along the leading ones. da and db are the partial derivatives.
type combineOp[T tensor.Float] struct {
	name   string
	f      func(a, b T) T
	da, db func(a, b T) T
}

func (op *combineOp[T]) Name() string { return op.name }

func (op *combineOp[T]) OutputDims(inputs []*autodiff.Node[T]) (tensor.Shape, error) {
	if err := checkArity(op.name, inputs, 2); err != nil {
		return nil, err
	}
	return tensor.BroadcastShapes(inputs[0].Shape(), inputs[1].Shape())
}

func (op *combineOp[T]) Forward(inputs, _ []*autodiff.Node[T], output *autodiff.Node[T]) error {
	a, b := inputs[0].Values().Data(), inputs[1].Values().Data()
	out := output.Values().Data()
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	for k := range out {
		out[k] = op.f(a[k%len(a)], b[k%len(b)])
	}
	return nil
}

// Backward sums the gradient of the broadcast operand over the axes it was repeated along.
// When both inputs are the same node both contributions land in the same buffer.
func (op *combineOp[T]) Backward(output *autodiff.Node[T], _, inputs []*autodiff.Node[T]) error {
	a, b := inputs[0].Values().Data(), inputs[1].Values().Data()
	ga, gb := inputs[0].Gradient().Data(), inputs[1].Gradient().Data()
	g := output.Gradient().Data()
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	for k, gk := range g {
		i, j := k%len(a), k%len(b)
		ga[i] += gk * op.da(a[i], b[j])
		gb[j] += gk * op.db(a[i], b[j])
	}
	return nil
}

// NewAdd returns a connector computing a + b.
func NewAdd[T tensor.Float]() *autodiff.Connector[T] {
	return autodiff.NewConnector[T](&combineOp[T]{
		name: "Add",
		f:    func(a, b T) T { return a + b },
		da:   func(_, _ T) T { return 1 },
		db:   func(_, _ T) T { return 1 },
	})
}

// NewSubtract returns a connector computing a - b.
func NewSubtract[T tensor.Float]() *autodiff.Connector[T] {
	return autodiff.NewConnector[T](&combineOp[T]{
		name: "Subtract",
		f:    func(a, b T) T { return a - b },
		da:   func(_, _ T) T { return 1 },
		db:   func(_, _ T) T { return -1 },
	})
}

// NewMult returns a connector computing the element-wise product a * b.
func NewMult[T tensor.Float]() *autodiff.Connector[T] {
	return autodiff.NewConnector[T](&combineOp[T]{
		name: "Mult",
		f:    func(a, b T) T { return a * b },
		da:   func(_, b T) T { return b },
		db:   func(a, _ T) T { return a },
	})
}

// NewDivide returns a connector computing the element-wise quotient a / b.
func NewDivide[T tensor.Float]() *autodiff.Connector[T] {
	return autodiff.NewConnector[T](&combineOp[T]{
		name: "Divide",
		f:    func(a, b T) T { return a / b },
		da:   func(_, b T) T { return 1 / b },
		db:   func(a, b T) T { return -a / (b * b) },
	})
}

// Add connects a + b.
func Add[T tensor.Float](a, b *autodiff.Node[T]) (*autodiff.Node[T], error) {
	return NewAdd[T]().Connect(a, b)
}

// Subtract connects a - b.
func Subtract[T tensor.Float](a, b *autodiff.Node[T]) (*autodiff.Node[T], error) {
	return NewSubtract[T]().Connect(a, b)
}

// Mult connects a * b.
func Mult[T tensor.Float](a, b *autodiff.Node[T]) (*autodiff.Node[T], error) {
	return NewMult[T]().Connect(a, b)
}

// Divide connects a / b.
func Divide[T tensor.Float](a, b *autodiff.Node[T]) (*autodiff.Node[T], error) {
	return NewDivide[T]().Connect(a, b)
}

package ops

import (
	"math"

	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// unaryOp applies a scalar function element by element. derivative receives the input x
// and the already computed output y = f(x).
type unaryOp[T tensor.Float] struct {
	name       string
	f          func(x float64) float64
	derivative func(x, y float64) float64
}

func (op *unaryOp[T]) Name() string { return op.name }

func (op *unaryOp[T]) OutputDims(inputs []*autodiff.Node[T]) (tensor.Shape, error) {
	if err := checkArity(op.name, inputs, 1); err != nil {
		return nil, err
	}
	return inputs[0].Shape().Clone(), nil
}

func (op *unaryOp[T]) Forward(inputs, _ []*autodiff.Node[T], output *autodiff.Node[T]) error {
	x, y := inputs[0].Values().Data(), output.Values().Data()
	for i, v := range x {
		y[i] = T(op.f(float64(v)))
	}
	return nil
}

func (op *unaryOp[T]) Backward(output *autodiff.Node[T], _, inputs []*autodiff.Node[T]) error {
	x, y := inputs[0].Values().Data(), output.Values().Data()
	g, gx := output.Gradient().Data(), inputs[0].Gradient().Data()
	for i := range gx {
		gx[i] += g[i] * T(op.derivative(float64(x[i]), float64(y[i])))
	}
	return nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// NewSin returns a connector computing sin element-wise.
func NewSin[T tensor.Float]() *autodiff.Connector[T] {
	return autodiff.NewConnector[T](&unaryOp[T]{
		name:       "Sin",
		f:          math.Sin,
		derivative: func(x, _ float64) float64 { return math.Cos(x) },
	})
}

// NewCos returns a connector computing cos element-wise.
func NewCos[T tensor.Float]() *autodiff.Connector[T] {
	return autodiff.NewConnector[T](&unaryOp[T]{
		name:       "Cos",
		f:          math.Cos,
		derivative: func(x, _ float64) float64 { return -math.Sin(x) },
	})
}

// NewSigmoid returns a connector computing the logistic function 1/(1+exp(-x)).
func NewSigmoid[T tensor.Float]() *autodiff.Connector[T] {
	return autodiff.NewConnector[T](&unaryOp[T]{
		name:       "Sigmoid",
		f:          sigmoid,
		derivative: func(x, _ float64) float64 { s := sigmoid(x); return s * (1 - s) },
	})
}

// NewReLU returns a connector computing max(0, x). The derivative at 0 is taken as 1.
func NewReLU[T tensor.Float]() *autodiff.Connector[T] {
	return autodiff.NewConnector[T](&unaryOp[T]{
		name: "ReLU",
		f: func(x float64) float64 {
			if x < 0 {
				return 0
			}
			return x
		},
		derivative: func(x, _ float64) float64 {
			if x < 0 {
				return 0
			}
			return 1
		},
	})
}

// NewTanh returns a connector computing tanh element-wise.
func NewTanh[T tensor.Float]() *autodiff.Connector[T] {
	return autodiff.NewConnector[T](&unaryOp[T]{
		name:       "Tanh",
		f:          math.Tanh,
		derivative: func(_, y float64) float64 { return 1 - y*y },
	})
}

// NewExp returns a connector computing exp element-wise.
func NewExp[T tensor.Float]() *autodiff.Connector[T] {
	return autodiff.NewConnector[T](&unaryOp[T]{
		name:       "Exp",
		f:          math.Exp,
		derivative: func(x, _ float64) float64 { return math.Exp(x) },
	})
}

// Sin connects sin(x).
func Sin[T tensor.Float](x *autodiff.Node[T]) (*autodiff.Node[T], error) {
	return NewSin[T]().Connect(x)
}

// Cos connects cos(x).
func Cos[T tensor.Float](x *autodiff.Node[T]) (*autodiff.Node[T], error) {
	return NewCos[T]().Connect(x)
}

// Sigmoid connects 1/(1+exp(-x)).
func Sigmoid[T tensor.Float](x *autodiff.Node[T]) (*autodiff.Node[T], error) {
	return NewSigmoid[T]().Connect(x)
}

// ReLU connects max(0, x).
func ReLU[T tensor.Float](x *autodiff.Node[T]) (*autodiff.Node[T], error) {
	return NewReLU[T]().Connect(x)
}

// Tanh connects tanh(x).
func Tanh[T tensor.Float](x *autodiff.Node[T]) (*autodiff.Node[T], error) {
	return NewTanh[T]().Connect(x)
}

// Exp connects exp(x).
func Exp[T tensor.Float](x *autodiff.Node[T]) (*autodiff.Node[T], error) {
	return NewExp[T]().Connect(x)
}

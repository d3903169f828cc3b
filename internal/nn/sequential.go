package nn

import (
	"github.com/pkg/errors"

	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input. Weights are collected from the
// modules in order, so a Sequential can be saved and optimized as a whole.
//
// Example:
//
//	model := nn.NewSequential[float64](
//	    nn.NewDense[float64](1, 64),
//	    nn.NewSigmoid[float64](),
//	    nn.NewDense[float64](64, 1),
//	)
//
//	output, err := model.Call(input)
type Sequential[T tensor.Float] struct {
	Base[T]
	modules []Module[T]
}

// NewSequential creates a new Sequential container.
func NewSequential[T tensor.Float](modules ...Module[T]) *Sequential[T] {
	s := &Sequential[T]{}
	for _, m := range modules {
		s.Add(m)
	}
	return s
}

// Call applies all modules in sequence.
func (s *Sequential[T]) Call(inputs ...*autodiff.Node[T]) (*autodiff.Node[T], error) {
	output, err := single("Sequential", inputs)
	if err != nil {
		return nil, err
	}
	for i, m := range s.modules {
		output, err = m.Call(output)
		if err != nil {
			return nil, errors.WithMessagef(err, "module %d of Sequential", i)
		}
	}
	return output, nil
}

// Add appends a module to the sequence.
//
// This allows building models incrementally:
//
//	model := nn.NewSequential[float32]()
//	model.Add(nn.NewDense[float32](784, 128))
//	model.Add(nn.NewReLU[float32]())
func (s *Sequential[T]) Add(m Module[T]) {
	s.modules = append(s.modules, m)
	s.AddModule(m)
}

// Len returns the number of modules in the sequence.
func (s *Sequential[T]) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential[T]) Module(index int) Module[T] {
	if index < 0 || index >= len(s.modules) {
		panic(errors.Wrapf(autodiff.ErrOutOfRange, "Sequential.Module: index %d, %d modules", index, len(s.modules)))
	}
	return s.modules[index]
}

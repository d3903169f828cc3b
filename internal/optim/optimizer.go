// Package optim implements optimization algorithms for training networks built with the
// autodiff package.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// An optimizer visits every weight the loss depends on and updates it from its gradient.
// Auxiliary state (momenta, moment estimates) is created lazily, once per distinct weight.
//
// Example usage:
//
//	optimizer := optim.NewAdam[float32](optim.AdamConfig{LR: 0.001})
//
//	for step := range steps {
//	    loss, err := buildLoss(model, batch)
//	    ...
//	    if err := optim.Minimize[float32](optimizer, loss); err != nil {
//	        return err
//	    }
//	}
package optim

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer[T tensor.Float] interface {
	// Step updates every weight loss depends on from its current gradient. Gradients must
	// have been computed with loss.ComputeGrad.
	Step(loss *autodiff.Node[T]) error

	// LR returns the current learning rate.
	LR() float64
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float64 // Learning rate
}

// Minimize runs one training step on loss: gradients are recomputed from zero, then opt
// applies them.
func Minimize[T tensor.Float](opt Optimizer[T], loss *autodiff.Node[T]) error {
	loss.ZeroGrad()
	if err := loss.ComputeGrad(); err != nil {
		return err
	}
	return opt.Step(loss)
}

// weightStates keeps a fixed number of auxiliary tensors per weight, keyed by the weight
// node's identity.
type weightStates[T tensor.Float] struct {
	perWeight int
	states    map[*autodiff.Node[T]][]*tensor.Tensor[T]
}

func newWeightStates[T tensor.Float](perWeight int) weightStates[T] {
	return weightStates[T]{
		perWeight: perWeight,
		states:    make(map[*autodiff.Node[T]][]*tensor.Tensor[T]),
	}
}

// get returns the state of w, creating zero tensors shaped like w on first use.
func (s *weightStates[T]) get(w *autodiff.Node[T]) []*tensor.Tensor[T] {
	state, found := s.states[w]
	if !found {
		state = make([]*tensor.Tensor[T], s.perWeight)
		for i := range state {
			state[i] = tensor.FromShape[T](w.Shape())
		}
		s.states[w] = state
	}
	return state
}

// State returns the auxiliary tensors kept for w, or nil if w has not been visited yet.
func (s *weightStates[T]) State(w *autodiff.Node[T]) []*tensor.Tensor[T] {
	return s.states[w]
}

// SetState replaces the auxiliary tensors kept for w. The number of tensors and their
// shapes must match what the optimizer keeps.
func (s *weightStates[T]) SetState(w *autodiff.Node[T], state []*tensor.Tensor[T]) error {
	if len(state) != s.perWeight {
		return errors.Wrapf(autodiff.ErrInvalidArgument, "optimizer keeps %d state tensors per weight, got %d",
			s.perWeight, len(state))
	}
	for i, t := range state {
		if !t.Shape().Equal(w.Shape()) {
			return errors.Wrapf(autodiff.ErrShapeMismatch, "state tensor %d has shape %s, weight %s has shape %s",
				i, t.Shape(), w, w.Shape())
		}
	}
	s.states[w] = state
	return nil
}

// NumStates returns the number of weights with auxiliary state.
func (s *weightStates[T]) NumStates() int {
	return len(s.states)
}

// eachWeight calls fn with the value and gradient buffers of every weight loss depends on.
func eachWeight[T tensor.Float](name string, loss *autodiff.Node[T], fn func(w *autodiff.Node[T], values, grad []T)) error {
	if loss == nil {
		return errors.Wrapf(autodiff.ErrInvalidArgument, "%s step on a nil loss", name)
	}
	count := 0
	loss.IterateWeights(func(w *autodiff.Node[T]) {
		count++
		fn(w, w.Values().Data(), w.Gradient().Data())
	})
	if count == 0 {
		klog.Warningf("%s step: %s depends on no weights, nothing to update", name, loss)
	}
	return nil
}

func errorf(format string, args ...any) error {
	return errors.Wrapf(autodiff.ErrInvalidArgument, format, args...)
}

package optim

import (
	"k8s.io/klog/v2"

	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Example:
//
//	optimizer := optim.NewSGD[float64](optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
type SGD[T tensor.Float] struct {
	weightStates[T]
	lr       float64
	momentum float64
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float64 // Learning rate (default: 0.01)
	Momentum float64 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
func NewSGD[T tensor.Float](config SGDConfig) *SGD[T] {
	if config.LR == 0 {
		config.LR = 0.01
	}
	perWeight := 0
	if config.Momentum != 0 {
		perWeight = 1
	}
	klog.V(1).Infof("created SGD optimizer: lr=%g momentum=%g", config.LR, config.Momentum)
	return &SGD[T]{
		weightStates: newWeightStates[T](perWeight),
		lr:           config.LR,
		momentum:     config.Momentum,
	}
}

// Step implements Optimizer.
func (s *SGD[T]) Step(loss *autodiff.Node[T]) error {
	lr, momentum := T(s.lr), T(s.momentum)
	return eachWeight(s.Name(), loss, func(w *autodiff.Node[T], values, grad []T) {
		if s.momentum == 0 {
			for i, g := range grad {
				values[i] -= lr * g
			}
			return
		}
		velocity := s.get(w)[0].Data()
		for i, g := range grad {
			velocity[i] = momentum*velocity[i] + g
			values[i] -= lr * velocity[i]
		}
	})
}

// Name returns "SGD".
func (s *SGD[T]) Name() string { return "SGD" }

// LR returns the current learning rate.
func (s *SGD[T]) LR() float64 { return s.lr }

// SetLR updates the learning rate.
//
// Useful for learning rate scheduling during training.
func (s *SGD[T]) SetLR(lr float64) { s.lr = lr }

// Config returns the hyperparameters, for checkpoints.
func (s *SGD[T]) Config() map[string]float64 {
	return map[string]float64{"lr": s.lr, "momentum": s.momentum}
}

// LoadConfig restores the learning rate stored by Config. The momentum is a structural
// setting of the optimizer and has to match.
func (s *SGD[T]) LoadConfig(config map[string]float64) error {
	if momentum, found := config["momentum"]; found && momentum != s.momentum {
		return errorf("SGD momentum %g stored, optimizer has %g", momentum, s.momentum)
	}
	if lr, found := config["lr"]; found {
		s.lr = lr
	}
	return nil
}

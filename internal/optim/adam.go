package optim

import (
	"math"

	"k8s.io/klog/v2"

	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)  // Parameter update
//
// The timestep t counts Step calls.
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam[T tensor.Float] struct {
	weightStates[T]
	lr           float64
	beta1, beta2 float64
	eps          float64
	t            int // Timestep for bias correction
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float64    // Learning rate (default: 0.001)
	Betas [2]float64 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float64    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer.
//
// Default hyperparameters:
//   - LR: 0.001
//   - Beta1: 0.9
//   - Beta2: 0.999
//   - Eps: 1e-8
func NewAdam[T tensor.Float](config AdamConfig) *Adam[T] {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	klog.V(1).Infof("created Adam optimizer: lr=%g betas=%v eps=%g", config.LR, config.Betas, config.Eps)
	return &Adam[T]{
		weightStates: newWeightStates[T](2),
		lr:           config.LR,
		beta1:        config.Betas[0],
		beta2:        config.Betas[1],
		eps:          config.Eps,
	}
}

// Step implements Optimizer.
func (a *Adam[T]) Step(loss *autodiff.Node[T]) error {
	a.t++
	biasCorrection1 := 1 - math.Pow(a.beta1, float64(a.t))
	biasCorrection2 := 1 - math.Pow(a.beta2, float64(a.t))

	return eachWeight(a.Name(), loss, func(w *autodiff.Node[T], values, grad []T) {
		state := a.get(w)
		m, v := state[0].Data(), state[1].Data()
		for i, gT := range grad {
			g := float64(gT)
			mi := a.beta1*float64(m[i]) + (1-a.beta1)*g
			vi := a.beta2*float64(v[i]) + (1-a.beta2)*g*g
			m[i], v[i] = T(mi), T(vi)
			mHat := mi / biasCorrection1
			vHat := vi / biasCorrection2
			values[i] -= T(a.lr * mHat / (math.Sqrt(max(vHat, 0)) + a.eps))
		}
	})
}

// Name returns "Adam".
func (a *Adam[T]) Name() string { return "Adam" }

// LR returns the current learning rate.
func (a *Adam[T]) LR() float64 { return a.lr }

// SetLR updates the learning rate.
func (a *Adam[T]) SetLR(lr float64) { a.lr = lr }

// Steps returns the number of steps taken.
func (a *Adam[T]) Steps() int { return a.t }

// Config returns the hyperparameters and the timestep, for checkpoints.
func (a *Adam[T]) Config() map[string]float64 {
	return map[string]float64{
		"lr":    a.lr,
		"beta1": a.beta1,
		"beta2": a.beta2,
		"eps":   a.eps,
		"steps": float64(a.t),
	}
}

// LoadConfig restores what Config returned. Missing keys keep their current value.
func (a *Adam[T]) LoadConfig(config map[string]float64) error {
	for key, target := range map[string]*float64{"lr": &a.lr, "beta1": &a.beta1, "beta2": &a.beta2, "eps": &a.eps} {
		if value, found := config[key]; found {
			*target = value
		}
	}
	if steps, found := config["steps"]; found {
		if steps < 0 || steps != math.Trunc(steps) {
			return errorf("invalid Adam step count %g", steps)
		}
		a.t = int(steps)
	}
	return nil
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimizers updating the weights a loss depends on.
//
// Example:
//
//	opt := optim.NewAdam[float64](optim.AdamConfig{LR: 0.001})
//	for step := 0; step < steps; step++ {
//		if err := in.Forward(); err != nil { ... }
//		if err := optim.Minimize(opt, loss); err != nil { ... }
//	}
package optim

import (
	"github.com/hsandmeyer/snnl-sub000/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/optim"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// Optimizer updates weights from the gradients of a loss.
type Optimizer[T tensor.Float] = optim.Optimizer[T]

// Config holds the settings shared by all optimizers.
type Config = optim.Config

// SGD is stochastic gradient descent with optional momentum.
type SGD[T tensor.Float] = optim.SGD[T]

// SGDConfig configures SGD.
type SGDConfig = optim.SGDConfig

// Adam is the Adam optimizer.
type Adam[T tensor.Float] = optim.Adam[T]

// AdamConfig configures Adam.
type AdamConfig = optim.AdamConfig

// NewSGD creates an SGD optimizer. Zero fields take their defaults.
func NewSGD[T tensor.Float](config SGDConfig) *SGD[T] {
	return optim.NewSGD[T](config)
}

// NewAdam creates an Adam optimizer. Zero fields take their defaults.
func NewAdam[T tensor.Float](config AdamConfig) *Adam[T] {
	return optim.NewAdam[T](config)
}

// Minimize zeroes the gradients of the graph behind loss, back-propagates and steps opt.
func Minimize[T tensor.Float](opt Optimizer[T], loss *autodiff.Node[T]) error {
	return optim.Minimize(opt, loss)
}

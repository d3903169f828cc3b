// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package data feeds training loops with shuffled mini-batches.
//
// Example:
//
//	gen, err := data.NewBatchGenerator(data.Config{EpochSize: 2048}, images, labels)
//	batch, err := gen.GenerateBatch(32) // batch[0] images, batch[1] labels
package data

import (
	"github.com/hsandmeyer/snnl-sub000/internal/data"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// Config controls a BatchGenerator.
type Config = data.Config

// BatchGenerator draws mini-batches from tensors sharing their leading axis.
type BatchGenerator[T tensor.Float] = data.BatchGenerator[T]

// NewBatchGenerator creates a generator over data.
func NewBatchGenerator[T tensor.Float](config Config, tensors ...*tensor.Tensor[T]) (*BatchGenerator[T], error) {
	return data.NewBatchGenerator(config, tensors...)
}

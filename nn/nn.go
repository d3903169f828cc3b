// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides network modules built on the autodiff graph.
//
// A module owns its weights and connects a fresh sub-graph over them on every Call:
//
//	model := nn.NewSequential[float64](
//		nn.NewDense[float64](1, 64),
//		nn.NewSigmoid[float64](),
//		nn.NewDense[float64](64, 1),
//	)
//	out, err := model.Call(x)
//
// Save and Load persist the weights of a module in insertion order; Checkpoint also keeps the
// optimizer state so that training can resume.
package nn

import (
	"github.com/hsandmeyer/snnl-sub000/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/nn"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// Module is the interface of all network components.
type Module[T tensor.Float] = nn.Module[T]

// Base keeps the ordered, deduplicated weights of a module. Custom modules embed it.
type Base[T tensor.Float] = nn.Base[T]

// Dense is a fully connected layer: y = W·x + B.
type Dense[T tensor.Float] = nn.Dense[T]

// Conv2D is a 2D convolution with "same" padding and a per-channel bias.
type Conv2D[T tensor.Float] = nn.Conv2D[T]

// SimpleRNN is an Elman recurrent layer.
type SimpleRNN[T tensor.Float] = nn.SimpleRNN[T]

// Sequential chains modules.
type Sequential[T tensor.Float] = nn.Sequential[T]

// Activation wraps a weightless operator as a module.
type Activation[T tensor.Float] = nn.Activation[T]

// Checkpoint bundles a model, its optimizer and training progress.
type Checkpoint[T tensor.Float] = nn.Checkpoint[T]

// OptimizerState is what a Checkpoint needs from an optimizer.
type OptimizerState[T tensor.Float] = nn.OptimizerState[T]

// FileExtension is appended to checkpoint paths that have none.
const FileExtension = nn.FileExtension

// NewDense creates a dense layer mapping in features to out features.
func NewDense[T tensor.Float](in, out int) *Dense[T] {
	return nn.NewDense[T](in, out)
}

// NewConv2D creates a convolution with a kw x kh kernel. Kernel sizes must be odd.
func NewConv2D[T tensor.Float](kw, kh, in, out int) (*Conv2D[T], error) {
	return nn.NewConv2D[T](kw, kh, in, out)
}

// NewSimpleRNN creates a recurrent layer with in input and out hidden features.
func NewSimpleRNN[T tensor.Float](in, out int) *SimpleRNN[T] {
	return nn.NewSimpleRNN[T](in, out)
}

// NewSequential chains modules, capturing their weights.
func NewSequential[T tensor.Float](modules ...Module[T]) *Sequential[T] {
	return nn.NewSequential(modules...)
}

// NewActivation wraps fn as a module named name.
func NewActivation[T tensor.Float](name string, fn func(x *autodiff.Node[T]) (*autodiff.Node[T], error)) *Activation[T] {
	return nn.NewActivation(name, fn)
}

func NewSigmoid[T tensor.Float]() *Activation[T] { return nn.NewSigmoid[T]() }
func NewReLU[T tensor.Float]() *Activation[T]    { return nn.NewReLU[T]() }
func NewTanh[T tensor.Float]() *Activation[T]    { return nn.NewTanh[T]() }
func NewSoftMax[T tensor.Float]() *Activation[T] { return nn.NewSoftMax[T]() }
func NewFlatten[T tensor.Float]() *Activation[T] { return nn.NewFlatten[T]() }

// NumParameters returns the number of scalar weights of m.
func NumParameters[T tensor.Float](m Module[T]) int {
	return nn.NumParameters[T](m)
}

// Save writes the weights of m to path.
func Save[T tensor.Float](m Module[T], path string) error {
	return nn.Save(m, path)
}

// Load overwrites the weights of m with those stored at path.
func Load[T tensor.Float](m Module[T], path string) error {
	return nn.Load(m, path)
}

// LoadCheckpoint restores model and optimizer from path. optimizer may be nil.
func LoadCheckpoint[T tensor.Float](path string, model Module[T], optimizer OptimizerState[T]) (*Checkpoint[T], error) {
	return nn.LoadCheckpoint(path, model, optimizer)
}

// ExportSafeTensors writes the weights of m in the SafeTensors format.
func ExportSafeTensors[T tensor.Float](m Module[T], path string, metadata map[string]string) error {
	return nn.ExportSafeTensors(m, path, metadata)
}

// SparseAccuracy returns the share of rows whose arg-max matches the label.
func SparseAccuracy[T tensor.Float](probs, labels *autodiff.Node[T]) (float64, error) {
	return nn.SparseAccuracy(probs, labels)
}

// ImportSafeTensors loads weights written by ExportSafeTensors into m.
func ImportSafeTensors[T tensor.Float](m Module[T], path string) error {
	return nn.ImportSafeTensors(m, path)
}

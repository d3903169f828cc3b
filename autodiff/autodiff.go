// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides the computation graph and reverse-mode differentiation.
//
// A graph is made of Nodes, holding a value and a gradient tensor, and Connectors, which
// apply a differentiable operation to input nodes and produce an output node. Connecting
// computes the output right away; Forward re-propagates changed values downstream and
// ComputeGrad accumulates gradients into every node the output depends on.
//
// Example:
//
//	x := autodiff.NewNode[float64](32, 1)
//	dense := autodiff.NewDense[float64](16)
//	h, err := dense.Connect(x)
//	y, err := autodiff.Sigmoid(h)
//	loss, err := autodiff.Sum(y)
//
//	err = loss.ComputeGrad()
//	w, err := dense.Weight(0)
//	fmt.Println(w.Gradient())
package autodiff

import (
	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// Node is a vertex of the computation graph.
type Node[T tensor.Float] = autodiff.Node[T]

// Connector wraps an Operator into the graph.
type Connector[T tensor.Float] = autodiff.Connector[T]

// Operator is the differentiable operation a Connector runs.
type Operator[T tensor.Float] = autodiff.Operator[T]

// Builder is implemented by operators that own weights.
type Builder[T tensor.Float] = autodiff.Builder[T]

// Error kinds.
var (
	ErrShapeMismatch   = autodiff.ErrShapeMismatch
	ErrOutOfRange      = autodiff.ErrOutOfRange
	ErrInvalidArgument = autodiff.ErrInvalidArgument
	ErrInvalidTopology = autodiff.ErrInvalidTopology
)

// NewNode creates a leaf node with zero value and gradient.
func NewNode[T tensor.Float](dims ...int) *Node[T] {
	return autodiff.NewNode[T](dims...)
}

// NewWeight creates a trainable leaf node.
func NewWeight[T tensor.Float](dims ...int) *Node[T] {
	return autodiff.NewWeight[T](dims...)
}

// NewConstant creates a leaf node that never triggers a forward pass on its own.
func NewConstant[T tensor.Float](dims ...int) *Node[T] {
	return autodiff.NewConstant[T](dims...)
}

// NodeFromTensor creates a leaf node holding value.
func NodeFromTensor[T tensor.Float](value *tensor.Tensor[T]) *Node[T] {
	return autodiff.NodeFromTensor(value)
}

// NewConnector creates a connector running a custom operator.
func NewConnector[T tensor.Float](op Operator[T]) *Connector[T] {
	return autodiff.NewConnector(op)
}

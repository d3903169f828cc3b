// Package nn composes operators into modules that own their weights.
//
// A module is called on input nodes and returns the output node of the graph it connected.
// Every call connects a fresh sub-graph over the same weight nodes, so a module can be
// applied to several inputs, or unrolled over time, while its weights stay shared:
//
//	dense := nn.NewDense[float64](32, 1)
//	out, err := dense.Call(x)
//
// Weights are kept in insertion order, which is also the order Save and Load use.
package nn

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// Module is the interface of all network components.
type Module[T tensor.Float] interface {
	// Call connects the module to inputs and returns the output node.
	Call(inputs ...*autodiff.Node[T]) (*autodiff.Node[T], error)

	// Weights returns the trainable weights, in insertion order.
	Weights() []*autodiff.Node[T]
}

// Base keeps the weights of a module: an insertion-ordered list without duplicates. Modules
// embed it and register their weights and children from their constructor.
type Base[T tensor.Float] struct {
	weights []*autodiff.Node[T]
	seen    map[*autodiff.Node[T]]bool
}

// AddWeight allocates a zero-valued weight node and registers it.
func (b *Base[T]) AddWeight(dims ...int) *autodiff.Node[T] {
	w := autodiff.NewWeight[T](dims...)
	b.InsertWeight(w)
	return w
}

// InsertWeight registers an existing weight node. Registering it again is a no-op.
func (b *Base[T]) InsertWeight(w *autodiff.Node[T]) {
	if b.seen == nil {
		b.seen = make(map[*autodiff.Node[T]]bool)
	}
	if b.seen[w] {
		return
	}
	b.seen[w] = true
	b.weights = append(b.weights, w)
}

// AddModule captures the weights of a child module, so that they are saved and optimized
// with the parent's.
func (b *Base[T]) AddModule(m Module[T]) {
	for _, w := range m.Weights() {
		b.InsertWeight(w)
	}
}

// TrackConnector captures the weights of a connector that owns some. The connector must have
// been built, see autodiff.Connector.BuildFor.
func (b *Base[T]) TrackConnector(c *autodiff.Connector[T]) error {
	if !c.IsBuilt() {
		return errors.Wrapf(autodiff.ErrInvalidArgument, "%s is not built yet, its weights are unknown", c)
	}
	for _, w := range c.Weights() {
		b.InsertWeight(w)
	}
	return nil
}

// Weights implements Module.
func (b *Base[T]) Weights() []*autodiff.Node[T] {
	return append([]*autodiff.Node[T](nil), b.weights...)
}

// NumParameters returns the total number of weight elements.
func (b *Base[T]) NumParameters() int {
	return NumParameters[T](b)
}

// NumParameters returns the total number of weight elements of m.
func NumParameters[T tensor.Float](m interface{ Weights() []*autodiff.Node[T] }) int {
	total := 0
	for _, w := range m.Weights() {
		total += w.NumElements()
	}
	return total
}

// single returns the only input of a single-input module.
func single[T tensor.Float](module string, inputs []*autodiff.Node[T]) (*autodiff.Node[T], error) {
	if len(inputs) != 1 {
		return nil, errors.Wrapf(autodiff.ErrInvalidArgument, "%s takes exactly one input, got %d", module, len(inputs))
	}
	if inputs[0] == nil {
		return nil, errors.Wrapf(autodiff.ErrInvalidArgument, "%s: input is nil", module)
	}
	return inputs[0], nil
}

func logCreated(module string, weights, params int) {
	klog.V(1).Infof("created %s module: %d weights, %d parameters", module, weights, params)
}

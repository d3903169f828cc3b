package autodiff

import (
	"fmt"
	"sync/atomic"
	"weak"

	"github.com/pkg/errors"

	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// lastID hands out identifiers shared by nodes and connectors.
var lastID atomic.Uint64

func newID() uint64 {
	return lastID.Add(1)
}

// Node is a vertex of the computation graph: a value tensor and a gradient tensor of the same
// shape, plus the wiring to the connector that produced it and the connectors that consume it.
//
// A Node without producer is a leaf. Weight nodes hold trainable parameters; constant nodes
// hold inputs that never trigger a forward pass on their own.
//
// Producers and connection inputs are strong references, consumers are weak: a graph stays
// alive as long as one of its outputs is reachable, and connectors whose outputs are all gone
// drop out of their inputs' consumer lists.
type Node[T tensor.Float] struct {
	id         uint64
	name       string
	value      *tensor.Tensor[T]
	grad       *tensor.Tensor[T]
	isWeight   bool
	isConstant bool
	producer   *Connector[T]
	consumers  []weak.Pointer[Connector[T]]
}

// NewNode creates a leaf node with zero value and gradient.
func NewNode[T tensor.Float](dims ...int) *Node[T] {
	return &Node[T]{
		id:    newID(),
		value: tensor.New[T](dims...),
		grad:  tensor.New[T](dims...),
	}
}

// NewWeight creates a leaf node flagged as weight.
func NewWeight[T tensor.Float](dims ...int) *Node[T] {
	n := NewNode[T](dims...)
	n.isWeight = true
	return n
}

// NewConstant creates a leaf node flagged as constant.
func NewConstant[T tensor.Float](dims ...int) *Node[T] {
	n := NewNode[T](dims...)
	n.isConstant = true
	return n
}

// NodeFromTensor creates a leaf node taking ownership of value.
func NodeFromTensor[T tensor.Float](value *tensor.Tensor[T]) *Node[T] {
	return &Node[T]{
		id:    newID(),
		value: value,
		grad:  tensor.FromShape[T](value.Shape()),
	}
}

// ID returns the node's unique identifier.
func (n *Node[T]) ID() uint64 {
	return n.id
}

// Name returns the optional name given with SetName.
func (n *Node[T]) Name() string {
	return n.name
}

// SetName sets a name used in logs and error messages.
func (n *Node[T]) SetName(name string) *Node[T] {
	n.name = name
	return n
}

// String implements fmt.Stringer.
func (n *Node[T]) String() string {
	if n.name != "" {
		return fmt.Sprintf("Node#%d[%s]%s", n.id, n.name, n.value.Shape())
	}
	return fmt.Sprintf("Node#%d%s", n.id, n.value.Shape())
}

// Values returns the value tensor.
func (n *Node[T]) Values() *tensor.Tensor[T] {
	return n.value
}

// Gradient returns the gradient tensor.
func (n *Node[T]) Gradient() *tensor.Tensor[T] {
	return n.grad
}

// Value returns the value at the given multi-index.
func (n *Node[T]) Value(idx ...int) T {
	return n.value.At(idx...)
}

// Grad returns the gradient at the given multi-index.
func (n *Node[T]) Grad(idx ...int) T {
	return n.grad.At(idx...)
}

// SetValue stores v at the given multi-index of the value.
func (n *Node[T]) SetValue(v T, idx ...int) {
	n.value.Set(v, idx...)
}

// SetGrad stores v at the given multi-index of the gradient.
func (n *Node[T]) SetGrad(v T, idx ...int) {
	n.grad.Set(v, idx...)
}

// SetAllValues sets every element of the value to v.
func (n *Node[T]) SetAllValues(v T) {
	n.value.SetAll(v)
}

// SetAllGrad sets every element of the gradient to v.
func (n *Node[T]) SetAllGrad(v T) {
	n.grad.SetAll(v)
}

// SetFlattenedValues sets the value from elements given in row-major order.
func (n *Node[T]) SetFlattenedValues(values []T) error {
	return n.value.SetFlattened(values)
}

// Shape returns the shape of the value (and gradient).
func (n *Node[T]) Shape() tensor.Shape {
	return n.value.Shape()
}

// Dim returns the extent of an axis, negative axes counting from the end.
func (n *Node[T]) Dim(axis int) int {
	return n.value.Dim(axis)
}

// Rank returns the number of axes.
func (n *Node[T]) Rank() int {
	return n.value.Rank()
}

// NumElements returns the number of elements of the value.
func (n *Node[T]) NumElements() int {
	return n.value.NumElements()
}

// SetDims resizes value and gradient together.
func (n *Node[T]) SetDims(dims ...int) error {
	if err := n.value.SetDims(dims...); err != nil {
		return err
	}
	return n.grad.SetDims(dims...)
}

// IsWeight reports whether the node holds trainable parameters.
func (n *Node[T]) IsWeight() bool {
	return n.isWeight
}

// SetWeight flags or unflags the node as weight.
func (n *Node[T]) SetWeight(isWeight bool) {
	n.isWeight = isWeight
}

// IsConstant reports whether the node is a constant input.
func (n *Node[T]) IsConstant() bool {
	return n.isConstant
}

// SetConstant flags or unflags the node as constant.
func (n *Node[T]) SetConstant(isConstant bool) {
	n.isConstant = isConstant
}

// IsLeaf reports whether the node has no producer.
func (n *Node[T]) IsLeaf() bool {
	return n.producer == nil
}

// Producer returns the connector that computes this node, or nil for leaves.
func (n *Node[T]) Producer() *Connector[T] {
	return n.producer
}

// Consumers returns the live connectors reading this node.
func (n *Node[T]) Consumers() []*Connector[T] {
	live := make([]*Connector[T], 0, len(n.consumers))
	for _, p := range n.consumers {
		if c := p.Value(); c != nil {
			live = append(live, c)
		}
	}
	return live
}

func (n *Node[T]) setProducer(c *Connector[T]) error {
	if n.producer == c {
		return nil
	}
	if n.producer != nil {
		return errors.Wrapf(ErrInvalidTopology, "%s is already produced by %s, cannot connect it to %s",
			n, n.producer, c)
	}
	n.producer = c
	return nil
}

func (n *Node[T]) addConsumer(c *Connector[T]) {
	p := weak.Make(c)
	kept := n.consumers[:0]
	found := false
	for _, existing := range n.consumers {
		if existing.Value() == nil {
			continue
		}
		found = found || existing == p
		kept = append(kept, existing)
	}
	clear(n.consumers[len(kept):])
	n.consumers = kept
	if !found {
		n.consumers = append(n.consumers, p)
	}
}

func (n *Node[T]) removeConsumer(c *Connector[T]) {
	p := weak.Make(c)
	for i, existing := range n.consumers {
		if existing == p {
			n.consumers = append(n.consumers[:i], n.consumers[i+1:]...)
			return
		}
	}
}

// Forward propagates this node's value downstream. Every connection consuming the node counts
// the signal; a connection fires once all of its non-weight, non-constant inputs have
// signalled, and its output then propagates in turn. Signals from weights and constants only
// fire connections that have no other inputs to wait for.
func (n *Node[T]) Forward() error {
	return catch(func() error { return forward(n) })
}

// ComputeGrad runs reverse-mode differentiation from this node: its gradient is seeded with
// ones and accumulated into every node it depends on, weights included. Gradients are added,
// so call ZeroGrad first to get fresh values.
//
// The graph upstream of the node must not change while ComputeGrad runs.
func (n *Node[T]) ComputeGrad() error {
	return catch(func() error { return backward(n) })
}

// ZeroGrad zeroes the gradient of every node the node depends on, itself included.
func (n *Node[T]) ZeroGrad() {
	n.IterateNodes(func(node *Node[T]) {
		node.grad.SetAll(0)
	})
}

// Disconnect detaches the node from its producer: the connection record producing it is
// dropped, and the producer stops consuming inputs that no other record uses. The node
// becomes a leaf and keeps its current value.
func (n *Node[T]) Disconnect() {
	c := n.producer
	if c == nil {
		return
	}
	c.removeRecord(n)
	n.producer = nil
}

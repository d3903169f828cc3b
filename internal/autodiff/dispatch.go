package autodiff

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// forward propagates signals breadth-first from start. Join counters live in the connection
// records and persist across calls, so inputs of one connection may be forwarded separately.
func forward[T tensor.Float](start *Node[T]) error {
	queue := []*Node[T]{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, c := range n.Consumers() {
			fired, err := c.signal(n)
			if err != nil {
				return err
			}
			queue = append(queue, fired...)
		}
	}
	return nil
}

// backward runs reverse-mode differentiation from root in two phases.
//
// The first phase walks the subgraph root depends on and counts, for every node, the input
// slots consuming it within that subgraph. The second phase seeds root's gradient with ones and
// runs a connection's Backward only once every consumer of its output has contributed, so
// each gradient is complete before it is propagated further. The counts are local to the call.
func backward[T tensor.Float](root *Node[T]) error {
	pending := make(map[*Node[T]]int)
	visited := map[*Node[T]]bool{root: true}
	stack := []*Node[T]{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.producer == nil {
			continue
		}
		record, err := n.producer.recordFor(n)
		if err != nil {
			return err
		}
		for _, in := range record.inputs {
			pending[in]++
			if !visited[in] {
				visited[in] = true
				stack = append(stack, in)
			}
		}
	}

	root.grad.SetAll(1)
	stack = append(stack[:0], root)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c := n.producer
		if c == nil {
			continue
		}
		record, err := c.recordFor(n)
		if err != nil {
			return err
		}
		if klog.V(3).Enabled() {
			klog.Infof("backward %s <- %s", c, n)
		}
		if err := c.op.Backward(n, c.weights, record.inputs); err != nil {
			return errors.WithMessagef(err, "backward %s", c)
		}
		for _, in := range record.inputs {
			pending[in]--
			if pending[in] == 0 {
				stack = append(stack, in)
			}
		}
	}
	return nil
}

package autodiff

import (
	"fmt"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// Operator is the differentiable operation a Connector runs.
//
// Implementations are stateless with respect to the graph: everything they read or write is
// passed in. Forward overwrites the output values; Backward adds output's gradient, propagated
// through the operation, to the gradients of inputs and weights and must never overwrite them.
type Operator[T tensor.Float] interface {
	// Name identifies the operation in logs and errors.
	Name() string

	// OutputDims returns the output shape for the given inputs. Incompatible inputs are
	// reported with ErrShapeMismatch, wrong arity or options with ErrInvalidArgument.
	OutputDims(inputs []*Node[T]) (tensor.Shape, error)

	// Forward computes output values from the inputs and the connector's weights.
	Forward(inputs, weights []*Node[T], output *Node[T]) error

	// Backward accumulates gradients into inputs and weights.
	Backward(output *Node[T], weights, inputs []*Node[T]) error
}

// Builder is implemented by operators that own weights. Build runs once per Connector, before
// its first connection, and allocates the weights with Connector.AddWeight.
type Builder[T tensor.Float] interface {
	Build(c *Connector[T], inputShapes []tensor.Shape) error
}

// connection is the record of one Connect call.
type connection[T tensor.Float] struct {
	inputs    []*Node[T]
	output    *Node[T]
	joinCount int // forward signals received since the last firing
}

// required returns the number of forward signals the connection waits for: one per input slot
// holding a node that is neither weight nor constant.
func (r *connection[T]) required() int {
	count := 0
	for _, in := range r.inputs {
		if !in.isWeight && !in.isConstant {
			count++
		}
	}
	return count
}

// multiplicity returns how many input slots hold n.
func (r *connection[T]) multiplicity(n *Node[T]) int {
	count := 0
	for _, in := range r.inputs {
		if in == n {
			count++
		}
	}
	return count
}

// Connector wraps an Operator into the graph. Each Connect call creates a new output node and
// records the connection; all connections of a connector share its weights, which is how a
// layer is reused on several inputs.
type Connector[T tensor.Float] struct {
	id      uint64
	op      Operator[T]
	weights []*Node[T]
	built   bool
	records []*connection[T]
}

// NewConnector creates a connector running op.
func NewConnector[T tensor.Float](op Operator[T]) *Connector[T] {
	return &Connector[T]{id: newID(), op: op}
}

// ID returns the connector's unique identifier.
func (c *Connector[T]) ID() uint64 {
	return c.id
}

// Name returns the operator name.
func (c *Connector[T]) Name() string {
	return c.op.Name()
}

// Operator returns the wrapped operator.
func (c *Connector[T]) Operator() Operator[T] {
	return c.op
}

// String implements fmt.Stringer.
func (c *Connector[T]) String() string {
	return fmt.Sprintf("%s#%d", c.op.Name(), c.id)
}

// AddWeight allocates a weight node owned by the connector. It is meant to be called from
// Builder.Build.
func (c *Connector[T]) AddWeight(dims ...int) *Node[T] {
	w := NewWeight[T](dims...)
	w.name = fmt.Sprintf("%s/w%d", c, len(c.weights))
	w.addConsumer(c)
	c.weights = append(c.weights, w)
	return w
}

// Weights returns the weights owned by the connector, in allocation order.
func (c *Connector[T]) Weights() []*Node[T] {
	return append([]*Node[T](nil), c.weights...)
}

// Weight returns the i-th weight. Asking for a weight before the connector has been built, or
// past the last one, is an ErrOutOfRange error.
func (c *Connector[T]) Weight(i int) (*Node[T], error) {
	if i < 0 || i >= len(c.weights) {
		return nil, errors.Wrapf(ErrOutOfRange, "%s has %d weights, weight %d requested", c, len(c.weights), i)
	}
	return c.weights[i], nil
}

// NumConnections returns the number of live connections.
func (c *Connector[T]) NumConnections() int {
	return len(c.records)
}

// IsBuilt reports whether the weights have been allocated.
func (c *Connector[T]) IsBuilt() bool {
	return c.built
}

// BuildFor allocates the weights for inputs of the given shapes, unless that already happened.
// Connect calls it on the first connection; modules call it when the input shape is known
// upfront so that weights can be inspected before anything is connected.
func (c *Connector[T]) BuildFor(shapes ...tensor.Shape) error {
	if c.built {
		return nil
	}
	if builder, ok := c.op.(Builder[T]); ok {
		if err := builder.Build(c, shapes); err != nil {
			c.weights = nil
			return errors.WithMessagef(err, "building %s", c)
		}
		klog.V(1).Infof("built %s with %d weights for inputs %v", c, len(c.weights), shapes)
	}
	c.built = true
	return nil
}

// Connect applies the connector to inputs and returns the new output node, already holding the
// result. The first successful call builds the weights from the input shapes.
func (c *Connector[T]) Connect(inputs ...*Node[T]) (*Node[T], error) {
	var output *Node[T]
	err := catch(func() error {
		var err error
		output, err = c.connect(inputs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return output, nil
}

func (c *Connector[T]) connect(inputs []*Node[T]) (*Node[T], error) {
	if len(inputs) == 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "%s: connect needs at least one input", c)
	}
	shapes := make([]tensor.Shape, len(inputs))
	for i, in := range inputs {
		if in == nil {
			return nil, errors.Wrapf(ErrInvalidArgument, "%s: input %d is nil", c, i)
		}
		shapes[i] = in.Shape()
	}

	justBuilt := !c.built
	if err := c.BuildFor(shapes...); err != nil {
		return nil, err
	}
	dims, err := c.op.OutputDims(inputs)
	if err != nil {
		if justBuilt {
			c.unbuild()
		}
		return nil, errors.WithMessagef(err, "connecting %s to inputs %v", c, shapes)
	}

	output := NewNode[T](dims...)
	if err := output.setProducer(c); err != nil {
		return nil, err
	}
	record := &connection[T]{
		inputs: append([]*Node[T](nil), inputs...),
		output: output,
	}
	c.records = append(c.records, record)
	for _, in := range inputs {
		in.addConsumer(c)
	}

	if err := catch(func() error { return c.fire(record) }); err != nil {
		output.Disconnect()
		if justBuilt {
			c.unbuild()
		}
		return nil, err
	}
	klog.V(2).Infof("connected %s: %v -> %s", c, shapes, output)
	return output, nil
}

// unbuild drops the weights of a build whose first connection failed.
func (c *Connector[T]) unbuild() {
	if len(c.records) > 0 {
		return
	}
	c.weights = nil
	c.built = false
}

// owns reports whether w is one of the connector's weights.
func (c *Connector[T]) owns(w *Node[T]) bool {
	for _, own := range c.weights {
		if own == w {
			return true
		}
	}
	return false
}

// fire recomputes the output of a connection.
func (c *Connector[T]) fire(record *connection[T]) error {
	dims, err := c.op.OutputDims(record.inputs)
	if err != nil {
		return errors.WithMessagef(err, "forward %s", c)
	}
	if !record.output.Shape().Equal(dims) {
		if err := record.output.SetDims(dims...); err != nil {
			return err
		}
	}
	if klog.V(3).Enabled() {
		klog.Infof("forward %s -> %s", c, record.output)
	}
	if err := c.op.Forward(record.inputs, c.weights, record.output); err != nil {
		return errors.WithMessagef(err, "forward %s", c)
	}
	return nil
}

// signal registers a forward signal from n and returns the outputs of the connections it fired.
func (c *Connector[T]) signal(n *Node[T]) ([]*Node[T], error) {
	owned := c.owns(n)
	matched := owned
	var fired []*Node[T]
	for _, record := range c.records {
		k := record.multiplicity(n)
		if k == 0 && !owned {
			continue
		}
		matched = true

		if owned || n.isWeight || n.isConstant {
			if record.required() == 0 {
				if err := c.fire(record); err != nil {
					return nil, err
				}
				fired = append(fired, record.output)
			}
			continue
		}

		record.joinCount += k
		if record.joinCount >= record.required() {
			record.joinCount = 0
			if err := c.fire(record); err != nil {
				return nil, err
			}
			fired = append(fired, record.output)
		}
	}
	if !matched {
		return nil, errors.Wrapf(ErrInvalidTopology, "%s signalled by %s, which it has no connection for", c, n)
	}
	return fired, nil
}

// recordFor returns the connection producing output.
func (c *Connector[T]) recordFor(output *Node[T]) (*connection[T], error) {
	for _, record := range c.records {
		if record.output == output {
			return record, nil
		}
	}
	return nil, errors.Wrapf(ErrInvalidTopology, "%s has no connection producing %s", c, output)
}

// removeRecord drops the connection producing output and stops consuming the inputs that no
// remaining connection uses.
func (c *Connector[T]) removeRecord(output *Node[T]) {
	kept := c.records[:0]
	var removed *connection[T]
	for _, record := range c.records {
		if record.output == output {
			removed = record
			continue
		}
		kept = append(kept, record)
	}
	c.records = kept
	if removed == nil {
		return
	}
	for _, in := range removed.inputs {
		if c.owns(in) {
			continue
		}
		stillUsed := false
		for _, record := range c.records {
			if record.multiplicity(in) > 0 {
				stillUsed = true
				break
			}
		}
		if !stillUsed {
			in.removeConsumer(c)
		}
	}
}

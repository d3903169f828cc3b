package autodiff

import (
	"math"
	"runtime"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaf(t *testing.T, values ...float64) *Node[float64] {
	t.Helper()
	n := NewNode[float64](len(values))
	require.NoError(t, n.SetFlattenedValues(values))
	return n
}

func TestConnect_EvaluatesEagerly(t *testing.T) {
	a := leaf(t, 1, 2, 3)
	b := leaf(t, 10, 20, 30)
	op := &sumOp{}
	c := NewConnector[float64](op)

	out, err := c.Connect(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 22, 33}, out.Values().Values())
	assert.Same(t, c, out.Producer())
	assert.False(t, out.IsLeaf())
	assert.True(t, a.IsLeaf())
	assert.Equal(t, []*Connector[float64]{c}, a.Consumers())
	assert.Equal(t, 1, c.NumConnections())
	assert.Equal(t, 1, op.forwards)
}

func TestConnect_Errors(t *testing.T) {
	c := NewConnector[float64](&sumOp{})
	_, err := c.Connect()
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	a := leaf(t, 1, 2, 3)
	b := leaf(t, 1, 2)
	_, err = c.Connect(a, b)
	assert.True(t, errors.Is(err, ErrShapeMismatch), "got %v", err)
	assert.Zero(t, c.NumConnections())
	assert.Empty(t, a.Consumers(), "failed connections leave no wiring behind")
}

// TestConnect_KernelPanicBecomesError tests that an out-of-range access inside a kernel is
// reported as an error by Connect and Forward.
func TestConnect_KernelPanicBecomesError(t *testing.T) {
	x := leaf(t, 1, 2, 3)
	_, err := NewConnector[float64](outOfRangeOp{}).Connect(x)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfRange), "got %v", err)
	assert.Empty(t, x.Consumers())
}

// TestForward_JoinBarrier tests that a connection fires only once all its inputs signalled,
// even when they are forwarded by separate calls.
func TestForward_JoinBarrier(t *testing.T) {
	a := leaf(t, 1)
	b := leaf(t, 2)
	op := &sumOp{}
	out, err := NewConnector[float64](op).Connect(a, b)
	require.NoError(t, err)
	require.Equal(t, 1, op.forwards)

	a.SetValue(5, 0)
	b.SetValue(7, 0)
	require.NoError(t, a.Forward())
	assert.Equal(t, 1, op.forwards, "waits for b")
	assert.Equal(t, 3.0, out.Value(0))

	require.NoError(t, b.Forward())
	assert.Equal(t, 2, op.forwards)
	assert.Equal(t, 12.0, out.Value(0))
}

// TestForward_RepeatedInput tests that a node used twice by one connection satisfies both slots.
func TestForward_RepeatedInput(t *testing.T) {
	x := leaf(t, 3)
	op := &sumOp{}
	out, err := NewConnector[float64](op).Connect(x, x)
	require.NoError(t, err)
	assert.Equal(t, 6.0, out.Value(0))

	x.SetValue(4, 0)
	require.NoError(t, x.Forward())
	assert.Equal(t, 2, op.forwards)
	assert.Equal(t, 8.0, out.Value(0))
}

// TestForward_Diamond tests that the join of two branches fires once per forward pass.
func TestForward_Diamond(t *testing.T) {
	x := leaf(t, 0.5)
	sin := &sinOp{}
	a, err := NewConnector[float64](sin).Connect(x)
	require.NoError(t, err)
	b, err := NewConnector[float64](&sinOp{}).Connect(a)
	require.NoError(t, err)
	join := &sumOp{}
	y, err := NewConnector[float64](join).Connect(a, b, x)
	require.NoError(t, err)

	x.SetValue(1, 0)
	require.NoError(t, x.Forward())
	assert.Equal(t, 2, sin.forwards)
	assert.Equal(t, 2, join.forwards)
	assert.InDelta(t, math.Sin(1)+math.Sin(math.Sin(1))+1, y.Value(0), 1e-12)
}

// TestForward_WeightAndConstantSignals tests that weights and constants only fire connections
// with nothing else to wait for.
func TestForward_WeightAndConstantSignals(t *testing.T) {
	x := NewConstant[float64](2)
	require.NoError(t, x.SetFlattenedValues([]float64{1, 2}))
	c := NewConnector[float64](&affineOp{})
	y, err := c.Connect(x)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, y.Values().Values())

	w, err := c.Weight(0)
	require.NoError(t, err)
	w.SetAllValues(3)
	require.NoError(t, w.Forward())
	assert.Equal(t, []float64{3, 6}, y.Values().Values(), "connection with only constant inputs refires")

	z := leaf(t, 1, 1)
	v, err := c.Connect(z)
	require.NoError(t, err)
	w.SetAllValues(4)
	require.NoError(t, w.Forward())
	assert.Equal(t, []float64{3, 3}, v.Values().Values(), "connection waiting for z does not fire")
	assert.Equal(t, []float64{4, 8}, y.Values().Values())
}

func TestForward_UnmatchedSignal(t *testing.T) {
	x := leaf(t, 1)
	c := NewConnector[float64](&sinOp{})
	x.addConsumer(c)
	err := x.Forward()
	assert.True(t, errors.Is(err, ErrInvalidTopology), "got %v", err)
}

// TestComputeGrad_FanIn tests that a node feeding several consumers runs its backward kernel
// once, after all contributions have been accumulated.
func TestComputeGrad_FanIn(t *testing.T) {
	x := leaf(t, 0.3, -1.2)
	sin := &sinOp{}
	f, err := NewConnector[float64](sin).Connect(x)
	require.NoError(t, err)
	g1, err := NewConnector[float64](&sinOp{}).Connect(f)
	require.NoError(t, err)
	join := &sumOp{}
	y, err := NewConnector[float64](join).Connect(g1, f, f)
	require.NoError(t, err)

	require.NoError(t, y.ComputeGrad())
	assert.Equal(t, 1, sin.backwards)
	assert.Equal(t, 1, join.backwards)

	for i, v := range []float64{0.3, -1.2} {
		// y = sin(sin(v)) + 2 sin(v)
		want := math.Cos(math.Sin(v))*math.Cos(v) + 2*math.Cos(v)
		assert.InDelta(t, want, x.Grad(i), 1e-12)
	}
	assert.Equal(t, []float64{1, 1}, y.Gradient().Values())
}

func TestComputeGrad_ZeroGradIsRepeatable(t *testing.T) {
	x := leaf(t, 0.7)
	c := NewConnector[float64](&affineOp{})
	h, err := c.Connect(x)
	require.NoError(t, err)
	y, err := NewConnector[float64](&sinOp{}).Connect(h)
	require.NoError(t, err)

	y.ZeroGrad()
	require.NoError(t, y.ComputeGrad())
	first := make(map[*Node[float64]][]float64)
	y.IterateNodes(func(n *Node[float64]) { first[n] = n.Gradient().Values() })

	y.ZeroGrad()
	require.NoError(t, y.ComputeGrad())
	y.IterateNodes(func(n *Node[float64]) {
		assert.Equal(t, first[n], n.Gradient().Values(), "%s", n)
	})

	// Without zeroing, gradients accumulate and intermediate sums are propagated again.
	require.NoError(t, y.ComputeGrad())
	assert.InDelta(t, 3*first[x][0], x.Grad(0), 1e-12)
	assert.Equal(t, 1.0, y.Grad(0))
}

// TestComputeGrad_NumericalCheck compares the gradients of a small graph with shared weights
// and a skip connection against central differences.
func TestComputeGrad_NumericalCheck(t *testing.T) {
	x := leaf(t, 0.4, -0.8, 1.5)
	layer := NewConnector[float64](&affineOp{})
	h1, err := layer.Connect(x)
	require.NoError(t, err)
	s1, err := NewConnector[float64](&sinOp{}).Connect(h1)
	require.NoError(t, err)
	h2, err := layer.Connect(s1)
	require.NoError(t, err)
	y, err := NewConnector[float64](&sumOp{}).Connect(h2, x)
	require.NoError(t, err)

	w, err := layer.Weight(0)
	require.NoError(t, err)
	require.NoError(t, w.SetFlattenedValues([]float64{0.5, -1.5, 2}))
	b, err := layer.Weight(1)
	require.NoError(t, err)
	b.SetValue(0.25, 0)
	require.NoError(t, x.Forward())

	y.ZeroGrad()
	require.NoError(t, y.ComputeGrad())

	loss := func() float64 {
		require.NoError(t, x.Forward())
		return y.Values().Sum()
	}
	const eps = 1e-6
	for _, n := range []*Node[float64]{x, w, b} {
		for i := 0; i < n.NumElements(); i++ {
			orig := n.Values().Flat(i)
			n.Values().SetFlat(orig+eps, i)
			up := loss()
			n.Values().SetFlat(orig-eps, i)
			down := loss()
			n.Values().SetFlat(orig, i)
			numeric := (up - down) / (2 * eps)
			assert.InDelta(t, numeric, n.Gradient().Flat(i), 1e-6*math.Max(1, math.Abs(numeric)), "%s[%d]", n, i)
		}
	}
}

func TestComputeGrad_MissingRecord(t *testing.T) {
	x := leaf(t, 1)
	c := NewConnector[float64](&sinOp{})
	y, err := c.Connect(x)
	require.NoError(t, err)
	c.records = nil
	err = y.ComputeGrad()
	assert.True(t, errors.Is(err, ErrInvalidTopology), "got %v", err)
}

func TestSetProducer_Twice(t *testing.T) {
	x := leaf(t, 1)
	y, err := NewConnector[float64](&sinOp{}).Connect(x)
	require.NoError(t, err)
	err = y.setProducer(NewConnector[float64](&sinOp{}))
	assert.True(t, errors.Is(err, ErrInvalidTopology))
	assert.NoError(t, y.setProducer(y.Producer()))
}

// TestConnector_SharedWeights tests that all connections of a connector use the same weights.
func TestConnector_SharedWeights(t *testing.T) {
	op := &affineOp{}
	c := NewConnector[float64](op)
	_, err := c.Weight(0)
	assert.True(t, errors.Is(err, ErrOutOfRange), "no weights before the first connection")

	x1 := leaf(t, 1, 2)
	x2 := leaf(t, 3, 4)
	y1, err := c.Connect(x1)
	require.NoError(t, err)
	y2, err := c.Connect(x2)
	require.NoError(t, err)
	assert.Equal(t, 1, op.builds)
	assert.Len(t, c.Weights(), 2)
	_, err = c.Weight(2)
	assert.True(t, errors.Is(err, ErrOutOfRange))

	w, err := c.Weight(0)
	require.NoError(t, err)
	w.SetAllValues(2)
	require.NoError(t, x1.Forward())
	require.NoError(t, x2.Forward())
	assert.Equal(t, []float64{2, 4}, y1.Values().Values())
	assert.Equal(t, []float64{6, 8}, y2.Values().Values())

	sum, err := NewConnector[float64](&sumOp{}).Connect(y1, y2)
	require.NoError(t, err)
	require.NoError(t, sum.ComputeGrad())
	assert.Equal(t, []float64{4, 6}, w.Gradient().Values(), "gradient from both connections")
}

func TestConnector_BuildFor(t *testing.T) {
	op := &affineOp{}
	c := NewConnector[float64](op)
	require.NoError(t, c.BuildFor([]int{3}))
	require.NoError(t, c.BuildFor([]int{5}))
	assert.Equal(t, 1, op.builds)
	assert.True(t, c.IsBuilt())
	w, err := c.Weight(0)
	require.NoError(t, err)
	assert.Equal(t, 3, w.Dim(0))
	assert.True(t, w.IsWeight())

	err = NewConnector[float64](&affineOp{}).BuildFor([]int{1}, []int{2})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestIterate_Deduplicates(t *testing.T) {
	x := leaf(t, 1, 2)
	layer := NewConnector[float64](&affineOp{})
	h1, err := layer.Connect(x)
	require.NoError(t, err)
	h2, err := layer.Connect(x)
	require.NoError(t, err)
	y, err := NewConnector[float64](&sumOp{}).Connect(h1, h2, x)
	require.NoError(t, err)

	nodes := y.CollectNodes()
	assert.Len(t, nodes, 6) // y, h1, h2, x and the two weights
	assert.Same(t, y, nodes[0])

	weights := y.CollectWeights()
	assert.Equal(t, layer.Weights(), weights)

	connectors := 0
	y.IterateConnectors(func(*Connector[float64]) { connectors++ })
	assert.Equal(t, 2, connectors)

	visited := 0
	y.IterateWeights(func(w *Node[float64]) {
		assert.True(t, w.IsWeight())
		visited++
	})
	assert.Equal(t, 2, visited)
}

func TestDisconnect(t *testing.T) {
	x := leaf(t, 1)
	c := NewConnector[float64](&sinOp{})
	y1, err := c.Connect(x)
	require.NoError(t, err)
	y2, err := c.Connect(x)
	require.NoError(t, err)

	y1.Disconnect()
	assert.True(t, y1.IsLeaf())
	assert.Equal(t, 1, c.NumConnections())
	assert.Len(t, x.Consumers(), 1, "still consumed by the second connection")

	y2.Disconnect()
	assert.Empty(t, x.Consumers())
	require.NoError(t, x.Forward())
	y2.Disconnect()
}

// TestDeepChain tests that long chains do not depend on recursion depth.
func TestDeepChain(t *testing.T) {
	x := leaf(t, 0.1)
	n := x
	var err error
	for i := 0; i < 20000; i++ {
		n, err = NewConnector[float64](&sumOp{}).Connect(n)
		require.NoError(t, err)
	}
	x.SetValue(0.2, 0)
	require.NoError(t, x.Forward())
	assert.Equal(t, 0.2, n.Value(0))
	require.NoError(t, n.ComputeGrad())
	assert.Equal(t, 1.0, x.Grad(0))
}

func TestNode_SetDims(t *testing.T) {
	n := NewNode[float64](2, 2)
	n.SetGrad(1, 0, 0)
	require.NoError(t, n.SetDims(4))
	assert.Equal(t, 1.0, n.Grad(0))
	require.NoError(t, n.SetDims(3, 3))
	assert.Equal(t, n.Shape(), n.Gradient().Shape())
	assert.Zero(t, n.Gradient().Sum())
}

func TestNode_Flags(t *testing.T) {
	w := NewWeight[float32](3)
	assert.True(t, w.IsWeight())
	assert.False(t, w.IsConstant())
	c := NewConstant[float32](3)
	assert.True(t, c.IsConstant())
	c.SetConstant(false)
	assert.False(t, c.IsConstant())
	assert.NotEqual(t, w.ID(), c.ID())
	assert.Contains(t, w.SetName("w").String(), "[w]")
}

// TestConsumers_ReleasedWithOutput tests that a graph whose output is no longer referenced is
// collected and stops being forwarded to.
func TestConsumers_ReleasedWithOutput(t *testing.T) {
	x := leaf(t, 1, 2, 3)
	dropped := &sinOp{}
	func() {
		_, err := NewConnector[float64](dropped).Connect(x)
		require.NoError(t, err)
	}()
	kept, err := NewConnector[float64](&sinOp{}).Connect(x)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		runtime.GC()
		return len(x.Consumers()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Same(t, kept.Producer(), x.Consumers()[0])

	require.NoError(t, x.Forward())
	assert.Equal(t, 1, dropped.forwards, "only the connect-time evaluation")
}

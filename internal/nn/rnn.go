package nn

import (
	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/autodiff/ops"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// SimpleRNN is an Elman recurrent layer: h = h_prev·W_h + x·W_x + B.
//
// Each call consumes one time step of shape [batch, in] and returns the new state, shaped
// [batch, out]. The previous state is disconnected from its producer before it is used, so
// gradients do not flow back past the last step and older steps can be collected.
type SimpleRNN[T tensor.Float] struct {
	Base[T]
	wh, wx, b *autodiff.Node[T]
	hPrev     *autodiff.Node[T]
	out       int
}

// NewSimpleRNN creates a recurrent layer with in input units and out state units. W_x
// starts with Xavier values; W_h, B and the state start at zero.
func NewSimpleRNN[T tensor.Float](in, out int) *SimpleRNN[T] {
	r := &SimpleRNN[T]{out: out}
	r.wh = r.AddWeight(out, out)
	r.wx = r.AddWeight(in, out)
	r.b = r.AddWeight(out)
	r.wx.Values().Xavier(in, out)
	r.hPrev = autodiff.NewNode[T](out)
	logCreated("SimpleRNN", 3, r.NumParameters())
	return r
}

// Call implements Module.
func (r *SimpleRNN[T]) Call(inputs ...*autodiff.Node[T]) (*autodiff.Node[T], error) {
	x, err := single("SimpleRNN", inputs)
	if err != nil {
		return nil, err
	}
	r.hPrev.Disconnect()
	recurrent, err := ops.Dot(r.hPrev, r.wh)
	if err != nil {
		return nil, err
	}
	projected, err := ops.Dot(x, r.wx)
	if err != nil {
		return nil, err
	}
	sum, err := ops.Add(recurrent, projected)
	if err != nil {
		return nil, err
	}
	h, err := ops.Add(sum, r.b)
	if err != nil {
		return nil, err
	}
	r.hPrev = h
	return h, nil
}

// State returns the current hidden state.
func (r *SimpleRNN[T]) State() *autodiff.Node[T] { return r.hPrev }

// SetState replaces the hidden state, e.g. to restore one saved with State.
func (r *SimpleRNN[T]) SetState(h *autodiff.Node[T]) { r.hPrev = h }

// ResetState starts over from a zero state.
func (r *SimpleRNN[T]) ResetState() { r.hPrev = autodiff.NewNode[T](r.out) }

// Wh returns the recurrent weights.
func (r *SimpleRNN[T]) Wh() *autodiff.Node[T] { return r.wh }

// Wx returns the input weights.
func (r *SimpleRNN[T]) Wx() *autodiff.Node[T] { return r.wx }

// B returns the bias.
func (r *SimpleRNN[T]) B() *autodiff.Node[T] { return r.b }

package main

import (
	"fmt"
	"math"

	"github.com/janpfeifer/must"

	"github.com/hsandmeyer/snnl-sub000/autodiff"
	"github.com/hsandmeyer/snnl-sub000/nn"
	"github.com/hsandmeyer/snnl-sub000/optim"
)

const (
	rnnHidden   = 32
	forecastLen = 20
)

// sinRNN reads (step, sin(x)) pairs and predicts sin(x + step).
type sinRNN struct {
	nn.Base[float32]
	rnn   *nn.SimpleRNN[float32]
	dense *nn.Dense[float32]
}

func newSinRNN() *sinRNN {
	m := &sinRNN{
		rnn:   nn.NewSimpleRNN[float32](2, rnnHidden),
		dense: nn.NewDense[float32](rnnHidden, 1),
	}
	m.AddModule(m.rnn)
	m.AddModule(m.dense)
	return m
}

func (m *sinRNN) Call(inputs ...*autodiff.Node[float32]) (*autodiff.Node[float32], error) {
	h, err := m.rnn.Call(inputs...)
	if err != nil {
		return nil, err
	}
	h, err = autodiff.Sigmoid(h)
	if err != nil {
		return nil, err
	}
	return m.dense.Call(h)
}

// sineWalk is a batch of sines sampled at random increasing positions.
type sineWalk struct {
	x, step, sin *autodiff.Node[float32]
}

func newSineWalk(batch int) *sineWalk {
	return &sineWalk{
		x:    autodiff.NewNode[float32](batch, 1),
		step: autodiff.NewNode[float32](batch, 1),
		sin:  autodiff.NewNode[float32](batch, 1),
	}
}

// next draws the next steps and returns the model input for them, with the current sines.
func (w *sineWalk) next() (*autodiff.Node[float32], error) {
	w.step.Values().Uniform(0.5, 1.5)
	return autodiff.Concatenate(1, w.step, w.sin)
}

// advance moves the positions by the drawn steps and returns the sines there as a constant.
func (w *sineWalk) advance() *autodiff.Node[float32] {
	target := autodiff.NewConstant[float32](w.x.Shape()...)
	for i := 0; i < w.x.Dim(0); i++ {
		x := w.x.Value(i, 0) + w.step.Value(i, 0)
		w.x.SetValue(x, i, 0)
		target.SetValue(float32(math.Sin(float64(x))), i, 0)
		w.sin.SetValue(target.Value(i, 0), i, 0)
	}
	return target
}

func (w *sineWalk) clone() *sineWalk {
	c := newSineWalk(w.x.Dim(0))
	must.M(c.x.Values().Assign(w.x.Values()))
	must.M(c.sin.Values().Assign(w.sin.Values()))
	return c
}

// trainSinRNN trains the recurrent model one time step at a time. Each call connects a new
// graph; the hidden state carried between calls is cut off from the previous step's graph.
func trainSinRNN() error {
	seed()
	model := newSinRNN()
	opt, err := newOptimizer[float32]()
	if err != nil {
		return err
	}
	tr := &trainer[float32]{name: "sinrnn", model: model, opt: opt}
	if err := tr.resume(); err != nil {
		return err
	}

	walk := newSineWalk(*flagBatch)
	last, err := tr.run(func() (float32, error) {
		input, err := walk.next()
		if err != nil {
			return 0, err
		}
		out, err := model.Call(input)
		if err != nil {
			return 0, err
		}
		loss, err := autodiff.MSE(out, walk.advance())
		if err != nil {
			return 0, err
		}
		if err := optim.Minimize[float32](opt, loss); err != nil {
			return 0, err
		}
		return lossOf(loss), nil
	})
	if err != nil {
		return err
	}

	mse, err := forecast(model, walk.clone())
	if err != nil {
		return err
	}
	fmt.Printf("forecast MSE over the next %d steps: %.4g\n", forecastLen, mse)
	return tr.save(last)
}

// forecast runs the model forecastLen steps ahead without training and returns the mean
// squared error of its predictions. The hidden state is restored afterwards.
func forecast(model *sinRNN, walk *sineWalk) (float64, error) {
	state := model.rnn.State()
	defer model.rnn.SetState(state)

	var total float64
	for i := 0; i < forecastLen; i++ {
		input, err := walk.next()
		if err != nil {
			return 0, err
		}
		out, err := model.Call(input)
		if err != nil {
			return 0, err
		}
		loss, err := autodiff.MSE(out, walk.advance())
		if err != nil {
			return 0, err
		}
		total += float64(lossOf(loss))
	}
	return total / forecastLen, nil
}

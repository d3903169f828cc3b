package main

import (
	"math"

	"github.com/janpfeifer/must"

	"github.com/hsandmeyer/snnl-sub000/autodiff"
	"github.com/hsandmeyer/snnl-sub000/nn"
	"github.com/hsandmeyer/snnl-sub000/optim"
)

// newSinModel returns the 1 → 64 → 16 → 1 network fitted by the sin command.
func newSinModel() *nn.Sequential[float64] {
	return nn.NewSequential[float64](
		nn.NewDense[float64](1, 64),
		nn.NewSigmoid[float64](),
		nn.NewDense[float64](64, 16),
		nn.NewSigmoid[float64](),
		nn.NewDense[float64](16, 1),
	)
}

// trainSin fits sin(x) from uniformly sampled x. The graph is connected once; every step
// samples new inputs and forwards them through it.
func trainSin() error {
	seed()
	model := newSinModel()
	opt, err := newOptimizer[float64]()
	if err != nil {
		return err
	}
	tr := &trainer[float64]{name: "sin", model: model, opt: opt}
	if err := tr.resume(); err != nil {
		return err
	}

	x := autodiff.NewNode[float64](*flagBatch, 1)
	target := autodiff.NewConstant[float64](*flagBatch, 1)
	out := must.M1(model.Call(x))
	loss := must.M1(autodiff.MSE(out, target))

	last, err := tr.run(func() (float64, error) {
		x.Values().Uniform(-math.Pi, math.Pi)
		for i := 0; i < *flagBatch; i++ {
			target.SetValue(math.Sin(x.Value(i, 0)), i, 0)
		}
		if err := x.Forward(); err != nil {
			return 0, err
		}
		if err := optim.Minimize[float64](opt, loss); err != nil {
			return 0, err
		}
		return lossOf(loss), nil
	})
	if err != nil {
		return err
	}
	return tr.save(last)
}

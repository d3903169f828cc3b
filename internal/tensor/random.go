package tensor

import (
	"math"
	"math/rand"
	"sync"
)

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(1)) //nolint:gosec // weight initialization is not security-critical
)

// Seed re-seeds the generator shared by the random initializers.
func Seed(seed int64) {
	rngMu.Lock()
	defer rngMu.Unlock()
	rng.Seed(seed)
}

func (t *Tensor[T]) fillRandom(sample func(r *rand.Rand) float64) {
	rngMu.Lock()
	defer rngMu.Unlock()
	t.Apply(func(T) T { return T(sample(rng)) })
}

// Uniform fills the tensor with values drawn uniformly from [low, high).
func (t *Tensor[T]) Uniform(low, high T) {
	lo, width := float64(low), float64(high-low)
	t.fillRandom(func(r *rand.Rand) float64 { return lo + r.Float64()*width })
}

// Normal fills the tensor with normally distributed values.
func (t *Tensor[T]) Normal(mean, stddev T) {
	m, s := float64(mean), float64(stddev)
	t.fillRandom(func(r *rand.Rand) float64 { return m + r.NormFloat64()*s })
}

// Xavier fills the tensor uniformly in ±sqrt(6 / (fanIn + fanOut)).
func (t *Tensor[T]) Xavier(fanIn, fanOut int) {
	bound := T(math.Sqrt(6.0 / float64(fanIn+fanOut)))
	t.Uniform(-bound, bound)
}

// HeNormal fills the tensor with zero-mean normal values of standard deviation sqrt(2 / fanIn).
func (t *Tensor[T]) HeNormal(fanIn int) {
	t.Normal(0, T(math.Sqrt(2.0/float64(fanIn))))
}

// ArangeAlongAxis sets every element to start + i*(stop-start)/dim, i being its index
// along axis and dim the extent of that axis.
func (t *Tensor[T]) ArangeAlongAxis(axis int, start, stop T) error {
	if t.Rank() == 0 {
		t.SetAll(start)
		return nil
	}
	normalized, err := t.shape.Axis(axis)
	if err != nil {
		return err
	}
	step := (stop - start) / T(t.shape[normalized])
	t.ForEach(func(idx []int) {
		t.Set(start+T(idx[normalized])*step, idx...)
	})
	return nil
}

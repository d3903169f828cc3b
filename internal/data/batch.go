// Package data feeds training loops with shuffled mini-batches.
package data

import (
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// Config controls a BatchGenerator.
type Config struct {
	Seed      int64           // Shuffling seed (default: current time)
	EpochSize int             // Samples per epoch (default: number of samples)
	OnEpoch   func(epoch int) // Called when an epoch completes (default: log the epoch)
	Mute      bool            // Do not call OnEpoch
}

// BatchGenerator draws mini-batches from one or more tensors sharing their leading axis,
// e.g. images and labels. Samples are visited in a random order that is reshuffled after
// every pass over the data and after every epoch.
type BatchGenerator[T tensor.Float] struct {
	data      []*tensor.Tensor[T]
	order     []int
	rng       *rand.Rand
	epochSize int
	onEpoch   func(epoch int)
	mute      bool
	next      int // position in order
	inEpoch   int // samples drawn in the current epoch
	epoch     int
}

// NewBatchGenerator creates a generator over data. All tensors must have the same leading
// dimension, otherwise ErrShapeMismatch is returned.
func NewBatchGenerator[T tensor.Float](config Config, data ...*tensor.Tensor[T]) (*BatchGenerator[T], error) {
	if len(data) == 0 {
		return nil, errors.Wrap(tensor.ErrInvalidArgument, "batch generator needs at least one tensor")
	}
	for i, t := range data {
		if t.Rank() == 0 {
			return nil, errors.Wrapf(tensor.ErrInvalidArgument, "tensor %d is a scalar, it has no samples", i)
		}
		if t.Dim(0) != data[0].Dim(0) {
			return nil, errors.Wrapf(tensor.ErrShapeMismatch, "tensor %d has %d samples, tensor 0 has %d",
				i, t.Dim(0), data[0].Dim(0))
		}
	}
	samples := data[0].Dim(0)
	if samples == 0 {
		return nil, errors.Wrap(tensor.ErrInvalidArgument, "batch generator over zero samples")
	}
	if config.Seed == 0 {
		config.Seed = time.Now().UnixNano()
	}
	if config.OnEpoch == nil {
		config.OnEpoch = func(epoch int) { klog.Infof("Reaching epoch %d", epoch) }
	}
	g := &BatchGenerator[T]{
		data:    data,
		order:   make([]int, samples),
		rng:     rand.New(rand.NewSource(config.Seed)), //nolint:gosec // shuffling is not security-critical
		onEpoch: config.OnEpoch,
		mute:    config.Mute,
	}
	for i := range g.order {
		g.order[i] = i
	}
	g.epochSize = samples
	if config.EpochSize != 0 {
		if err := g.SetEpochSize(config.EpochSize); err != nil {
			return nil, err
		}
	}
	g.reshuffle()
	return g, nil
}

func (g *BatchGenerator[T]) reshuffle() {
	g.rng.Shuffle(len(g.order), func(i, j int) { g.order[i], g.order[j] = g.order[j], g.order[i] })
	g.next = 0
}

// GenerateBatch returns one leaf node per data tensor, holding batchSize samples: the
// tensor's shape with the leading dimension replaced by batchSize. Batches may be larger
// than the data set and may span epochs.
func (g *BatchGenerator[T]) GenerateBatch(batchSize int) ([]*autodiff.Node[T], error) {
	if batchSize <= 0 {
		return nil, errors.Wrapf(tensor.ErrInvalidArgument, "invalid batch size %d", batchSize)
	}
	out := make([]*autodiff.Node[T], len(g.data))
	for i, t := range g.data {
		dims := t.Shape().Clone()
		dims[0] = batchSize
		out[i] = autodiff.NewNode[T](dims...)
	}
	for b := 0; b < batchSize; b++ {
		sample := g.order[g.next]
		for i, t := range g.data {
			if err := copyRow(out[i].Values(), b, t, sample); err != nil {
				return nil, err
			}
		}
		g.next++
		g.inEpoch++
		if g.next >= len(g.order) {
			g.reshuffle()
		}
		if g.inEpoch >= g.epochSize {
			g.epoch++
			if !g.mute {
				g.onEpoch(g.epoch)
			}
			g.inEpoch = 0
			g.reshuffle()
		}
	}
	return out, nil
}

func copyRow[T tensor.Float](dst *tensor.Tensor[T], dstRow int, src *tensor.Tensor[T], srcRow int) error {
	to, err := dst.Index(dstRow)
	if err != nil {
		return err
	}
	from, err := src.Index(srcRow)
	if err != nil {
		return err
	}
	return to.Assign(from)
}

// SetEpochSize sets the number of samples after which an epoch is complete. Zero is an
// ErrInvalidArgument.
func (g *BatchGenerator[T]) SetEpochSize(size int) error {
	if size <= 0 {
		return errors.Wrapf(tensor.ErrInvalidArgument, "invalid epoch size %d", size)
	}
	g.epochSize = size
	return nil
}

// SetEpochCallback replaces the function called when an epoch completes.
func (g *BatchGenerator[T]) SetEpochCallback(fn func(epoch int)) {
	g.onEpoch = fn
}

// Epoch returns the number of completed epochs.
func (g *BatchGenerator[T]) Epoch() int {
	return g.epoch
}

// NumSamples returns the number of samples in the data set.
func (g *BatchGenerator[T]) NumSamples() int {
	return len(g.order)
}

// Reset reshuffles and starts counting epochs from zero.
func (g *BatchGenerator[T]) Reset() {
	g.reshuffle()
	g.epoch = 0
	g.inEpoch = 0
}

// Mute stops epoch notifications.
func (g *BatchGenerator[T]) Mute() {
	g.mute = true
}

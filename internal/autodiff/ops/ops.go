// Package ops implements the differentiable operators wired into the graph by
// autodiff.Connector: dense layers, element-wise functions, broadcasting arithmetic,
// reductions, losses, tensor products and 2D image operations.
//
// Every operator comes with a NewXxx constructor returning a fresh Connector, which can be
// connected several times to share its weights, and an Xxx helper that creates a connector
// and connects it once.
//
// Kernels read and write tensors through views and the flat Data() buffers. Index errors
// inside a kernel panic; Connect, Forward and ComputeGrad report them as errors.
package ops

import (
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"

	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// checkArity verifies the number of inputs of an operator.
func checkArity[T tensor.Float](name string, inputs []*autodiff.Node[T], n int) error {
	if len(inputs) != n {
		return errors.Wrapf(autodiff.ErrInvalidArgument, "%s takes %d inputs, got %d", name, n, len(inputs))
	}
	return nil
}

// checkMinRank verifies that the input has at least rank axes.
func checkMinRank[T tensor.Float](name string, input *autodiff.Node[T], rank int) error {
	if input.Rank() < rank {
		return errors.Wrapf(autodiff.ErrInvalidArgument, "%s needs inputs of rank >= %d, got shape %s",
			name, rank, input.Shape())
	}
	return nil
}

// rightView views t with n axes, merging the leading ones. Node tensors always own their
// buffer, so the view cannot fail for n > 0.
func rightView[T tensor.Float](t *tensor.Tensor[T], n int) *tensor.Tensor[T] {
	return must.M1(t.ViewWithNDimsOnTheRight(n))
}

// reshaped views t with the given dimensions.
func reshaped[T tensor.Float](t *tensor.Tensor[T], dims ...int) *tensor.Tensor[T] {
	return must.M1(t.Reshape(dims...))
}

// withLastDim returns a copy of shape with its last axis set to dim.
func withLastDim(shape tensor.Shape, dim int) tensor.Shape {
	out := shape.Clone()
	out[len(out)-1] = dim
	return out
}

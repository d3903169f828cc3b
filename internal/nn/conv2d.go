package nn

import (
	"github.com/pkg/errors"

	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/autodiff/ops"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// Conv2D is a 2D convolution layer with "same" padding and stride 1, followed by a bias add.
//
// Images are shaped [..., width, height, in] and map to [..., width, height, out]. The
// kernel is shaped [kw, kh, in, out]; kw and kh must be odd.
type Conv2D[T tensor.Float] struct {
	Base[T]
	kernel, bias *autodiff.Node[T]
}

// NewConv2D creates a convolution layer. Even kernel sizes are rejected with
// ErrInvalidArgument.
func NewConv2D[T tensor.Float](kw, kh, in, out int) (*Conv2D[T], error) {
	if kw <= 0 || kh <= 0 || kw%2 == 0 || kh%2 == 0 {
		return nil, errors.Wrapf(autodiff.ErrInvalidArgument, "Conv2D kernel sizes must be odd and positive, got %dx%d", kw, kh)
	}
	if in <= 0 || out <= 0 {
		return nil, errors.Wrapf(autodiff.ErrInvalidArgument, "Conv2D channels must be positive, got %d -> %d", in, out)
	}
	c := &Conv2D[T]{}
	c.kernel = c.AddWeight(kw, kh, in, out)
	c.bias = c.AddWeight(out)
	c.kernel.Values().Xavier(in, out)
	logCreated("Conv2D", 2, c.NumParameters())
	return c, nil
}

// Call implements Module.
func (c *Conv2D[T]) Call(inputs ...*autodiff.Node[T]) (*autodiff.Node[T], error) {
	images, err := single("Conv2D", inputs)
	if err != nil {
		return nil, err
	}
	conv, err := ops.Conv2D(c.kernel, images)
	if err != nil {
		return nil, err
	}
	return ops.Add(conv, c.bias)
}

// Kernel returns the convolution kernel.
func (c *Conv2D[T]) Kernel() *autodiff.Node[T] { return c.kernel }

// Bias returns the per-channel bias.
func (c *Conv2D[T]) Bias() *autodiff.Node[T] { return c.bias }

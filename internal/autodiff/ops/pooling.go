package ops

import (
	"github.com/pkg/errors"

	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/parallel"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// window describes a pooling or upsampling factor over the width and height axes of
// images shaped [..., width, height, channels].
type window struct {
	pw, ph int
}

func (w window) check(name string, shape tensor.Shape) error {
	if w.pw <= 0 || w.ph <= 0 {
		return errors.Wrapf(autodiff.ErrInvalidArgument, "%s with window %dx%d", name, w.pw, w.ph)
	}
	if shape.Rank() < 3 {
		return errors.Wrapf(autodiff.ErrInvalidArgument, "%s needs images of rank >= 3, got shape %s", name, shape)
	}
	return nil
}

// blockGeometry maps the pixels of the small side (pooled, or before upsampling) to blocks
// of the large side. Blocks at the right and bottom edges may be clipped.
type blockGeometry struct {
	window
	batch, channels int
	smallW, smallH  int
	largeW, largeH  int
}

func newBlockGeometry(w window, small, large tensor.Shape) blockGeometry {
	return blockGeometry{
		window:   w,
		batch:    small[:small.Rank()-3].NumElements(),
		channels: small.Dim(-1),
		smallW:   small.Dim(-3),
		smallH:   small.Dim(-2),
		largeW:   large.Dim(-3),
		largeH:   large.Dim(-2),
	}
}

// visit calls fn for every small pixel and every large pixel of its block with their flat
// offsets, channels excluded, and the number of large pixels in the block.
func (g blockGeometry) visit(b int, fn func(smallPos, largePos, count int)) {
	for i := range g.smallW {
		for j := range g.smallH {
			smallPos := ((b*g.smallW+i)*g.smallH + j) * g.channels
			iEnd, jEnd := min((i+1)*g.pw, g.largeW), min((j+1)*g.ph, g.largeH)
			count := (iEnd - i*g.pw) * (jEnd - j*g.ph)
			for li := i * g.pw; li < iEnd; li++ {
				for lj := j * g.ph; lj < jEnd; lj++ {
					fn(smallPos, ((b*g.largeW+li)*g.largeH+lj)*g.channels, count)
				}
			}
		}
	}
}

type averagePoolingOp[T tensor.Float] struct {
	window
}

// NewAveragePooling returns a connector averaging pw×ph blocks of images shaped
// [..., width, height, channels]. Edge blocks that do not fit entirely are averaged over
// the pixels they cover, so the output has ceil(width/pw) × ceil(height/ph) pixels.
func NewAveragePooling[T tensor.Float](pw, ph int) *autodiff.Connector[T] {
	return autodiff.NewConnector[T](&averagePoolingOp[T]{window{pw: pw, ph: ph}})
}

// AveragePooling connects the pw×ph average pooling of images.
func AveragePooling[T tensor.Float](images *autodiff.Node[T], pw, ph int) (*autodiff.Node[T], error) {
	return NewAveragePooling[T](pw, ph).Connect(images)
}

func (op *averagePoolingOp[T]) Name() string { return "AveragePooling" }

func (op *averagePoolingOp[T]) OutputDims(inputs []*autodiff.Node[T]) (tensor.Shape, error) {
	if err := checkArity(op.Name(), inputs, 1); err != nil {
		return nil, err
	}
	shape := inputs[0].Shape()
	if err := op.check(op.Name(), shape); err != nil {
		return nil, err
	}
	out := shape.Clone()
	out[out.Rank()-3] = (out[out.Rank()-3] + op.pw - 1) / op.pw
	out[out.Rank()-2] = (out[out.Rank()-2] + op.ph - 1) / op.ph
	return out, nil
}

func (op *averagePoolingOp[T]) Forward(inputs, _ []*autodiff.Node[T], output *autodiff.Node[T]) error {
	geo := newBlockGeometry(op.window, output.Shape(), inputs[0].Shape())
	xd, yd := inputs[0].Values().Data(), output.Values().Data()
	clear(yd)
	parallel.ForBatch(geo.batch, geo.channels, func(b, c int) {
		geo.visit(b, func(smallPos, largePos, count int) {
			yd[smallPos+c] += xd[largePos+c] / T(count)
		})
	})
	return nil
}

func (op *averagePoolingOp[T]) Backward(output *autodiff.Node[T], _, inputs []*autodiff.Node[T]) error {
	geo := newBlockGeometry(op.window, output.Shape(), inputs[0].Shape())
	gxd, gyd := inputs[0].Gradient().Data(), output.Gradient().Data()
	parallel.ForBatch(geo.batch, geo.channels, func(b, c int) {
		geo.visit(b, func(smallPos, largePos, count int) {
			gxd[largePos+c] += gyd[smallPos+c] / T(count)
		})
	})
	return nil
}

type upSample2DOp[T tensor.Float] struct {
	window
}

// NewUpSample2D returns a connector enlarging images shaped [..., width, height, channels]
// by pw along the width and ph along the height. Every pixel is spread evenly over its
// pw×ph block, so a block sums to the original pixel value.
func NewUpSample2D[T tensor.Float](pw, ph int) *autodiff.Connector[T] {
	return autodiff.NewConnector[T](&upSample2DOp[T]{window{pw: pw, ph: ph}})
}

// UpSample2D connects the pw×ph upsampling of images.
func UpSample2D[T tensor.Float](images *autodiff.Node[T], pw, ph int) (*autodiff.Node[T], error) {
	return NewUpSample2D[T](pw, ph).Connect(images)
}

func (op *upSample2DOp[T]) Name() string { return "UpSample2D" }

func (op *upSample2DOp[T]) OutputDims(inputs []*autodiff.Node[T]) (tensor.Shape, error) {
	if err := checkArity(op.Name(), inputs, 1); err != nil {
		return nil, err
	}
	shape := inputs[0].Shape()
	if err := op.check(op.Name(), shape); err != nil {
		return nil, err
	}
	out := shape.Clone()
	out[out.Rank()-3] *= op.pw
	out[out.Rank()-2] *= op.ph
	return out, nil
}

func (op *upSample2DOp[T]) Forward(inputs, _ []*autodiff.Node[T], output *autodiff.Node[T]) error {
	geo := newBlockGeometry(op.window, inputs[0].Shape(), output.Shape())
	xd, yd := inputs[0].Values().Data(), output.Values().Data()
	parallel.ForBatch(geo.batch, geo.channels, func(b, c int) {
		geo.visit(b, func(smallPos, largePos, count int) {
			yd[largePos+c] = xd[smallPos+c] / T(count)
		})
	})
	return nil
}

func (op *upSample2DOp[T]) Backward(output *autodiff.Node[T], _, inputs []*autodiff.Node[T]) error {
	geo := newBlockGeometry(op.window, inputs[0].Shape(), output.Shape())
	gxd, gyd := inputs[0].Gradient().Data(), output.Gradient().Data()
	parallel.ForBatch(geo.batch, geo.channels, func(b, c int) {
		geo.visit(b, func(smallPos, largePos, count int) {
			gxd[smallPos+c] += gyd[largePos+c] / T(count)
		})
	})
	return nil
}

package ops

import (
	"github.com/pkg/errors"

	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/parallel"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// conv2DOp is a 2D convolution with "same" zero padding and stride 1. Its inputs are the
// kernel, shaped [kw, kh, in, out] with odd kw and kh, and the images, shaped
// [..., width, height, in]. The output has the images' shape with the last axis set to out.
type conv2DOp[T tensor.Float] struct{}

// NewConv2D returns a convolution connector for inputs (kernel, images).
func NewConv2D[T tensor.Float]() *autodiff.Connector[T] {
	return autodiff.NewConnector[T](conv2DOp[T]{})
}

// Conv2D connects the convolution of images with kernel.
func Conv2D[T tensor.Float](kernel, images *autodiff.Node[T]) (*autodiff.Node[T], error) {
	return NewConv2D[T]().Connect(kernel, images)
}

func (conv2DOp[T]) Name() string { return "Conv2D" }

func (op conv2DOp[T]) OutputDims(inputs []*autodiff.Node[T]) (tensor.Shape, error) {
	if err := checkArity(op.Name(), inputs, 2); err != nil {
		return nil, err
	}
	kernel, images := inputs[0], inputs[1]
	if kernel.Rank() != 4 {
		return nil, errors.Wrapf(autodiff.ErrInvalidArgument, "Conv2D kernel must have rank 4, got shape %s",
			kernel.Shape())
	}
	if kernel.Dim(0)%2 == 0 || kernel.Dim(1)%2 == 0 {
		return nil, errors.Wrapf(autodiff.ErrInvalidArgument, "Conv2D kernel sizes must be odd, got shape %s",
			kernel.Shape())
	}
	if err := checkMinRank(op.Name(), images, 3); err != nil {
		return nil, err
	}
	if images.Dim(-1) != kernel.Dim(2) {
		return nil, errors.Wrapf(autodiff.ErrShapeMismatch, "Conv2D kernel %s applied to images of shape %s",
			kernel.Shape(), images.Shape())
	}
	return withLastDim(images.Shape(), kernel.Dim(3)), nil
}

// convGeometry holds the sizes shared by the convolution kernels.
type convGeometry struct {
	batch, width, height int
	kw, kh, in, out      int
}

func newConvGeometry(kernel, images tensor.Shape) convGeometry {
	return convGeometry{
		batch:  images[:images.Rank()-3].NumElements(),
		width:  images.Dim(-3),
		height: images.Dim(-2),
		kw:     kernel[0],
		kh:     kernel[1],
		in:     kernel[2],
		out:    kernel[3],
	}
}

// visit calls fn for every pair of output pixel and kernel tap that overlaps the image,
// with the flat offsets of the output pixel, of the input pixel and of the kernel tap,
// channels excluded.
func (g convGeometry) visit(b int, fn func(outPos, inPos, tapPos int)) {
	rw, rh := g.kw/2, g.kh/2
	for i := range g.width {
		for j := range g.height {
			pixel := (b*g.width+i)*g.height + j
			for di := max(-rw, -i); di <= min(rw, g.width-1-i); di++ {
				for dj := max(-rh, -j); dj <= min(rh, g.height-1-j); dj++ {
					source := (b*g.width+i+di)*g.height + j + dj
					tap := (di+rw)*g.kh + dj + rh
					fn(pixel*g.out, source*g.in, tap*g.in*g.out)
				}
			}
		}
	}
}

func (conv2DOp[T]) Forward(inputs, _ []*autodiff.Node[T], output *autodiff.Node[T]) error {
	geo := newConvGeometry(inputs[0].Shape(), inputs[1].Shape())
	kd, xd, yd := inputs[0].Values().Data(), inputs[1].Values().Data(), output.Values().Data()
	parallel.Rows(geo.batch, func(start, end int) {
		clear(yd[start*geo.width*geo.height*geo.out : end*geo.width*geo.height*geo.out])
		for b := start; b < end; b++ {
			geo.visit(b, func(outPos, inPos, tapPos int) {
				y := yd[outPos : outPos+geo.out]
				for c := range geo.in {
					v := xd[inPos+c]
					k := kd[tapPos+c*geo.out : tapPos+(c+1)*geo.out]
					for o := range y {
						y[o] += v * k[o]
					}
				}
			})
		}
	})
	return nil
}

func (conv2DOp[T]) Backward(output *autodiff.Node[T], _, inputs []*autodiff.Node[T]) error {
	geo := newConvGeometry(inputs[0].Shape(), inputs[1].Shape())
	kd, xd := inputs[0].Values().Data(), inputs[1].Values().Data()
	gkd, gxd := inputs[0].Gradient().Data(), inputs[1].Gradient().Data()
	gyd := output.Gradient().Data()

	parallel.Rows(geo.batch, func(start, end int) {
		for b := start; b < end; b++ {
			geo.visit(b, func(outPos, inPos, tapPos int) {
				g := gyd[outPos : outPos+geo.out]
				for c := range geo.in {
					k := kd[tapPos+c*geo.out : tapPos+(c+1)*geo.out]
					var sum T
					for o, gv := range g {
						sum += gv * k[o]
					}
					gxd[inPos+c] += sum
				}
			})
		}
	})
	// The kernel gradient sums over the whole batch; workers split the output channels.
	parallel.Rows(geo.out, func(start, end int) {
		for b := range geo.batch {
			geo.visit(b, func(outPos, inPos, tapPos int) {
				for c := range geo.in {
					v := xd[inPos+c]
					for o := start; o < end; o++ {
						gkd[tapPos+c*geo.out+o] += v * gyd[outPos+o]
					}
				}
			})
		}
	})
	return nil
}

package main

import (
	"flag"
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/hsandmeyer/snnl-sub000/autodiff"
	"github.com/hsandmeyer/snnl-sub000/data"
	"github.com/hsandmeyer/snnl-sub000/nn"
	"github.com/hsandmeyer/snnl-sub000/optim"
	"github.com/hsandmeyer/snnl-sub000/tensor"
)

var (
	flagMNISTDir  = flag.String("mnist_dir", ".", "Directory holding the four MNIST IDX files.")
	flagEpochSize = flag.Int("epoch_size", 2048, "Training samples per epoch. Test accuracy is reported after each.")
	flagEval      = flag.Int("eval_samples", 1000, "Number of test images accuracy is measured on. 0 uses all of them.")
)

// MNIST file names, as distributed.
const (
	mnistTrainImages = "train-images-idx3-ubyte"
	mnistTrainLabels = "train-labels-idx1-ubyte"
	mnistTestImages  = "t10k-images-idx3-ubyte"
	mnistTestLabels  = "t10k-labels-idx1-ubyte"
)

const mnistClasses = 10

// mnistModel is three 3x3 convolutions with ReLU, separated by 2x2 average pooling, followed
// by a dense softmax classifier.
type mnistModel struct {
	nn.Base[float32]
	convs [3]*nn.Conv2D[float32]
	dense *nn.Dense[float32]
}

func newMNISTModel(width, height int) (*mnistModel, error) {
	m := &mnistModel{}
	channels := []int{1, 16, 32, 64}
	for i := range m.convs {
		conv, err := nn.NewConv2D[float32](3, 3, channels[i], channels[i+1])
		if err != nil {
			return nil, err
		}
		conv.Kernel().Values().HeNormal(3 * 3 * channels[i])
		m.convs[i] = conv
		m.AddModule(conv)
	}
	// Pooling rounds up.
	for range 2 {
		width, height = (width+1)/2, (height+1)/2
	}
	m.dense = nn.NewDense[float32](channels[3]*width*height, mnistClasses)
	m.AddModule(m.dense)
	return m, nil
}

// Call maps images [batch, width, height, 1] to class probabilities [batch, 10].
func (m *mnistModel) Call(inputs ...*autodiff.Node[float32]) (*autodiff.Node[float32], error) {
	if len(inputs) != 1 {
		return nil, errors.Wrapf(autodiff.ErrInvalidArgument, "mnist model takes 1 input, got %d", len(inputs))
	}
	x := inputs[0]
	var err error
	for i, conv := range m.convs {
		if i > 0 {
			if x, err = autodiff.AveragePooling(x, 2, 2); err != nil {
				return nil, err
			}
		}
		if x, err = conv.Call(x); err != nil {
			return nil, err
		}
		if x, err = autodiff.ReLU(x); err != nil {
			return nil, err
		}
	}
	if x, err = autodiff.Flatten(x); err != nil {
		return nil, err
	}
	if x, err = m.dense.Call(x); err != nil {
		return nil, err
	}
	return autodiff.SoftMax(x)
}

// mnistSet is a set of images with their labels.
type mnistSet struct {
	images, labels *tensor.Tensor[float32]
}

func loadMNISTSet(dir, imagesFile, labelsFile string) (mnistSet, error) {
	images, err := readIDXImages(filepath.Join(dir, imagesFile))
	if err != nil {
		return mnistSet{}, err
	}
	labels, err := readIDXLabels(filepath.Join(dir, labelsFile))
	if err != nil {
		return mnistSet{}, err
	}
	if images.Dim(0) != labels.Dim(0) {
		return mnistSet{}, errors.Wrapf(tensor.ErrShapeMismatch, "%s has %d images but %s has %d labels",
			imagesFile, images.Dim(0), labelsFile, labels.Dim(0))
	}
	return mnistSet{images: images, labels: labels}, nil
}

// head returns the first n samples, or all of them if n is 0 or too large.
func (s mnistSet) head(n int) (mnistSet, error) {
	if n <= 0 || n >= s.images.Dim(0) {
		return s, nil
	}
	images, err := s.images.Slice(0, 0, n)
	if err != nil {
		return mnistSet{}, err
	}
	labels, err := s.labels.Slice(0, 0, n)
	if err != nil {
		return mnistSet{}, err
	}
	return mnistSet{images: images.Copy(), labels: labels.Copy()}, nil
}

// accuracy classifies the whole set at once.
func (s mnistSet) accuracy(model *mnistModel) (float64, error) {
	probs, err := model.Call(autodiff.NodeFromTensor(s.images))
	if err != nil {
		return 0, err
	}
	return nn.SparseAccuracy(probs, autodiff.NodeFromTensor(s.labels))
}

// trainMNIST trains the classifier on random mini-batches and measures the test accuracy
// after every epoch.
func trainMNIST() error {
	seed()
	train, err := loadMNISTSet(*flagMNISTDir, mnistTrainImages, mnistTrainLabels)
	if err != nil {
		return err
	}
	test, err := loadMNISTSet(*flagMNISTDir, mnistTestImages, mnistTestLabels)
	if err != nil {
		return err
	}
	if test, err = test.head(*flagEval); err != nil {
		return err
	}
	klog.V(1).Infof("MNIST: %d training and %d test images of %dx%d", train.images.Dim(0), test.images.Dim(0),
		train.images.Dim(1), train.images.Dim(2))

	model, err := newMNISTModel(train.images.Dim(1), train.images.Dim(2))
	if err != nil {
		return err
	}
	opt, err := newOptimizer[float32]()
	if err != nil {
		return err
	}
	tr := &trainer[float32]{name: "mnist", model: model, opt: opt}
	if err := tr.resume(); err != nil {
		return err
	}

	var lossSum float64
	var samples int
	gen, err := data.NewBatchGenerator(data.Config{
		Seed:      *flagSeed,
		EpochSize: *flagEpochSize,
		OnEpoch: func(epoch int) {
			acc, err := test.accuracy(model)
			if err != nil {
				klog.Errorf("epoch %d: evaluation failed: %+v", epoch, err)
				return
			}
			klog.Infof("epoch %d: mean loss %.4f, test accuracy %.2f%%", epoch, lossSum/float64(max(samples, 1)), 100*acc)
			lossSum, samples = 0, 0
		},
	}, train.images, train.labels)
	if err != nil {
		return err
	}

	last, err := tr.run(func() (float32, error) {
		batch, err := gen.GenerateBatch(*flagBatch)
		if err != nil {
			return 0, err
		}
		probs, err := model.Call(batch[0])
		if err != nil {
			return 0, err
		}
		loss, err := autodiff.SparseCategoricalCrossEntropy(probs, batch[1])
		if err != nil {
			return 0, err
		}
		if err := optim.Minimize[float32](opt, loss); err != nil {
			return 0, err
		}
		lossSum += float64(lossOf(loss))
		samples += *flagBatch
		return lossOf(loss), nil
	})
	if err != nil {
		return err
	}

	acc, err := test.accuracy(model)
	if err != nil {
		return err
	}
	fmt.Printf("test accuracy: %.2f%%\n", 100*acc)
	return tr.save(last)
}

package nn

import (
	"github.com/pkg/errors"

	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// SparseAccuracy returns the fraction of rows of probs whose largest entry sits at the class
// index given by labels. probs is shaped [..., classes] and labels has probs' leading shape.
func SparseAccuracy[T tensor.Float](probs, labels *autodiff.Node[T]) (float64, error) {
	if probs.Rank() == 0 || !probs.Shape()[:probs.Rank()-1].Equal(labels.Shape()) {
		return 0, errors.Wrapf(autodiff.ErrShapeMismatch, "accuracy of probabilities %s against labels %s",
			probs.Shape(), labels.Shape())
	}
	predicted, err := probs.Values().ArgMax()
	if err != nil {
		return 0, err
	}
	want := labels.Values().Values()
	if len(want) == 0 {
		return 0, nil
	}
	hits := 0
	for i, p := range predicted.Values() {
		if p == want[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(want)), nil
}

package nn

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/hsandmeyer/snnl-sub000/internal/autodiff"
	"github.com/hsandmeyer/snnl-sub000/internal/serialization"
	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// FileExtension is appended to weight file names that lack it.
const FileExtension = ".snnl"

// OptimizerState represents an optimizer that can save and restore its state.
//
// This interface is used by checkpoints to serialize optimizer state without creating
// import cycles. Optimizers from the optim package implement it.
type OptimizerState[T tensor.Float] interface {
	// Name identifies the optimizer type, e.g. "Adam".
	Name() string

	// Config returns the hyperparameters and counters to store with a checkpoint.
	Config() map[string]float64

	// LoadConfig restores what Config returned.
	LoadConfig(config map[string]float64) error

	// State returns the auxiliary tensors kept for weight w, or nil if there are none yet.
	State(w *autodiff.Node[T]) []*tensor.Tensor[T]

	// SetState replaces the auxiliary tensors kept for weight w.
	SetState(w *autodiff.Node[T], state []*tensor.Tensor[T]) error
}

// Checkpoint is a training state snapshot: the model's weights, the optimizer's state and
// where training stood.
//
// Example:
//
//	checkpoint := &nn.Checkpoint[float32]{
//	    Model:     model,
//	    Optimizer: optimizer,
//	    Epoch:     10,
//	    Step:      5000,
//	    Loss:      0.123,
//	}
//	err := checkpoint.Save("checkpoint_epoch_10.snnl")
//
// To resume training:
//
//	checkpoint, err := nn.LoadCheckpoint[float32]("checkpoint_epoch_10.snnl", model, optimizer)
//	startEpoch := checkpoint.Epoch + 1
type Checkpoint[T tensor.Float] struct {
	Model     Module[T]
	Optimizer OptimizerState[T]
	Epoch     int
	Step      int64
	Loss      float64
	Metadata  map[string]string
}

// withExtension appends FileExtension unless path already ends with it.
func withExtension(path string) string {
	if strings.HasSuffix(path, FileExtension) {
		return path
	}
	return path + FileExtension
}

func weightName(i int) string {
	return fmt.Sprintf("weights.%d", i)
}

func stateName(i, slot int) string {
	return fmt.Sprintf("optimizer.%d.%d", i, slot)
}

// Entries returns the weights of m in insertion order, named "weights.<i>".
func Entries[T tensor.Float](m Module[T]) []serialization.Entry {
	weights := m.Weights()
	entries := make([]serialization.Entry, len(weights))
	for i, w := range weights {
		entries[i] = serialization.EncodeTensor(weightName(i), w.Values())
	}
	return entries
}

// Save writes the weights of m to path, appending the .snnl extension if missing.
func Save[T tensor.Float](m Module[T], path string) error {
	path = withExtension(path)
	header := serialization.Header{ModelType: fmt.Sprintf("%T", m)}
	if err := serialization.WriteFile(path, Entries(m), header); err != nil {
		return errors.WithMessagef(err, "saving weights to %s", path)
	}
	return nil
}

// Load reads weights saved by Save into m. Weights are matched by position; a stored weight
// whose shape differs from the module's is an ErrShapeMismatch. Stored values in the other
// precision are converted.
func Load[T tensor.Float](m Module[T], path string) error {
	path = withExtension(path)
	r, err := serialization.NewReader(path)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	if err := loadWeights(r, m.Weights()); err != nil {
		return errors.WithMessagef(err, "loading weights from %s", path)
	}
	return nil
}

func loadWeights[T tensor.Float](r *serialization.Reader, weights []*autodiff.Node[T]) error {
	for i, w := range weights {
		e, err := r.ReadEntry(weightName(i))
		if err != nil {
			return err
		}
		if err := assignEntry(w.Values(), e); err != nil {
			return err
		}
	}
	return nil
}

// assignEntry copies the values of e into dst, whose shape must match.
func assignEntry[T tensor.Float](dst *tensor.Tensor[T], e serialization.Entry) error {
	if !dst.Shape().Equal(e.Shape) {
		return errors.Wrapf(autodiff.ErrShapeMismatch, "tensor %q stored with shape %s, target has shape %s",
			e.Name, e.Shape, dst.Shape())
	}
	values, err := serialization.Values[T](e)
	if err != nil {
		return err
	}
	return dst.SetFlattened(values)
}

// Save writes the checkpoint to path, appending the .snnl extension if missing.
//
// The model's weights are stored as by the package-level Save, followed by the optimizer's
// state tensors named "optimizer.<weight>.<slot>".
func (c *Checkpoint[T]) Save(path string) error {
	path = withExtension(path)
	if c.Model == nil || c.Optimizer == nil {
		return errors.Wrap(autodiff.ErrInvalidArgument, "checkpoint needs a model and an optimizer")
	}
	weights := c.Model.Weights()
	entries := Entries(c.Model)
	for i, w := range weights {
		for slot, t := range c.Optimizer.State(w) {
			entries = append(entries, serialization.EncodeTensor(stateName(i, slot), t))
		}
	}
	header := serialization.Header{
		ModelType: fmt.Sprintf("%T", c.Model),
		Metadata:  c.Metadata,
		Checkpoint: &serialization.CheckpointMeta{
			Epoch:           c.Epoch,
			Step:            c.Step,
			Loss:            c.Loss,
			OptimizerType:   c.Optimizer.Name(),
			OptimizerConfig: c.Optimizer.Config(),
		},
	}
	if err := serialization.WriteFile(path, entries, header); err != nil {
		return errors.WithMessagef(err, "saving checkpoint to %s", path)
	}
	klog.V(1).Infof("saved checkpoint of epoch %d, step %d to %s", c.Epoch, c.Step, path)
	return nil
}

// LoadCheckpoint restores a checkpoint written by Checkpoint.Save into model and optimizer,
// which must have been constructed the same way as when it was saved. With a nil optimizer
// only the weights are restored.
func LoadCheckpoint[T tensor.Float](path string, model Module[T], optimizer OptimizerState[T]) (*Checkpoint[T], error) {
	path = withExtension(path)
	r, err := serialization.NewReader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	header := r.Header()
	if header.Checkpoint == nil {
		return nil, errors.Wrapf(autodiff.ErrInvalidArgument, "%s is not a checkpoint", path)
	}
	if optimizer != nil && header.Checkpoint.OptimizerType != optimizer.Name() {
		return nil, errors.Wrapf(autodiff.ErrInvalidArgument, "%s was saved with optimizer %s, got %s",
			path, header.Checkpoint.OptimizerType, optimizer.Name())
	}
	weights := model.Weights()
	if err := loadWeights(r, weights); err != nil {
		return nil, errors.WithMessagef(err, "loading checkpoint %s", path)
	}
	checkpoint := &Checkpoint[T]{
		Model:     model,
		Optimizer: optimizer,
		Epoch:     header.Checkpoint.Epoch,
		Step:      header.Checkpoint.Step,
		Loss:      header.Checkpoint.Loss,
		Metadata:  header.Metadata,
	}
	if optimizer == nil {
		return checkpoint, nil
	}
	for i, w := range weights {
		var state []*tensor.Tensor[T]
		for slot := 0; ; slot++ {
			e, err := r.ReadEntry(stateName(i, slot))
			if errors.Is(err, serialization.ErrTensorNotFound) {
				break
			}
			if err != nil {
				return nil, err
			}
			t, err := serialization.DecodeTensor[T](e)
			if err != nil {
				return nil, err
			}
			state = append(state, t)
		}
		if len(state) == 0 {
			continue
		}
		if err := optimizer.SetState(w, state); err != nil {
			return nil, errors.WithMessagef(err, "restoring optimizer state of weight %d", i)
		}
	}
	if err := optimizer.LoadConfig(header.Checkpoint.OptimizerConfig); err != nil {
		return nil, err
	}
	return checkpoint, nil
}

// ExportSafeTensors writes the weights of m in SafeTensors format.
func ExportSafeTensors[T tensor.Float](m Module[T], path string, metadata map[string]string) error {
	return serialization.WriteSafeTensors(path, Entries(m), metadata)
}

// ImportSafeTensors loads weights written by ExportSafeTensors into m, matching them by name.
func ImportSafeTensors[T tensor.Float](m Module[T], path string) error {
	entries, _, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return err
	}
	byName := make(map[string]serialization.Entry, len(entries))
	for _, e := range entries {
		byName[e.Name] = e
	}
	for i, w := range m.Weights() {
		e, found := byName[weightName(i)]
		if !found {
			return errors.Wrapf(serialization.ErrTensorNotFound, "%s has no tensor %q", path, weightName(i))
		}
		if err := assignEntry(w.Values(), e); err != nil {
			return errors.WithMessagef(err, "importing %s", path)
		}
	}
	return nil
}

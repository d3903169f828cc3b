package main

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsandmeyer/snnl-sub000/internal/serialization"
)

// setFlags overrides training flags for one test.
func setFlags(t *testing.T, steps, batch int, opt string) {
	oldSteps, oldBatch, oldOpt, oldSave, oldResume, oldExport, oldImport, oldSeed :=
		*flagSteps, *flagBatch, *flagOptimizer, *flagSave, *flagResume, *flagExport, *flagImport, *flagSeed
	t.Cleanup(func() {
		*flagSteps, *flagBatch, *flagOptimizer, *flagSave, *flagResume, *flagExport, *flagImport, *flagSeed =
			oldSteps, oldBatch, oldOpt, oldSave, oldResume, oldExport, oldImport, oldSeed
	})
	*flagSteps, *flagBatch, *flagOptimizer, *flagSeed = steps, batch, opt, 42
}

func TestTrainSin_SaveResumeInspect(t *testing.T) {
	setFlags(t, 20, 4, "adam")
	dir := t.TempDir()
	*flagSave = filepath.Join(dir, "sin")
	*flagExport = filepath.Join(dir, "sin.safetensors")
	require.NoError(t, trainSin())

	path := filepath.Join(dir, "sin.snnl")
	r, err := serialization.NewReader(path)
	require.NoError(t, err)
	header := r.Header()
	require.NoError(t, r.Close())
	require.NotNil(t, header.Checkpoint)
	assert.Equal(t, int64(20), header.Checkpoint.Step)
	assert.Equal(t, "Adam", header.Checkpoint.OptimizerType)
	assert.Equal(t, "sin", header.Metadata["command"])

	_, err = os.Stat(*flagExport)
	require.NoError(t, err)

	*flagResume = path
	*flagExport = ""
	require.NoError(t, trainSin())
	r, err = serialization.NewReader(path)
	require.NoError(t, err)
	assert.Equal(t, int64(40), r.Header().Checkpoint.Step)
	require.NoError(t, r.Close())

	require.NoError(t, inspect(path))

	exported := filepath.Join(dir, "sin.safetensors")
	*flagResume, *flagSave, *flagImport = "", "", exported
	require.NoError(t, trainSin())
}

func TestTrainSinRNN(t *testing.T) {
	setFlags(t, 10, 8, "sgd")
	*flagSave = filepath.Join(t.TempDir(), "rnn.snnl")
	require.NoError(t, trainSinRNN())

	r, err := serialization.NewReader(*flagSave)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	// Wh, Wx, B of the recurrent layer, then W, B of the dense layer.
	assert.Len(t, r.TensorNames(), 5)
	assert.Equal(t, "SGD", r.Header().Checkpoint.OptimizerType)
}

func TestErrors(t *testing.T) {
	setFlags(t, 1, 2, "rmsprop")
	assert.Error(t, trainSin())
	assert.Error(t, inspect(filepath.Join(t.TempDir(), "missing.snnl")))
}

func TestWithExtension(t *testing.T) {
	assert.Equal(t, "a.snnl", withExtension("a"))
	assert.Equal(t, "a.snnl", withExtension("a.snnl"))
	assert.Equal(t, []string{"a", "b"}, sortedKeys(map[string]int{"b": 1, "a": 2}))
}

// writeIDX writes an IDX file of unsigned bytes.
func writeIDX(t *testing.T, path string, magic uint32, dims []int, data []byte) {
	t.Helper()
	buf := binary.BigEndian.AppendUint32(nil, magic)
	for _, d := range dims {
		buf = binary.BigEndian.AppendUint32(buf, uint32(d))
	}
	require.NoError(t, os.WriteFile(path, append(buf, data...), 0o644))
}

// writeMNIST writes n images of size x size per set, each labelled by its brightest row.
func writeMNIST(t *testing.T, dir string, n, size int) {
	t.Helper()
	for _, files := range [][2]string{{mnistTrainImages, mnistTrainLabels}, {mnistTestImages, mnistTestLabels}} {
		pixels := make([]byte, n*size*size)
		labels := make([]byte, n)
		for i := range labels {
			row := i % size
			labels[i] = byte(row)
			for col := 0; col < size; col++ {
				pixels[i*size*size+row*size+col] = 255
			}
		}
		writeIDX(t, filepath.Join(dir, files[0]), idxImagesMagic, []int{n, size, size}, pixels)
		writeIDX(t, filepath.Join(dir, files[1]), idxLabelsMagic, []int{n}, labels)
	}
}

func TestReadIDX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "images")
	writeIDX(t, path, idxImagesMagic, []int{2, 2, 3}, []byte{0, 255, 0, 0, 0, 51, 1, 2, 3, 4, 5, 6})
	images, err := readIDXImages(path)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 3, 1}, []int(images.Shape()))
	assert.Equal(t, float32(1), images.At(0, 0, 1, 0))
	assert.InDelta(t, 0.2, images.At(0, 1, 2, 0), 1e-6)

	_, err = readIDXLabels(path)
	assert.ErrorContains(t, err, "invalid magic number")

	short := filepath.Join(dir, "short")
	writeIDX(t, short, idxLabelsMagic, []int{5}, []byte{1, 2})
	_, err = readIDXLabels(short)
	assert.Error(t, err)

	huge := filepath.Join(dir, "huge")
	writeIDX(t, huge, idxImagesMagic, []int{1 << 30, 1 << 30, 1 << 30}, make([]byte, 16))
	_, err = readIDXImages(huge)
	assert.ErrorContains(t, err, "exceed the 16 data bytes")
}

func TestSineWalkClone(t *testing.T) {
	walk := newSineWalk(3)
	_, err := walk.next()
	require.NoError(t, err)
	walk.advance()
	c := walk.clone()
	assert.Equal(t, walk.x.Values().Values(), c.x.Values().Values())
	assert.Equal(t, walk.sin.Values().Values(), c.sin.Values().Values())
	_, err = c.next()
	require.NoError(t, err)
	c.advance()
	assert.NotEqual(t, walk.x.Values().Values(), c.x.Values().Values())
}

func TestTrainMNIST(t *testing.T) {
	setFlags(t, 4, 4, "adam")
	oldDir, oldEpoch, oldEval := *flagMNISTDir, *flagEpochSize, *flagEval
	t.Cleanup(func() { *flagMNISTDir, *flagEpochSize, *flagEval = oldDir, oldEpoch, oldEval })

	dir := t.TempDir()
	writeMNIST(t, dir, 16, 8)
	*flagMNISTDir, *flagEpochSize, *flagEval = dir, 8, 6

	model, err := newMNISTModel(8, 8)
	require.NoError(t, err)
	assert.Equal(t, 64*2*2, model.dense.InUnits())
	// Three kernels and biases, then W and B of the dense layer.
	assert.Len(t, model.Weights(), 8)

	require.NoError(t, trainMNIST())
}

package main

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/hsandmeyer/snnl-sub000/tensor"
)

// IDX magic numbers of unsigned-byte images (3 dimensions) and labels (1 dimension).
const (
	idxImagesMagic = 0x00000803
	idxLabelsMagic = 0x00000801
)

// readIDX reads an IDX file of unsigned bytes and returns its dimensions and data.
//
// IDX layout:
//
//	magic number: 4 bytes, 0x0000080<rank>
//	dimensions: rank × 4 bytes
//	data: unsigned bytes
func readIDX(filename string, magic uint32) ([]int, []byte, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = file.Close() }()
	info, err := file.Stat()
	if err != nil {
		return nil, nil, err
	}
	r := bufio.NewReader(file)

	var got uint32
	if err := binary.Read(r, binary.BigEndian, &got); err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read magic of %s", filename)
	}
	if got != magic {
		return nil, nil, errors.Errorf("%s: invalid magic number 0x%08x, want 0x%08x", filename, got, magic)
	}

	dims := make([]int, magic&0xff)
	available := info.Size() - 4 - 4*int64(len(dims))
	size := int64(1)
	for i := range dims {
		var d uint32
		if err := binary.Read(r, binary.BigEndian, &d); err != nil {
			return nil, nil, errors.Wrapf(err, "failed to read dimension %d of %s", i, filename)
		}
		dims[i] = int(d)
		if d > 0 && size > available/int64(d) {
			return nil, nil, errors.Errorf("%s: dimensions %v exceed the %d data bytes of the file",
				filename, dims[:i+1], available)
		}
		size *= int64(d)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read data of %s", filename)
	}
	return dims, data, nil
}

// readIDXImages reads an image file into a tensor shaped [images, rows, cols, 1], with
// pixels scaled to [0, 1].
func readIDXImages(filename string) (*tensor.Tensor[float32], error) {
	dims, data, err := readIDX(filename, idxImagesMagic)
	if err != nil {
		return nil, err
	}
	values := make([]float32, len(data))
	for i, b := range data {
		values[i] = float32(b) / 255
	}
	return tensor.FromSlice(values, dims[0], dims[1], dims[2], 1)
}

// readIDXLabels reads a label file into a tensor shaped [labels].
func readIDXLabels(filename string) (*tensor.Tensor[float32], error) {
	dims, data, err := readIDX(filename, idxLabelsMagic)
	if err != nil {
		return nil, err
	}
	values := make([]float32, len(data))
	for i, b := range data {
		values[i] = float32(b)
	}
	return tensor.FromSlice(values, dims[0])
}

package serialization

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strings"

	"github.com/pkg/errors"

	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// SafeTensorHeader represents a tensor in the SafeTensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// WriteSafeTensors exports entries to a SafeTensors file, the format most other frameworks
// can load.
//
// Format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]
//
// Tensors are written in alphabetical order by name.
func WriteSafeTensors(path string, entries []Entry, metadata map[string]string) error {
	//nolint:gosec // G304: the path is chosen by the caller on purpose
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	if err := WriteSafeTensorsTo(file, entries, metadata); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// WriteSafeTensorsTo writes entries in SafeTensors format to out.
func WriteSafeTensorsTo(out io.Writer, entries []Entry, metadata map[string]string) error {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })

	header := make(map[string]any, len(sorted)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}
	var offset int64
	for i, e := range sorted {
		if i > 0 && sorted[i-1].Name == e.Name {
			return &ValidationError{Type: "duplicate_name", Tensor: e.Name, Details: "name used twice"}
		}
		shape := make([]int64, len(e.Shape))
		for axis, dim := range e.Shape {
			shape[axis] = int64(dim)
		}
		size := int64(len(e.Data))
		header[e.Name] = SafeTensorHeader{
			DType:       dtypeToSafeTensors(e.DType),
			Shape:       shape,
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to marshal header")
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return errors.Wrap(err, "failed to write header size")
	}
	buf.Write(headerJSON)
	for _, e := range sorted {
		buf.Write(e.Data)
	}
	if _, err := buf.WriteTo(out); err != nil {
		return errors.Wrap(err, "failed to write safetensors")
	}
	return nil
}

// maxSafeTensorsHeader bounds the JSON header of files read with ReadSafeTensors.
const maxSafeTensorsHeader = 100 * 1024 * 1024

// ReadSafeTensors reads every tensor of a SafeTensors file, in data order, along with the
// file's metadata. Only F32 and F64 tensors are supported.
func ReadSafeTensors(path string) ([]Entry, map[string]string, error) {
	//nolint:gosec // G304: the path is chosen by the caller on purpose
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open file")
	}
	defer func() { _ = file.Close() }()
	return ReadSafeTensorsFrom(file)
}

// ReadSafeTensorsFrom reads a SafeTensors stream.
func ReadSafeTensorsFrom(in io.Reader) ([]Entry, map[string]string, error) {
	var headerSize uint64
	if err := binary.Read(in, binary.LittleEndian, &headerSize); err != nil {
		return nil, nil, errors.Wrap(err, "failed to read header size")
	}
	if headerSize > maxSafeTensorsHeader {
		return nil, nil, errors.Wrapf(ErrHeaderTooLarge, "safetensors header of %d bytes", headerSize)
	}
	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(in, headerJSON); err != nil {
		return nil, nil, errors.Wrap(err, "failed to read header")
	}

	// Tensors and "__metadata__" share the top-level object.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &raw); err != nil {
		return nil, nil, errors.Wrap(err, "failed to parse header JSON")
	}
	var metadata map[string]string
	if value, found := raw["__metadata__"]; found {
		if err := json.Unmarshal(value, &metadata); err != nil {
			return nil, nil, errors.Wrap(err, "failed to parse metadata")
		}
		delete(raw, "__metadata__")
	}

	if len(raw) > MaxTensorCount {
		return nil, nil, &ValidationError{Type: "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(raw), MaxTensorCount)}
	}

	type located struct {
		entry Entry
		start int64
	}
	tensors := make([]located, 0, len(raw))
	var dataSize int64
	for name, value := range raw {
		var info SafeTensorHeader
		if err := json.Unmarshal(value, &info); err != nil {
			return nil, nil, errors.Wrapf(err, "failed to parse tensor %q", name)
		}
		dtype, err := dtypeFromSafeTensors(info.DType)
		if err != nil {
			return nil, nil, &ValidationError{Type: "dtype", Tensor: name, Details: err.Error()}
		}
		size, ok := safeTensorBytes(info.Shape, dtype)
		if !ok {
			return nil, nil, &ValidationError{Type: "invalid_tensor", Tensor: name,
				Details: fmt.Sprintf("shape %v is negative or too large", info.Shape)}
		}
		shape := make(tensor.Shape, len(info.Shape))
		for axis, dim := range info.Shape {
			shape[axis] = int(dim)
		}
		start, end := info.DataOffsets[0], info.DataOffsets[1]
		if start < 0 || end < start || end-start != size {
			return nil, nil, &ValidationError{Type: "out_of_bounds", Tensor: name,
				Details: fmt.Sprintf("offsets [%d, %d] do not hold shape %s of %s", start, end, shape, dtype)}
		}
		dataSize = max(dataSize, end)
		tensors = append(tensors, located{entry: Entry{Name: name, DType: dtype, Shape: shape}, start: start})
	}

	// The buffer grows with the bytes actually present, not with what the header claims.
	data, err := io.ReadAll(io.LimitReader(in, dataSize))
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read tensor data")
	}
	if int64(len(data)) < dataSize {
		return nil, nil, errors.Wrapf(io.ErrUnexpectedEOF, "failed to read tensor data: got %d of %d bytes",
			len(data), dataSize)
	}
	slices.SortFunc(tensors, func(a, b located) int { return cmp.Compare(a.start, b.start) })
	entries := make([]Entry, len(tensors))
	for i, t := range tensors {
		t.entry.Data = data[t.start : t.start+int64(t.entry.Shape.NumElements()*t.entry.DType.Size())]
		entries[i] = t.entry
	}
	return entries, metadata, nil
}

// safeTensorBytes returns the byte size of a tensor, or false for negative dimensions and
// sizes overflowing int64.
func safeTensorBytes(shape []int64, dtype tensor.DataType) (int64, bool) {
	size := int64(dtype.Size())
	for _, dim := range shape {
		if dim < 0 || (dim > 0 && size > math.MaxInt64/dim) {
			return 0, false
		}
		size *= dim
	}
	return size, true
}

func dtypeFromSafeTensors(dtype string) (tensor.DataType, error) {
	switch dtype {
	case "F32":
		return tensor.Float32, nil
	case "F64":
		return tensor.Float64, nil
	}
	return 0, errors.Errorf("unsupported safetensors dtype %q", dtype)
}

// dtypeToSafeTensors converts tensor.DataType to the SafeTensors dtype string.
func dtypeToSafeTensors(dt tensor.DataType) string {
	if dt == tensor.Float64 {
		return "F64"
	}
	return "F32"
}

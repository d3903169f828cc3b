package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

func testEntries(t *testing.T) []Entry {
	t.Helper()
	w, err := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	b, err := tensor.FromSlice([]float32{0.5, -0.25}, 2)
	require.NoError(t, err)
	return []Entry{
		EncodeTensor("weights.0", w),
		EncodeTensor("weights.1", b),
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.snnl")
	header := Header{
		ModelType: "Sequential",
		Metadata:  map[string]string{"task": "sin"},
		Checkpoint: &CheckpointMeta{
			Epoch:           3,
			Step:            300,
			Loss:            0.125,
			OptimizerType:   "Adam",
			OptimizerConfig: map[string]float64{"lr": 0.001},
		},
	}
	require.NoError(t, WriteFile(path, testEntries(t), header))

	r, err := NewReader(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	got := r.Header()
	assert.Equal(t, FormatVersion, got.FormatVersion)
	assert.Equal(t, LibraryVersion, got.LibraryVersion)
	assert.Equal(t, "Sequential", got.ModelType)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, "sin", r.Metadata()["task"])
	require.NotNil(t, got.Checkpoint)
	assert.Equal(t, 3, got.Checkpoint.Epoch)
	assert.Equal(t, int64(300), got.Checkpoint.Step)
	assert.InDelta(t, 0.001, got.Checkpoint.OptimizerConfig["lr"], 1e-15)
	assert.Equal(t, FlagHasMetadata|FlagCheckpoint, r.Flags())
	assert.Equal(t, []string{"weights.0", "weights.1"}, r.TensorNames())

	info, err := r.TensorInfo("weights.1")
	require.NoError(t, err)
	assert.Equal(t, "float32", info.DType)
	assert.Equal(t, int64(48), info.Offset)
	assert.Equal(t, int64(8), info.Size)

	e, err := r.ReadEntry("weights.0")
	require.NoError(t, err)
	w, err := DecodeTensor[float64](e)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, w.Shape())
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, w.Values())

	entries, err := r.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, tensor.Float32, entries[1].DType)
	b, err := Values[float32](entries[1])
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25}, b)

	_, err = r.ReadEntry("weights.7")
	assert.True(t, errors.Is(err, ErrTensorNotFound))
}

func TestDataSectionIsAligned(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, testEntries(t), Header{}))

	raw := buf.Bytes()
	headerSize := int64(binary.LittleEndian.Uint64(raw[16:24]))
	dataSize := int64(binary.LittleEndian.Uint64(raw[24:32]))
	offset := dataOffset(headerSize)
	assert.Zero(t, offset%HeaderAlignment)
	assert.Equal(t, int64(56), dataSize)
	assert.Equal(t, offset+dataSize, int64(len(raw)))
	assert.Equal(t, ComputeChecksum(raw[offset:]), [ChecksumSize]byte(raw[ChecksumOffset:ChecksumOffset+ChecksumSize]))

	var header Header
	require.NoError(t, json.Unmarshal(raw[FixedHeaderSize:FixedHeaderSize+headerSize], &header))
	assert.Len(t, header.Tensors, 2)
	assert.Zero(t, binary.LittleEndian.Uint32(raw[8:12]))
}

func TestReadFrom(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, testEntries(t), Header{ModelType: "Dense"}))

	entries, header, err := ReadFrom(&buf, ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Dense", header.ModelType)
	require.Len(t, entries, 2)
	assert.Equal(t, "weights.1", entries[1].Name)
	assert.Equal(t, tensor.Shape{2}, entries[1].Shape)
}

func TestReader_DetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.snnl")
	require.NoError(t, WriteFile(path, testEntries(t), Header{}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	_, err = NewReader(path)
	assert.True(t, errors.Is(err, ErrChecksumMismatch), "got %v", err)

	r, err := NewReaderWithOptions(path, ReaderOptions{SkipChecksumValidation: true})
	require.NoError(t, err)
	assert.NoError(t, r.Close())
}

func TestReader_RejectsBadFixedHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTo(&buf, testEntries(t), Header{}))
	valid := buf.Bytes()

	tests := []struct {
		name    string
		corrupt func(raw []byte)
		want    error
	}{
		{"magic", func(raw []byte) { copy(raw, "GGUF") }, ErrInvalidMagic},
		{"version", func(raw []byte) { binary.LittleEndian.PutUint32(raw[4:8], 1) }, ErrUnsupportedVersion},
		{"header size", func(raw []byte) { binary.LittleEndian.PutUint64(raw[16:24], MaxHeaderSize+1) }, ErrHeaderTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := bytes.Clone(valid)
			tt.corrupt(raw)
			_, _, err := ReadFrom(bytes.NewReader(raw), ReaderOptions{})
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			path := filepath.Join(t.TempDir(), "bad.snnl")
			require.NoError(t, os.WriteFile(path, raw, 0o600))
			_, err = NewReader(path)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestReader_Truncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.snnl")
	require.NoError(t, WriteFile(path, testEntries(t), Header{}))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-4], 0o600))

	_, err = NewReader(path)
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr), "got %v", err)
	assert.Equal(t, "truncated", validationErr.Type)
}

func TestReader_Closed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.snnl")
	require.NoError(t, WriteFile(path, testEntries(t), Header{}))
	r, err := NewReader(path)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.ReadEntry("weights.0")
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestWrite_RejectsBadNames(t *testing.T) {
	entries := testEntries(t)
	var buf bytes.Buffer

	entries[1].Name = entries[0].Name
	err := WriteTo(&buf, entries, Header{})
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "duplicate_name", validationErr.Type)

	entries[1].Name = "../escape"
	err = WriteTo(&buf, entries, Header{})
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "invalid_name", validationErr.Type)
	assert.Zero(t, buf.Len())
}

func TestValidateTensorOffsets(t *testing.T) {
	tests := []struct {
		name     string
		tensors  []TensorMeta
		dataSize int64
		wantType string
	}{
		{
			name: "adjacent",
			tensors: []TensorMeta{
				{Name: "a", Offset: 0, Size: 100},
				{Name: "b", Offset: 100, Size: 100},
			},
			dataSize: 200,
		},
		{
			name: "overlap",
			tensors: []TensorMeta{
				{Name: "a", Offset: 0, Size: 100},
				{Name: "b", Offset: 99, Size: 100},
			},
			dataSize: 200,
			wantType: "offset_overlap",
		},
		{
			name:     "out of bounds",
			tensors:  []TensorMeta{{Name: "a", Offset: 150, Size: 100}},
			dataSize: 200,
			wantType: "out_of_bounds",
		},
		{
			name:     "negative",
			tensors:  []TensorMeta{{Name: "a", Offset: -1, Size: 10}},
			dataSize: 200,
			wantType: "negative_offset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTensorOffsets(tt.tensors, tt.dataSize)
			if tt.wantType == "" {
				assert.NoError(t, err)
				return
			}
			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr), "got %v", err)
			assert.Equal(t, tt.wantType, validationErr.Type)
		})
	}
}

func TestValidateHeader_Levels(t *testing.T) {
	h := &Header{Tensors: []TensorMeta{
		{Name: "a", DType: "float32", Shape: []int{2}, Offset: 0, Size: 8},
		{Name: "b", DType: "float32", Shape: []int{2}, Offset: 4, Size: 8},
	}}
	assert.Error(t, ValidateHeader(h, 16, ValidationStrict))
	assert.NoError(t, ValidateHeader(h, 16, ValidationNormal))

	h.Tensors[1].Size = 12
	err := ValidateHeader(h, 16, ValidationNormal)
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "size_mismatch", validationErr.Type)
	assert.NoError(t, ValidateHeader(h, 16, ValidationNone))

	h.Tensors[1] = TensorMeta{Name: "b", DType: "int8", Shape: []int{2}, Offset: 8, Size: 2}
	assert.Error(t, ValidateHeader(h, 16, ValidationNormal))
}

func TestValues_ConvertsPrecision(t *testing.T) {
	src, err := tensor.FromSlice([]float64{0.1, 1e-3}, 2)
	require.NoError(t, err)
	e := EncodeTensor("x", src)
	assert.Len(t, e.Data, 16)

	narrow, err := DecodeTensor[float32](e)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 1e-3}, narrow.Values())

	e.Data = e.Data[:12]
	_, err = Values[float64](e)
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch))
}

func TestWriteSafeTensors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")
	entries := testEntries(t)
	entries[0].Name, entries[1].Name = "z.weight", "a.bias"
	require.NoError(t, WriteSafeTensors(path, entries, map[string]string{"framework": "snnl"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	size := binary.LittleEndian.Uint64(raw[:8])
	var header map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw[8:8+size], &header))
	assert.Contains(t, header, "__metadata__")

	var bias, weight SafeTensorHeader
	require.NoError(t, json.Unmarshal(header["a.bias"], &bias))
	require.NoError(t, json.Unmarshal(header["z.weight"], &weight))
	assert.Equal(t, "F32", bias.DType)
	assert.Equal(t, [2]int64{0, 8}, bias.DataOffsets)
	assert.Equal(t, "F64", weight.DType)
	assert.Equal(t, []int64{2, 3}, weight.Shape)
	assert.Equal(t, [2]int64{8, 56}, weight.DataOffsets)
	assert.Len(t, raw, int(8+size+56))
}

func TestReadSafeTensors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")
	entries := testEntries(t)
	entries[0].Name, entries[1].Name = "z.weight", "a.bias"
	require.NoError(t, WriteSafeTensors(path, entries[:2], map[string]string{"framework": "snnl"}))

	read, metadata, err := ReadSafeTensors(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"framework": "snnl"}, metadata)
	require.Len(t, read, 2)
	assert.Equal(t, entries[1], read[0], "data order")
	assert.Equal(t, entries[0], read[1])

	_, _, err = ReadSafeTensors(filepath.Join(t.TempDir(), "missing.safetensors"))
	assert.Error(t, err)
}

func safeTensorsStream(t *testing.T, header string, data []byte) *bytes.Reader {
	t.Helper()
	buf := binary.LittleEndian.AppendUint64(nil, uint64(len(header)))
	buf = append(buf, header...)
	return bytes.NewReader(append(buf, data...))
}

func TestReadSafeTensors_Invalid(t *testing.T) {
	var verr *ValidationError

	_, _, err := ReadSafeTensorsFrom(safeTensorsStream(t,
		`{"x":{"dtype":"I32","shape":[1],"data_offsets":[0,4]}}`, make([]byte, 4)))
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "dtype", verr.Type)

	_, _, err = ReadSafeTensorsFrom(safeTensorsStream(t,
		`{"x":{"dtype":"F32","shape":[2],"data_offsets":[0,4]}}`, make([]byte, 4)))
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "out_of_bounds", verr.Type)

	_, _, err = ReadSafeTensorsFrom(safeTensorsStream(t,
		`{"x":{"dtype":"F64","shape":[2],"data_offsets":[0,16]}}`, make([]byte, 8)))
	assert.ErrorContains(t, err, "failed to read tensor data")

	_, _, err = ReadSafeTensorsFrom(safeTensorsStream(t,
		`{"x":{"dtype":"F32","shape":[-1,-2],"data_offsets":[0,8]}}`, make([]byte, 8)))
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "invalid_tensor", verr.Type)

	_, _, err = ReadSafeTensorsFrom(safeTensorsStream(t,
		`{"x":{"dtype":"F64","shape":[4294967296,4294967296],"data_offsets":[0,0]}}`, nil))
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "invalid_tensor", verr.Type)

	// A header claiming far more data than the stream holds fails without allocating it.
	_, _, err = ReadSafeTensorsFrom(safeTensorsStream(t,
		`{"x":{"dtype":"F32","shape":[1099511627776],"data_offsets":[0,4398046511104]}}`, make([]byte, 16)))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, _, err = ReadSafeTensorsFrom(safeTensorsStream(t, `{not json`, nil))
	assert.ErrorContains(t, err, "failed to parse header JSON")

	huge := binary.LittleEndian.AppendUint64(nil, 1<<40)
	_, _, err = ReadSafeTensorsFrom(bytes.NewReader(huge))
	assert.True(t, errors.Is(err, ErrHeaderTooLarge))
}

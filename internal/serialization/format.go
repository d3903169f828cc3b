package serialization

import (
	"time"

	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// Format constants.
const (
	MagicBytes      = "SNNL"
	FormatVersion   = 2    // Fixed 64-byte header with SHA-256 checksum
	HeaderAlignment = 64   // Tensor data starts on a 64-byte boundary
	FixedHeaderSize = 64   // Size of the fixed header (0x40 bytes)
	ChecksumSize    = 32   // SHA-256 checksum size
	ChecksumOffset  = 0x20 // Checksum offset in the fixed header
)

// Flags stored in the fixed header.
const (
	FlagHasMetadata uint32 = 1 << 0 // custom metadata included
	FlagCheckpoint  uint32 = 1 << 1 // training state included
)

// LibraryVersion is recorded in every written header.
const LibraryVersion = "0.3.0"

// Header is the JSON header of a .snnl file.
type Header struct {
	FormatVersion  int               `json:"format_version"`
	LibraryVersion string            `json:"library_version"`
	ModelType      string            `json:"model_type"`
	CreatedAt      time.Time         `json:"created_at"`
	Tensors        []TensorMeta      `json:"tensors"`
	Metadata       map[string]string `json:"metadata"`
	Checkpoint     *CheckpointMeta   `json:"checkpoint,omitempty"`
}

// CheckpointMeta records where training stood when the weights were saved.
type CheckpointMeta struct {
	Epoch           int                `json:"epoch"`
	Step            int64              `json:"step"`
	Loss            float64            `json:"loss"`
	OptimizerType   string             `json:"optimizer_type"`
	OptimizerConfig map[string]float64 `json:"optimizer_config,omitempty"`
}

// TensorMeta describes a tensor of the data section.
type TensorMeta struct {
	Name   string `json:"name"`   // Tensor name (e.g., "weights.0")
	DType  string `json:"dtype"`  // "float32" or "float64"
	Shape  []int  `json:"shape"`  // Tensor shape
	Offset int64  `json:"offset"` // Offset in bytes from the start of the data section
	Size   int64  `json:"size"`   // Size in bytes
}

// padding returns the number of zero bytes aligning pos to HeaderAlignment.
func padding(pos int64) int64 {
	return (HeaderAlignment - pos%HeaderAlignment) % HeaderAlignment
}

// dataOffset returns the file offset of the data section for a JSON header of the given size.
func dataOffset(headerSize int64) int64 {
	pos := int64(FixedHeaderSize) + headerSize
	return pos + padding(pos)
}

// metaOf returns the metadata of entries laid out back to back, and the data section size.
func metaOf(entries []Entry) ([]TensorMeta, int64) {
	metas := make([]TensorMeta, 0, len(entries))
	var offset int64
	for _, e := range entries {
		size := int64(len(e.Data))
		metas = append(metas, TensorMeta{
			Name:   e.Name,
			DType:  e.DType.String(),
			Shape:  []int(e.Shape.Clone()),
			Offset: offset,
			Size:   size,
		})
		offset += size
	}
	return metas, offset
}

// expectedSize returns the byte size implied by a tensor's dtype and shape.
func (m TensorMeta) expectedSize() (int64, error) {
	dtype, err := tensor.ParseDataType(m.DType)
	if err != nil {
		return 0, err
	}
	shape := tensor.Shape(m.Shape)
	if err := shape.Validate(); err != nil {
		return 0, err
	}
	return int64(shape.NumElements() * dtype.Size()), nil
}

package serialization

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/hsandmeyer/snnl-sub000/internal/tensor"
)

// Reader reads weights from a .snnl file.
type Reader struct {
	file       *os.File
	header     Header
	flags      uint32
	dataOffset int64
	dataSize   int64
	checksum   [ChecksumSize]byte
	opts       ReaderOptions
	closed     bool
}

// ReaderOptions configures the checks a Reader performs when opening a file.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level
}

// fixedHeader holds the decoded fixed part of the file.
type fixedHeader struct {
	flags      uint32
	headerSize int64
	dataSize   int64
	checksum   [ChecksumSize]byte
}

func parseFixedHeader(b []byte) (fixedHeader, error) {
	var fh fixedHeader
	if string(b[0:4]) != MagicBytes {
		return fh, errors.Wrapf(ErrInvalidMagic, "got %q, expected %q", b[0:4], MagicBytes)
	}
	if version := binary.LittleEndian.Uint32(b[4:8]); version != FormatVersion {
		return fh, errors.Wrapf(ErrUnsupportedVersion, "got %d, expected %d", version, FormatVersion)
	}
	fh.flags = binary.LittleEndian.Uint32(b[8:12])
	headerSize := binary.LittleEndian.Uint64(b[16:24])
	if headerSize > MaxHeaderSize {
		return fh, errors.Wrapf(ErrHeaderTooLarge, "%d bytes", headerSize)
	}
	dataSize := binary.LittleEndian.Uint64(b[24:32])
	if dataSize > 1<<62 {
		return fh, &ValidationError{Type: "out_of_bounds", Details: "data size overflows"}
	}
	fh.headerSize, fh.dataSize = int64(headerSize), int64(dataSize)
	copy(fh.checksum[:], b[ChecksumOffset:ChecksumOffset+ChecksumSize])
	return fh, nil
}

// NewReader opens a .snnl file with strict validation.
func NewReader(path string) (*Reader, error) {
	return NewReaderWithOptions(path, ReaderOptions{ValidationLevel: ValidationStrict})
}

// NewReaderWithOptions opens a .snnl file with custom options. The header is parsed and
// validated, and the data section checked against the stored checksum, before returning.
func NewReaderWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	//nolint:gosec // G304: the path is chosen by the caller on purpose
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	r := &Reader{file: file, opts: opts}
	if err := r.open(); err != nil {
		_ = file.Close()
		return nil, errors.WithMessagef(err, "reading %s", path)
	}
	klog.V(1).Infof("opened %s: %d tensors, model type %q", path, len(r.header.Tensors), r.header.ModelType)
	return r, nil
}

func (r *Reader) open() error {
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r.file, fixed); err != nil {
		return errors.Wrap(err, "failed to read fixed header")
	}
	fh, err := parseFixedHeader(fixed)
	if err != nil {
		return err
	}
	r.flags, r.dataSize, r.checksum = fh.flags, fh.dataSize, fh.checksum

	headerJSON := make([]byte, fh.headerSize)
	if _, err := io.ReadFull(r.file, headerJSON); err != nil {
		return errors.Wrap(err, "failed to read header")
	}
	if err := json.Unmarshal(headerJSON, &r.header); err != nil {
		return errors.Wrap(err, "failed to parse header JSON")
	}
	r.dataOffset = dataOffset(fh.headerSize)

	info, err := r.file.Stat()
	if err != nil {
		return errors.Wrap(err, "failed to stat file")
	}
	if r.dataOffset+r.dataSize > info.Size() {
		return &ValidationError{
			Type:    "truncated",
			Details: "data section extends beyond end of file",
		}
	}
	if err := ValidateHeader(&r.header, r.dataSize, r.opts.ValidationLevel); err != nil {
		return errors.WithMessage(err, "validation failed")
	}
	if !r.opts.SkipChecksumValidation {
		computed, err := ComputeChecksumReader(io.NewSectionReader(r.file, r.dataOffset, r.dataSize))
		if err != nil {
			return err
		}
		if err := ValidateChecksum(computed, r.checksum); err != nil {
			return err
		}
	}
	return nil
}

// Header returns the file header.
func (r *Reader) Header() Header {
	return r.header
}

// Flags returns the flags of the fixed header.
func (r *Reader) Flags() uint32 {
	return r.flags
}

// Metadata returns the custom metadata.
func (r *Reader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns the tensor names in storage order.
func (r *Reader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, meta := range r.header.Tensors {
		names[i] = meta.Name
	}
	return names
}

// TensorInfo returns the metadata of the named tensor.
func (r *Reader) TensorInfo(name string) (TensorMeta, error) {
	for _, meta := range r.header.Tensors {
		if meta.Name == name {
			return meta, nil
		}
	}
	return TensorMeta{}, errors.Wrapf(ErrTensorNotFound, "%q", name)
}

// ReadEntry reads the named tensor.
func (r *Reader) ReadEntry(name string) (Entry, error) {
	if r.closed {
		return Entry{}, errors.Wrap(ErrClosed, "read")
	}
	meta, err := r.TensorInfo(name)
	if err != nil {
		return Entry{}, err
	}
	data := make([]byte, meta.Size)
	if _, err := r.file.ReadAt(data, r.dataOffset+meta.Offset); err != nil {
		return Entry{}, errors.Wrapf(err, "failed to read tensor %q", name)
	}
	return entryOf(meta, data)
}

// Entries reads every tensor, in storage order.
func (r *Reader) Entries() ([]Entry, error) {
	entries := make([]Entry, 0, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		e, err := r.ReadEntry(meta.Name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// ReadFrom reads a whole .snnl stream from in.
func ReadFrom(in io.Reader, opts ReaderOptions) ([]Entry, Header, error) {
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(in, fixed); err != nil {
		return nil, Header{}, errors.Wrap(err, "failed to read fixed header")
	}
	fh, err := parseFixedHeader(fixed)
	if err != nil {
		return nil, Header{}, err
	}
	headerJSON := make([]byte, fh.headerSize)
	if _, err := io.ReadFull(in, headerJSON); err != nil {
		return nil, Header{}, errors.Wrap(err, "failed to read header")
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, Header{}, errors.Wrap(err, "failed to parse header JSON")
	}
	if err := ValidateHeader(&header, fh.dataSize, opts.ValidationLevel); err != nil {
		return nil, Header{}, errors.WithMessage(err, "validation failed")
	}
	pad := dataOffset(fh.headerSize) - FixedHeaderSize - fh.headerSize
	if _, err := io.CopyN(io.Discard, in, pad); err != nil {
		return nil, Header{}, errors.Wrap(err, "failed to read padding")
	}
	data := make([]byte, fh.dataSize)
	if _, err := io.ReadFull(in, data); err != nil {
		return nil, Header{}, errors.Wrap(err, "failed to read data section")
	}
	if !opts.SkipChecksumValidation {
		if err := ValidateChecksum(ComputeChecksum(data), fh.checksum); err != nil {
			return nil, Header{}, err
		}
	}

	entries := make([]Entry, 0, len(header.Tensors))
	for _, meta := range header.Tensors {
		if meta.Offset < 0 || meta.Size < 0 || meta.Offset+meta.Size > fh.dataSize {
			return nil, Header{}, &ValidationError{Type: "out_of_bounds", Tensor: meta.Name, Details: "outside data section"}
		}
		e, err := entryOf(meta, data[meta.Offset:meta.Offset+meta.Size])
		if err != nil {
			return nil, Header{}, err
		}
		entries = append(entries, e)
	}
	return entries, header, nil
}

func entryOf(meta TensorMeta, data []byte) (Entry, error) {
	if err := ValidateTensorSize(meta); err != nil {
		return Entry{}, err
	}
	dtype, err := tensor.ParseDataType(meta.DType)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Name: meta.Name, DType: dtype, Shape: meta.Shape, Data: data}, nil
}

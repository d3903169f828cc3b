package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Writer writes weights in .snnl format to a file.
type Writer struct {
	file   *os.File
	closed bool
}

// NewWriter creates the file at path, truncating an existing one.
func NewWriter(path string) (*Writer, error) {
	//nolint:gosec // G304: the path is chosen by the caller on purpose
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file")
	}
	return &Writer{file: file}, nil
}

// Write writes entries with the given header. Tensor metadata, format version, library
// version and creation time are filled in.
func (w *Writer) Write(entries []Entry, header Header) error {
	if w.closed {
		return errors.Wrap(ErrClosed, "write")
	}
	if err := WriteTo(w.file, entries, header); err != nil {
		return err
	}
	klog.V(1).Infof("wrote %d tensors to %s", len(entries), w.file.Name())
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// WriteFile writes entries to a new .snnl file at path.
func WriteFile(path string, entries []Entry, header Header) error {
	w, err := NewWriter(path)
	if err != nil {
		return err
	}
	if err := w.Write(entries, header); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// WriteTo writes entries in .snnl format to out.
func WriteTo(out io.Writer, entries []Entry, header Header) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if err := ValidateTensorName(e.Name); err != nil {
			return err
		}
		if seen[e.Name] {
			return &ValidationError{Type: "duplicate_name", Tensor: e.Name, Details: "name used twice"}
		}
		seen[e.Name] = true
	}

	var dataSize int64
	header.Tensors, dataSize = metaOf(entries)
	header.FormatVersion = FormatVersion
	header.LibraryVersion = LibraryVersion
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to marshal header")
	}

	data := make([]byte, 0, dataSize)
	for _, e := range entries {
		data = append(data, e.Data...)
	}
	checksum := ComputeChecksum(data)

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)
	flags := uint32(0)
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if header.Checkpoint != nil {
		flags |= FlagCheckpoint
	}
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	// 0x0C-0x0F: reserved
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(dataSize))
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	var buf bytes.Buffer
	buf.Write(fixed)
	buf.Write(headerJSON)
	buf.Write(make([]byte, padding(int64(FixedHeaderSize+len(headerJSON)))))
	buf.Write(data)
	if _, err := buf.WriteTo(out); err != nil {
		return errors.Wrap(err, "failed to write weights")
	}
	return nil
}

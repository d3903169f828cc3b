package serialization

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/pkg/errors"
)

// ComputeChecksum computes the SHA-256 checksum of data.
func ComputeChecksum(data []byte) [ChecksumSize]byte {
	return sha256.Sum256(data)
}

// ComputeChecksumReader computes the SHA-256 checksum of everything r yields.
func ComputeChecksumReader(r io.Reader) ([ChecksumSize]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return [ChecksumSize]byte{}, errors.Wrap(err, "hashing data section")
	}
	var sum [ChecksumSize]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// ValidateChecksum compares a computed checksum against the stored one.
func ValidateChecksum(computed, stored [ChecksumSize]byte) error {
	if computed != stored {
		return errors.Wrapf(ErrChecksumMismatch, "stored %s, computed %s",
			hex.EncodeToString(stored[:8]), hex.EncodeToString(computed[:8]))
	}
	return nil
}

// Package serialization reads and writes the .snnl weight file format.
//
//	Format Structure:
//	  [0x00: 4 bytes: Magic "SNNL"]
//	  [0x04: 4 bytes: Version (uint32 LE)]
//	  [0x08: 4 bytes: Flags (uint32 LE)]
//	  [0x0C: 4 bytes: Reserved]
//	  [0x10: 8 bytes: Header Size (uint64 LE)]
//	  [0x18: 8 bytes: Data Size (uint64 LE)]
//	  [0x20: 32 bytes: SHA-256 of the data section]
//	  [0x40: Header: JSON metadata]
//	  [Tensor data: little-endian elements, 64-byte aligned]
//
// Tensors are stored in the order they were given, each as a contiguous run of elements in
// row-major order. The JSON header lists name, data type, shape, offset and size of each.
//
// Example usage:
//
//	entries := []serialization.Entry{serialization.EncodeTensor("w0", w)}
//	if err := serialization.WriteFile("model.snnl", entries, serialization.Header{ModelType: "Dense"}); err != nil {
//	    return err
//	}
//
//	reader, err := serialization.NewReader("model.snnl")
//	if err != nil {
//	    return err
//	}
//	defer reader.Close()
//	entry, err := reader.ReadEntry("w0")
package serialization

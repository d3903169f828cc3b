package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"

	"github.com/hsandmeyer/snnl-sub000/internal/serialization"
)

// inspect prints the content of a .snnl file.
func inspect(path string) error {
	r, err := serialization.NewReader(path)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	header := r.Header()
	fmt.Printf("%s: format v%d, written by %s on %s\n", path, header.FormatVersion, header.LibraryVersion,
		header.CreatedAt.Format("2006-01-02 15:04:05"))
	if header.ModelType != "" {
		fmt.Printf("model: %s\n", header.ModelType)
	}
	if cp := header.Checkpoint; cp != nil {
		fmt.Printf("checkpoint: epoch %d, step %s, loss %.4g, optimizer %s\n",
			cp.Epoch, humanize.Comma(cp.Step), cp.Loss, cp.OptimizerType)
		for _, key := range sortedKeys(cp.OptimizerConfig) {
			fmt.Printf("  %s = %g\n", key, cp.OptimizerConfig[key])
		}
	}
	for _, key := range sortedKeys(header.Metadata) {
		fmt.Printf("metadata %s = %q\n", key, header.Metadata[key])
	}

	var total int64
	for _, name := range r.TensorNames() {
		meta := must.M1(r.TensorInfo(name))
		dims := make([]string, len(meta.Shape))
		for i, d := range meta.Shape {
			dims[i] = fmt.Sprint(d)
		}
		fmt.Printf("  %-24s %-8s [%s] %s\n", meta.Name, meta.DType, strings.Join(dims, ", "),
			humanize.Bytes(uint64(meta.Size)))
		total += meta.Size
	}
	fmt.Printf("%d tensors, %s\n", len(r.TensorNames()), humanize.Bytes(uint64(total)))
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

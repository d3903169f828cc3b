package tensor

import (
	"strconv"
	"strings"
)

// String renders the tensor as nested braces, e.g. "{{1, 2}, {3, 4}}", with 6 significant digits.
func (t *Tensor[T]) String() string {
	var sb strings.Builder
	idx := make([]int, t.Rank())
	t.format(&sb, idx, 0)
	return sb.String()
}

func (t *Tensor[T]) format(sb *strings.Builder, idx []int, axis int) {
	if axis == t.Rank() {
		sb.WriteString(strconv.FormatFloat(float64(t.At(idx...)), 'g', 6, 64))
		return
	}
	sb.WriteByte('{')
	for i := 0; i < t.shape[axis]; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		idx[axis] = i
		t.format(sb, idx, axis+1)
	}
	sb.WriteByte('}')
}

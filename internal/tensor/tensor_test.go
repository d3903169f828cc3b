package tensor

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func arange(t *testing.T, dims ...int) *Tensor[float64] {
	t.Helper()
	out := New[float64](dims...)
	for i := range out.Data() {
		out.SetFlat(float64(i), i)
	}
	return out
}

func TestNew(t *testing.T) {
	x := New[float32](2, 3)
	assert.Equal(t, Shape{2, 3}, x.Shape())
	assert.Equal(t, []int{3, 1}, x.Strides())
	assert.Equal(t, 6, x.NumElements())
	for _, v := range x.Data() {
		assert.Zero(t, v)
	}
	assert.Panics(t, func() { New[float32](2, -1) })
}

func TestFromSlice(t *testing.T) {
	x, err := FromSlice([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 6.0, x.At(1, 2))
	assert.Equal(t, 4.0, x.At(1, 0))

	_, err = FromSlice([]float64{1, 2, 3}, 2, 2)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestScalar(t *testing.T) {
	s := Scalar(3.5)
	assert.True(t, s.IsScalar())
	assert.Equal(t, 1, s.NumElements())
	assert.Equal(t, 3.5, s.At())
}

func TestTensor_NegativeIndices(t *testing.T) {
	x := arange(t, 2, 3)
	assert.Equal(t, 5.0, x.At(-1, -1))
	assert.Equal(t, 3.0, x.At(-1, 0))
	assert.Equal(t, 3, x.Dim(-1))
	assert.Equal(t, 1, x.Stride(-1))
}

// TestTensor_OutOfRange tests that element access panics with ErrOutOfRange.
func TestTensor_OutOfRange(t *testing.T) {
	x := arange(t, 2, 3)
	tests := []struct {
		name string
		idx  []int
	}{
		{"axis 0 overflow", []int{2, 0}},
		{"axis 1 overflow", []int{0, 3}},
		{"negative overflow", []int{-3, 0}},
		{"too few indices", []int{1}},
		{"too many indices", []int{1, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				require.NotNil(t, r)
				err, ok := r.(error)
				require.True(t, ok)
				assert.True(t, errors.Is(err, ErrOutOfRange))
			}()
			x.At(tt.idx...)
		})
	}
}

func TestTensor_SetAndAdd(t *testing.T) {
	x := New[float64](2, 2)
	x.Set(3, 0, 1)
	x.AddAt(2, 0, 1)
	x.AddFlat(1, 3)
	assert.Equal(t, []float64{0, 5, 0, 1}, x.Values())
}

func TestTensor_SetDims(t *testing.T) {
	x := arange(t, 2, 3)

	require.NoError(t, x.SetDims(3, 2))
	assert.Equal(t, 5.0, x.At(2, 1), "same element count keeps the values")

	require.NoError(t, x.SetDims(4, 4))
	assert.Equal(t, 16, len(x.Data()))
	assert.Zero(t, x.Sum(), "resizing allocates a zero-filled buffer")

	view, err := x.Reshape(16)
	require.NoError(t, err)
	err = view.SetDims(3)
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestTensor_CopyIsDeep(t *testing.T) {
	x := arange(t, 2, 2)
	y := x.Copy()
	y.Set(100, 0, 0)
	assert.Equal(t, 0.0, x.At(0, 0))
	assert.False(t, x.SharesBuffer(y))
}

func TestTensor_Assign(t *testing.T) {
	x := New[float64](3)
	src := arange(t, 2, 2)
	require.NoError(t, x.Assign(src))
	assert.Equal(t, Shape{2, 2}, x.Shape())
	assert.Equal(t, []float64{0, 1, 2, 3}, x.Values())

	row, err := x.Index(0)
	require.NoError(t, err)
	err = row.Assign(arange(t, 3))
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestTensor_SetFlattened(t *testing.T) {
	x := New[float64](2, 2)
	require.NoError(t, x.SetFlattened([]float64{1, 2, 3, 4}))
	assert.Equal(t, 3.0, x.At(1, 0))
	err := x.SetFlattened([]float64{1})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestTensor_ForEachOrder(t *testing.T) {
	x := arange(t, 2, 3)
	var seen []float64
	x.ForEach(func(idx []int) {
		seen = append(seen, x.At(idx...))
	})
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 5}, seen)

	calls := 0
	Scalar(1.0).ForEach(func(idx []int) { calls++ })
	assert.Equal(t, 1, calls)
}

func TestTensor_ArgMax(t *testing.T) {
	x, err := FromSlice([]float64{0.1, 0.7, 0.2, 0.9, 0.05, 0.05}, 2, 3)
	require.NoError(t, err)
	am, err := x.ArgMax()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, am.Values())
}

func TestTensor_String(t *testing.T) {
	x := arange(t, 2, 2)
	assert.Equal(t, "{{0, 1}, {2, 3}}", x.String())
	assert.Equal(t, "2.5", Scalar(2.5).String())
}

func TestDataTypeOf(t *testing.T) {
	assert.Equal(t, Float32, DataTypeOf[float32]())
	assert.Equal(t, Float64, DataTypeOf[float64]())
	dt, err := ParseDataType("float32")
	require.NoError(t, err)
	assert.Equal(t, 4, dt.Size())
}

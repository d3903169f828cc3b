package tensor

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape_NumElements(t *testing.T) {
	assert.Equal(t, 1, Shape{}.NumElements())
	assert.Equal(t, 24, Shape{2, 3, 4}.NumElements())
	assert.Equal(t, 0, Shape{2, 0, 4}.NumElements())
}

func TestShape_NegativeAxes(t *testing.T) {
	s := Shape{2, 3, 4}
	assert.Equal(t, 4, s.Dim(-1))
	assert.Equal(t, 2, s.Dim(-3))
	assert.Equal(t, 3, s.Dim(1))

	_, err := s.Axis(3)
	assert.True(t, errors.Is(err, ErrOutOfRange))
	_, err = s.Axis(-4)
	assert.True(t, errors.Is(err, ErrOutOfRange))
	assert.Panics(t, func() { s.Dim(5) })
}

func TestShape_ComputeStrides(t *testing.T) {
	assert.Equal(t, []int{12, 4, 1}, Shape{2, 3, 4}.ComputeStrides())
	assert.Equal(t, []int{1}, Shape{7}.ComputeStrides())
	assert.Empty(t, Shape{}.ComputeStrides())
}

func TestShape_Validate(t *testing.T) {
	require.NoError(t, Shape{0, 3}.Validate())
	err := Shape{2, -1}.Validate()
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

// TestBroadcastShapes tests the trailing-dims-exact broadcasting rule.
func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Shape
		want    Shape
		wantErr bool
	}{
		{"equal", Shape{2, 3}, Shape{2, 3}, Shape{2, 3}, false},
		{"trailing matrix", Shape{2, 3, 4}, Shape{3, 4}, Shape{2, 3, 4}, false},
		{"trailing vector", Shape{2, 3, 4}, Shape{4}, Shape{2, 3, 4}, false},
		{"lower rank on the left", Shape{4}, Shape{2, 3, 4}, Shape{2, 3, 4}, false},
		{"scalar", Shape{2, 3}, Shape{}, Shape{2, 3}, false},
		{"singleton is not stretched", Shape{2, 3, 4}, Shape{1, 4}, nil, true},
		{"leading dims", Shape{2, 3, 4}, Shape{2, 3}, nil, true},
		{"equal rank mismatch", Shape{3, 4}, Shape{4, 4}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BroadcastShapes(tt.a, tt.b)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrShapeMismatch), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestShape_String(t *testing.T) {
	assert.Equal(t, "(2, 3)", Shape{2, 3}.String())
	assert.Equal(t, "()", Shape{}.String())
}

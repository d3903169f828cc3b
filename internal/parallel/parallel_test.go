package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRows_CoversEveryRowOnce(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinRowsPerWorker: 8}

	for _, n := range []int{0, 1, 15, 16, 100, 1000} {
		hits := make([]int32, n)
		RowsWith(cfg, n, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			assert.Equal(t, int32(1), h, "n=%d row %d", n, i)
		}
	}
}

func TestRows_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	calls := 0
	RowsWith(cfg, 100, func(start, end int) {
		calls++
		assert.Equal(t, 0, start)
		assert.Equal(t, 100, end)
	})
	assert.Equal(t, 1, calls)
}

func TestRows_SmallWorkIsSequential(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 8, MinRowsPerWorker: 64}

	var calls int64
	RowsWith(cfg, 100, func(_, _ int) {
		atomic.AddInt64(&calls, 1)
	})
	assert.Equal(t, int64(1), calls)
}

func TestForBatch(t *testing.T) {
	previous := SetConfig(Config{Enabled: true, NumWorkers: 3, MinRowsPerWorker: 1})
	defer SetConfig(previous)

	batch, channels := 4, 8
	results := make([][]bool, batch)
	for b := range results {
		results[b] = make([]bool, channels)
	}

	ForBatch(batch, channels, func(b, c int) {
		results[b][c] = true
	})

	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			assert.True(t, results[b][c], "missing result at [%d][%d]", b, c)
		}
	}
}

func TestRowsPanicReachesCaller(t *testing.T) {
	previous := SetConfig(Config{Enabled: true, NumWorkers: 4, MinRowsPerWorker: 1})
	defer SetConfig(previous)

	assert.PanicsWithValue(t, "row 5", func() {
		Rows(8, func(start, end int) {
			for i := start; i < end; i++ {
				if i == 5 {
					panic("row 5")
				}
			}
		})
	})
}

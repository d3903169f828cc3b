// Package parallel splits the independent rows of a kernel across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled          bool // Whether parallel execution is enabled.
	NumWorkers       int  // Number of worker goroutines to use.
	MinRowsPerWorker int  // Minimum rows per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:          n > 1,
		NumWorkers:       n,
		MinRowsPerWorker: 16,
	}
}

var (
	mu      sync.RWMutex
	current = DefaultConfig()
)

// SetConfig changes the configuration used by Rows and returns the previous one.
func SetConfig(cfg Config) Config {
	mu.Lock()
	defer mu.Unlock()
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = runtime.NumCPU()
	}
	if cfg.MinRowsPerWorker <= 0 {
		cfg.MinRowsPerWorker = 1
	}
	previous := current
	current = cfg
	return previous
}

// CurrentConfig returns the configuration used by Rows.
func CurrentConfig() Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Rows calls fn over disjoint ranges [start, end) covering [0, n), using the current
// configuration. Ranges may run concurrently, so fn must only write to memory owned by
// its rows. Rows returns once every range is done.
func Rows(n int, fn func(start, end int)) {
	RowsWith(CurrentConfig(), n, fn)
}

// RowsWith is Rows with an explicit configuration.
// Falls back to a single sequential call if parallelism is disabled or n is too small.
func RowsWith(cfg Config, n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < 2*cfg.MinRowsPerWorker {
		fn(0, n)
		return
	}

	var (
		wg        sync.WaitGroup
		panicOnce sync.Once
		panicked  any
	)
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinRowsPerWorker)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					panicOnce.Do(func() { panicked = r })
				}
			}()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
	// Re-raised in the calling goroutine, where callers can recover it.
	if panicked != nil {
		panic(panicked)
	}
}

// ForBatch calls f for every (batch, channel) pair, splitting the pairs across goroutines.
// Common in image kernels like Conv2D.
func ForBatch(batch, channels int, f func(b, c int)) {
	Rows(batch*channels, func(start, end int) {
		for k := start; k < end; k++ {
			f(k/channels, k%channels)
		}
	})
}

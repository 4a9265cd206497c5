package health

import (
	"sync"
	"time"
)

const defaultWindowSize = 256

// LatencyStats summarizes the current sliding window.
type LatencyStats struct {
	Avg     time.Duration
	Min     time.Duration
	Max     time.Duration
	Samples int
}

// LatencyTracker keeps a fixed-size sliding window of observed
// durations. Safe for concurrent use.
type LatencyTracker struct {
	mu     sync.Mutex
	window []time.Duration
	idx    int
	filled bool
}

// NewLatencyTracker creates a tracker over the given window size.
func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = defaultWindowSize
	}
	return &LatencyTracker{window: make([]time.Duration, size)}
}

// Observe records one sample, evicting the oldest when full.
func (t *LatencyTracker) Observe(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window[t.idx] = d
	t.idx++
	if t.idx == len(t.window) {
		t.idx = 0
		t.filled = true
	}
}

// Stats computes avg, min and max over the current window. An empty
// window returns zero stats.
func (t *LatencyTracker) Stats() LatencyStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.idx
	if t.filled {
		n = len(t.window)
	}
	if n == 0 {
		return LatencyStats{}
	}

	stats := LatencyStats{Min: t.window[0], Max: t.window[0], Samples: n}
	var total time.Duration
	for _, d := range t.window[:n] {
		total += d
		if d < stats.Min {
			stats.Min = d
		}
		if d > stats.Max {
			stats.Max = d
		}
	}
	stats.Avg = total / time.Duration(n)
	return stats
}

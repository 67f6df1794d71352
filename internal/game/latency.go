package game

import (
	"math"
	"sync"
	"time"
)

// LatencyRecorder keeps every heartbeat round trip plus a moving average that
// reacts strongly to the first samples and settles after eight.
type LatencyRecorder struct {
	mu      sync.RWMutex
	average float64 // milliseconds
	history []time.Duration
}

func NewLatencyRecorder() *LatencyRecorder {
	return &LatencyRecorder{}
}

// Add records one sample.
func (l *LatencyRecorder) Add(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	l.mu.Lock()
	l.average += (ms - l.average) * sensitivity(len(l.history))
	l.history = append(l.history, d)
	l.mu.Unlock()
}

// Last returns the most recent sample, 0 before the first one.
func (l *LatencyRecorder) Last() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.history) == 0 {
		return 0
	}
	return l.history[len(l.history)-1]
}

// Average returns the moving average truncated to whole milliseconds.
func (l *LatencyRecorder) Average() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return time.Duration(math.Trunc(l.average)) * time.Millisecond
}

func (l *LatencyRecorder) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.history)
}

// History returns a copy of all samples in arrival order.
func (l *LatencyRecorder) History() []time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]time.Duration(nil), l.history...)
}

// LatencySnapshot is what a renderer reads per frame.
type LatencySnapshot struct {
	Last    time.Duration
	Average time.Duration
	Samples int
}

func (l *LatencyRecorder) Snapshot() LatencySnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := LatencySnapshot{
		Average: time.Duration(math.Trunc(l.average)) * time.Millisecond,
		Samples: len(l.history),
	}
	if n := len(l.history); n > 0 {
		s.Last = l.history[n-1]
	}
	return s
}

func sensitivity(n int) float64 {
	return (10 - math.Min(float64(n), 8)) / 10
}

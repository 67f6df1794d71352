package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addMillis(l *LatencyRecorder, ms ...int) {
	for _, v := range ms {
		l.Add(time.Duration(v) * time.Millisecond)
	}
}

func TestLatencyLast(t *testing.T) {
	l := NewLatencyRecorder()
	assert.Equal(t, time.Duration(0), l.Last())

	addMillis(l, 20, 40, 60)
	assert.Equal(t, 60*time.Millisecond, l.Last())
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, []time.Duration{20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond}, l.History())
}

func TestLatencyHistoryIsACopy(t *testing.T) {
	l := NewLatencyRecorder()
	addMillis(l, 10)
	h := l.History()
	h[0] = time.Hour
	assert.Equal(t, 10*time.Millisecond, l.Last())
}

func TestLatencyAverageSeries(t *testing.T) {
	l := NewLatencyRecorder()
	addMillis(l, 20)
	require.Equal(t, 20*time.Millisecond, l.Average())

	steps := []struct {
		sample int
		want   int
	}{
		{40, 38}, {40, 39}, {26, 30}, {120, 84}, {22, 53},
		{24, 41}, {24, 36}, {24, 33}, {24, 31}, {24, 30},
	}
	for i, s := range steps {
		addMillis(l, s.sample)
		require.Equalf(t, time.Duration(s.want)*time.Millisecond, l.Average(), "step %d", i)
	}
}

func TestLatencyMoreSensitiveEarly(t *testing.T) {
	early := NewLatencyRecorder()
	addMillis(early, 20, 20, 100)
	assert.Equal(t, 84*time.Millisecond, early.Average())

	late := NewLatencyRecorder()
	addMillis(late, 20, 20, 20, 20, 20, 20, 100)
	assert.Equal(t, 52*time.Millisecond, late.Average())
}

func TestSensitivityDeclines(t *testing.T) {
	want := []float64{1.0, 0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.2, 0.2}
	for n, w := range want {
		assert.InDeltaf(t, w, sensitivity(n), 1e-9, "n=%d", n)
	}
}

func TestLatencySnapshot(t *testing.T) {
	l := NewLatencyRecorder()
	s := l.Snapshot()
	assert.Zero(t, s.Samples)
	assert.Zero(t, s.Last)

	addMillis(l, 20, 40)
	s = l.Snapshot()
	assert.Equal(t, 2, s.Samples)
	assert.Equal(t, 40*time.Millisecond, s.Last)
	assert.Equal(t, 38*time.Millisecond, s.Average)
}

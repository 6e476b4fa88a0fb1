package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dislocations/internal/model"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// series builds a sample per element of bps, 100ms apart, on one pair.
func series(pair string, bps ...float64) []model.SpreadSample {
	samples := make([]model.SpreadSample, 0, len(bps))
	for i, v := range bps {
		samples = append(samples, model.SpreadSample{
			Time:      t0.Add(time.Duration(i*100) * time.Millisecond),
			VenuePair: pair,
			SpreadBps: v,
		})
	}
	return samples
}

func TestDetector_PersistenceFilter(t *testing.T) {
	d := New(6, 600*time.Millisecond)

	t.Run("breach shorter than persistence yields no event", func(t *testing.T) {
		// Above threshold from 0ms to 500ms: 500 < 600.
		events := d.Detect(series("a/b", 8, 8, 8, 8, 8, 8, 1, 1))
		assert.Empty(t, events)
	})

	t.Run("breach of exactly persistence yields one event", func(t *testing.T) {
		// Above threshold from 0ms to 600ms inclusive.
		events := d.Detect(series("a/b", 8, 8, 8, 8, 8, 8, 8, 1))
		require.Len(t, events, 1)
		assert.Equal(t, t0, events[0].Start)
		assert.Equal(t, t0.Add(600*time.Millisecond), events[0].End)
		assert.GreaterOrEqual(t, events[0].Duration(), 600*time.Millisecond)
	})

	t.Run("single reversion while armed discards the candidate", func(t *testing.T) {
		// Dips below threshold at 300ms, recrosses, but never holds 600ms.
		events := d.Detect(series("a/b", 8, 8, 8, 1, 8, 8, 8, 8, 8, 1))
		assert.Empty(t, events)
	})

	t.Run("reversion resets the persistence clock", func(t *testing.T) {
		// Second crossing holds 600ms starting at 400ms.
		events := d.Detect(series("a/b", 8, 8, 8, 1, 8, 8, 8, 8, 8, 8, 8, 1))
		require.Len(t, events, 1)
		assert.Equal(t, t0.Add(400*time.Millisecond), events[0].Start)
	})
}

func TestDetector_EventShape(t *testing.T) {
	d := New(6, 600*time.Millisecond)

	t.Run("peak tracks the maximum absolute spread", func(t *testing.T) {
		events := d.Detect(series("a/b", 7, 9, 12, 8, 7, 7, 7, 7, 1))
		require.Len(t, events, 1)
		assert.Equal(t, 12.0, events[0].PeakSpreadBps)
	})

	t.Run("direction follows the sign and a flip extends the same event", func(t *testing.T) {
		events := d.Detect(series("a/b", -8, -8, -8, -8, -8, -8, -8, 8, 8, 1))
		require.Len(t, events, 1)
		assert.Equal(t, model.BOverA, events[0].Direction)
		assert.Equal(t, t0.Add(800*time.Millisecond), events[0].End)
	})

	t.Run("window ending while confirmed closes the event at the boundary", func(t *testing.T) {
		events := d.Detect(series("a/b", 8, 8, 8, 8, 8, 8, 8, 8))
		require.Len(t, events, 1)
		assert.Equal(t, t0.Add(700*time.Millisecond), events[0].End)
	})

	t.Run("window ending while armed discards", func(t *testing.T) {
		events := d.Detect(series("a/b", 8, 8, 8))
		assert.Empty(t, events)
	})

	t.Run("re-arms after an event closes", func(t *testing.T) {
		bps := []float64{8, 8, 8, 8, 8, 8, 8, 1, 9, 9, 9, 9, 9, 9, 9, 1}
		events := d.Detect(series("a/b", bps...))
		require.Len(t, events, 2)
		assert.Equal(t, 1, events[0].ID)
		assert.Equal(t, 2, events[1].ID)
		assert.True(t, events[0].End.Before(events[1].Start))
	})
}

func TestDetector_NonOverlap(t *testing.T) {
	d := New(6, 300*time.Millisecond)
	bps := []float64{8, 8, 8, 8, 1, 8, 8, 8, 8, 1, 7, 7, 7, 7, 7}
	events := d.Detect(series("a/b", bps...))
	require.GreaterOrEqual(t, len(events), 2)
	for i := 1; i < len(events); i++ {
		assert.True(t, events[i-1].End.Before(events[i].Start),
			"events %d and %d overlap", i-1, i)
	}
}

func TestDetector_MultiplePairs(t *testing.T) {
	d := New(6, 300*time.Millisecond)
	samples := append(series("a/b", 8, 8, 8, 8, 1), series("a/c", 1, 9, 9, 9, 9, 1)...)
	events := d.Detect(samples)
	require.Len(t, events, 2)
	// Ordered by start time: a/b starts at 0ms, a/c at 100ms.
	assert.Equal(t, "a/b", events[0].VenuePair)
	assert.Equal(t, "a/c", events[1].VenuePair)
	assert.Equal(t, []int{1, 2}, []int{events[0].ID, events[1].ID})
}

func TestDetector_ZeroPersistence(t *testing.T) {
	d := New(6, 0)
	events := d.Detect(series("a/b", 8, 1))
	require.Len(t, events, 1)
	assert.Equal(t, events[0].Start, events[0].End)
}

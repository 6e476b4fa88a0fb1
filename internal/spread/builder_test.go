package spread

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dislocations/internal/model"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func quote(venue string, offsetMS int, mid float64) model.Quote {
	return model.Quote{
		Venue: venue,
		Time:  t0.Add(time.Duration(offsetMS) * time.Millisecond),
		Bid:   mid - 0.01,
		Ask:   mid + 0.01,
		Mid:   mid,
	}
}

func TestBuilder_Build(t *testing.T) {
	b := NewBuilder(5 * time.Second)

	t.Run("last value held across irregular ticks", func(t *testing.T) {
		quotes := []model.Quote{
			quote("alpha", 0, 100.00),
			quote("beta", 500, 100.08),
			quote("beta", 1500, 100.00),
		}
		samples, stats := b.Build(quotes)

		// No sample at t=0: beta has no quote yet. At t=500 alpha's quote
		// from t=0 is held.
		require.Len(t, samples, 2)
		assert.Equal(t, t0.Add(500*time.Millisecond), samples[0].Time)
		assert.Equal(t, "alpha/beta", samples[0].VenuePair)
		assert.InDelta(t, -7.997, samples[0].SpreadBps, 0.01)
		assert.InDelta(t, 0.0, samples[1].SpreadBps, 1e-9)
		assert.Equal(t, 3, stats.Ticks)
		assert.Equal(t, 2, stats.Samples)
	})

	t.Run("stale quote skips the pair", func(t *testing.T) {
		quotes := []model.Quote{
			quote("alpha", 0, 100.00),
			quote("beta", 10_000, 100.05),
		}
		samples, stats := b.Build(quotes)
		assert.Empty(t, samples)
		assert.Equal(t, 1, stats.SkippedStale)
	})

	t.Run("non-positive reference price drops the sample", func(t *testing.T) {
		quotes := []model.Quote{
			quote("alpha", 0, -100.00),
			quote("beta", 100, 99.00),
		}
		samples, stats := b.Build(quotes)
		assert.Empty(t, samples)
		assert.Equal(t, 1, stats.DroppedBadRef)
	})

	t.Run("sign is positive when the smaller-named venue is rich", func(t *testing.T) {
		quotes := []model.Quote{
			quote("alpha", 0, 100.10),
			quote("beta", 0, 100.00),
		}
		samples, _ := b.Build(quotes)
		require.Len(t, samples, 1)
		assert.Positive(t, samples[0].SpreadBps)
	})

	t.Run("three venues yield three pairs per timestamp", func(t *testing.T) {
		quotes := []model.Quote{
			quote("alpha", 0, 100.00),
			quote("beta", 0, 100.01),
			quote("gamma", 0, 100.02),
		}
		samples, _ := b.Build(quotes)
		require.Len(t, samples, 3)
		assert.Equal(t, "alpha/beta", samples[0].VenuePair)
		assert.Equal(t, "alpha/gamma", samples[1].VenuePair)
		assert.Equal(t, "beta/gamma", samples[2].VenuePair)
	})

	t.Run("deterministic", func(t *testing.T) {
		quotes := []model.Quote{
			quote("alpha", 0, 100.00),
			quote("beta", 0, 100.03),
			quote("alpha", 1000, 100.01),
			quote("beta", 1000, 100.02),
			quote("gamma", 1200, 100.07),
		}
		first, _ := b.Build(quotes)
		second, _ := b.Build(quotes)
		assert.Equal(t, first, second)
	})

	t.Run("empty input", func(t *testing.T) {
		samples, stats := b.Build(nil)
		assert.Empty(t, samples)
		assert.Zero(t, stats.Samples)
	})
}

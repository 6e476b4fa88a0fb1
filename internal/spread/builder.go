// Package spread aligns raw per-venue quotes onto a common time axis and
// computes pairwise spread series in basis points.
package spread

import (
	"math"
	"sort"
	"time"

	"dislocations/internal/model"
)

// Stats counts what the builder did with its input. SkippedStale counts
// pair-timestamps where one side's last quote was older than the staleness
// bound; DroppedBadRef counts samples discarded for a non-positive
// reference price.
type Stats struct {
	Ticks         int
	Samples       int
	SkippedStale  int
	DroppedBadRef int
}

// Builder turns an ordered quote sequence into an ordered SpreadSample
// sequence. It is a pure computation: same quotes and bounds in, same
// samples out.
type Builder struct {
	staleness time.Duration
}

// NewBuilder creates a builder with the given quote staleness bound.
func NewBuilder(staleness time.Duration) *Builder {
	return &Builder{staleness: staleness}
}

// Build walks quotes in time order holding the last value per venue, and at
// every distinct tick time emits one sample per venue pair whose two sides
// are both fresh. The spread is signed relative to the pair's mean mid:
//
//	spread_bps = (mid_a - mid_b) / ((mid_a + mid_b) / 2) * 1e4
//
// where venue "a" is the lexicographically smaller of the pair. Quotes must
// be ordered by time; ties are applied together before sampling.
func (b *Builder) Build(quotes []model.Quote) ([]model.SpreadSample, Stats) {
	stats := Stats{Ticks: len(quotes)}
	if len(quotes) == 0 {
		return nil, stats
	}

	last := make(map[string]model.Quote)
	var venues []string
	var samples []model.SpreadSample

	i := 0
	for i < len(quotes) {
		ts := quotes[i].Time
		for i < len(quotes) && quotes[i].Time.Equal(ts) {
			q := quotes[i]
			if _, seen := last[q.Venue]; !seen {
				venues = append(venues, q.Venue)
				sort.Strings(venues)
			}
			last[q.Venue] = q
			i++
		}

		for vi := 0; vi < len(venues); vi++ {
			for vj := vi + 1; vj < len(venues); vj++ {
				qa, qb := last[venues[vi]], last[venues[vj]]
				if ts.Sub(qa.Time) > b.staleness || ts.Sub(qb.Time) > b.staleness {
					stats.SkippedStale++
					continue
				}
				ref := (qa.Mid + qb.Mid) / 2
				if ref <= 0 || math.IsNaN(ref) {
					stats.DroppedBadRef++
					continue
				}
				samples = append(samples, model.SpreadSample{
					Time:      ts,
					VenuePair: model.PairKey(qa.Venue, qb.Venue),
					SpreadBps: (qa.Mid - qb.Mid) / ref * 1e4,
				})
			}
		}
	}

	stats.Samples = len(samples)
	return samples, stats
}

// ByPair groups samples by venue pair, preserving time order within each
// pair. Pair keys are returned sorted so iteration order is deterministic.
func ByPair(samples []model.SpreadSample) (map[string][]model.SpreadSample, []string) {
	grouped := make(map[string][]model.SpreadSample)
	for _, s := range samples {
		grouped[s.VenuePair] = append(grouped[s.VenuePair], s)
	}
	pairs := make([]string, 0, len(grouped))
	for p := range grouped {
		pairs = append(pairs, p)
	}
	sort.Strings(pairs)
	return grouped, pairs
}

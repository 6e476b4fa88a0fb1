// Package backtest simulates one friction-adjusted round-trip trade per
// detected dislocation event.
package backtest

import (
	"sort"
	"time"

	"dislocations/internal/model"
	"dislocations/internal/spread"
)

// Cost-application convention. Fees and half-spread crossing are paid on
// both legs of the round trip; slippage is a single aggregate
// execution-quality penalty per trade.
const (
	FeeLegs        = 2
	HalfSpreadLegs = 2
	SlippageLegs   = 1
)

// Costs holds the per-action frictions in basis points.
type Costs struct {
	FeeBps        float64
	HalfSpreadBps float64
	SlippageBps   float64
}

// TotalBps is the round-trip cost subtracted from every executable trade.
func (c Costs) TotalBps() float64 {
	return FeeLegs*c.FeeBps + HalfSpreadLegs*c.HalfSpreadBps + SlippageLegs*c.SlippageBps
}

// Engine maps events to trades. Entry is delayed by the configured latency;
// the gross payoff is the spread actually observable at entry, not the
// event peak, since the peak overstates executable edge.
type Engine struct {
	latency   time.Duration
	staleness time.Duration
	costs     Costs
}

// NewEngine creates a backtest engine.
func NewEngine(latency, staleness time.Duration, costs Costs) *Engine {
	return &Engine{latency: latency, staleness: staleness, costs: costs}
}

// Run produces exactly one trade per event, in event order. An event whose
// entry instant has no spread sample within the staleness bound yields an
// unexecutable trade: the row is kept but its pnl fields are undefined.
func (e *Engine) Run(events []model.Event, samples []model.SpreadSample) []model.Trade {
	grouped, _ := spread.ByPair(samples)
	totalCost := e.costs.TotalBps()

	trades := make([]model.Trade, 0, len(events))
	for i, ev := range events {
		entry := ev.Start.Add(e.latency)
		trade := model.Trade{
			ID:            i + 1,
			EventID:       ev.ID,
			EntryTime:     entry,
			ExitTime:      ev.End.Add(e.latency),
			Direction:     ev.Direction,
			FeeBps:        e.costs.FeeBps,
			HalfSpreadBps: e.costs.HalfSpreadBps,
			SlippageBps:   e.costs.SlippageBps,
			LatencyMS:     int(e.latency / time.Millisecond),
		}

		if spreadAtEntry, ok := e.spreadAt(grouped[ev.VenuePair], entry); ok {
			trade.Executable = true
			trade.PnlBps = ev.Direction.Sign() * spreadAtEntry
			trade.PnlNetBps = trade.PnlBps - totalCost
		}
		trades = append(trades, trade)
	}
	return trades
}

// spreadAt returns the signed spread in effect at instant t: the latest
// sample at or before t, provided it is no older than the staleness bound.
func (e *Engine) spreadAt(samples []model.SpreadSample, t time.Time) (float64, bool) {
	n := sort.Search(len(samples), func(i int) bool {
		return samples[i].Time.After(t)
	})
	if n == 0 {
		return 0, false
	}
	s := samples[n-1]
	if t.Sub(s.Time) > e.staleness {
		return 0, false
	}
	return s.SpreadBps, true
}

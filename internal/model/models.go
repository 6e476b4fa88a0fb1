package model

import (
	"fmt"
	"strings"
	"time"
)

// Quote represents a single mid-price observation from a venue.
// The collector writes one row per venue per sampling interval.
type Quote struct {
	Venue string    `db:"venue"`
	Time  time.Time `db:"ts"`
	Bid   float64   `db:"bid"`
	Ask   float64   `db:"ask"`
	Mid   float64   `db:"mid"`
}

// PairKey returns the canonical key for a venue pair. The lexicographically
// smaller venue is always side "a", so the spread sign is well defined.
func PairKey(venueA, venueB string) string {
	if venueB < venueA {
		venueA, venueB = venueB, venueA
	}
	return venueA + "/" + venueB
}

// SplitPair returns the two venues of a canonical pair key.
func SplitPair(pair string) (string, string) {
	a, b, _ := strings.Cut(pair, "/")
	return a, b
}

// SpreadSample is one point of the aligned cross-venue spread series.
// SpreadBps is signed: positive when venue "a" of the pair trades above
// venue "b".
type SpreadSample struct {
	Time      time.Time
	VenuePair string
	SpreadBps float64
}

// Direction says which side of a venue pair traded rich during an event.
type Direction string

const (
	AOverB Direction = "a_over_b"
	BOverA Direction = "b_over_a"
)

// Sign returns +1 for AOverB and -1 for BOverA.
func (d Direction) Sign() float64 {
	if d == BOverA {
		return -1
	}
	return 1
}

// Event is a confirmed dislocation: the absolute spread on a venue pair
// stayed at or above the threshold for at least the persistence duration.
// IDs are sequential within a single detection run.
type Event struct {
	ID            int       `db:"id"`
	VenuePair     string    `db:"venue_pair"`
	Start         time.Time `db:"start_time"`
	End           time.Time `db:"end_time"`
	PeakSpreadBps float64   `db:"peak_spread_bps"`
	Direction     Direction `db:"direction"`
}

// Duration is the confirmed lifetime of the event.
func (e Event) Duration() time.Duration { return e.End.Sub(e.Start) }

// Trade is the simulated round trip for one event. Executable=false marks
// a trade whose entry fell into a data gap: its pnl fields are undefined
// and the row is excluded from aggregates but kept in the output.
type Trade struct {
	ID            int       `db:"id"`
	EventID       int       `db:"event_id"`
	EntryTime     time.Time `db:"entry_time"`
	ExitTime      time.Time `db:"exit_time"`
	Direction     Direction `db:"direction"`
	Executable    bool      `db:"executable"`
	PnlBps        float64   `db:"pnl_bps"`
	PnlNetBps     float64   `db:"pnl_net_bps"`
	FeeBps        float64   `db:"fee_bps"`
	HalfSpreadBps float64   `db:"half_spread_bps"`
	SlippageBps   float64   `db:"slippage_bps"`
	LatencyMS     int       `db:"latency_ms"`
}

func (t Trade) String() string {
	if !t.Executable {
		return fmt.Sprintf("trade %d (event %d): unexecutable", t.ID, t.EventID)
	}
	return fmt.Sprintf("trade %d (event %d): gross %.2f bps, net %.2f bps",
		t.ID, t.EventID, t.PnlBps, t.PnlNetBps)
}

// Package detector scans spread series for sustained cross-venue
// dislocations using an explicit finite-state machine.
package detector

import (
	"math"
	"sort"
	"time"

	"dislocations/internal/model"
	"dislocations/internal/spread"
)

// Detector confirms a dislocation when |spread_bps| stays at or above the
// threshold continuously for at least the persistence duration. A single
// sub-threshold sample before confirmation discards the candidate; that is
// the noise filter.
type Detector struct {
	thresholdBps float64
	persistence  time.Duration
}

// New creates a detector with the given threshold and persistence filter.
func New(thresholdBps float64, persistence time.Duration) *Detector {
	return &Detector{thresholdBps: thresholdBps, persistence: persistence}
}

type state int

const (
	idle state = iota
	armed
	confirmed
)

// machine tracks one venue pair's scan.
type machine struct {
	state     state
	candStart time.Time
	peakBps   float64
	direction model.Direction
	lastAbove time.Time
}

// Detect runs one machine per venue pair over the ordered sample sequence
// and returns confirmed events ordered by start time (pair key as
// tiebreak), with ids assigned sequentially. If the window ends while a
// machine is armed the candidate is discarded; if it ends while confirmed
// the event is closed at the last confirming sample.
func (d *Detector) Detect(samples []model.SpreadSample) []model.Event {
	grouped, pairs := spread.ByPair(samples)

	var events []model.Event
	for _, pair := range pairs {
		events = append(events, d.scanPair(pair, grouped[pair])...)
	}

	sort.Slice(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].VenuePair < events[j].VenuePair
	})
	for i := range events {
		events[i].ID = i + 1
	}
	return events
}

func (d *Detector) scanPair(pair string, samples []model.SpreadSample) []model.Event {
	var m machine
	var events []model.Event

	for _, s := range samples {
		abs := math.Abs(s.SpreadBps)
		above := abs >= d.thresholdBps

		if m.state == confirmed {
			if above {
				if abs > m.peakBps {
					m.peakBps = abs
				}
				m.lastAbove = s.Time
				continue
			}
			events = append(events, m.emit(pair))
			m = machine{}
			// fall through: the closing sample is re-evaluated under
			// IDLE rules (it is below threshold, so the machine stays
			// idle, but the transition is explicit).
		}

		if m.state == armed {
			if !above {
				m = machine{}
				continue
			}
			if abs > m.peakBps {
				m.peakBps = abs
			}
			m.lastAbove = s.Time
			if s.Time.Sub(m.candStart) >= d.persistence {
				m.state = confirmed
				m.direction = directionOf(s.SpreadBps)
			}
			continue
		}

		// idle
		if above {
			m = machine{state: armed, candStart: s.Time, peakBps: abs, lastAbove: s.Time}
			if d.persistence == 0 {
				m.state = confirmed
				m.direction = directionOf(s.SpreadBps)
			}
		}
	}

	if m.state == confirmed {
		events = append(events, m.emit(pair))
	}
	return events
}

func (m machine) emit(pair string) model.Event {
	return model.Event{
		VenuePair:     pair,
		Start:         m.candStart,
		End:           m.lastAbove,
		PeakSpreadBps: m.peakBps,
		Direction:     m.direction,
	}
}

// directionOf fixes the event direction from the sign of the spread at the
// confirming sample. A later sign flip while the magnitude stays above
// threshold extends the same event; it does not split it.
func directionOf(spreadBps float64) model.Direction {
	if spreadBps < 0 {
		return model.BOverA
	}
	return model.AOverB
}

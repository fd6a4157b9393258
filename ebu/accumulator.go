// Package ebu maintains the live ST 2110-21 compliance measurements
// (Cinst, VRX, FPT, latency, TMI, TMD) and checks them against the
// narrow/wide gateway masks every 100 frames (spec.md §4.6).
package ebu

import "github.com/eclesh/welford"

// Accumulator is one of the six per-session clusters (one per measurement:
// Cinst, VRX, FPT, latency, TMI, TMD; Monitor keeps no others): count, sum
// (carried inside welford.Stats as mean*count), min, max and running
// average, reset every Window frames. welford.Stats already gives us
// count/mean/variance in one running pass; min/max are tracked
// alongside it since the package doesn't keep them itself.
type Accumulator struct {
	stats *welford.Stats
	min   float64
	max   float64
	seen  bool
}

// NewAccumulator returns a zeroed accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{stats: welford.New()}
}

// Add folds one more sample into the running statistics.
func (a *Accumulator) Add(v float64) {
	a.stats.Add(v)
	if !a.seen || v < a.min {
		a.min = v
	}
	if !a.seen || v > a.max {
		a.max = v
	}
	a.seen = true
}

// Reset clears the accumulator for the next measurement window.
func (a *Accumulator) Reset() {
	a.stats = welford.New()
	a.min, a.max, a.seen = 0, 0, false
}

// Snapshot is a point-in-time read of an accumulator's cluster.
type Snapshot struct {
	Count   int64
	Mean    float64
	Min     float64
	Max     float64
	Stddev  float64
}

// Snapshot reads the accumulator's current values without resetting it.
func (a *Accumulator) Snapshot() Snapshot {
	return Snapshot{
		Count:  a.stats.Count(),
		Mean:   a.stats.Mean(),
		Min:    a.min,
		Max:    a.max,
		Stddev: a.stats.Stddev(),
	}
}

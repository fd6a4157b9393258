package ebu

import (
	"math"
	"sync"
	"time"
)

// PacingTracker turns a stream of per-packet observation times into the
// Cinst/VRX pair Monitor.ObservePacket expects: Cinst is how far this
// packet's arrival sits from its nominal TPRS slot, in packet-time units;
// VRX is a virtual receiver buffer level that fills by one packet per
// arrival and drains at the nominal packet rate, the model ST 2110-21
// §4.6 bases its VRX bound on.
type PacingTracker struct {
	mu sync.Mutex

	tprsNs int64

	haveSchedule bool
	nextSlot     time.Time

	haveDrain bool
	lastDrain time.Time
	vrxLevel  float64
}

// NewPacingTracker builds a PacingTracker for a session pacing one packet
// every tprsNs nanoseconds.
func NewPacingTracker(tprsNs int64) *PacingTracker {
	return &PacingTracker{tprsNs: tprsNs}
}

// Observe folds one packet's observation time (its TX-enqueue or RX-arrival
// timestamp) into the tracker's nominal schedule, returning the Cinst/VRX
// pair to hand to Monitor.ObservePacket.
func (p *PacingTracker) Observe(now time.Time) (cinst, vrx float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tprsNs <= 0 {
		return 0, 0
	}

	if !p.haveSchedule {
		p.nextSlot = now
		p.haveSchedule = true
	}
	drift := now.Sub(p.nextSlot)
	cinst = math.Abs(float64(drift.Nanoseconds())) / float64(p.tprsNs)
	p.nextSlot = p.nextSlot.Add(time.Duration(p.tprsNs))

	if !p.haveDrain {
		p.lastDrain = now
		p.haveDrain = true
	}
	drained := now.Sub(p.lastDrain).Nanoseconds() / p.tprsNs
	if drained > 0 {
		p.vrxLevel -= float64(drained)
		if p.vrxLevel < 0 {
			p.vrxLevel = 0
		}
		p.lastDrain = p.lastDrain.Add(time.Duration(drained * p.tprsNs))
	}
	p.vrxLevel++
	return cinst, p.vrxLevel
}

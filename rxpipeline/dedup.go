package rxpipeline

import "github.com/OpenVisualCloud/Media-Transport-Library-sub001/rtp"

// redundantErrorThreshold is how many consecutive redundant (already-seen)
// packets one leg tolerates dropping before the 21st forces acceptance,
// ST_SESSION_REDUNDANT_ERROR_THRESHOLD = 20 (P5, spec.md §4.4 "Redundancy
// escape"): guards against deadlock if a stream reset desyncs the window
// so every arrival on this leg looks like a stale duplicate forever.
const redundantErrorThreshold = 20

// Dedup tracks which sequence numbers have already been delivered from
// one leg of an ST 2022-7 pair, using a 64-bit sliding window keyed off
// the lowest not-yet-expired sequence number (recvBitmap/bitmapBase in the
// original). A bit set means that sequence number has already been seen
// on this leg and the duplicate should be dropped, unless the escape latch
// has tripped.
type Dedup struct {
	bitmapBase  rtp.SequenceNumber
	recvBitmap  uint64
	consecutive int // consecutive redundant (already-seen) packets on this leg
	escaped     bool
}

// NewDedup creates a Dedup window anchored at the first sequence number
// the session expects.
func NewDedup(base rtp.SequenceNumber) *Dedup {
	return &Dedup{bitmapBase: base}
}

// Seen reports whether seq has already been delivered, and marks it seen
// if not (so the caller only needs one call per packet). Sequence numbers
// older than the current window are treated as already seen (late
// duplicate, drop). Sequence numbers far enough ahead of the window slide
// it forward, retiring the oldest bits. Every redundant hit increments the
// consecutive counter; once it passes redundantErrorThreshold the escape
// latch trips so Escaped reports true and the 21st consecutive redundant
// packet is accepted instead of dropped (P5).
func (d *Dedup) Seen(seq rtp.SequenceNumber) bool {
	delta := int64(seq) - int64(d.bitmapBase)
	if delta < 0 {
		d.markRedundant()
		return true
	}
	if delta >= 64 {
		d.slide(delta - 63)
		delta = 63
	}
	mask := uint64(1) << uint(delta)
	if d.recvBitmap&mask != 0 {
		d.markRedundant()
		return true
	}
	d.recvBitmap |= mask
	d.consecutive = 0
	d.escaped = false
	return false
}

// markRedundant records one more consecutive redundant packet on this leg.
func (d *Dedup) markRedundant() {
	d.consecutive++
	if d.consecutive > redundantErrorThreshold {
		d.escaped = true
	}
}

// slide advances the window by n sequence numbers, retiring the oldest
// bits. It carries no redundancy bookkeeping of its own: a sequence number
// sliding out of the window unseen is simply forgotten, not folded into
// the consecutive-redundant count the escape latch tracks.
func (d *Dedup) slide(n int64) {
	for i := int64(0); i < n && i < 64; i++ {
		d.recvBitmap >>= 1
	}
	if n >= 64 {
		d.recvBitmap = 0
	}
	d.bitmapBase += rtp.SequenceNumber(n)
}

// Escaped reports whether this leg has exceeded redundantErrorThreshold
// consecutive redundant packets (P5): the caller should stop dropping
// Seen's duplicates on this leg until a fresh, in-window sequence number
// resets the latch.
func (d *Dedup) Escaped() bool {
	return d.escaped
}

// Reset clears the window for a new frame/session cycle, resetting the
// escape latch.
func (d *Dedup) Reset(base rtp.SequenceNumber) {
	d.bitmapBase = base
	d.recvBitmap = 0
	d.consecutive = 0
	d.escaped = false
}

package txpipeline

import (
	"time"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/rtp"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/session"
)

// EpochOutcome classifies how the current wall-clock time relates to the
// session's frame epoch boundary, mirroring the three branches of the
// original's frame-timestamp derivation (spec.md §4.2).
type EpochOutcome uint8

// Epoch outcomes.
const (
	// EpochSame: still within the epoch the session last used; reuse its
	// RTP timestamp unchanged.
	EpochSame EpochOutcome = iota
	// EpochAdvanced: now falls in a later epoch than last time; compute
	// a fresh timestamp and advance the epoch counter.
	EpochAdvanced
	// EpochLate: now is already past the point where the new epoch's
	// first packet should have gone on the wire; the caller must not
	// stall waiting for tr_offset and should send immediately.
	EpochLate
)

// FrameTimestamp derives the RTP timestamp for the next frame and
// classifies the timing relationship to the wall clock, the Go-native
// equivalent of RvRtpGetFrameTmstamp: epoch = now / frameTime; if epoch is
// unchanged from the session's last epoch, keep the timestamp; if it
// advanced, compute a fresh 90kHz timestamp for the epoch boundary
// (tr_offset is not added to it); if now is already past the epoch boundary + tr_offset,
// report EpochLate so the builder skips the pacing wait (spec.md §7
// scenario "late session").
func FrameTimestamp(now time.Time, fmt session.Format, lastEpoch int64) (rtp.Timestamp, int64, EpochOutcome) {
	nowNs := now.UnixNano()
	epoch := nowNs / fmt.FrameTimeNs
	if epoch == lastEpoch {
		return epochTimestamp(lastEpoch, fmt), lastEpoch, EpochSame
	}

	ts := epochTimestamp(epoch, fmt)
	boundaryNs := epoch*fmt.FrameTimeNs + fmt.TrOffsetNs()
	if nowNs > boundaryNs {
		return ts, epoch, EpochLate
	}
	return ts, epoch, EpochAdvanced
}

// epochTimestamp converts an epoch index to its 90kHz RTP timestamp,
// wrapping at 2^32 as the wire format requires.
func epochTimestamp(epoch int64, fmt session.Format) rtp.Timestamp {
	if fmt.RateNum > 0 && fmt.RateDen > 0 {
		ticks := epoch * fmt.ClockRateHz * int64(fmt.RateDen) / int64(fmt.RateNum)
		return rtp.Timestamp(uint32(ticks))
	}
	ticks := epoch * (fmt.FrameTimeNs * fmt.ClockRateHz / int64(time.Second))
	return rtp.Timestamp(uint32(ticks))
}

// SleepUntilTROffset cooperatively waits, in 128us steps so the caller can
// observe a stop request between steps, until now has reached the frame's
// tr_offset point on the wire clock. It returns early without sleeping if
// deadline has already passed.
func SleepUntilTROffset(deadline time.Time, stop func() bool) {
	const step = 128 * time.Microsecond
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		if stop != nil && stop() {
			return
		}
		sleep := step
		if remaining < sleep {
			sleep = remaining
		}
		time.Sleep(sleep)
	}
}

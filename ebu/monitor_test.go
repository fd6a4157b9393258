package ebu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/rtp"
)

func TestAccumulatorTracksMinMaxAndMean(t *testing.T) {
	a := NewAccumulator()
	for _, v := range []float64{3, 1, 4, 1, 5} {
		a.Add(v)
	}
	snap := a.Snapshot()
	require.EqualValues(t, 5, snap.Count)
	require.Equal(t, 1.0, snap.Min)
	require.Equal(t, 5.0, snap.Max)
	require.InDelta(t, 2.8, snap.Mean, 0.01)

	a.Reset()
	require.EqualValues(t, 0, a.Snapshot().Count)
}

func TestWrapSafeDeltaHandlesRTPTimestampWrap(t *testing.T) {
	// timestamp wraps from near 2^32-1 back to a small value; the delta
	// must still read as a small positive increment, not a huge negative
	// underflow from naive unsigned subtraction.
	prev := rtp.Timestamp(0xFFFFFFF0)
	cur := rtp.Timestamp(0x00000010)
	require.EqualValues(t, 0x20, wrapSafeDelta(cur, prev))

	// ordinary, non-wrapping case.
	require.EqualValues(t, 3000, wrapSafeDelta(rtp.Timestamp(13000), rtp.Timestamp(10000)))
}

// windowParams rebuilds the mask parameters logAndReset evaluates from a
// closed window's snapshots.
func windowParams(snaps map[string]Snapshot, trOffset time.Duration) map[string]interface{} {
	return map[string]interface{}{
		"cinstMax": snaps["cinst"].Max,
		"vrxMax":   snaps["vrx"].Max,
		"fptMax":   snaps["fpt"].Max,
		"tmdMax":   snaps["tmd"].Max,
		"trOffset": float64(trOffset.Nanoseconds()),
	}
}

func TestMonitorNarrowGatewayPassesWithinBounds(t *testing.T) {
	m := NewMonitor(1, GatewayNarrow, 1*time.Millisecond)
	var window map[string]Snapshot
	m.SetOnWindow(func(snaps map[string]Snapshot) { window = snaps })
	for i := 0; i < Window; i++ {
		m.ObservePacket(2, 6)
		m.ObserveFrame(500*time.Microsecond, 2*time.Millisecond, rtp.Timestamp(uint32(i)*3000))
	}
	snap := m.cinst.Snapshot()
	require.EqualValues(t, 0, snap.Count, "window must reset after logAndReset")

	require.NotNil(t, window)
	verdicts, err := evaluateMasks(GatewayNarrow, windowParams(window, 1*time.Millisecond))
	require.NoError(t, err)
	for _, v := range verdicts {
		require.True(t, v.Pass, "mask %s", v.Name)
	}
}

func TestMonitorNarrowGatewayFlagsVRXOverBound(t *testing.T) {
	m := NewMonitor(2, GatewayNarrow, 1*time.Millisecond)
	var window map[string]Snapshot
	m.SetOnWindow(func(snaps map[string]Snapshot) { window = snaps })
	for i := 0; i < Window-1; i++ {
		m.ObservePacket(2, 6)
	}
	m.ObservePacket(2, 50) // exceeds narrow VRX <= 9 bound
	for i := 0; i < Window; i++ {
		m.ObserveFrame(500*time.Microsecond, 2*time.Millisecond, rtp.Timestamp(uint32(i)*3000))
	}
	require.EqualValues(t, 0, m.vrx.Snapshot().Count)

	require.NotNil(t, window)
	require.Equal(t, 50.0, window["vrx"].Max)
	verdicts, err := evaluateMasks(GatewayNarrow, windowParams(window, 1*time.Millisecond))
	require.NoError(t, err)
	for _, v := range verdicts {
		require.Equal(t, v.Name != "vrx", v.Pass, "mask %s", v.Name)
	}
}

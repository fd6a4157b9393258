package ebu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPacingTrackerOnScheduleReportsNearZeroCinst(t *testing.T) {
	p := NewPacingTracker(int64(time.Millisecond))
	base := time.Unix(1000, 0)
	for i := 0; i < 5; i++ {
		cinst, _ := p.Observe(base.Add(time.Duration(i) * time.Millisecond))
		require.InDelta(t, 0, cinst, 0.01)
	}
}

func TestPacingTrackerLatePacketRaisesCinst(t *testing.T) {
	p := NewPacingTracker(int64(time.Millisecond))
	base := time.Unix(1000, 0)
	p.Observe(base)
	cinst, _ := p.Observe(base.Add(5 * time.Millisecond))
	require.Greater(t, cinst, 3.0)
}

func TestPacingTrackerVRXDrainsBetweenBursts(t *testing.T) {
	p := NewPacingTracker(int64(time.Millisecond))
	base := time.Unix(1000, 0)
	var vrx float64
	for i := 0; i < 10; i++ {
		_, vrx = p.Observe(base)
	}
	require.GreaterOrEqual(t, vrx, 9.0)

	_, drained := p.Observe(base.Add(20 * time.Millisecond))
	require.Less(t, drained, vrx)
}

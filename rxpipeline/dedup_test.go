package rxpipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDedupFirstDeliveryIsNotSeen(t *testing.T) {
	d := NewDedup(0)
	require.False(t, d.Seen(0))
	require.True(t, d.Seen(0))
}

func TestDedupEscapesOnlyAfterTwentyConsecutiveRedundantPackets(t *testing.T) {
	d := NewDedup(0)
	require.False(t, d.Seen(5)) // first delivery, accepted

	for i := 0; i < redundantErrorThreshold; i++ {
		require.True(t, d.Seen(5), "redundant delivery %d must still be reported seen", i+1)
		require.False(t, d.Escaped(), "escape latch must not trip before the 21st consecutive redundant packet")
	}

	// the 21st consecutive redundant packet: Seen still reports it as a
	// duplicate, but Escaped now forces the caller to accept it (P5).
	require.True(t, d.Seen(5))
	require.True(t, d.Escaped())
}

func TestDedupFreshSequenceClearsEscapeLatch(t *testing.T) {
	d := NewDedup(0)
	d.Seen(5)
	for i := 0; i <= redundantErrorThreshold; i++ {
		d.Seen(5)
	}
	require.True(t, d.Escaped())

	require.False(t, d.Seen(6))
	require.False(t, d.Escaped())
}

func TestDedupSlideRetiresOldestBitsWithoutEscaping(t *testing.T) {
	d := NewDedup(0)
	require.False(t, d.Seen(0))
	require.False(t, d.Seen(70)) // slides the window far past bit 0
	require.False(t, d.Escaped())
	require.True(t, d.Seen(0)) // now below the window: stale duplicate
}

func TestDedupReset(t *testing.T) {
	d := NewDedup(0)
	d.Seen(5)
	for i := 0; i <= redundantErrorThreshold; i++ {
		d.Seen(5)
	}
	require.True(t, d.Escaped())

	d.Reset(100)
	require.False(t, d.Escaped())
	require.False(t, d.Seen(100))
}

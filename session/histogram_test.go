package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFragmentHistogramCompletion(t *testing.T) {
	h := NewFragmentHistogram(8, 0xffffffffffffffff)
	require.False(t, h.Complete())
	for i := 0; i < 8; i++ {
		h.SetBit(i, 0)
		h.SetBit(i, 1)
		h.SetBit(i, 2)
		h.SetBit(i, 3)
		h.SetBit(i, 4)
		h.SetBit(i, 5)
		h.SetBit(i, 6)
		h.SetBit(i, 7)
	}
	require.True(t, h.Complete())
}

func TestLineHistogramResetAndRepair(t *testing.T) {
	h := NewLineHistogram(4)
	h.Inc(0)
	h.Inc(0)
	h.Inc(1)
	require.Equal(t, uint32(2), h.Count(0))
	require.Equal(t, uint32(1), h.Count(1))

	// P7: after repair, every line's histogram equals its expected count.
	h.Set(1, 2)
	require.Equal(t, uint32(2), h.Count(1))

	h.Reset()
	require.Equal(t, uint32(0), h.Count(0))
}

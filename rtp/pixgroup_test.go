package rtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPackUnpackRoundTrip exercises property P1: for every pg2 endian and
// every 10-bit value, Unpack(Pack(V)) == V on each of Cb/Y0/Cr/Y1.
func TestPackUnpackRoundTrip(t *testing.T) {
	values := []uint16{0, 1, 0x3ff, 0x155, 0x2aa, 0x200, 0x001}
	for _, pgEndian := range []Endian{BigEndian, LittleEndian} {
		for _, v := range values {
			pg := PixelGroup{Cb: v, Y0: v ^ 0x3ff, Cr: v, Y1: v ^ 0x155}
			buf := make([]byte, PixelGroupSize)
			PackPg2(pg, pgEndian, buf)
			got := UnpackPg2(buf, pgEndian)
			require.Equal(t, pg, got, "endian=%v value=%#x", pgEndian, v)
		}
	}
}

func TestTimestampWrapSafeOrdering(t *testing.T) {
	var max Timestamp = 0xffffffff
	require.True(t, Timestamp(0).After(max))
	require.True(t, max.Before(Timestamp(0)))
	require.False(t, Timestamp(100).After(Timestamp(200)))
	require.True(t, Timestamp(200).After(Timestamp(100)))
}

func TestSequenceNumberParts(t *testing.T) {
	s := SequenceFromParts(0xbeef, 0x0001)
	require.Equal(t, uint16(0xbeef), s.Low())
	require.Equal(t, uint16(0x0001), s.High())
}

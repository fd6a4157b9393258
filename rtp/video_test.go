package rtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVideoHeaderDualLineRoundTrip(t *testing.T) {
	v := &VideoHeader{
		Version:     2,
		Marker:      true,
		PayloadType: PayloadTypeVideo,
		SeqNumber:   1234,
		Timestamp:   987654321,
		SSRC:        0x123450,
		SeqNumberExt: 2,
		Length:      1200,
		LineNumber:  10,
		LineOffset:  480,
		Line2Length: 1200,
		Line2Number: 11,
		Line2Offset: 0,
		DualLine:    true,
	}
	buf := make([]byte, DualLineHeaderSize)
	n, err := v.MarshalTo(buf)
	require.NoError(t, err)
	require.Equal(t, DualLineHeaderSize, n)

	got, err := UnmarshalVideoHeader(buf, true)
	require.NoError(t, err)
	require.Equal(t, v.SeqNumber, got.SeqNumber)
	require.Equal(t, v.Timestamp, got.Timestamp)
	require.Equal(t, v.LineNumber, got.LineNumber)
	require.Equal(t, v.Line2Number, got.Line2Number)
	require.True(t, got.Marker)
	require.Equal(t, SequenceFromParts(1234, 2), got.Sequence())
}

func TestVideoHeaderSingleLineFieldID(t *testing.T) {
	v := &VideoHeader{PayloadType: PayloadTypeVideo, LineNumber: 42, FieldID: Field1}
	buf := make([]byte, SingleLineHeaderSize)
	_, err := v.MarshalTo(buf)
	require.NoError(t, err)

	got, err := UnmarshalVideoHeader(buf, false)
	require.NoError(t, err)
	require.Equal(t, Field1, got.FieldID)
	require.Equal(t, uint16(42), got.LineNumber)
}

func TestVideoHeaderShortBuffer(t *testing.T) {
	v := &VideoHeader{DualLine: true}
	_, err := v.MarshalTo(make([]byte, 10))
	require.Error(t, err)
}

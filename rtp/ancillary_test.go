package rtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAncillaryHeaderRoundTrip(t *testing.T) {
	h := &AncillaryHeader{Version: 2, Marker: true, PayloadType: PayloadTypeAncillary, SeqNumber: 7, Timestamp: 42, SSRC: 9, AncCount: 3, F: 1}
	buf := make([]byte, AncillaryHeaderSize)
	_, err := h.MarshalTo(buf)
	require.NoError(t, err)

	got, err := UnmarshalAncillaryHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h.SeqNumber, got.SeqNumber)
	require.Equal(t, h.AncCount, got.AncCount)
	require.Equal(t, h.F, got.F)
}

func TestAncillaryPacketChecksum(t *testing.T) {
	p := &AncillaryPacket{DID: 0x61, SDID: 0x01, DataCount: 8, UserData: []uint16{1, 2, 3, 4, 5, 6, 7, 8}}
	p.SetParity()
	p.Checksum = p.ComputeChecksum()
	require.True(t, p.VerifyChecksum())

	p.Checksum ^= 0x1
	require.False(t, p.VerifyChecksum())
}

func TestAudioFormatSizing(t *testing.T) {
	f := AudioFormat{SampleRateHz: 48000, Channels: 8, BitsPerSample: 24, PacketTimeUS: 1000}
	require.Equal(t, 24, f.SampleGrpSize())
	require.Equal(t, 48, f.SampleGrpCount())
	require.Equal(t, 1152, f.PktPayloadSize())
}

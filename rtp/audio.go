package rtp

import (
	"encoding/binary"
	"fmt"
)

// AudioHeaderSize is the size of the plain RFC 3550 header used by ST
// 2110-30; no header extensions are carried.
const AudioHeaderSize = 12

// AudioHeader is the RFC 3550 header as used for PCM audio, no extensions.
type AudioHeader struct {
	Version     uint8
	Padding     bool
	Extension   bool
	CsrcCount   uint8
	Marker      bool
	PayloadType PayloadType
	SeqNumber   uint16
	Timestamp   Timestamp
	SSRC        uint32
}

// MarshalTo writes the header to b.
func (a *AudioHeader) MarshalTo(b []byte) (int, error) {
	if len(b) < AudioHeaderSize {
		return 0, fmt.Errorf("rtp: buffer too small for audio header: have %d need %d", len(b), AudioHeaderSize)
	}
	first := uint16(a.Version&0x3) << 14
	if a.Padding {
		first |= 1 << 13
	}
	if a.Extension {
		first |= 1 << 12
	}
	first |= uint16(a.CsrcCount&0xf) << 8
	if a.Marker {
		first |= 1 << 7
	}
	first |= uint16(a.PayloadType) & 0x7f
	binary.BigEndian.PutUint16(b[0:], first)
	binary.BigEndian.PutUint16(b[2:], a.SeqNumber)
	binary.BigEndian.PutUint32(b[4:], uint32(a.Timestamp))
	binary.BigEndian.PutUint32(b[8:], a.SSRC)
	return AudioHeaderSize, nil
}

// UnmarshalAudioHeader parses a plain RFC 3550 header.
func UnmarshalAudioHeader(b []byte) (*AudioHeader, error) {
	if len(b) < AudioHeaderSize {
		return nil, fmt.Errorf("rtp: short audio header: have %d need %d", len(b), AudioHeaderSize)
	}
	a := &AudioHeader{}
	first := binary.BigEndian.Uint16(b[0:])
	a.Version = uint8(first>>14) & 0x3
	a.Padding = first&(1<<13) != 0
	a.Extension = first&(1<<12) != 0
	a.CsrcCount = uint8(first>>8) & 0xf
	a.Marker = first&(1<<7) != 0
	a.PayloadType = PayloadType(first & 0x7f)
	a.SeqNumber = binary.BigEndian.Uint16(b[2:])
	a.Timestamp = Timestamp(binary.BigEndian.Uint32(b[4:]))
	a.SSRC = binary.BigEndian.Uint32(b[8:])
	return a, nil
}

// AudioFormat describes the PCM layout of an ST 2110-30 session (scenario 3
// of spec.md §8: 48 kHz / 8-channel / 1 ms packet time).
type AudioFormat struct {
	SampleRateHz   int
	Channels       int
	BitsPerSample  int // 16 or 24
	PacketTimeUS   int // e.g. 1000 for 1ms packet time
}

// SampleGrpSize is the byte size of one sample group (one sample per
// channel): channels * bitsPerSample/8.
func (f AudioFormat) SampleGrpSize() int {
	return f.Channels * (f.BitsPerSample / 8)
}

// SampleGrpCount is the number of sample groups carried per packet.
func (f AudioFormat) SampleGrpCount() int {
	return f.SampleRateHz * f.PacketTimeUS / 1_000_000
}

// PktPayloadSize is the RTP payload size in bytes for this format.
func (f AudioFormat) PktPayloadSize() int {
	return f.SampleGrpSize() * f.SampleGrpCount()
}

package rtp

import (
	"encoding/binary"
	"fmt"
)

// AncillaryHeaderSize is the size of the RFC 8331 header, before the
// per-ancillary-packet payload entries.
const AncillaryHeaderSize = 20

// AncillaryHeader is the RFC 8331 header used by ST 2110-40.
type AncillaryHeader struct {
	Version     uint8
	Marker      bool
	PayloadType PayloadType
	SeqNumber   uint16
	Timestamp   Timestamp
	SSRC        uint32
	AncCount    uint8
	F           uint8 // field identification, 2 bits
}

// MarshalTo writes the header to b.
func (h *AncillaryHeader) MarshalTo(b []byte) (int, error) {
	if len(b) < AncillaryHeaderSize {
		return 0, fmt.Errorf("rtp: buffer too small for ancillary header: have %d need %d", len(b), AncillaryHeaderSize)
	}
	first := uint16(h.Version&0x3) << 14
	if h.Marker {
		first |= 1 << 7
	}
	first |= uint16(h.PayloadType) & 0x7f
	binary.BigEndian.PutUint16(b[0:], first)
	binary.BigEndian.PutUint16(b[2:], h.SeqNumber)
	binary.BigEndian.PutUint32(b[4:], uint32(h.Timestamp))
	binary.BigEndian.PutUint32(b[8:], h.SSRC)
	b[12] = 0
	b[13] = 0
	b[14] = h.AncCount
	b[15] = (h.F & 0x3) << 6
	b[16] = 0
	b[17] = 0
	b[18] = 0
	b[19] = 0
	return AncillaryHeaderSize, nil
}

// UnmarshalAncillaryHeader parses an RFC 8331 header.
func UnmarshalAncillaryHeader(b []byte) (*AncillaryHeader, error) {
	if len(b) < AncillaryHeaderSize {
		return nil, fmt.Errorf("rtp: short ancillary header: have %d need %d", len(b), AncillaryHeaderSize)
	}
	h := &AncillaryHeader{}
	first := binary.BigEndian.Uint16(b[0:])
	h.Version = uint8(first>>14) & 0x3
	h.Marker = first&(1<<7) != 0
	h.PayloadType = PayloadType(first & 0x7f)
	h.SeqNumber = binary.BigEndian.Uint16(b[2:])
	h.Timestamp = Timestamp(binary.BigEndian.Uint32(b[4:]))
	h.SSRC = binary.BigEndian.Uint32(b[8:])
	h.AncCount = b[14]
	h.F = (b[15] >> 6) & 0x3
	return h, nil
}

// AncillaryPacket is one DID/SDID-tagged ancillary data packet, carried
// 10-bit-word-packed in the RTP payload per RFC 8331 section 2.
type AncillaryPacket struct {
	CNotDefault bool
	LineNumber  uint16
	HorizOffset uint16
	StreamNum   uint8
	DID         uint16 // 10-bit, with parity bits set by SetParity
	SDID        uint16 // 10-bit, with parity bits set by SetParity
	DataCount   uint16 // 10-bit, with parity bits set by SetParity
	UserData    []uint16
	Checksum    uint16
}

// evenParityWord sets bit 8 to the even-parity bit of bits 0-7 (so bits
// 0-8 hold an even number of ones) and bit 9 to the complement of bit 8,
// per SMPTE 291M / RFC 8331 ancillary data words.
func evenParityWord(data uint8) uint16 {
	parity := uint16(0)
	v := data
	for v != 0 {
		parity ^= 1
		v &= v - 1
	}
	w := uint16(data)
	if parity == 1 {
		w |= 1 << 8
	} else {
		w |= 0 << 8
	}
	if w&(1<<8) != 0 {
		w &^= 1 << 9
	} else {
		w |= 1 << 9
	}
	return w
}

// SetParity fills in the parity/inverted-parity bits of DID, SDID and
// DataCount from their low 8 bits.
func (p *AncillaryPacket) SetParity() {
	p.DID = evenParityWord(uint8(p.DID))
	p.SDID = evenParityWord(uint8(p.SDID))
	p.DataCount = evenParityWord(uint8(p.DataCount))
}

// ComputeChecksum computes the 9-bit checksum per RFC 8331 §2.2.2: the sum
// of the DID, SDID, DataCount and UserData 10-bit words, truncated to its
// low 9 bits, with bit 9 set to the complement of bit 8.
func (p *AncillaryPacket) ComputeChecksum() uint16 {
	var sum uint32
	sum += uint32(p.DID)
	sum += uint32(p.SDID)
	sum += uint32(p.DataCount)
	for _, w := range p.UserData {
		sum += uint32(w)
	}
	checksum := uint16(sum) & 0x1ff
	if checksum&(1<<8) != 0 {
		checksum &^= 1 << 9
		checksum |= 0 // bit9 = complement(bit8) = complement(1) = 0
	} else {
		checksum |= 1 << 9
	}
	return checksum
}

// VerifyChecksum reports whether p.Checksum matches the recomputed value.
func (p *AncillaryPacket) VerifyChecksum() bool {
	return p.Checksum == p.ComputeChecksum()
}

package rtp

import (
	"encoding/binary"
	"fmt"
)

// SingleLineHeaderSize is the size of the RFC 4175 single-line RTP header.
const SingleLineHeaderSize = 20

// DualLineHeaderSize is the size of the RFC 4175 dual-line RTP header,
// the Intel extension that carries a second line descriptor inline.
const DualLineHeaderSize = 26

// lineContinuation is the top bit of an offset field. In single-line mode
// lineOffset's top bit is set whenever more packets for this line follow;
// in dual-line mode line1Offset's top bit is always set and line2Offset's
// top bit carries the continuation for the line pair.
const lineContinuation uint16 = 1 << 15

// fieldBit is the top bit of lineNumber, carrying the interlaced field id.
const fieldBit uint16 = 1 << 15

// VideoHeader is the common framing shared by single- and dual-line RFC
// 4175 packets. Marker/PayloadType/SequenceNumber live in the generic RTP
// fields; LineNumber's top bit doubles as the field id for interlaced
// sessions (§6 "External interfaces").
type VideoHeader struct {
	Version        uint8 // always 2
	Padding        bool
	Extension      bool
	CsrcCount      uint8
	Marker         bool
	PayloadType    PayloadType
	SeqNumber      uint16
	Timestamp      Timestamp
	SSRC           uint32
	SeqNumberExt   uint16
	Length         uint16
	FieldID        FieldID
	LineNumber     uint16
	LineOffset     uint16
	Continuation   bool
	Line2Length    uint16
	Line2Number    uint16
	Line2Offset    uint16
	DualLine       bool
}

func firstTwoBytes(v *VideoHeader) uint16 {
	b := uint16(v.Version&0x3) << 14
	if v.Padding {
		b |= 1 << 13
	}
	if v.Extension {
		b |= 1 << 12
	}
	b |= uint16(v.CsrcCount&0xf) << 8
	if v.Marker {
		b |= 1 << 7
	}
	b |= uint16(v.PayloadType) & 0x7f
	return b
}

func parseFirstTwoBytes(v *VideoHeader, b uint16) {
	v.Version = uint8(b>>14) & 0x3
	v.Padding = b&(1<<13) != 0
	v.Extension = b&(1<<12) != 0
	v.CsrcCount = uint8(b>>8) & 0xf
	v.Marker = b&(1<<7) != 0
	v.PayloadType = PayloadType(b & 0x7f)
}

// MarshalTo writes the header (single- or dual-line depending on v.DualLine)
// to b, returning the number of bytes written.
func (v *VideoHeader) MarshalTo(b []byte) (int, error) {
	size := SingleLineHeaderSize
	if v.DualLine {
		size = DualLineHeaderSize
	}
	if len(b) < size {
		return 0, fmt.Errorf("rtp: buffer too small for video header: have %d need %d", len(b), size)
	}
	binary.BigEndian.PutUint16(b[0:], firstTwoBytes(v))
	binary.BigEndian.PutUint16(b[2:], v.SeqNumber)
	binary.BigEndian.PutUint32(b[4:], uint32(v.Timestamp))
	binary.BigEndian.PutUint32(b[8:], v.SSRC)
	binary.BigEndian.PutUint16(b[12:], v.SeqNumberExt)
	binary.BigEndian.PutUint16(b[14:], v.Length)

	lineNumber := v.LineNumber & 0x7fff
	if v.FieldID == Field1 {
		lineNumber |= fieldBit
	}
	binary.BigEndian.PutUint16(b[16:], lineNumber)

	lineOffset := v.LineOffset & 0x7fff
	// top bit of line1Offset is always 1 in dual-line mode (§6); in
	// single-line mode it signals that more packets for this line follow.
	if v.DualLine || v.Continuation {
		lineOffset |= lineContinuation
	}
	binary.BigEndian.PutUint16(b[18:], lineOffset)

	if !v.DualLine {
		return SingleLineHeaderSize, nil
	}
	binary.BigEndian.PutUint16(b[20:], v.Line2Length)
	binary.BigEndian.PutUint16(b[22:], v.Line2Number&0x7fff)
	line2Offset := v.Line2Offset & 0x7fff
	if v.Continuation {
		line2Offset |= lineContinuation
	}
	binary.BigEndian.PutUint16(b[24:], line2Offset)
	return DualLineHeaderSize, nil
}

// UnmarshalVideoHeader parses a single- or dual-line header from b. dualLine
// must be known in advance (it is a per-session constant, never mixed
// within one flow).
func UnmarshalVideoHeader(b []byte, dualLine bool) (*VideoHeader, error) {
	size := SingleLineHeaderSize
	if dualLine {
		size = DualLineHeaderSize
	}
	if len(b) < size {
		return nil, fmt.Errorf("rtp: short video header: have %d need %d", len(b), size)
	}
	v := &VideoHeader{DualLine: dualLine}
	parseFirstTwoBytes(v, binary.BigEndian.Uint16(b[0:]))
	v.SeqNumber = binary.BigEndian.Uint16(b[2:])
	v.Timestamp = Timestamp(binary.BigEndian.Uint32(b[4:]))
	v.SSRC = binary.BigEndian.Uint32(b[8:])
	v.SeqNumberExt = binary.BigEndian.Uint16(b[12:])
	v.Length = binary.BigEndian.Uint16(b[14:])

	rawLine := binary.BigEndian.Uint16(b[16:])
	v.LineNumber = rawLine & 0x7fff
	if rawLine&fieldBit != 0 {
		v.FieldID = Field1
	} else {
		v.FieldID = Field0
	}

	rawOffset := binary.BigEndian.Uint16(b[18:])
	v.LineOffset = rawOffset & 0x7fff
	v.Continuation = rawOffset&lineContinuation != 0

	if !dualLine {
		return v, nil
	}
	v.Line2Length = binary.BigEndian.Uint16(b[20:])
	v.Line2Number = binary.BigEndian.Uint16(b[22:]) & 0x7fff
	rawOffset2 := binary.BigEndian.Uint16(b[24:])
	v.Line2Offset = rawOffset2 & 0x7fff
	v.Continuation = rawOffset2&lineContinuation != 0
	return v, nil
}

// Sequence returns the full 32-bit sequence number reconstructed from the
// wire-level low/extension halves.
func (v *VideoHeader) Sequence() SequenceNumber {
	return SequenceFromParts(v.SeqNumber, v.SeqNumberExt)
}

// SetSequence populates the low/extension wire fields from a full sequence.
func (v *VideoHeader) SetSequence(s SequenceNumber) {
	v.SeqNumber = s.Low()
	v.SeqNumberExt = s.High()
}

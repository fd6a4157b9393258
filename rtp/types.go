// Package rtp implements the wire formats of SMPTE ST 2110-20 (RFC 4175
// video), ST 2110-30 (RFC 3550 audio) and ST 2110-40 (RFC 8331 ancillary)
// carried over RTP/UDP/IPv4.
package rtp

// PayloadType identifies the media carried by an RTP packet, as negotiated
// out of band (SDP exchange is out of scope).
type PayloadType uint8

// Payload type numbers used by this stack.
const (
	PayloadTypeVideo     PayloadType = 112 // RFC 4175 raw video
	PayloadTypeAudio     PayloadType = 111 // RFC 3550 PCM audio
	PayloadTypeAncillary PayloadType = 113 // RFC 8331 ancillary
)

func (p PayloadType) String() string {
	switch p {
	case PayloadTypeVideo:
		return "video"
	case PayloadTypeAudio:
		return "audio"
	case PayloadTypeAncillary:
		return "ancillary"
	default:
		return "unknown"
	}
}

// Timestamp is the 32-bit RTP timestamp. It is compared modulo 2^32 with
// wrap-safe ordering, per spec invariant (d): a is strictly greater than b
// iff a != b and (a-b) & 0x80000000 == 0.
type Timestamp uint32

// After reports whether t occurred after o, in wrap-safe 32-bit arithmetic.
func (t Timestamp) After(o Timestamp) bool {
	return t != o && (uint32(t-o)&0x80000000) == 0
}

// Before reports whether t occurred before o, in wrap-safe 32-bit arithmetic.
func (t Timestamp) Before(o Timestamp) bool {
	return t != o && (uint32(t-o)&0x80000000) != 0
}

// SequenceNumber is the full 32-bit RTP sequence number used internally:
// the low 16 bits go on the wire as seqNumber, the high 16 bits as the
// RFC 4175 seqNumberExt extension field.
type SequenceNumber uint32

// Low returns the wire-level 16-bit sequence number.
func (s SequenceNumber) Low() uint16 {
	return uint16(s)
}

// High returns the wire-level 16-bit sequence number extension.
func (s SequenceNumber) High() uint16 {
	return uint16(s >> 16)
}

// SequenceFromParts reconstructs a full sequence number from the wire-level
// low/high halves.
func SequenceFromParts(low, high uint16) SequenceNumber {
	return SequenceNumber(uint32(high)<<16 | uint32(low))
}

// Vscan enumerates the supported video formats.
type Vscan uint8

// Supported vertical scan formats.
const (
	Vscan720p Vscan = iota
	Vscan1080p
	Vscan2160p
	Vscan720i
	Vscan1080i
	Vscan2160i
)

func (v Vscan) String() string {
	switch v {
	case Vscan720p:
		return "720p"
	case Vscan1080p:
		return "1080p"
	case Vscan2160p:
		return "2160p"
	case Vscan720i:
		return "720i"
	case Vscan1080i:
		return "1080i"
	case Vscan2160i:
		return "2160i"
	default:
		return "unknown"
	}
}

// Interlaced reports whether v is an interlaced format.
func (v Vscan) Interlaced() bool {
	switch v {
	case Vscan720i, Vscan1080i, Vscan2160i:
		return true
	default:
		return false
	}
}

// PktFmt selects the RFC 4175 packet framing variant for a session.
type PktFmt uint8

// Supported packet framing variants.
const (
	// PktFmtIntelDualLine packs two consecutive lines per packet, the
	// Intel extension that carries a second line descriptor inline.
	PktFmtIntelDualLine PktFmt = iota
	// PktFmtIntelSingleLine packs a single line per packet with the
	// Intel zero-copy attachment convention.
	PktFmtIntelSingleLine
	// PktFmtOtherSingleLine is the plain RFC 4175 single-line framing
	// used by third-party senders; completion is only detected via the
	// fragment-histogram fallback (scenario 6 of spec.md §8).
	PktFmtOtherSingleLine
)

func (f PktFmt) String() string {
	switch f {
	case PktFmtIntelDualLine:
		return "intel-dual-line"
	case PktFmtIntelSingleLine:
		return "intel-single-line"
	case PktFmtOtherSingleLine:
		return "other-single-line"
	default:
		return "unknown"
	}
}

// DualLine reports whether f carries two lines per packet.
func (f PktFmt) DualLine() bool {
	return f == PktFmtIntelDualLine
}

// FieldID identifies the interlaced field, or progressive.
type FieldID uint8

// Field identifiers, carried in the top bit of lineNumber on the wire.
const (
	FieldProgressive FieldID = 2
	Field0           FieldID = 0
	Field1           FieldID = 1
)

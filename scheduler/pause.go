package scheduler

import (
	"encoding/binary"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/nic"
)

// pauseEtherType is the 802.3x MAC Control EtherType.
const pauseEtherType = 0x8808

// pauseOpcode is the 802.3x PAUSE opcode.
const pauseOpcode = 0x0001

// pauseMulticastMAC is the reserved 802.3x PAUSE destination address.
var pauseMulticastMAC = [6]byte{0x01, 0x80, 0xc2, 0x00, 0x00, 0x01}

// pauseFrameSize is the fixed size of a synthetic PAUSE frame: 14-byte
// Ethernet header + 2-byte opcode + 2-byte pause-time + 42 bytes of pad to
// reach the 60-byte minimum Ethernet frame.
const pauseFrameSize = 60

// Rotor hands out a fixed, pre-built pool of PAUSE-frame packets round
// robin, the Go analogue of the original's MAX_PAUSE_FRAMES = 2 *
// maxSessions mbuf rotor (spec.md §4.3): PAUSE frames are synthesized
// whenever the dispatch loop finds a timeslot with nothing ready to send,
// to hold the link's average rate steady instead of bursting the next
// session early.
type Rotor struct {
	srcMAC [6]byte
	frames []*nic.Packet
	next   int
}

// NewRotor builds a Rotor with 2*maxSessions pre-rendered PAUSE frames.
func NewRotor(srcMAC [6]byte, maxSessions int) *Rotor {
	r := &Rotor{srcMAC: srcMAC}
	r.frames = make([]*nic.Packet, 2*maxSessions)
	for i := range r.frames {
		r.frames[i] = buildPauseFrame(srcMAC, 0xffff)
	}
	return r
}

// Next returns the next PAUSE frame in rotation, resized to size bytes
// (rounded down to an even byte count, floored at the legal minimum
// Ethernet frame size). The original reuses one rotor mbuf per slot and
// rewrites its data_len on every dispatch rather than allocating a new
// mbuf per PAUSE (spec.md §4.3 step 2d); resizing the same *nic.Packet's
// Header in place here does the same.
func (r *Rotor) Next(size int) *nic.Packet {
	p := r.frames[r.next]
	r.next = (r.next + 1) % len(r.frames)
	resizePauseFrame(p, size)
	return p
}

// buildPauseFrame renders one 802.3x PAUSE control frame requesting
// pauseTime quanta (512 bit-times each) of link quiet.
func buildPauseFrame(srcMAC [6]byte, pauseTime uint16) *nic.Packet {
	b := make([]byte, pauseFrameSize)
	copy(b[0:6], pauseMulticastMAC[:])
	copy(b[6:12], srcMAC[:])
	binary.BigEndian.PutUint16(b[12:14], pauseEtherType)
	binary.BigEndian.PutUint16(b[14:16], pauseOpcode)
	binary.BigEndian.PutUint16(b[16:18], pauseTime)
	return &nic.Packet{Header: b, IsPause: true}
}

// resizePauseFrame adjusts p's on-wire size to size bytes, rounded down
// to even (spec.md §4.3 step 2d, "rounded down to even bytes"). It never
// shrinks below pauseFrameSize, the fixed header-plus-pad region that
// makes the frame a legal 802.3x PAUSE control frame in the first place.
func resizePauseFrame(p *nic.Packet, size int) {
	size &^= 1
	if size < pauseFrameSize {
		size = pauseFrameSize
	}
	switch {
	case len(p.Header) == size:
	case len(p.Header) > size:
		p.Header = p.Header[:size]
	default:
		grown := make([]byte, size)
		copy(grown, p.Header)
		p.Header = grown
	}
}

// Package nic is the narrow seam between the core and the out-of-scope
// kernel-bypass NIC driver (spec.md §1): it defines the Packet and Driver
// shapes the TX builder, scheduler and RX demultiplexer exchange with the
// driver, plus a Sim driver good enough to drive the pipeline end to end
// in tests without a real DPDK-class NIC.
package nic

import (
	"sync"
	"time"
)

// Packet is one on-wire Ethernet frame: a contiguous header plus a
// possibly externally-attached payload. RefCount models the shared-info
// structure the original's zero-copy attachment relies on (spec.md §4.2);
// it is safe for concurrent increment/decrement.
type Packet struct {
	Header  []byte
	Payload []byte

	// TxTime is the absolute PTP time (ns since PTP epoch) the NIC's
	// hardware rate limiter should transmit this packet at; zero means
	// "send ASAP". Only meaningful for TX packets.
	TxTime int64

	// IsPause marks a synthetic 802.3x PAUSE frame injected by the
	// scheduler rather than session payload.
	IsPause bool

	refCount int32
	mu       sync.Mutex
}

// L2Size is the total on-wire frame size excluding PHY overhead.
func (p *Packet) L2Size() int {
	return len(p.Header) + len(p.Payload)
}

// Retain increments the shared-buffer reference count.
func (p *Packet) Retain() {
	p.mu.Lock()
	p.refCount++
	p.mu.Unlock()
}

// Release decrements the reference count, returning true if it reached
// zero (the caller should return the packet to its pool).
func (p *Packet) Release() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refCount--
	return p.refCount <= 0
}

// Driver is the seam to the out-of-scope kernel-bypass NIC driver: it
// consumes prepared packet bursts at a configured TX queue and surfaces RX
// bursts plus hardware timestamps (spec.md §1).
type Driver interface {
	// TXBurst hands off packets to queue, returning how many were
	// accepted. The scheduler retries until the whole burst is accepted
	// (spec.md §7, the only retry anywhere in the data plane).
	TXBurst(queue int, packets []*Packet) (int, error)
	// RXBurst returns up to maxPackets received packets from queue, or
	// none if none are pending; RX threads never block (spec.md §5).
	RXBurst(queue int, maxPackets int) ([]*Packet, error)
	// HWNow returns the current hardware/PTP time, ns since the PTP
	// epoch, used to stamp received packets (spec.md §4.4).
	HWNow() time.Time
}

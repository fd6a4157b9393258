package nic

import (
	"sync"
	"time"
)

// Sim is an in-process stand-in for a kernel-bypass NIC: TXBurst appends to
// an internal queue per port/queue pair that RXBurst on the peer Sim can
// drain, letting pipeline tests exercise txpipeline -> scheduler ->
// rxpipeline without a real NIC.
type Sim struct {
	mu     sync.Mutex
	queues map[int][]*Packet
	peer   *Sim
	clock  func() time.Time
}

// NewSim creates a Sim using wall-clock time as its hardware clock unless
// overridden with WithClock.
func NewSim() *Sim {
	return &Sim{queues: make(map[int][]*Packet), clock: time.Now}
}

// WithClock overrides the simulated hardware clock, for deterministic PTP
// tests.
func (s *Sim) WithClock(clock func() time.Time) *Sim {
	s.clock = clock
	return s
}

// Connect wires s's TX output to peer's RX input and vice versa, modeling
// a back-to-back link between a producer and a consumer Sim.
func (s *Sim) Connect(peer *Sim) {
	s.peer = peer
	peer.peer = s
}

// TXBurst appends packets to the peer's matching queue (if connected) and
// always reports the full burst accepted, the loopback's analogue of the
// original's rte_eth_tx_burst retry loop finishing in one pass.
func (s *Sim) TXBurst(queue int, packets []*Packet) (int, error) {
	if s.peer == nil {
		return len(packets), nil
	}
	s.peer.mu.Lock()
	s.peer.queues[queue] = append(s.peer.queues[queue], packets...)
	s.peer.mu.Unlock()
	return len(packets), nil
}

// RXBurst drains up to maxPackets from queue.
func (s *Sim) RXBurst(queue int, maxPackets int) ([]*Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[queue]
	if len(q) == 0 {
		return nil, nil
	}
	if len(q) > maxPackets {
		out := append([]*Packet(nil), q[:maxPackets]...)
		s.queues[queue] = q[maxPackets:]
		return out, nil
	}
	s.queues[queue] = nil
	return q, nil
}

// HWNow returns the simulated hardware clock's current time.
func (s *Sim) HWNow() time.Time {
	return s.clock()
}

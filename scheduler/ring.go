package scheduler

import (
	"sync"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/nic"
)

// BulkSize is the preferred dequeue batch: the scheduler drains 4 packets
// at a time when that many are queued, falling back to single-packet
// dequeue once the ring runs thin, mirroring the original's bulk-vs-single
// rte_ring_dequeue split (spec.md §4.3).
const BulkSize = 4

// Ring is one session's TX packet queue. It is safe for one producer
// (the builder) and one consumer (the scheduler's dispatch loop).
type Ring struct {
	mu    sync.Mutex
	items []*nic.Packet
	cap   int
}

// NewRing creates a Ring with the given capacity.
func NewRing(capacity int) *Ring {
	return &Ring{cap: capacity}
}

// Enqueue appends a packet, returning false if the ring is full.
func (r *Ring) Enqueue(p *nic.Packet) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) >= r.cap {
		return false
	}
	r.items = append(r.items, p)
	return true
}

// DequeueBulk drains up to BulkSize packets if that many are available,
// otherwise a single packet, otherwise none. It returns the bulk flag
// alongside the drained packets so the caller's budget accounting can
// charge them atomically.
func (r *Ring) DequeueBulk() ([]*nic.Packet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) >= BulkSize {
		out := append([]*nic.Packet(nil), r.items[:BulkSize]...)
		r.items = r.items[BulkSize:]
		return out, true
	}
	if len(r.items) > 0 {
		out := []*nic.Packet{r.items[0]}
		r.items = r.items[1:]
		return out, false
	}
	return nil, false
}

// PeekBulk returns, without removing them, the same packets a DequeueBulk
// call would drain next. Callers use this to size a budget check before
// committing to the dequeue.
func (r *Ring) PeekBulk() []*nic.Packet {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := BulkSize
	if len(r.items) < n {
		n = len(r.items)
	}
	if n == 0 {
		return nil
	}
	return append([]*nic.Packet(nil), r.items[:n]...)
}

// Len reports how many packets are currently queued.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Package rxpipeline demultiplexes inbound packets to sessions (C4): a
// 5-tuple hash routes each packet to its session's ingest state machine,
// which validates, deduplicates across ST 2022-7 paths, updates the
// fragment/line histograms and repairs frames that finish short
// (spec.md §4.4).
package rxpipeline

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/session"
)

// FlowKey packs a 5-tuple into the byte form xxhash sums to route a
// packet to its session without ever formatting an IP:port string on the
// hot path.
func FlowKey(flow session.FlowTuple) uint64 {
	var b [12]byte
	ip4 := flow.DstIP.To4()
	if ip4 == nil {
		ip4 = make([]byte, 4)
	}
	copy(b[0:4], ip4)
	binary.BigEndian.PutUint16(b[4:6], flow.DstPort)
	ip4src := flow.SrcIP.To4()
	if ip4src == nil {
		ip4src = make([]byte, 4)
	}
	copy(b[6:10], ip4src)
	binary.BigEndian.PutUint16(b[10:12], flow.SrcPort)
	return xxhash.Sum64(b[:])
}

// Demux routes packets arriving on one RX queue to the session ingest
// state registered for their 5-tuple hash. Registration happens once per
// consumer session, when cmd/st2110d's runReceiver starts; the hot path
// is a single map lookup.
type Demux struct {
	mu    sync.RWMutex
	table map[uint64]*Ingest
}

// NewDemux creates an empty Demux.
func NewDemux() *Demux {
	return &Demux{table: make(map[uint64]*Ingest)}
}

// Register binds flow's hash to ing, replacing any Ingest already
// registered under the same hash; a collision between two 5-tuples is
// neither detected nor reported.
func (d *Demux) Register(flow session.FlowTuple, ing *Ingest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.table[FlowKey(flow)] = ing
}

// Unregister removes flow's routing entry, called on session teardown.
func (d *Demux) Unregister(flow session.FlowTuple) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.table, FlowKey(flow))
}

// Lookup finds the Ingest registered for flow, if any.
func (d *Demux) Lookup(flow session.FlowTuple) (*Ingest, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ing, ok := d.table[FlowKey(flow)]
	return ing, ok
}

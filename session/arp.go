package session

import (
	"net"
	"sync"
	"time"
)

// arpEntryState is the resolution state of one ARPTable entry.
type arpEntryState uint8

const (
	arpPending arpEntryState = iota
	arpResolved
)

type arpEntry struct {
	state   arpEntryState
	mac     net.HardwareAddr
	retries int
	expires time.Time
}

// arpRetryLimit bounds the number of retransmissions for a pending ARP
// request before it is given up on, per original_source/st_flw_cls.c's
// request/retry bookkeeping (SPEC_FULL.md §4).
const arpRetryLimit = 5

// arpEntryTTL is how long a resolved entry is trusted before re-querying.
const arpEntryTTL = 5 * time.Minute

// ARPTable is the device's last-known unicast ARP cache, consulted by
// bind_ip_addr for unicast destinations (spec.md §4.1).
type ARPTable struct {
	mu      sync.Mutex
	entries map[string]*arpEntry
}

func newARPTable() *ARPTable {
	return &ARPTable{entries: make(map[string]*arpEntry)}
}

// Lookup returns the resolved MAC for ip, and whether it is still fresh.
func (t *ARPTable) Lookup(ip net.IP) (net.HardwareAddr, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[ip.String()]
	if !ok || e.state != arpResolved {
		return nil, false
	}
	if time.Now().After(e.expires) {
		return nil, false
	}
	return e.mac, true
}

// MarkPending records that an ARP request for ip is in flight, returning
// false if the retry budget is already exhausted.
func (t *ARPTable) MarkPending(ip net.IP) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := ip.String()
	e, ok := t.entries[key]
	if !ok {
		t.entries[key] = &arpEntry{state: arpPending, retries: 1}
		return true
	}
	if e.state == arpResolved {
		return true
	}
	if e.retries >= arpRetryLimit {
		return false
	}
	e.retries++
	return true
}

// Resolve records a resolved MAC address for ip.
func (t *ARPTable) Resolve(ip net.IP, mac net.HardwareAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[ip.String()] = &arpEntry{
		state:   arpResolved,
		mac:     mac,
		expires: time.Now().Add(arpEntryTTL),
	}
}

package session

import (
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// DeviceKind is producer or consumer, matching the top-level device a set
// of sessions is bound to.
type DeviceKind uint8

// Device kinds.
const (
	DeviceSend DeviceKind = iota
	DeviceRecv
)

// mbufPoolSize is the worst-case burst sized mbuf pool per spec.md §4.1
// ("~2^18 buffers"). It models the DPDK mempool the out-of-scope NIC
// driver would own; this package only tracks the accounting, not the
// actual memory.
const mbufPoolSize = 1 << 18

// txRingSize and kniRingSize are the per-session and shared-KNI TX ring
// depths from spec.md §4.1.
const (
	txRingSize  = 1 << 10
	kniRingSize = 1 << 12
)

// Device owns the timeslot bitmap and session table for one NIC port
// (or port pair, for ST 2022-7 redundancy). All device-wide structures
// are guarded by Mu, taken only on create/destroy, never in the data path
// (spec.md §5 "Shared-resource policy").
type Device struct {
	Mu sync.Mutex

	Kind     DeviceKind
	Port     string
	LinkGbps float64
	RateHz   float64

	MaxSessions int
	free        []bool // true = free
	lastAllocSn int

	sessions map[int]*Session
	nextID   int

	mbufPoolSize int
	txRingSize   int
	kniRingSize  int

	mcastRefs map[string]int // multicast group -> reference count
	arp       *ARPTable
}

// CreateDevice binds a port, sizes the mbuf pool and computes the maximum
// number of ST 2110-20 sessions this device can pace, per spec.md §4.1.
func CreateDevice(kind DeviceKind, port string, linkGbps float64, rateHz float64) (*Device, error) {
	if linkGbps <= 0 {
		return nil, fmt.Errorf("session: %w", ErrBadPort)
	}
	maxSessions := MaxSessionsForLinkSpeed(linkGbps, rateHz)
	d := &Device{
		Kind:         kind,
		Port:         port,
		LinkGbps:     linkGbps,
		RateHz:       rateHz,
		MaxSessions:  maxSessions,
		free:         make([]bool, maxSessions),
		sessions:     make(map[int]*Session),
		mbufPoolSize: mbufPoolSize,
		txRingSize:   txRingSize,
		kniRingSize:  kniRingSize,
		mcastRefs:    make(map[string]int),
		arp:          newARPTable(),
	}
	for i := range d.free {
		d.free[i] = true
	}
	log.Infof("session: created %v device on %s: %d Gbps, max %d sessions", kind, port, int(linkGbps), maxSessions)
	return d, nil
}

// getTrOffsetTimeslot allocates a free timeslot, searching from 8 positions
// past lastAllocSn so consecutive sessions are statistically spread across
// scheduler rounds (spec.md §4.1, §9 open question: the exact distribution
// guarantee of this step-by-8 heuristic is not otherwise specified).
func (d *Device) getTrOffsetTimeslot() (int, error) {
	n := len(d.free)
	if n == 0 {
		return 0, ErrNoTimeslot
	}
	start := (d.lastAllocSn + 8) % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if d.free[idx] {
			d.free[idx] = false
			d.lastAllocSn = idx
			return idx, nil
		}
	}
	return 0, ErrNoTimeslot
}

func (d *Device) releaseTimeslot(slot int) {
	if slot < 0 || slot >= len(d.free) {
		return
	}
	d.free[slot] = true
}

// CreateSession allocates a timeslot and registers a new Session. Creation
// is all-or-nothing: any failure after timeslot allocation releases it
// before returning (spec.md §4.1 "Failure semantics").
func (d *Device) CreateSession(dir Direction, essence Essence, fmtSpec Format) (*Session, error) {
	d.Mu.Lock()
	defer d.Mu.Unlock()

	if err := fmtSpec.Validate(); err != nil {
		return nil, fmt.Errorf("session: %w: %v", ErrBadFormat, err)
	}

	slot, err := d.getTrOffsetTimeslot()
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:        d.nextID,
		Timeslot:  slot,
		Direction: dir,
		Essence:   essence,
		Format:    fmtSpec,
		state:     StateON,
	}
	d.nextID++
	d.sessions[s.ID] = s

	d.adjustBudget()
	return s, nil
}

// DestroySession transitions the session to STOP_PENDING, releases its
// timeslot once drained and removes it from the registry. Mid-run
// destruction never aborts in-flight packets: the caller is expected to
// have already drained the TX/RX pipeline (spec.md §4.1 "Failure
// semantics").
func (d *Device) DestroySession(s *Session) {
	s.RequestStop()

	d.Mu.Lock()
	defer d.Mu.Unlock()
	delete(d.sessions, s.ID)
	d.releaseTimeslot(s.Timeslot)
	d.adjustBudget()
}

// adjustBudget runs on every create/destroy and logs the new active
// session count. It does not redistribute any byte budget across rings:
// per-ring budgets are scheduler.Budget values that the scheduler's caller
// builds directly, and the scheduler package does not read
// Device.Sessions().
func (d *Device) adjustBudget() {
	log.Debugf("session: adjusting budget for %d active sessions on %s", len(d.sessions), d.Port)
}

// Sessions returns a stable-ordered snapshot of all registered sessions,
// for the scheduler to rebuild its ring table from.
func (d *Device) Sessions() []*Session {
	d.Mu.Lock()
	defer d.Mu.Unlock()
	out := make([]*Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// JoinMulticast increments the reference count for a multicast group,
// supplementing the distilled spec with the group-membership bookkeeping
// st_igmp.c performs in original_source/ (actual IGMP report emission
// stays out of scope, per spec.md §1).
func (d *Device) JoinMulticast(group string) {
	d.Mu.Lock()
	defer d.Mu.Unlock()
	d.mcastRefs[group]++
}

// LeaveMulticast decrements the reference count, returning true if this
// was the last session using the group (the device should now leave it).
func (d *Device) LeaveMulticast(group string) bool {
	d.Mu.Lock()
	defer d.Mu.Unlock()
	if d.mcastRefs[group] <= 1 {
		delete(d.mcastRefs, group)
		return true
	}
	d.mcastRefs[group]--
	return false
}

// ARP returns the device's ARP cache.
func (d *Device) ARP() *ARPTable {
	return d.arp
}

// Package housekeeping is the background thread spec.md §5 calls out
// separately from the hot-path worker threads: ARP refresh and process
// stats, run on a 100ms tick, owning an explicit isStop atomic and never
// touching the data plane directly.
package housekeeping

import (
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
	log "github.com/sirupsen/logrus"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/session"
)

// TickInterval is the background housekeeping cadence (spec.md §5: "1
// background housekeeping thread (ARP / KNI link / stats every 100ms)").
const TickInterval = 100 * time.Millisecond

// SessionTimeout is how long a session may go without a Touch before
// housekeeping flags it StateTimedOut (spec.md §3 lifecycle state
// TIMEDOUT): long enough to absorb a few missed frame/packet ticks without
// flapping, short enough to surface a genuinely stuck session quickly.
const SessionTimeout = 500 * time.Millisecond

// ProcessStats is the subset of process-level metrics the housekeeping
// thread samples every tick, grounded on the same gopsutil process
// handle the original sptp client samples for its own runtime stats.
type ProcessStats struct {
	CPUPercent float64
	RSSBytes   uint64
	NumThreads int32
	NumFDs     int32
}

// Thread is the background housekeeping loop bound to one Device: ARP
// refresh for any pending unicast destination, plus process stats, on
// its own tight loop gated by an isStop flag.
type Thread struct {
	device    *session.Device
	ifaceName string
	pendingIP func() []net.IP // callback: which IPs currently await ARP resolution
	onStats   func(ProcessStats)

	isStop atomic.Bool
	done   chan struct{}
}

// NewThread builds a housekeeping Thread for device. pendingIP supplies
// the set of unicast destination IPs awaiting resolution at each tick;
// onStats, if non-nil, receives each tick's process stats (e.g. to feed
// the metrics registry).
func NewThread(device *session.Device, ifaceName string, pendingIP func() []net.IP, onStats func(ProcessStats)) *Thread {
	return &Thread{
		device:    device,
		ifaceName: ifaceName,
		pendingIP: pendingIP,
		onStats:   onStats,
		done:      make(chan struct{}),
	}
}

// Run drives the tick loop until Stop is called. Intended to be run in
// its own goroutine.
func (t *Thread) Run() {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Errorf("housekeeping: failed to open self process handle: %v", err)
	}

	for {
		if t.isStop.Load() {
			close(t.done)
			return
		}
		<-ticker.C
		t.tick(proc)
	}
}

func (t *Thread) tick(proc *process.Process) {
	t.refreshARP()
	t.checkTimeouts(time.Now())
	if proc != nil && t.onStats != nil {
		t.onStats(sampleProcess(proc))
	}
}

// checkTimeouts flags any session that has gone SessionTimeout without a
// Touch as StateTimedOut, the housekeeping-thread side of spec.md §3's
// TIMEDOUT state (a session that is never touched again stays there; one
// that resumes delivering clears it via Session.Touch).
func (t *Thread) checkTimeouts(now time.Time) {
	for _, s := range t.device.Sessions() {
		if s.Stopped() || s.State() == session.StateOFF {
			continue
		}
		if s.IdleFor(now) <= SessionTimeout {
			continue
		}
		if s.State() != session.StateTimedOut {
			log.Warnf("housekeeping: session %d idle %s, marking timed out", s.ID, s.IdleFor(now))
			s.SetState(session.StateTimedOut)
		}
	}
}

// refreshARP re-resolves every IP the caller reports as pending via the
// kernel neighbour table, the same lookup bind_ip_addr's first attempt
// used (session.ResolveNeighbor).
func (t *Thread) refreshARP() {
	if t.pendingIP == nil {
		return
	}
	iface, err := net.InterfaceByName(t.ifaceName)
	if err != nil {
		log.Debugf("housekeeping: resolve iface %s: %v", t.ifaceName, err)
		return
	}
	for _, ip := range t.pendingIP() {
		if _, err := session.ResolveNeighbor(t.device, uint32(iface.Index), ip); err != nil {
			log.Debugf("housekeeping: ARP refresh for %s failed: %v", ip, err)
		}
	}
}

func sampleProcess(proc *process.Process) ProcessStats {
	var s ProcessStats
	if pct, err := proc.Percent(0); err == nil {
		s.CPUPercent = pct
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		s.RSSBytes = mem.RSS
	}
	if n, err := proc.NumThreads(); err == nil {
		s.NumThreads = n
	}
	if n, err := proc.NumFDs(); err == nil {
		s.NumFDs = n
	}
	return s
}

// Stop requests the loop exit and blocks until it has (spec.md §5
// "Cancellation": every thread owns an explicit isStop atomic").
func (t *Thread) Stop() {
	t.isStop.Store(true)
	<-t.done
}

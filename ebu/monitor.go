package ebu

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/rtp"
)

// Window is how many frames a measurement cycle spans before the
// accumulators are averaged, checked against the mask and reset
// (spec.md §4.6: "reset every 100 frames").
const Window = 100

// Monitor is a passive, per-session ST 2110-21 compliance observer: it
// never back-pressures the data plane, only accumulates and logs
// (spec.md §4.6).
type Monitor struct {
	mu sync.Mutex

	sessionID int
	gateway   Gateway
	trOffset  time.Duration

	cinst *Accumulator // packet-level
	vrx   *Accumulator // packet-level
	fpt   *Accumulator // frame-level
	lat   *Accumulator // frame-level
	tmi   *Accumulator // frame-level
	tmd   *Accumulator // frame-level

	frames     int
	lastTmstamp rtp.Timestamp
	haveLast    bool

	// onWindow, if set, is called at the end of logAndReset with every
	// cluster's snapshot keyed by name, letting a caller mirror the
	// window's maxes into its own metrics exporter.
	onWindow func(map[string]Snapshot)
}

// NewMonitor creates a Monitor for one session, checked against gateway's
// mask, using trOffset (the rise-offset delay in nanoseconds) for the FPT
// bound.
func NewMonitor(sessionID int, gateway Gateway, trOffset time.Duration) *Monitor {
	return &Monitor{
		sessionID: sessionID,
		gateway:   gateway,
		trOffset:  trOffset,
		cinst:     NewAccumulator(),
		vrx:       NewAccumulator(),
		fpt:       NewAccumulator(),
		lat:       NewAccumulator(),
		tmi:       NewAccumulator(),
		tmd:       NewAccumulator(),
	}
}

// SetOnWindow installs a callback invoked every time a measurement
// window closes, receiving a snapshot of all six clusters keyed by name
// ("cinst", "vrx", "fpt", "lat", "tmi", "tmd").
func (m *Monitor) SetOnWindow(fn func(map[string]Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onWindow = fn
}

// ObservePacket folds one packet's instantaneous and virtual-receiver
// buffer fill counts into the packet-level accumulators. Invoked from the
// packet path for every packet, not just the first-of-frame (spec.md
// §4.4).
func (m *Monitor) ObservePacket(cinst, vrx float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cinst.Add(cinst)
	m.vrx.Add(vrx)
}

// ObserveFrame folds one frame's first-packet-time, latency and
// timestamp-increment measurements into the frame-level accumulators, and
// rolls the window over to a logged PASS/FAIL verdict every Window
// frames (spec.md §4.4, §4.6).
func (m *Monitor) ObserveFrame(fpt, latency time.Duration, tmstamp rtp.Timestamp) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fpt.Add(float64(fpt.Nanoseconds()))
	m.lat.Add(float64(latency.Nanoseconds()))

	if m.haveLast {
		tmi := wrapSafeDelta(tmstamp, m.lastTmstamp)
		m.tmi.Add(float64(tmi))
		m.tmd.Add(float64(absInt64(tmi - expectedTmi(m))))
	}
	m.lastTmstamp = tmstamp
	m.haveLast = true

	m.frames++
	if m.frames < Window {
		return
	}
	m.logAndReset()
}

// expectedTmi is the nominal RTP-timestamp increment per frame; callers
// that don't track a per-format clock rate fall back to comparing TMD
// against the observed increment's own running mean, which still catches
// jitter even without a nominal reference.
func expectedTmi(m *Monitor) int64 {
	if m.tmi.stats.Count() == 0 {
		return 0
	}
	return int64(m.tmi.stats.Mean())
}

// wrapSafeDelta computes cur-prev as a 32-bit RTP timestamp difference,
// honoring modulo-2^32 wrap-safe ordering instead of naively subtracting
// two unsigned values (spec.md §3 invariant (d); REDESIGN: the original's
// mixed signed/unsigned tmdMax arithmetic underflows near the wrap
// boundary, so this always widens to int64 before subtracting).
func wrapSafeDelta(cur, prev rtp.Timestamp) int64 {
	return int64(int32(uint32(cur) - uint32(prev)))
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// logAndReset snapshots every accumulator, evaluates the configured
// gateway's mask against them, logs one PASS/FAIL line per mask, and
// resets all six clusters for the next window. Caller must hold mu.
func (m *Monitor) logAndReset() {
	cinst := m.cinst.Snapshot()
	vrx := m.vrx.Snapshot()
	fpt := m.fpt.Snapshot()
	lat := m.lat.Snapshot()
	tmi := m.tmi.Snapshot()
	tmd := m.tmd.Snapshot()

	params := map[string]interface{}{
		"cinstMax": cinst.Max,
		"vrxMax":   vrx.Max,
		"fptMax":   fpt.Max,
		"tmdMax":   tmd.Max,
		"trOffset": float64(m.trOffset.Nanoseconds()),
	}
	verdicts, err := evaluateMasks(m.gateway, params)
	if err != nil {
		log.Errorf("ebu: session %d: mask evaluation failed: %v", m.sessionID, err)
	} else {
		for _, v := range verdicts {
			status := "PASS"
			if !v.Pass {
				status = "FAIL"
			}
			log.Infof("ebu: session %d: %s gateway %s mask: %s", m.sessionID, m.gateway, v.Name, status)
		}
	}
	log.Infof("ebu: session %d: cinst avg=%.2f max=%.0f vrx avg=%.2f max=%.0f fpt avg=%.0fns lat avg=%.0fns tmi avg=%.1f tmd max=%.0f",
		m.sessionID, cinst.Mean, cinst.Max, vrx.Mean, vrx.Max, fpt.Mean, lat.Mean, tmi.Mean, tmd.Max)

	if m.onWindow != nil {
		m.onWindow(map[string]Snapshot{
			"cinst": cinst, "vrx": vrx, "fpt": fpt, "lat": lat, "tmi": tmi, "tmd": tmd,
		})
	}

	m.cinst.Reset()
	m.vrx.Reset()
	m.fpt.Reset()
	m.lat.Reset()
	m.tmi.Reset()
	m.tmd.Reset()
	m.frames = 0
}

package session

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/rtp"
)

// Direction is producer (TX) or consumer (RX).
type Direction uint8

// Session directions.
const (
	DirectionProducer Direction = iota
	DirectionConsumer
)

// State is the session lifecycle state machine from spec.md §3.
type State uint8

// Session states.
const (
	StateOFF State = iota
	StateON
	StateRUN
	StateNoNextFrame
	StateNoNextSlice
	StateStopPending
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateOFF:
		return "OFF"
	case StateON:
		return "ON"
	case StateRUN:
		return "RUN"
	case StateNoNextFrame:
		return "NO_NEXT_FRAME"
	case StateNoNextSlice:
		return "NO_NEXT_SLICE"
	case StateStopPending:
		return "STOP_PENDING"
	case StateTimedOut:
		return "TIMEDOUT"
	default:
		return "UNKNOWN"
	}
}

// SEND_APP_FRAME_MAX / RECV_APP_FRAME_MAX from spec.md §3 "Frame buffer".
const (
	SendAppFrameMax = 2
	RecvAppFrameMax = 6
)

// ST_PKTS_LOSS_ALLOWED is the fraction of a frame's packets that may be
// missing before the frame is dropped outright instead of repaired.
// pktsInFrame/4 per spec.md §7.
func PktsLossAllowed(pktsInFrame int) int {
	return pktsInFrame / 4
}

// FlowTuple is the 5-tuple (plus VLAN/DSCP) identifying a session's flow,
// and its ST 2022-7 redundant twin.
type FlowTuple struct {
	SrcIP, DstIP     net.IP
	SrcPort, DstPort uint16
	VLAN             uint16
	DSCP, ECN        uint8
}

// AssemblyContext is the per-session packet-assembly/ingest cursor from
// spec.md §3. Fields are grouped by lock discipline: the fields under Mu
// are touched from the builder/ingest hot path and the stop path and need
// the session spin lock; Timestamp is accessed lock-free (monotonic
// single-writer in the hot path, read-only elsewhere).
type AssemblyContext struct {
	Line1Number, Line2Number int
	Line1Offset, Line2Offset int
	ByteOffset               int
	FieldID                  rtp.FieldID

	Seq       rtp.SequenceNumber
	Timestamp rtp.Timestamp // lock-free, single-writer

	Epochs            int64
	AlignNextToEpoch  bool

	FragHistogram *FragmentHistogram
	LineHistogram *LineHistogram
}

// Session is the unit of one media flow: a producer (TX) or consumer (RX)
// bound to a Device timeslot. Field (b)/(c)/(d) invariants from spec.md §3
// are enforced by the owning package (txpipeline/rxpipeline), not here.
type Session struct {
	mu sync.Mutex // guards ProdBuf, SliceOffset, state, FieldID (spec.md §5)

	ID        int
	Timeslot  int
	Direction Direction
	Essence   Essence
	Format    Format
	Flow      FlowTuple
	Redundant *FlowTuple // non-nil for ST 2022-7 dual-path sessions

	Ctx AssemblyContext

	state State

	// ProdBuf/SliceOffset model the borrowed producer frame-buffer
	// reference and its write cursor; invariant (b): SliceOffset <=
	// frame size and the byte position implied by (lineNumber,
	// lineOffset) never exceeds SliceOffset.
	ProdBuf     []byte
	SliceOffset int
	FrameSize   int

	Drops DropCounters

	stopped      atomic.Bool
	lastActivity int64 // unix nanoseconds, 0 = never touched
}

// State returns the current lifecycle state under the session lock.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState transitions the session to a new state under the session lock.
func (s *Session) SetState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// WithLock runs fn while holding the session spin lock, for callers that
// need to touch ProdBuf/SliceOffset/FieldID together with state.
func (s *Session) WithLock(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Touch records fresh producer/consumer activity at now, clearing a prior
// StateTimedOut back to StateRUN (spec.md §3: a session that resumes
// delivering frames after a timeout leaves TIMEDOUT on its own, it is not
// stuck there).
func (s *Session) Touch(now time.Time) {
	atomic.StoreInt64(&s.lastActivity, now.UnixNano())
	s.mu.Lock()
	if s.state == StateTimedOut {
		s.state = StateRUN
	}
	s.mu.Unlock()
}

// IdleFor reports how long it has been since Touch was last called, as of
// now. A session that has never been touched reports zero, so a freshly
// created session isn't immediately flagged as timed out.
func (s *Session) IdleFor(now time.Time) time.Duration {
	last := atomic.LoadInt64(&s.lastActivity)
	if last == 0 {
		return 0
	}
	return now.Sub(time.Unix(0, last))
}

// RequestStop begins the two-phase stop described in spec.md §5: the state
// moves to STOP_PENDING and in-flight work is expected to drain before the
// registry reclaims the timeslot.
func (s *Session) RequestStop() {
	s.SetState(StateStopPending)
	s.stopped.Store(true)
}

// Stopped reports whether RequestStop has been called.
func (s *Session) Stopped() bool {
	return s.stopped.Load()
}

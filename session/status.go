package session

import "fmt"

// Status is an ST status code (spec.md §6), a negative integer grouped
// into ST_PKT_DROP_* (0x100-0x1FF), ST_FRM_DROP_* (0x200-0x2FF) and
// ST_DEV_* (0x300-0x3FF) ranges. Per §7, only session-fatal errors are
// ever returned from the public API as a Status; packet- and frame-level
// errors only increment counters.
type Status int32

// Session-fatal status codes (ST_DEV_* range), the only ones ever raised
// to the application per spec.md §7.
const (
	StatusOK               Status = 0
	ErrNoTimeslot          Status = -0x300
	ErrBadFormat           Status = -0x301
	ErrMmapFailed          Status = -0x302
	ErrBindFailed          Status = -0x303
	ErrUnsupportedRate     Status = -0x304
	ErrNoNUMA              Status = -0x305
	ErrNoMemory            Status = -0x306
	ErrBadPort             Status = -0x307
	ErrMissingDriver       Status = -0x308
)

var statusText = map[Status]string{
	StatusOK:           "ok",
	ErrNoTimeslot:      "no free TPRS timeslot",
	ErrBadFormat:       "unsupported session format",
	ErrMmapFailed:      "failed to map scratch buffer",
	ErrBindFailed:      "failed to bind flow tuple",
	ErrUnsupportedRate: "unsupported frame rate",
	ErrNoNUMA:          "no matching NUMA node",
	ErrNoMemory:        "out of mbuf pool memory",
	ErrBadPort:         "bad NIC port identifier",
	ErrMissingDriver:   "missing NIC driver",
}

func (s Status) Error() string {
	if t, ok := statusText[s]; ok {
		return fmt.Sprintf("%s (%d)", t, int32(s))
	}
	return fmt.Sprintf("st status %d", int32(s))
}

// DropReason enumerates packet-level drop causes (§7 tier 1), each backed
// by its own per-session counter.
type DropReason uint8

// Packet-level drop reasons.
const (
	DropBadIPLen DropReason = iota
	DropBadUDPLen
	DropBadRTPVersion
	DropBadPayloadType
	DropKnownBadTimestamp
	DropRedundantDuplicate
	DropNoFrameBuffer
	DropStaleTimestamp
	DropBadPayload
	DropIncompleteFrame
	dropReasonCount
)

func (d DropReason) String() string {
	switch d {
	case DropBadIPLen:
		return "bad_ip_len"
	case DropBadUDPLen:
		return "bad_udp_len"
	case DropBadRTPVersion:
		return "bad_rtp_version"
	case DropBadPayloadType:
		return "bad_payload_type"
	case DropKnownBadTimestamp:
		return "known_bad_timestamp"
	case DropRedundantDuplicate:
		return "redundant_duplicate"
	case DropNoFrameBuffer:
		return "no_frame_buffer"
	case DropStaleTimestamp:
		return "stale_timestamp"
	case DropBadPayload:
		return "bad_payload"
	case DropIncompleteFrame:
		return "incomplete_frame"
	default:
		return "unknown"
	}
}

// DropCounters is a fixed array of per-reason counters, indexed by
// DropReason, cheap enough to embed directly in a Session.
type DropCounters [dropReasonCount]uint64

// Inc increments the counter for reason.
func (c *DropCounters) Inc(reason DropReason) {
	c[reason]++
}

// Snapshot returns a reason->count map for logging/metrics export.
func (c *DropCounters) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, dropReasonCount)
	for i, v := range c {
		out[DropReason(i).String()] = v
	}
	return out
}

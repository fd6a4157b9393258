// Package stats renders a human-readable snapshot of every session's
// drop counters to a terminal table, the operator-facing complement to
// the metrics package's Prometheus export.
package stats

import (
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/session"
)

// SessionSnapshot is one session's reportable counters at a point in
// time.
type SessionSnapshot struct {
	ID    int
	State string
	Drops map[string]uint64
}

// Collect builds a SessionSnapshot for each session a Device currently
// holds, sorted by session id for stable table output.
func Collect(sessions []*session.Session) []SessionSnapshot {
	out := make([]SessionSnapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionSnapshot{
			ID:    s.ID,
			State: s.State().String(),
			Drops: s.Drops.Snapshot(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// dropColumns fixes the column order of the sparse per-reason drop map
// so every row of the table lines up.
var dropColumns = []string{
	"bad_ip_len", "bad_udp_len", "bad_rtp_version", "bad_payload_type",
	"known_bad_timestamp", "redundant_duplicate", "no_frame_buffer",
	"stale_timestamp", "bad_payload", "incomplete_frame",
}

// WriteTable renders one row per session to w.
func WriteTable(w io.Writer, snaps []SessionSnapshot) {
	table := tablewriter.NewWriter(w)
	header := append([]string{"session", "state"}, dropColumns...)
	table.SetHeader(header)

	for _, s := range snaps {
		row := []string{fmt.Sprint(s.ID), s.State}
		for _, col := range dropColumns {
			row = append(row, fmt.Sprint(s.Drops[col]))
		}
		table.Append(row)
	}
	table.Render()
}

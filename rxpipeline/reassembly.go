package rxpipeline

import (
	"golang.org/x/exp/slices"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/nic"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/rtp"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/session"
)

// taggedPacket pairs a received packet with the parsed header fields the
// merge/repair pass needs, so it never has to re-parse the wire header.
type taggedPacket struct {
	pkt *nic.Packet
	hdr *rtp.VideoHeader
	seq rtp.SequenceNumber
}

// MergeBursts merges the primary and redundant legs of an ST 2022-7 pair
// into one sequence-ordered stream, the RX-side analogue of what the
// scheduler's dispatch loop does on TX: a sequence number present on both
// legs appears once, and which leg's copy is kept is not defined, since
// the sort is not stable (spec.md §4.4 "Redundant path merge").
func MergeBursts(primary, redundant []*nic.Packet, dualLine bool) ([]*nic.Packet, error) {
	tagged, err := tagAndParse(primary, dualLine)
	if err != nil {
		return nil, err
	}
	redundantTagged, err := tagAndParse(redundant, dualLine)
	if err != nil {
		return nil, err
	}
	tagged = append(tagged, redundantTagged...)

	slices.SortFunc(tagged, func(a, b taggedPacket) bool {
		return a.seq < b.seq
	})

	out := make([]*nic.Packet, 0, len(tagged))
	var lastSeq rtp.SequenceNumber
	haveLast := false
	for _, tp := range tagged {
		if haveLast && tp.seq == lastSeq {
			continue
		}
		out = append(out, tp.pkt)
		lastSeq = tp.seq
		haveLast = true
	}
	return out, nil
}

func tagAndParse(pkts []*nic.Packet, dualLine bool) ([]taggedPacket, error) {
	out := make([]taggedPacket, 0, len(pkts))
	for _, p := range pkts {
		hdr, err := rtp.UnmarshalVideoHeader(p.Header, dualLine)
		if err != nil {
			return nil, err
		}
		out = append(out, taggedPacket{pkt: p, hdr: hdr, seq: hdr.Sequence()})
	}
	return out, nil
}

// RepairResult reports the outcome of a frame-completion repair pass.
type RepairResult struct {
	Repaired     bool
	LinesMissing int
	// MissingLines lists the exact line indices that were short of their
	// expected packet count, in ascending order, so the caller can conceal
	// each of them by copying from the previous completed frame (spec.md
	// §4.4 PREV/CURR rotation) rather than only knowing a missing count.
	MissingLines []int
	Dropped      bool
}

// RepairFrame implements RvRtpFixVideoFrame's decision in Go terms: given
// how many lines are short of their expected packet count, either patch
// the line histogram so the frame is accepted as complete (concealment by
// repeating the prior frame's data for those lines is the caller's
// responsibility; this function only decides whether to accept or drop
// and reports which lines need concealing), or give up if more than
// pktsInFrame/4 packets are missing overall (spec.md §7
// "ST_PKTS_LOSS_ALLOWED").
func RepairFrame(lineHist *session.LineHistogram, expectedPerLine uint32, pktsInFrame int) RepairResult {
	var missingLines []int
	missingPkts := 0
	for line := 0; line < lineHist.Len(); line++ {
		got := lineHist.Count(line)
		if got < expectedPerLine {
			missingLines = append(missingLines, line)
			missingPkts += int(expectedPerLine - got)
		}
	}
	if missingPkts == 0 {
		return RepairResult{}
	}
	if missingPkts > session.PktsLossAllowed(pktsInFrame) {
		return RepairResult{LinesMissing: len(missingLines), MissingLines: missingLines, Dropped: true}
	}
	for _, line := range missingLines {
		lineHist.Set(line, expectedPerLine)
	}
	return RepairResult{Repaired: true, LinesMissing: len(missingLines), MissingLines: missingLines}
}

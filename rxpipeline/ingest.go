package rxpipeline

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/nic"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/rtp"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/session"
)

// recvPhase tags which half of the per-packet state machine handles the
// next arrival: the original dispatches through a pair of function
// pointers (RecvFirstPackets.../RecvNextPackets...) that get swapped once
// a frame's first packet has been classified; this stack keeps the same
// two-phase split but as a plain tagged enum switched on in Ingest
// (spec.md §9 design note).
type recvPhase uint8

const (
	phaseAwaitingFirst recvPhase = iota
	phaseWithinFrame
)

// Ingest is the per-session RX state: frame assembly cursor, dedup window
// (if the session is bound to a redundant pair) and histograms, updated
// one packet at a time as the Demux hands packets to it.
type Ingest struct {
	Sess     *session.Session
	DualLine bool

	phase recvPhase

	// frameBufs is the RECV_APP_FRAME_MAX rotation of consBufs spec.md
	// §4.4 invariant (c) requires: curIdx is always the buffer the current
	// frame is being assembled into, and prevBuf (a reference into a
	// different slot of the same rotation) is the last completed frame's
	// data, available for concealment without risk of the builder
	// overwriting it mid-repair.
	frameBufs [session.RecvAppFrameMax][]byte
	curIdx    int
	prevBuf   []byte
	frameSize int

	lineHist *session.LineHistogram
	fragHist *session.FragmentHistogram

	primaryDedup   *Dedup
	redundantDedup *Dedup

	expectedPktsPerLine uint32
	pktsInFrame         int
}

// NewIngest creates an Ingest for a bound consumer session, sizing its
// histograms and frame buffer from the session's Format.
func NewIngest(sess *session.Session) *Ingest {
	f := sess.Format
	totalLines := f.Height
	if f.Vscan.Interlaced() {
		totalLines /= 2
	}
	frameSize := f.Height * f.LineSize()

	ing := &Ingest{
		Sess:        sess,
		DualLine:    f.PktFmt.DualLine(),
		frameSize:   frameSize,
		lineHist:    session.NewLineHistogram(totalLines),
		fragHist:    session.NewFragmentHistogram(totalLines/8+1, session.FragPatternFor(f.Vscan)),
		pktsInFrame: f.PacketsInFrame,
	}
	for i := range ing.frameBufs {
		ing.frameBufs[i] = make([]byte, frameSize)
	}
	if f.PacketsPerLine > 0 {
		ing.expectedPktsPerLine = uint32(f.PacketsPerLine)
	} else {
		ing.expectedPktsPerLine = 1
	}
	if sess.Redundant != nil {
		ing.primaryDedup = NewDedup(0)
		ing.redundantDedup = NewDedup(0)
	}
	return ing
}

// FrameComplete is returned by Packet when a frame has just finished
// (marker bit seen and every expected packet delivered or repaired).
type FrameComplete struct {
	Buf     []byte
	Repaired bool
	Dropped  bool
}

// Packet ingests one received packet, updating histograms and copying its
// payload into the frame buffer. isRedundant selects which dedup window
// (primary/secondary leg of an ST 2022-7 pair) this packet belongs to;
// callers on a non-redundant session always pass false. It returns a
// non-nil *FrameComplete when the marker bit closes out a frame.
func (ing *Ingest) Packet(pkt *nic.Packet, isRedundant bool) (*FrameComplete, error) {
	hdr, err := rtp.UnmarshalVideoHeader(pkt.Header, ing.DualLine)
	if err != nil {
		return nil, fmt.Errorf("rxpipeline: session %d: %w", ing.Sess.ID, err)
	}

	if dedup := ing.dedupFor(isRedundant); dedup != nil {
		if dedup.Seen(hdr.Sequence()) && !dedup.Escaped() {
			ing.Sess.Drops.Inc(session.DropRedundantDuplicate)
			return nil, nil
		}
	}

	switch ing.phase {
	case phaseAwaitingFirst:
		ing.onFirstPacket(hdr)
	case phaseWithinFrame:
		ing.onNextPacket(hdr)
	}

	if err := ing.copyPayload(hdr, pkt.Payload); err != nil {
		ing.Sess.Drops.Inc(session.DropBadPayload)
		return nil, nil
	}
	ing.Sess.SetState(session.StateRUN)
	ing.Sess.Touch(time.Now())

	if hdr.Marker {
		return ing.closeFrame(), nil
	}
	if ing.fragHist.Complete() {
		// Every packet slot this frame expects has arrived, but the
		// marker bit never did (lost on the wire): fall back to the
		// fragment histogram's own completion signal rather than
		// waiting forever for a marker that isn't coming (spec.md §4.4
		// step 5, end-to-end scenario 6).
		log.Debugf("rxpipeline: session %d: marker lost, completing frame via fragment histogram", ing.Sess.ID)
		return ing.closeFrame(), nil
	}
	return nil, nil
}

func (ing *Ingest) dedupFor(isRedundant bool) *Dedup {
	if isRedundant {
		return ing.redundantDedup
	}
	return ing.primaryDedup
}

// onFirstPacket resets the per-frame state once the leading packet of a
// new frame arrives, then transitions to phaseWithinFrame.
func (ing *Ingest) onFirstPacket(hdr *rtp.VideoHeader) {
	ing.lineHist.Reset()
	ing.fragHist.Reset()
	ing.Sess.Ctx.Timestamp = hdr.Timestamp
	ing.Sess.Ctx.FieldID = hdr.FieldID
	ing.phase = phaseWithinFrame
}

// onNextPacket tracks a mid-frame arrival. A timestamp change before the
// marker bit closes the prior frame means packets were lost entirely
// (spec.md §4.4 "incomplete frame" scenario); log and start fresh rather
// than mixing two frames' payload into one buffer.
func (ing *Ingest) onNextPacket(hdr *rtp.VideoHeader) {
	if hdr.Timestamp != ing.Sess.Ctx.Timestamp {
		log.Debugf("rxpipeline: session %d: timestamp jumped mid-frame, restarting frame", ing.Sess.ID)
		ing.onFirstPacket(hdr)
	}
}

// curBuf is the consBuf slot the frame in progress is being assembled
// into.
func (ing *Ingest) curBuf() []byte {
	return ing.frameBufs[ing.curIdx]
}

// copyPayload writes a packet's payload into the current frame buffer at
// the byte offset its line number/offset imply, and marks the
// line/fragment histograms.
func (ing *Ingest) copyPayload(hdr *rtp.VideoHeader, payload []byte) error {
	buf := ing.curBuf()
	lineSize := ing.Sess.Format.LineSize()
	line1Off := int(hdr.LineNumber)*lineSize + bytesFromPixels(int(hdr.LineOffset), ing.Sess.Format)
	n := len(payload)
	if hdr.DualLine {
		n = int(hdr.Line2Length)
	}
	if line1Off+n > len(buf) || n < 0 {
		return fmt.Errorf("rxpipeline: session %d: payload out of bounds", ing.Sess.ID)
	}
	copy(buf[line1Off:line1Off+n], payload[:n])
	ing.lineHist.Inc(int(hdr.LineNumber))
	ing.fragHist.SetBit(int(hdr.LineNumber)/8, int(hdr.LineNumber)%8)

	if hdr.DualLine {
		line2Off := int(hdr.Line2Number)*lineSize + bytesFromPixels(int(hdr.Line2Offset), ing.Sess.Format)
		if line2Off+n <= len(buf) && len(payload) >= 2*n {
			copy(buf[line2Off:line2Off+n], payload[n:2*n])
			ing.lineHist.Inc(int(hdr.Line2Number))
			ing.fragHist.SetBit(int(hdr.Line2Number)/8, int(hdr.Line2Number)%8)
		}
	}
	return nil
}

func bytesFromPixels(pixelOffset int, f session.Format) int {
	if f.PixelsInGrp == 0 {
		return 0
	}
	return (pixelOffset / f.PixelsInGrp) * f.PixelGrpSize
}

// closeFrame finalizes a frame on marker-bit receipt (or the fragment
// histogram's own completion signal): repairs short lines by concealing
// them with the previous completed frame's data if within the loss
// budget, drops the frame otherwise, and rotates the consBuf index so the
// next frame assembles into a different slot of the RECV_APP_FRAME_MAX
// rotation while this one remains available as concealment source for
// whichever frame follows it.
func (ing *Ingest) closeFrame() *FrameComplete {
	result := RepairFrame(ing.lineHist, ing.expectedPktsPerLine, ing.pktsInFrame)
	ing.phase = phaseAwaitingFirst
	cur := ing.curBuf()

	if result.Dropped {
		ing.Sess.Drops.Inc(session.DropIncompleteFrame)
		ing.advanceBuf()
		return &FrameComplete{Dropped: true}
	}
	if result.Repaired && ing.prevBuf != nil {
		ing.concealLines(cur, ing.prevBuf, result.MissingLines)
	}
	out := make([]byte, len(cur))
	copy(out, cur)
	ing.prevBuf = cur
	ing.advanceBuf()
	return &FrameComplete{Buf: out, Repaired: result.Repaired}
}

// advanceBuf moves curIdx to the next slot in the consBuf rotation.
func (ing *Ingest) advanceBuf() {
	ing.curIdx = (ing.curIdx + 1) % len(ing.frameBufs)
}

// concealLines copies each line in lines from prev into cur, the
// repeat-prior-frame concealment spec.md §4.4 calls for when RepairFrame
// accepts a frame short of some lines rather than dropping it.
func (ing *Ingest) concealLines(cur, prev []byte, lines []int) {
	lineSize := ing.Sess.Format.LineSize()
	for _, line := range lines {
		start := line * lineSize
		end := start + lineSize
		if start < 0 || end > len(cur) || end > len(prev) {
			continue
		}
		copy(cur[start:end], prev[start:end])
	}
}

package txpipeline

import (
	"fmt"
	"time"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/nic"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/rtp"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/session"
)

// Builder walks one producer session's frame buffer into RTP packets,
// patching a cached HeaderTemplate per packet. It holds no frame data of
// its own: Sess.ProdBuf (locked via Sess.WithLock) is the source of truth,
// matching the borrowed-buffer discipline of spec.md §3 invariant (b).
type Builder struct {
	Sess     *session.Session
	Template *HeaderTemplate
	SSRC     uint32

	nextSeq rtp.SequenceNumber
}

// NewBuilder creates a Builder bound to sess and a pre-rendered header
// template for its flow.
func NewBuilder(sess *session.Session, tmpl *HeaderTemplate, ssrc uint32) *Builder {
	return &Builder{Sess: sess, Template: tmpl, SSRC: ssrc}
}

// BuildFrame walks the currently attached frame buffer into a slice of
// wire packets for one ST 2110-20 video frame, applying the format's
// single-line/dual-line/interlaced framing rules (spec.md §4.2). A
// session with no frame buffer attached transitions to StateNoNextFrame
// and returns that condition as an error; one whose buffer is too short
// for a full frame transitions to StateNoNextSlice instead, since some
// slices of the frame did arrive. A successful build transitions to
// StateRUN and touches the session so housekeeping's timeout check sees
// it as live (spec.md §3).
func (b *Builder) BuildFrame(ts rtp.Timestamp) ([]*nic.Packet, error) {
	f := b.Sess.Format
	var buf []byte
	var frameSize int
	b.Sess.WithLock(func() {
		buf = b.Sess.ProdBuf
		frameSize = b.Sess.FrameSize
	})
	if buf == nil {
		b.Sess.SetState(session.StateNoNextFrame)
		return nil, fmt.Errorf("txpipeline: session %d has no frame attached", b.Sess.ID)
	}
	if len(buf) < frameSize {
		b.Sess.SetState(session.StateNoNextSlice)
		return nil, fmt.Errorf("txpipeline: session %d frame buffer too small: have %d need %d", b.Sess.ID, len(buf), frameSize)
	}

	lineSize := f.LineSize()
	totalLines := f.Height
	fieldID := rtp.FieldProgressive
	if f.Vscan.Interlaced() {
		fieldID = b.Sess.Ctx.FieldID
		totalLines /= 2
	}

	var pkts []*nic.Packet
	var err error
	if f.PktFmt.DualLine() {
		pkts, err = b.buildDualLine(buf, ts, fieldID, lineSize, totalLines)
	} else {
		pkts, err = b.buildSingleLine(buf, ts, fieldID, lineSize, totalLines)
	}
	if err != nil {
		return nil, err
	}
	b.Sess.SetState(session.StateRUN)
	b.Sess.Touch(time.Now())
	return pkts, nil
}

// buildSingleLine emits one packet per PixelsInPkt-wide chunk of each
// line, continuing a line across packets when it doesn't divide evenly.
func (b *Builder) buildSingleLine(buf []byte, ts rtp.Timestamp, fieldID rtp.FieldID, lineSize, totalLines int) ([]*nic.Packet, error) {
	f := b.Sess.Format
	payloadPerPkt := f.PayloadSize()
	var packets []*nic.Packet

	for line := 0; line < totalLines; line++ {
		lineStart := line * lineSize
		offset := 0
		for offset < lineSize {
			n := payloadPerPkt
			if offset+n > lineSize {
				n = lineSize - offset
			}
			last := offset+n >= lineSize
			lastLine := line == totalLines-1

			hdr := &rtp.VideoHeader{
				Version: 2, Marker: last && lastLine, PayloadType: rtp.PayloadTypeVideo,
				Timestamp: ts, SSRC: b.SSRC, FieldID: fieldID,
				LineNumber: uint16(line), LineOffset: uint16(pixelOffset(offset, f)),
				Continuation: !last,
			}
			hdr.SetSequence(b.nextSeq)
			hdr.Length = uint16(n)
			b.nextSeq++

			pkt, err := b.renderPacket(hdr, buf[lineStart+offset:lineStart+offset+n])
			if err != nil {
				return nil, err
			}
			packets = append(packets, pkt)
			offset += n
		}
	}
	return packets, nil
}

// buildDualLine emits one packet per pair of consecutive lines, the Intel
// dual-line extension that halves the packet count for a given line rate.
func (b *Builder) buildDualLine(buf []byte, ts rtp.Timestamp, fieldID rtp.FieldID, lineSize, totalLines int) ([]*nic.Packet, error) {
	f := b.Sess.Format
	payloadPerPktPerLine := f.PayloadSize()
	var packets []*nic.Packet

	for line := 0; line < totalLines; line += 2 {
		line1Start := line * lineSize
		line2Start := (line + 1) * lineSize
		offset := 0
		for offset < lineSize {
			n := payloadPerPktPerLine
			if offset+n > lineSize {
				n = lineSize - offset
			}
			last := offset+n >= lineSize
			lastPair := line+2 >= totalLines

			hdr := &rtp.VideoHeader{
				Version: 2, Marker: last && lastPair, PayloadType: rtp.PayloadTypeVideo,
				Timestamp: ts, SSRC: b.SSRC, FieldID: fieldID, DualLine: true,
				LineNumber: uint16(line), LineOffset: uint16(pixelOffset(offset, f)),
				Line2Number: uint16(line + 1), Line2Offset: uint16(pixelOffset(offset, f)),
				Continuation: !last,
			}
			hdr.SetSequence(b.nextSeq)
			hdr.Length = uint16(2 * n)
			hdr.Line2Length = uint16(n)
			b.nextSeq++

			payload := make([]byte, 0, 2*n)
			payload = append(payload, buf[line1Start+offset:line1Start+offset+n]...)
			payload = append(payload, buf[line2Start+offset:line2Start+offset+n]...)

			pkt, err := b.renderPacket(hdr, payload)
			if err != nil {
				return nil, err
			}
			packets = append(packets, pkt)
			offset += n
		}
	}
	return packets, nil
}

// pixelGroupStride is the byte stride of one pixel group, used to convert
// a byte offset within a line into a count of whole pixel groups.
func pixelGroupStride(f session.Format) int {
	if f.PixelGrpSize == 0 {
		return 1
	}
	return f.PixelGrpSize
}

// pixelOffset converts a byte offset within a line into the pixel-sample
// offset RFC 4175's lineOffset field carries on the wire.
func pixelOffset(byteOffset int, f session.Format) int {
	return (byteOffset / pixelGroupStride(f)) * f.PixelsInGrp
}

// renderPacket patches a cloned header template with hdr's fields and
// attaches payload as a zero-copy reference into the frame buffer, the
// Go analogue of the original's mbuf chaining (spec.md §4.2).
func (b *Builder) renderPacket(hdr *rtp.VideoHeader, payload []byte) (*nic.Packet, error) {
	headerBytes := b.Template.Clone()
	rtpOff := b.Template.RTPOffset()
	n, err := hdr.MarshalTo(headerBytes[rtpOff:])
	if err != nil {
		return nil, err
	}
	PatchLengths(headerBytes, n, len(payload))

	return &nic.Packet{
		Header:  headerBytes,
		Payload: payload,
	}, nil
}

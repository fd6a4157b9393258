package rxpipeline

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/nic"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/rtp"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/session"
)

// testSimpleFormat builds a Format with exactly one packet per line, so
// tests can drive the ingest state machine one packet == one line without
// needing to replicate the TX builder's line-chunking math.
func testSimpleFormat() session.Format {
	const width, height = 256, 4
	f := session.Format{
		Width: width, Height: height, Vscan: rtp.Vscan720p, PktFmt: rtp.PktFmtIntelSingleLine,
		PixelGrpSize: rtp.PixelGroupSize, PixelsInGrp: rtp.PixelsPerGroup, PixelsInPkt: width,
		FrameTimeNs: 33333333, ClockRateHz: 90000, RateNum: 30, RateDen: 1,
		PacketsPerLine: 1, PacketsInFrame: height, LinkGbps: 10, RiseOffsetLines: 40,
	}
	return f
}

func newConsumerSession(t *testing.T) *session.Session {
	t.Helper()
	f := testSimpleFormat()
	require.NoError(t, f.Validate())
	d, err := session.CreateDevice(session.DeviceRecv, "eth0", 10, 30)
	require.NoError(t, err)
	s, err := d.CreateSession(session.DirectionConsumer, session.EssenceVideo, f)
	require.NoError(t, err)
	return s
}

func buildVideoPacket(t *testing.T, line int, seq uint16, marker bool, payload []byte) *nic.Packet {
	t.Helper()
	hdr := &rtp.VideoHeader{
		Version: 2, Marker: marker, PayloadType: rtp.PayloadTypeVideo,
		Timestamp: 100, SSRC: 1, LineNumber: uint16(line), SeqNumber: seq,
	}
	b := make([]byte, rtp.SingleLineHeaderSize)
	_, err := hdr.MarshalTo(b)
	require.NoError(t, err)
	return &nic.Packet{Header: b, Payload: payload}
}

func TestIngestSingleLineFrameCompletesOnMarker(t *testing.T) {
	s := newConsumerSession(t)
	ing := NewIngest(s)

	lineSize := s.Format.LineSize()
	var seq uint16
	var last *FrameComplete
	for line := 0; line < s.Format.Height; line++ {
		payload := make([]byte, lineSize)
		for i := range payload {
			payload[i] = byte(line)
		}
		marker := line == s.Format.Height-1
		pkt := buildVideoPacket(t, line, seq, marker, payload)
		seq++
		fc, err := ing.Packet(pkt, false)
		require.NoError(t, err)
		if marker {
			last = fc
		} else {
			require.Nil(t, fc)
		}
	}
	require.NotNil(t, last)
	require.False(t, last.Dropped)
	require.Len(t, last.Buf, s.Format.Height*lineSize)
}

func TestIngestDropsFrameBeyondLossBudget(t *testing.T) {
	s := newConsumerSession(t)
	ing := NewIngest(s)

	lineSize := s.Format.LineSize()
	var seq uint16
	// skip the first half of the lines entirely, then deliver the rest
	// with the marker bit -- well beyond the pktsInFrame/4 loss budget.
	start := s.Format.Height / 2
	var last *FrameComplete
	for line := start; line < s.Format.Height; line++ {
		payload := make([]byte, lineSize)
		marker := line == s.Format.Height-1
		pkt := buildVideoPacket(t, line, seq, marker, payload)
		seq++
		fc, err := ing.Packet(pkt, false)
		require.NoError(t, err)
		if marker {
			last = fc
		}
	}
	require.NotNil(t, last)
	require.True(t, last.Dropped)
}

func TestDemuxRoutesBy5Tuple(t *testing.T) {
	d := NewDemux()
	s := newConsumerSession(t)
	ing := NewIngest(s)
	flow := session.FlowTuple{SrcIP: net.ParseIP("10.0.0.1"), DstIP: net.ParseIP("239.1.1.1"), SrcPort: 20000, DstPort: 20000}
	d.Register(flow, ing)

	got, ok := d.Lookup(flow)
	require.True(t, ok)
	require.Same(t, ing, got)

	other := flow
	other.DstPort = 20002
	_, ok = d.Lookup(other)
	require.False(t, ok)

	d.Unregister(flow)
	_, ok = d.Lookup(flow)
	require.False(t, ok)
}

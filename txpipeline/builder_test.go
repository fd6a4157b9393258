package txpipeline

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/rtp"
	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/session"
)

func testFlow() session.FlowTuple {
	return session.FlowTuple{
		SrcIP: net.ParseIP("192.168.0.1"), DstIP: net.ParseIP("239.1.2.3"),
		SrcPort: 20000, DstPort: 20000,
	}
}

func mustTemplate(t *testing.T, dualLine bool) *HeaderTemplate {
	t.Helper()
	srcMAC, _ := net.ParseMAC("02:00:00:00:00:01")
	dstMAC, _ := net.ParseMAC("01:00:5e:01:02:03")
	tmpl, err := BuildHeaderTemplate(srcMAC, dstMAC, testFlow(), dualLine)
	require.NoError(t, err)
	return tmpl
}

func newDeviceAndSession(t *testing.T, pktFmt rtp.PktFmt) (*session.Device, *session.Session) {
	t.Helper()
	f, err := session.StandardVideoFormat(rtp.Vscan720p, pktFmt, 30, 1, 10)
	require.NoError(t, err)
	d, err := session.CreateDevice(session.DeviceSend, "eth0", 10, 30)
	require.NoError(t, err)
	s, err := d.CreateSession(session.DirectionProducer, session.EssenceVideo, f)
	require.NoError(t, err)
	return d, s
}

func fillTestFrame(s *session.Session) {
	frameSize := s.Format.Height * s.Format.LineSize()
	buf := make([]byte, frameSize)
	for i := range buf {
		buf[i] = byte(i)
	}
	s.WithLock(func() {
		s.ProdBuf = buf
		s.FrameSize = frameSize
	})
}

func TestBuildFrameSingleLineCoversWholeFrame(t *testing.T) {
	_, s := newDeviceAndSession(t, rtp.PktFmtIntelSingleLine)
	fillTestFrame(s)

	tmpl := mustTemplate(t, false)
	b := NewBuilder(s, tmpl, 0xdeadbeef)

	packets, err := b.BuildFrame(rtp.Timestamp(1000))
	require.NoError(t, err)
	require.NotEmpty(t, packets)

	totalPayload := 0
	for _, p := range packets {
		totalPayload += len(p.Payload)
		require.Equal(t, tmpl.Size(), len(p.Header))
	}
	require.Equal(t, s.Format.Height*s.Format.LineSize(), totalPayload)

	last := packets[len(packets)-1]
	hdr, err := rtp.UnmarshalVideoHeader(last.Header[tmpl.RTPOffset():], false)
	require.NoError(t, err)
	require.True(t, hdr.Marker, "last packet of last line must carry the marker bit")
}

func TestBuildFrameDualLineHalvesPacketCountVsSingleLine(t *testing.T) {
	_, sSingle := newDeviceAndSession(t, rtp.PktFmtIntelSingleLine)
	fillTestFrame(sSingle)
	single := NewBuilder(sSingle, mustTemplate(t, false), 1)
	singlePackets, err := single.BuildFrame(rtp.Timestamp(1000))
	require.NoError(t, err)

	_, sDual := newDeviceAndSession(t, rtp.PktFmtIntelDualLine)
	fillTestFrame(sDual)
	dual := NewBuilder(sDual, mustTemplate(t, true), 1)
	dualPackets, err := dual.BuildFrame(rtp.Timestamp(1000))
	require.NoError(t, err)

	require.InDelta(t, len(singlePackets)/2, len(dualPackets), 1)
}

func TestBuildFrameWithoutAttachedBufferErrors(t *testing.T) {
	_, s := newDeviceAndSession(t, rtp.PktFmtIntelSingleLine)
	b := NewBuilder(s, mustTemplate(t, false), 1)
	_, err := b.BuildFrame(rtp.Timestamp(0))
	require.Error(t, err)
	require.Equal(t, session.StateNoNextFrame, s.State())
}

func TestBuildFrameWithShortBufferEntersNoNextSlice(t *testing.T) {
	_, s := newDeviceAndSession(t, rtp.PktFmtIntelSingleLine)
	b := NewBuilder(s, mustTemplate(t, false), 1)
	s.WithLock(func() {
		s.ProdBuf = make([]byte, 1)
		s.FrameSize = s.Format.Height * s.Format.LineSize()
	})
	_, err := b.BuildFrame(rtp.Timestamp(0))
	require.Error(t, err)
	require.Equal(t, session.StateNoNextSlice, s.State())
}

func TestBuildFrameSuccessEntersRunState(t *testing.T) {
	_, s := newDeviceAndSession(t, rtp.PktFmtIntelSingleLine)
	fillTestFrame(s)
	b := NewBuilder(s, mustTemplate(t, false), 1)
	_, err := b.BuildFrame(rtp.Timestamp(0))
	require.NoError(t, err)
	require.Equal(t, session.StateRUN, s.State())
}

func TestFrameTimestampSameEpochIsStable(t *testing.T) {
	f, err := session.StandardVideoFormat(rtp.Vscan1080p, rtp.PktFmtIntelDualLine, 30, 1, 10)
	require.NoError(t, err)

	base := time.Unix(1000, 0)
	ts1, epoch1, outcome1 := FrameTimestamp(base, f, -1)
	require.Equal(t, EpochAdvanced, outcome1)

	ts2, epoch2, outcome2 := FrameTimestamp(base, f, epoch1)
	require.Equal(t, EpochSame, outcome2)
	require.Equal(t, ts1, ts2)
	require.Equal(t, epoch1, epoch2)
}

func TestFrameTimestampDetectsLateEpoch(t *testing.T) {
	f, err := session.StandardVideoFormat(rtp.Vscan1080p, rtp.PktFmtIntelDualLine, 30, 1, 10)
	require.NoError(t, err)

	epoch := int64(5)
	boundary := time.Unix(0, epoch*f.FrameTimeNs+f.TrOffsetNs()+1)
	_, _, outcome := FrameTimestamp(boundary, f, epoch-1)
	require.Equal(t, EpochLate, outcome)
}

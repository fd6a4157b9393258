package stats

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/session"
)

func TestCollectSortsByIDAndSnapshotsDrops(t *testing.T) {
	d, err := session.CreateDevice(session.DeviceSend, "eth0", 10, 30)
	require.NoError(t, err)
	f := session.Format{
		Width: 1280, Height: 720, PacketsInFrame: 100, PixelsInGrp: 2, PixelGrpSize: 5,
		FrameTimeNs: 33333333, ClockRateHz: 90000, RateNum: 30, RateDen: 1, LinkGbps: 10,
	}
	s1, err := d.CreateSession(session.DirectionProducer, session.EssenceVideo, f)
	require.NoError(t, err)
	s1.Drops.Inc(session.DropBadPayload)

	snaps := Collect([]*session.Session{s1})
	require.Len(t, snaps, 1)
	require.Equal(t, s1.ID, snaps[0].ID)
	require.EqualValues(t, 1, snaps[0].Drops["bad_payload"])
}

func TestWriteTableRendersHeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	WriteTable(&buf, []SessionSnapshot{
		{ID: 1, State: "running", Drops: map[string]uint64{"bad_payload": 3}},
	})
	out := buf.String()
	require.Contains(t, out, "bad_payload")
	require.Contains(t, out, "3")
}

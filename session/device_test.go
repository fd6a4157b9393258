package session

import (
	"errors"
	"testing"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/rtp"
	"github.com/stretchr/testify/require"
)

func testFormat(t *testing.T) Format {
	t.Helper()
	f, err := StandardVideoFormat(rtp.Vscan1080p, rtp.PktFmtIntelDualLine, 30, 1, 10)
	require.NoError(t, err)
	return f
}

func TestCreateDestroySession(t *testing.T) {
	d, err := CreateDevice(DeviceSend, "eth0", 10, 29.97)
	require.NoError(t, err)

	s, err := d.CreateSession(DirectionProducer, EssenceVideo, testFormat(t))
	require.NoError(t, err)
	require.Equal(t, StateON, s.State())
	require.Len(t, d.Sessions(), 1)

	d.DestroySession(s)
	require.True(t, s.Stopped())
	require.Equal(t, StateStopPending, s.State())
	require.Len(t, d.Sessions(), 0)
}

func TestTimeslotUniqueAndSpread(t *testing.T) {
	d, err := CreateDevice(DeviceSend, "eth0", 100, 29.97)
	require.NoError(t, err)

	seen := map[int]bool{}
	var sessions []*Session
	for i := 0; i < 10; i++ {
		s, err := d.CreateSession(DirectionProducer, EssenceVideo, testFormat(t))
		require.NoError(t, err)
		require.False(t, seen[s.Timeslot], "timeslot %d reused while still live", s.Timeslot)
		seen[s.Timeslot] = true
		sessions = append(sessions, s)
	}
	// invariant (a): timeslot is unique within a device until destroy.
	require.Len(t, seen, 10)

	d.DestroySession(sessions[0])
	s, err := d.CreateSession(DirectionProducer, EssenceVideo, testFormat(t))
	require.NoError(t, err)
	require.Equal(t, sessions[0].Timeslot, s.Timeslot)
}

func TestNoTimeslotExhaustion(t *testing.T) {
	d, err := CreateDevice(DeviceSend, "eth0", 10, 29.97)
	require.NoError(t, err)
	d.MaxSessions = 2
	d.free = []bool{true, true}

	_, err = d.CreateSession(DirectionProducer, EssenceVideo, testFormat(t))
	require.NoError(t, err)
	_, err = d.CreateSession(DirectionProducer, EssenceVideo, testFormat(t))
	require.NoError(t, err)
	_, err = d.CreateSession(DirectionProducer, EssenceVideo, testFormat(t))
	require.True(t, errors.Is(err, ErrNoTimeslot))
}

func TestMulticastRefcounting(t *testing.T) {
	d, err := CreateDevice(DeviceSend, "eth0", 10, 29.97)
	require.NoError(t, err)

	d.JoinMulticast("239.1.1.1")
	d.JoinMulticast("239.1.1.1")
	require.False(t, d.LeaveMulticast("239.1.1.1"))
	require.True(t, d.LeaveMulticast("239.1.1.1"))
}

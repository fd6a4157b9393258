package housekeeping

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/session"
)

func TestThreadSamplesStatsAndStopsPromptly(t *testing.T) {
	d, err := session.CreateDevice(session.DeviceRecv, "lo", 10, 30)
	require.NoError(t, err)

	samples := make(chan ProcessStats, 8)
	th := NewThread(d, "lo", func() []net.IP { return nil }, func(s ProcessStats) {
		select {
		case samples <- s:
		default:
		}
	})
	go th.Run()

	select {
	case s := <-samples:
		require.GreaterOrEqual(t, s.NumThreads, int32(0))
	case <-time.After(2 * time.Second):
		t.Fatal("no process stats sample observed")
	}

	stopped := make(chan struct{})
	go func() {
		th.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return promptly")
	}
}

/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ptpengine

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/ptp/protocol"
)

func testMaster(t *testing.T) protocol.PortIdentity {
	t.Helper()
	mac, err := net.ParseMAC("02:00:00:00:00:01")
	require.NoError(t, err)
	id, err := protocol.NewClockIdentity(mac)
	require.NoError(t, err)
	return protocol.PortIdentity{ClockIdentity: id, PortNumber: 1}
}

func testOurs(t *testing.T) protocol.PortIdentity {
	t.Helper()
	mac, err := net.ParseMAC("02:00:00:00:00:02")
	require.NoError(t, err)
	id, err := protocol.NewClockIdentity(mac)
	require.NoError(t, err)
	return protocol.PortIdentity{ClockIdentity: id, PortNumber: 1}
}

func TestPortIdentityDerivesFromMAC(t *testing.T) {
	mac, err := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	id, err := PortIdentity(mac)
	require.NoError(t, err)
	require.EqualValues(t, 1, id.PortNumber)
}

func TestHandleAnnounceAcceptsFirstMasterAndLatches(t *testing.T) {
	e := NewEngine(Config{Our: testOurs(t), ChooseMode: MasterChooseFirstKnown})
	master := testMaster(t)

	e.HandleAnnounce(&protocol.Announce{
		Header:       protocol.Header{SourcePortIdentity: master},
		AnnounceBody: protocol.AnnounceBody{GrandmasterPriority1: 128},
	})
	require.Equal(t, StateInitialized, e.State())
	require.True(t, e.haveMaster)
	require.Equal(t, master, e.master)

	other := testOurs(t)
	e.HandleAnnounce(&protocol.Announce{Header: protocol.Header{SourcePortIdentity: other}})
	require.Equal(t, master, e.master, "first-known mode must not switch masters")
}

func TestSyncThenFollowUpSchedulesDelayReq(t *testing.T) {
	sent := make(chan uint16, 1)
	e := NewEngine(Config{
		Our: testOurs(t),
		TXDelayReq: func(seq uint16) (time.Time, error) {
			sent <- seq
			return time.Now(), nil
		},
	})
	defer e.Close()
	master := testMaster(t)
	e.HandleAnnounce(&protocol.Announce{Header: protocol.Header{SourcePortIdentity: master}})

	e.HandleSync(&protocol.SyncDelayReq{
		Header: protocol.Header{SourcePortIdentity: master, FlagField: protocol.FlagTwoStep, SequenceID: 7},
	}, time.Now(), 1000)
	require.Equal(t, StateSyncReceived, e.State())

	e.HandleFollowUp(&protocol.FollowUp{
		Header: protocol.Header{SourcePortIdentity: master, SequenceID: 7},
	})

	select {
	case seq := <-sent:
		require.EqualValues(t, 0, seq)
	case <-time.After(2 * time.Second):
		t.Fatal("delay-req was never transmitted")
	}
}

func TestDelayRespCompletesExchangeAndLocks(t *testing.T) {
	ours := testOurs(t)
	e := NewEngine(Config{
		Our: ours,
		TXDelayReq: func(seq uint16) (time.Time, error) {
			return time.Now(), nil
		},
	})
	defer e.Close()
	master := testMaster(t)
	e.HandleAnnounce(&protocol.Announce{Header: protocol.Header{SourcePortIdentity: master}})

	e.HandleSync(&protocol.SyncDelayReq{
		Header: protocol.Header{SourcePortIdentity: master, SequenceID: 1},
	}, time.Now(), 0)

	// wait for the async delay-req goroutine to record t3.
	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.ts.have3
	}, 2*time.Second, 10*time.Millisecond)

	err := e.HandleDelayResp(&protocol.DelayResp{
		Header:        protocol.Header{SourcePortIdentity: master},
		DelayRespBody: protocol.DelayRespBody{RequestingPortIdentity: ours, ReceiveTimestamp: protocol.NewTimestamp(time.Now())},
	})
	require.NoError(t, err)
	require.Equal(t, StateLocked, e.State())
}

func TestDelayRespRejectsWrongRequestingPortIdentity(t *testing.T) {
	ours := testOurs(t)
	e := NewEngine(Config{Our: ours})
	master := testMaster(t)
	e.HandleAnnounce(&protocol.Announce{Header: protocol.Header{SourcePortIdentity: master}})

	wrong := testMaster(t)
	wrong.PortNumber = 99
	err := e.HandleDelayResp(&protocol.DelayResp{
		Header:        protocol.Header{SourcePortIdentity: master},
		DelayRespBody: protocol.DelayRespBody{RequestingPortIdentity: wrong},
	})
	require.Error(t, err)
	require.NotEqual(t, StateLocked, e.State())
}

func TestClockSourceSwitchesAmongInstalledSources(t *testing.T) {
	var ticks uint64
	e := NewEngine(Config{
		Our:       testOurs(t),
		HPETTicks: func() uint64 { ticks++; return ticks },
		HWNow:     func() time.Time { return time.Unix(1000, 0) },
	})

	require.NoError(t, e.SetClockSource(ClockSourceHW))
	require.Equal(t, int64(1000), e.Now().Unix())

	require.NoError(t, e.SetClockSource(ClockSourceHPET))
	_ = e.Now()

	require.NoError(t, e.SetClockSource(ClockSourceRTC))
	require.WithinDuration(t, time.Now(), e.Now(), time.Second)

	e2 := NewEngine(Config{Our: testOurs(t)})
	require.Error(t, e2.SetClockSource(ClockSourceHW))
	require.Error(t, e2.SetClockSource(ClockSourceHPET))
}

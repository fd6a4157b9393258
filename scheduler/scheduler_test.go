package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/nic"
)

func TestBudgetAccrueAndSpendCarriesRemainder(t *testing.T) {
	b := NewBudget(1000, 3) // 333.33 bytes/tick
	b.Accrue()
	b.Accrue()
	b.Accrue()
	// three ticks of 1000/3 should sum to exactly 1000 with no drift.
	require.Equal(t, int64(1000), b.Available())
}

func TestBudgetSpendRefusesOverdraw(t *testing.T) {
	b := NewBudget(100, 1)
	b.Accrue()
	require.True(t, b.Spend(50))
	require.False(t, b.Spend(100))
	require.Equal(t, int64(50), b.Available())
}

func TestRingBulkVsSingleDequeue(t *testing.T) {
	r := NewRing(16)
	for i := 0; i < 3; i++ {
		require.True(t, r.Enqueue(&nic.Packet{}))
	}
	pkts, bulk := r.DequeueBulk()
	require.False(t, bulk)
	require.Len(t, pkts, 1)

	for i := 0; i < BulkSize; i++ {
		require.True(t, r.Enqueue(&nic.Packet{}))
	}
	pkts, bulk = r.DequeueBulk()
	require.True(t, bulk)
	require.Len(t, pkts, BulkSize)
}

func TestRingEnqueueRejectsWhenFull(t *testing.T) {
	r := NewRing(1)
	require.True(t, r.Enqueue(&nic.Packet{}))
	require.False(t, r.Enqueue(&nic.Packet{}))
}

func TestCursorRingAtWalksSlotsInOrder(t *testing.T) {
	c := BuildCursor([]int{3, 1, 2}, 900)
	id, ok := c.RingAt(0)
	require.True(t, ok)
	require.Equal(t, 1, id)

	id, ok = c.RingAt(450)
	require.True(t, ok)
	require.Equal(t, 2, id)

	id, ok = c.RingAt(899)
	require.True(t, ok)
	require.Equal(t, 3, id)
}

func TestCursorEmptyReportsNotOK(t *testing.T) {
	c := BuildCursor(nil, 1000)
	_, ok := c.RingAt(0)
	require.False(t, ok)
}

func TestRotorCyclesThroughFixedPool(t *testing.T) {
	r := NewRotor([6]byte{2, 0, 0, 0, 0, 1}, 2)
	first := r.Next(60)
	require.True(t, first.IsPause)
	for i := 0; i < 3; i++ {
		r.Next(60)
	}
	require.Same(t, first, r.Next(60)) // 2*maxSessions=4 frames, wraps at 4
}

func TestRotorNextResizesFrameToRequestedGap(t *testing.T) {
	r := NewRotor([6]byte{2, 0, 0, 0, 0, 1}, 1)
	p := r.Next(200)
	require.Len(t, p.Header, 200)
	p = r.Next(59) // below the legal minimum, floored at 60
	require.Len(t, p.Header, 60)
	p = r.Next(101) // odd, rounded down to even
	require.Len(t, p.Header, 100)
}

func TestSchedulerRunTickSendsQueuedPacketsAndPauseFillsIdleRings(t *testing.T) {
	sim := nic.NewSim()
	sink := nic.NewSim()
	sim.Connect(sink)

	ringA := NewRing(16)
	ringB := NewRing(16)
	require.True(t, ringA.Enqueue(&nic.Packet{Header: []byte{1}}))

	lc := &Lcore{
		ID:     0,
		Rings:  map[int]*Ring{0: ringA, 1: ringB},
		Budget: map[int]*Budget{0: NewBudget(1500, 1), 1: NewBudget(1500, 1)},
		Rotor:  NewRotor([6]byte{2, 0, 0, 0, 0, 1}, 1),
	}
	s := NewScheduler(sim, 0, []*Lcore{lc})

	require.NoError(t, s.RunTick(context.Background(), time.Now()))

	rx, err := sink.RXBurst(0, 16)
	require.NoError(t, err)
	require.Len(t, rx, 2) // one real packet from ringA, one pause frame filling ringB

	sawPause := false
	for _, p := range rx {
		if p.IsPause {
			sawPause = true
		}
	}
	require.True(t, sawPause)
}

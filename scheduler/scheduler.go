package scheduler

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/OpenVisualCloud/Media-Transport-Library-sub001/nic"
)

// epochCutWindow is how close to the end of a burst-build pass the
// scheduler stops accepting new work and cuts the burst, leaving headroom
// for the TX syscall/doorbell itself (spec.md §4.3 "burst cut" guard).
// The original cuts at a fixed nanosecond offset against a busy-polled
// hardware clock; time.Now()'s own call overhead dwarfs that on a
// general-purpose Go runtime, so the window is widened to something a
// wall-clock check can actually observe.
const epochCutWindow = 100 * time.Microsecond

// staleTimestampNs is how far beyond one TPRS epoch a packet's explicit
// TxTime may lag before the scheduler clears it and sends ASAP instead of
// holding it for a stale rate-limit slot (spec.md §4.3, "34ms" guard).
const staleTimestampNs = 34 * int64(time.Millisecond)

// Lcore is one scheduling worker: it owns a disjoint subset of rings and
// drives them through the prepare/commit two-phase barrier every tick.
type Lcore struct {
	ID     int
	Rings  map[int]*Ring
	Budget map[int]*Budget
	Rotor  *Rotor

	mu      sync.Mutex
	prepped []*nic.Packet
	cursor  *Cursor
}

// Scheduler coordinates a set of Lcores pacing packets onto one Driver.
// Each tick runs in three phases guarded by a shared barrier: ringStart
// (workers may begin pulling from their rings), ringBarrier1 (all workers
// have finished preparing their burst and findings are visible), and
// ringBarrier2 (the burst has been hand off to the driver and workers may
// advance their budgets for the next tick). This mirrors the three-counter
// handoff the original's per-lcore dispatch loop uses to avoid a session
// being serviced by two lcores in the same tick (spec.md §4.3).
type Scheduler struct {
	Driver  nic.Driver
	Lcores  []*Lcore
	TXQueue int

	// admission bounds how many lcores may be mid-prepare at once; with
	// len(Lcores) permits it is a no-op gate, but callers that want to
	// throttle burst-building concurrency (e.g. during a reconfiguration)
	// can construct Scheduler with a smaller value via WithConcurrency.
	admission *semaphore.Weighted
}

// NewScheduler creates a Scheduler over lcores, by default allowing every
// lcore to prepare its burst concurrently.
func NewScheduler(driver nic.Driver, txQueue int, lcores []*Lcore) *Scheduler {
	return &Scheduler{
		Driver:    driver,
		Lcores:    lcores,
		TXQueue:   txQueue,
		admission: semaphore.NewWeighted(int64(len(lcores))),
	}
}

// WithConcurrency caps how many lcores may prepare a burst simultaneously.
func (s *Scheduler) WithConcurrency(n int64) *Scheduler {
	s.admission = semaphore.NewWeighted(n)
	return s
}

// RunTick drives one scheduling round: every lcore prepares its burst
// (phase ringStart -> ringBarrier1), then the scheduler hands the combined
// burst to the driver and releases the lcores to account for it (phase
// ringBarrier1 -> ringBarrier2). now is the wall/hardware time this tick
// is serviced at.
func (s *Scheduler) RunTick(ctx context.Context, now time.Time) error {
	eg, egCtx := errgroup.WithContext(ctx)

	// Phase ringStart -> ringBarrier1: each lcore independently builds its
	// burst, bounded by the admission semaphore.
	for _, lc := range s.Lcores {
		lc := lc
		eg.Go(func() error {
			if err := s.admission.Acquire(egCtx, 1); err != nil {
				return err
			}
			defer s.admission.Release(1)
			lc.prepareBurst(now)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	// Phase ringBarrier1 -> ringBarrier2: merge every lcore's prepared
	// burst and hand it to the driver in one TXBurst call, retrying until
	// the whole burst is accepted (spec.md §7, the data plane's one retry).
	var combined []*nic.Packet
	for _, lc := range s.Lcores {
		combined = append(combined, lc.drainPrepared()...)
	}
	if len(combined) == 0 {
		return nil
	}
	for len(combined) > 0 {
		n, err := s.Driver.TXBurst(s.TXQueue, combined)
		if err != nil {
			return err
		}
		if n == 0 {
			log.Warnf("scheduler: TXBurst accepted 0 of %d packets on queue %d, retrying", len(combined), s.TXQueue)
		}
		combined = combined[n:]
	}
	return nil
}

// prepareBurst walks every ring this lcore owns in the Cursor's fixed
// round-robin order, servicing a ring only if its accrued Budget can
// afford the packets sitting at its head, and falling back to a PAUSE
// frame otherwise (no budget installed for a ring means it is
// unrestricted and always serviced). Stale TxTime values are cleared per
// the staleTimestampNs guard. Walking the Cursor's order rather than
// ranging over the Rings map keeps dispatch order deterministic tick to
// tick (spec.md §1 "deterministic round-robin"; §4.3 step 2a).
func (lc *Lcore) prepareBurst(now time.Time) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	stale := lc.cursor == nil || lc.cursor.Len() != len(lc.Rings)
	if !stale {
		for _, sl := range lc.cursor.slots {
			if _, ok := lc.Rings[sl.ringID]; !ok {
				stale = true
				break
			}
		}
	}
	if stale {
		ids := make([]int, 0, len(lc.Rings))
		for id := range lc.Rings {
			ids = append(ids, id)
		}
		lc.cursor = BuildCursor(ids, int64(time.Second))
	}

	deadline := now.Add(epochCutWindow)
	for _, id := range lc.cursor.Order() {
		ring := lc.Rings[id]
		if time.Now().After(deadline) {
			break
		}
		b := lc.Budget[id]
		if b != nil {
			b.Accrue()
		}
		pauseSize := pauseFrameSize
		if b != nil {
			pauseSize = int(b.TickBytes())
		}

		peeked := ring.PeekBulk()
		if len(peeked) == 0 {
			if lc.Rotor != nil {
				lc.prepped = append(lc.prepped, lc.Rotor.Next(pauseSize))
			}
			continue
		}
		if b != nil {
			var size int64
			for _, p := range peeked {
				size += int64(len(p.Header) + len(p.Payload))
			}
			if !b.Spend(size) {
				// Budget exhausted for this tick: leave the packets
				// queued and fill this ring's slot with a PAUSE instead
				// (spec.md §4.3 P2 conservation).
				if lc.Rotor != nil {
					lc.prepped = append(lc.prepped, lc.Rotor.Next(pauseSize))
				}
				continue
			}
		}

		pkts, _ := ring.DequeueBulk()
		for _, p := range pkts {
			if p.TxTime != 0 && now.UnixNano()-p.TxTime > staleTimestampNs {
				p.TxTime = 0
			}
		}
		lc.prepped = append(lc.prepped, pkts...)
	}
}

// drainPrepared returns and clears this tick's prepared burst.
func (lc *Lcore) drainPrepared() []*nic.Packet {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	out := lc.prepped
	lc.prepped = nil
	return out
}

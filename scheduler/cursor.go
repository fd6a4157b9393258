package scheduler

import "sort"

// slot is one entry of a Cursor's schedule table: the ring that should be
// serviced once the epoch-relative time reaches offsetNs.
type slot struct {
	offsetNs int64
	ringID   int
}

// Cursor maps a nanosecond offset within the current TPRS epoch to the
// ring that is due for service, the Go equivalent of the original's
// dispatch_time_cursor ring-threshold table. It is rebuilt whenever the
// session set changes (spec.md §4.3 "Timeslot assignment"); looking a
// timestamp up against an unchanged table never allocates.
type Cursor struct {
	slots []slot
}

// BuildCursor sorts ringIDs ascending and lays them evenly across one TPRS
// epoch of epochNs, so consecutive lookups walk the table linearly rather
// than jumping around it.
func BuildCursor(ringIDs []int, epochNs int64) *Cursor {
	c := &Cursor{}
	if len(ringIDs) == 0 {
		return c
	}
	ids := append([]int(nil), ringIDs...)
	sort.Ints(ids)
	step := epochNs / int64(len(ids))
	c.slots = make([]slot, len(ids))
	for i, id := range ids {
		c.slots[i] = slot{offsetNs: int64(i) * step, ringID: id}
	}
	return c
}

// RingAt returns the ring ID due for service at epoch-relative offsetNs,
// and whether the table has any entries at all.
func (c *Cursor) RingAt(offsetNs int64) (int, bool) {
	if len(c.slots) == 0 {
		return 0, false
	}
	// last slot whose offset is <= offsetNs
	idx := sort.Search(len(c.slots), func(i int) bool {
		return c.slots[i].offsetNs > offsetNs
	}) - 1
	if idx < 0 {
		idx = len(c.slots) - 1
	}
	return c.slots[idx].ringID, true
}

// Len reports how many ring entries the cursor currently holds.
func (c *Cursor) Len() int {
	return len(c.slots)
}

// Order returns the ring IDs in the cursor's schedule order: the fixed,
// deterministic round-robin sequence prepareBurst walks every tick,
// independent of any map iteration order (spec.md §1 "deterministic
// round-robin").
func (c *Cursor) Order() []int {
	ids := make([]int, len(c.slots))
	for i, s := range c.slots {
		ids[i] = s.ringID
	}
	return ids
}

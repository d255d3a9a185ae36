package reserv

import "limits"
import "util"

// populate.go implements the population engine (C6): setting/clearing a
// single slot's bit and the shared LRU-update procedure that both
// directions of travel (populate, depopulate) drive. Callers must hold
// rv's shard lock across Populate/Depopulate; the LRU-update step takes
// the free-queue lock internally only when it needs to touch a queue or
// the small-page allocator.

type step_t int

const (
	stepPop step_t = iota
	stepDepop
)

/// Populate sets slot i of rv as in use. Preconditions: the caller holds
/// rv's shard lock, rv.Object != nil, popmap bit i is clear, and popcnt <
/// N. These are asserted, not recovered from — per the spec, populate
/// cannot fail.
func (t *Table_t) Populate(rv int32, i int) {
	r := t.rvAt(rv)
	t.assert(r.Object != nil, "reserv: populate on unbound reservation")
	t.assert(!r.popmapTest(i), "reserv: populate of already-populated slot")
	t.assert(r.Popcnt < N, "reserv: populate of full reservation")

	r.popmapSet(i)
	r.Popcnt++
	t.lruUpdate(rv, stepPop)
}

/// Depopulate clears slot i of rv. Preconditions mirror Populate's.
func (t *Table_t) Depopulate(rv int32, i int) {
	r := t.rvAt(rv)
	t.assert(r.Object != nil, "reserv: depopulate on unbound reservation")
	t.assert(r.popmapTest(i), "reserv: depopulate of already-clear slot")
	t.assert(r.Popcnt > 0, "reserv: depopulate of empty reservation")

	r.popmapClear(i)
	r.Popcnt--
	t.lruUpdate(rv, stepDepop)
}

// lruUpdate is the procedure described in spec.md 4.5, run after every
// Populate/Depopulate call while still holding rv's shard lock. step is
// accepted for documentation at call sites; the four branches below
// don't otherwise distinguish direction of travel.
func (t *Table_t) lruUpdate(rv int32, step step_t) {
	r := t.rvAt(rv)
	switch {
	case r.Popcnt == N:
		t.LockFreeq()
		onQueue := r.flags&(flagActive|flagInactive) != 0
		t.assert(onQueue, "reserv: full reservation missing from LRU")
		t.lruUnlink(rv)
		t.UnlockFreeq()
		t.phys.SetPsind(r.Pages, 1)

	case r.Popcnt == 0:
		seqBegin(r)
		obj := r.Object
		r.Object = nil
		r.Pindex = 0
		seqEnd(r)

		t.LockFreeq()
		obj.RemoveRv(rv)
		if r.flags&(flagActive|flagInactive) != 0 {
			t.lruUnlink(rv)
		}
		t.phys.FreeContig(r.Pages, N)
		t.UnlockFreeq()
		limits.Syslimit.Reservations.Give()
		t.Freed.Inc()

	case r.flags&flagActive == 0:
		// The first partial population of a fresh reservation, a
		// demotion away from full population, or a touch of a reservation
		// on the inactive queue. SetPsind clears the large-page hint after
		// a demotion and is a no-op otherwise.
		t.phys.SetPsind(r.Pages, 0)
		r.Actcnt = 2
		t.LockFreeq()
		if r.flags&flagInactive != 0 {
			t.lruUnlink(rv)
		}
		t.lruAppend(rv, flagActive)
		t.UnlockFreeq()

	default:
		r.Actcnt = util.Min(r.Actcnt+1, ACT_MAX)
	}
}

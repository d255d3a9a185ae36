package reserv

// break.go implements tear-down and reclaim (C8) plus the handful of
// external-interface operations (FreePage, Rename, IsPageFree,
// Level/LevelIffullpop) that query or unwind a single page's membership
// in a reservation.

import "limits"
import "mem"
import "vmobj"

/// IsPageFree reports whether the small page at pa is currently
/// unallocated at the small-page-allocator level. The caller needs no
/// lock; the small-page allocator's own lock is taken internally.
func (t *Table_t) IsPageFree(pa mem.Pa_t) bool {
	return t.phys.IsFree(pa)
}

/// Level returns 0 for every page (the only level this design supports)
/// and -1 if pa does not belong to a valid reservation-table entry at
/// all (mirrors vm_reserv_level's ⊥ case).
func (t *Table_t) Level(pa mem.Pa_t) int {
	if _, ok := t.reservationAt(pa); !ok {
		return -1
	}
	return 0
}

/// LevelIffullpop returns 0 if pa belongs to a fully populated
/// reservation (eligible for superpage promotion), else -1.
func (t *Table_t) LevelIffullpop(pa mem.Pa_t) int {
	rv, ok := t.reservationAt(pa)
	if !ok {
		return -1
	}
	t.LockShard(rv)
	full := t.rvAt(rv).Popcnt == N
	t.UnlockShard(rv)
	if full {
		return 0
	}
	return -1
}

/// FreePage releases a page previously returned by AllocPage/AllocContig.
/// It reports whether the page belonged to a reservation at all; if not,
/// the caller is responsible for returning it directly to the small-page
/// allocator. The caller must hold the owning object's write-lock if the
/// page has one.
func (t *Table_t) FreePage(p *vmobj.Page_t) bool {
	rv, ok := t.reservationAt(p.Phys)
	if !ok {
		return false
	}
	t.LockShard(rv)
	r := t.rvAt(rv)
	if r.Object != p.Object {
		t.UnlockShard(rv)
		return false
	}
	index := int(p.Phys-r.Pages) >> mem.PGSHIFT
	p.Object.RemovePage(p)
	t.Depopulate(rv, index)
	t.UnlockShard(rv)
	return true
}

/// Rename transfers a page's reservation slot from oldObject/oldOffset
/// to newObject at the page's existing pindex minus oldOffset. The
/// caller must hold newObject's write-lock. Unlike a depopulate followed
/// by a fresh populate, the whole reservation the page belongs to moves
/// with it: its Object, Pindex, and object-list membership are re-homed
/// under the reservation's seq brackets, exactly as vm_reserv_rename
/// re-homes the reservation rather than just the one page.
func (t *Table_t) Rename(p *vmobj.Page_t, newObject *vmobj.Object_t, oldObject *vmobj.Object_t, oldOffset uint64) {
	rv, ok := t.reservationAt(p.Phys)
	if !ok {
		oldObject.RemovePage(p)
		p.Pindex -= oldOffset
		newObject.InsertPage(p)
		return
	}

	t.LockShard(rv)
	r := t.rvAt(rv)
	t.assert(r.Object == oldObject, "reserv: rename source mismatch")
	index := int(p.Phys-r.Pages) >> mem.PGSHIFT
	t.assert(r.popmapTest(index), "reserv: rename of unpopulated slot")

	seqBegin(r)
	r.Object = newObject
	r.Pindex -= oldOffset
	seqEnd(r)

	t.LockFreeq()
	oldObject.RemoveRv(rv)
	newObject.AddRv(rv)
	t.UnlockFreeq()
	t.UnlockShard(rv)

	oldObject.RemovePage(p)
	p.Pindex -= oldOffset
	newObject.InsertPage(p)
}

// break_ tears down a reservation: unlinks it from its object, keeps one
// slot populated on behalf of the caller if keep >= 0, and returns every
// other free run to the small-page allocator. Preconditions: free-queue
// and rv's shard lock held; rv must not be on any LRU queue.
func (t *Table_t) break_(rv int32, keep int) {
	r := t.rvAt(rv)
	obj := r.Object
	t.assert(obj != nil, "reserv: break of unbound reservation")
	t.assert(r.flags&(flagActive|flagInactive) == 0, "reserv: break of queued reservation")

	obj.RemoveRv(rv)
	seqBegin(r)
	r.Object = nil
	r.Pindex = 0
	seqEnd(r)
	limits.Syslimit.Reservations.Give()

	if keep >= 0 {
		r.popmapSet(keep)
		r.Popcnt++
	}

	for _, run := range r.freeRuns() {
		pa := r.Pages + mem.Pa_t(run.Lo)<<mem.PGSHIFT
		t.phys.FreeContig(pa, run.Hi-run.Lo)
	}
	// keep's bit only existed to keep its page out of the runs walked
	// above; the record itself ends up fully free either way.
	r.popmapClearAll()
	r.Popcnt = 0
	t.phys.SetPsind(r.Pages, 0)

	t.Broken.Inc()
}

/// reclaim dequeues a partial reservation from whichever LRU it is on
/// and breaks it entirely (keep = none). Preconditions: free-queue and
/// rv's shard lock held.
func (t *Table_t) reclaim(rv int32) {
	t.lruUnlink(rv)
	t.break_(rv, -1)
}

/// BreakAll tears down every reservation belonging to object, returning
/// their free slots to the small-page allocator. The caller must hold
/// object's write-lock.
func (t *Table_t) BreakAll(object *vmobj.Object_t) {
	t.LockFreeq()
	defer t.UnlockFreeq()

	for len(object.Rvq) > 0 {
		rv := int32(object.Rvq[0])
		if !t.TryLockShard(rv) {
			// Take the shard lock in order (shard before free-queue),
			// then re-check that rv still belongs to object.
			t.UnlockFreeq()
			t.LockShard(rv)
			t.LockFreeq()
			if t.rvAt(rv).Object != object {
				t.UnlockShard(rv)
				continue
			}
		}
		r := t.rvAt(rv)
		if r.flags&(flagActive|flagInactive) != 0 {
			t.lruUnlink(rv)
		}
		t.break_(rv, -1)
		t.UnlockShard(rv)
	}
}

/// ReclaimInactive scans the inactive queue head-first for a reservation
/// it can lock and reclaim, falling back to the active queue (a
/// best-effort path that may evict a recently touched reservation) when
/// the inactive queue yields nothing. Returns true on the first
/// reservation reclaimed.
func (t *Table_t) ReclaimInactive() bool {
	if rv, ok := t.scanQueueForReclaim(func() int32 { return t.inactiveHead }, flagInactive); ok {
		_ = rv
		return true
	}
	// Active-queue fallback: best-effort, documented in spec.md 4.7/9 as
	// potentially breaking a reservation that was touched moments ago.
	if rv, ok := t.scanQueueForReclaim(func() int32 { return t.activeHead }, flagActive); ok {
		_ = rv
		return true
	}
	return false
}

func (t *Table_t) scanQueueForReclaim(head func() int32, want flags_t) (int32, bool) {
	t.LockFreeq()
	rv := head()
	for rv != nilIdx {
		r := t.rvAt(rv)
		if r.IsMarker() {
			rv = r.lruNext
			continue
		}
		next := r.lruNext
		if t.TryLockShard(rv) {
			if r.flags&want != 0 {
				t.reclaim(rv)
				t.UnlockShard(rv)
				t.UnlockFreeq()
				t.Reclaimed.Inc()
				return rv, true
			}
			t.UnlockShard(rv)
		} else {
			// Standard drop-and-retry dance: give up the free-queue lock
			// so the shard lock holder can make progress, then resume.
			t.UnlockFreeq()
			t.LockShard(rv)
			t.UnlockShard(rv)
			t.LockFreeq()
		}
		rv = next
	}
	t.UnlockFreeq()
	return nilIdx, false
}

/// ReclaimContig scans the inactive queue for a reservation that overlaps
/// [low, high) and contains a free run of at least npages pages
/// satisfying align/boundary, and reclaims the whole reservation on the
/// first match. The free run itself is not required to lie inside
/// [low, high). Guarded by EnableReclaimContig per the original's MPASS(0),
/// which leaves this path unreachable until a caller side is defined.
func (t *Table_t) ReclaimContig(npages int, low, high, align, boundary mem.Pa_t) bool {
	if !t.EnableReclaimContig {
		return false
	}

	alignPages := 1
	if align > mem.Pa_t(mem.PGSIZE) {
		alignPages = int(align) / mem.PGSIZE
	}
	boundaryPages := 0
	if boundary != 0 {
		boundaryPages = int(boundary) / mem.PGSIZE
	}

	t.LockFreeq()
	rv := t.inactiveHead
	for rv != nilIdx {
		r := t.rvAt(rv)
		next := r.lruNext
		if r.IsMarker() {
			rv = next
			continue
		}
		withinRange := r.Pages+mem.Pa_t(N)<<mem.PGSHIFT > low && r.Pages < orMax(high)
		if withinRange && t.TryLockShard(rv) {
			if r.flags&flagInactive != 0 {
				if _, ok := r.findFreeRun(npages, alignPages, boundaryPages); ok {
					t.reclaim(rv)
					t.UnlockShard(rv)
					t.UnlockFreeq()
					t.Reclaimed.Inc()
					return true
				}
			}
			t.UnlockShard(rv)
		}
		rv = next
	}
	t.UnlockFreeq()
	return false
}

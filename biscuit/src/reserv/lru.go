package reserv

import "strconv"

// lru.go implements the two LRU FIFOs (C5): active and inactive queues
// of partially populated reservations, linked through lruPrev/lruNext
// indices into the reservation table. Insertion is always at the tail,
// so the head is the least-recently-touched entry. All of these
// operations assume the free-queue lock is already held by the caller.

func (t *Table_t) lruUnlink(rv int32) {
	r := t.rvAt(rv)
	var head, tail *int32
	switch {
	case r.flags&flagActive != 0:
		head, tail = &t.activeHead, &t.activeTail
	case r.flags&flagInactive != 0:
		head, tail = &t.inactiveHead, &t.inactiveTail
	default:
		panic("reserv: lruUnlink of record on no queue")
	}

	if r.lruPrev != nilIdx {
		t.rvAt(r.lruPrev).lruNext = r.lruNext
	} else {
		*head = r.lruNext
	}
	if r.lruNext != nilIdx {
		t.rvAt(r.lruNext).lruPrev = r.lruPrev
	} else {
		*tail = r.lruPrev
	}
	r.lruPrev, r.lruNext = nilIdx, nilIdx
	r.flags &^= flagActive | flagInactive
}

func (t *Table_t) lruAppend(rv int32, f flags_t) {
	r := t.rvAt(rv)
	r.lruPrev, r.lruNext = nilIdx, nilIdx
	var head, tail *int32
	if f == flagActive {
		head, tail = &t.activeHead, &t.activeTail
	} else {
		head, tail = &t.inactiveHead, &t.inactiveTail
	}
	if *tail == nilIdx {
		*head = rv
	} else {
		t.rvAt(*tail).lruNext = rv
		r.lruPrev = *tail
	}
	*tail = rv
	r.flags |= f
}

/// moveToActive unlinks rv from whichever queue it is on (if any) and
/// appends it to the active queue's tail.
func (t *Table_t) moveToActive(rv int32) {
	r := t.rvAt(rv)
	if r.flags&(flagActive|flagInactive) != 0 {
		t.lruUnlink(rv)
	}
	t.lruAppend(rv, flagActive)
}

/// moveToInactive unlinks rv from the active queue and appends it to the
/// inactive queue's tail.
func (t *Table_t) moveToInactive(rv int32) {
	t.lruUnlink(rv)
	t.lruAppend(rv, flagInactive)
}

/// insertMarker places the scan marker at the head of the active queue.
func (t *Table_t) insertMarker(rv int32) {
	t.markerIdx = rv
	r := t.rvAt(rv)
	r.flags = flagMarker | flagActive
	r.lruPrev = nilIdx
	r.lruNext = t.activeHead
	if t.activeHead != nilIdx {
		t.rvAt(t.activeHead).lruPrev = rv
	} else {
		t.activeTail = rv
	}
	t.activeHead = rv
}

/// unlinkMarker removes the marker from wherever it sits in the active
/// queue without touching its flags, so insertMarkerBefore can relink it.
func (t *Table_t) unlinkMarker() {
	r := t.rvAt(t.markerIdx)
	if r.lruPrev != nilIdx {
		t.rvAt(r.lruPrev).lruNext = r.lruNext
	} else {
		t.activeHead = r.lruNext
	}
	if r.lruNext != nilIdx {
		t.rvAt(r.lruNext).lruPrev = r.lruPrev
	} else {
		t.activeTail = r.lruPrev
	}
	r.lruPrev, r.lruNext = nilIdx, nilIdx
}

/// insertMarkerBefore relinks the marker into the active queue
/// immediately before rv, or at the head when rv is nilIdx.
func (t *Table_t) insertMarkerBefore(rv int32) {
	t.unlinkMarker()
	mi := t.markerIdx
	m := t.rvAt(mi)
	if rv == nilIdx {
		m.lruNext = t.activeHead
		m.lruPrev = nilIdx
		if t.activeHead != nilIdx {
			t.rvAt(t.activeHead).lruPrev = mi
		} else {
			t.activeTail = mi
		}
		t.activeHead = mi
		return
	}
	target := t.rvAt(rv)
	m.lruNext = rv
	m.lruPrev = target.lruPrev
	if target.lruPrev != nilIdx {
		t.rvAt(target.lruPrev).lruNext = mi
	} else {
		t.activeHead = mi
	}
	target.lruPrev = mi
}

/// DumpLRU renders both queues as a human-readable string for debugging
/// (spec's "read-only human-readable dump" observability surface).
func (t *Table_t) DumpLRU() string {
	t.LockFreeq()
	defer t.UnlockFreeq()

	render := func(head int32) string {
		s := ""
		for i := head; i != nilIdx; i = t.rvAt(i).lruNext {
			r := t.rvAt(i)
			if r.IsMarker() {
				s += "[marker] "
				continue
			}
			s += "[popcnt=" + strconv.Itoa(r.Popcnt) + " actcnt=" + strconv.Itoa(r.Actcnt) + "] "
		}
		return s
	}
	return "active: " + render(t.activeHead) + "\ninactive: " + render(t.inactiveHead) + "\n"
}

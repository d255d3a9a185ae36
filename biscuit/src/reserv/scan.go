package reserv

// scan.go implements the aging scanner (C9): invoked periodically (by
// cmd/pagedaemon in this repository) with a target count of reservations
// to migrate from the active queue to the inactive queue as their
// activation counts decay to zero.

/// Scan walks the active queue from the scan marker, decrementing the
/// activation count of each non-marker reservation it can try-lock and
/// demoting any that reach zero to the inactive queue, until target
/// reservations have been demoted or the queue is exhausted. It leaves
/// the scan marker just before the first unvisited reservation so the
/// next call resumes from there, or at the head of the active queue when
/// the walk reached the end.
func (t *Table_t) Scan(target int) {
	t.LockFreeq()
	defer t.UnlockFreeq()

	start := t.rvAt(t.markerIdx).lruNext
	if start == nilIdx {
		start = t.activeHead
	}

	rv := start
	resumeAt := nilIdx // the first not-yet-visited entry once the loop stops
	for rv != nilIdx && target > 0 {
		r := t.rvAt(rv)
		if r.IsMarker() {
			rv = r.lruNext
			continue
		}
		next := r.lruNext
		if t.TryLockShard(rv) {
			if r.Actcnt > 0 {
				r.Actcnt--
			}
			if r.Actcnt == 0 {
				t.moveToInactive(rv)
				target--
			}
			t.UnlockShard(rv)
		}
		resumeAt = next
		rv = next
	}
	if rv != nilIdx {
		resumeAt = rv
	}

	t.insertMarkerBefore(resumeAt)
}

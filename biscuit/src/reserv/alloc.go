package reserv

// alloc.go implements the allocator front-ends (C7): AllocPage and
// AllocContig. Both take an object write-lock held by the caller (this
// package never takes it itself; vmobj.Object_t's mutex is the caller's
// responsibility to hold across the call, per spec.md 4.6/6) plus the
// object's page immediately preceding the target pindex, so an existing
// reservation can be found cheaply via a lock-free seq read before
// falling back to creating one.

import "limits"
import "mem"
import "util"
import "vmobj"

// probe implements the "reservation probe" shared by both front-ends. It
// returns the superpage-aligned base pindex of the hypothetical
// reservation (first), the index of an existing reservation that already
// covers it if found, and ok=false when the request is infeasible
// outright (no room for a new reservation either).
func (t *Table_t) probe(object *vmobj.Object_t, pindex uint64, mpred *vmobj.Page_t) (first uint64, existing int32, ok bool) {
	first = pindex - pindex%N
	if pindex < pindex%N {
		// Can't underflow with unsigned pindex; kept as a literal
		// rendering of the spec's defensive check.
		return 0, nilIdx, false
	}

	var leftcap uint64
	rightcap := ^uint64(0)

	if mpred != nil {
		if rv, isRes := t.reservationAt(mpred.Phys); isRes {
			robj, rpindex, sok := SeqRead(t.rvAt(rv))
			if sok && robj == object && rpindex <= mpred.Pindex && mpred.Pindex < rpindex+N {
				if rpindex == first {
					return first, rv, true
				}
				leftcap = rpindex + N
			} else {
				leftcap = mpred.Pindex + 1
			}
		} else {
			leftcap = mpred.Pindex + 1
		}
		if leftcap > first {
			return first, nilIdx, false
		}
	}

	if succ := object.Succ(pindex); succ != nil {
		if rv, isRes := t.reservationAt(succ.Phys); isRes {
			robj, rpindex, sok := SeqRead(t.rvAt(rv))
			if sok && robj == object && rpindex == first {
				return first, rv, true
			}
			if sok && robj == object {
				rightcap = rpindex
			} else {
				rightcap = succ.Pindex
			}
		} else {
			rightcap = succ.Pindex
		}
		if first+N > rightcap {
			return first, nilIdx, false
		}
	}

	return first, nilIdx, true
}

// reservationAt maps a physical address to its table index, returning
// false if the index falls outside the table or the record is invalid.
func (t *Table_t) reservationAt(p mem.Pa_t) (int32, bool) {
	idx := tableIndex(p)
	if idx < 0 || int(idx) >= len(t.recs) {
		return nilIdx, false
	}
	if !t.recs[idx].Valid {
		return nilIdx, false
	}
	return idx, true
}

// takeReservations consumes n slots from the system-wide outstanding
// reservation limit (limits.Syslimit.Reservations), giving back whatever it
// already took the moment any single Take fails. This is the resource-
// exhaustion gate spec.md 7(b) describes for the small-page allocator,
// extended to the reservation table itself: a box with 1<<16 outstanding
// reservations configured (see limits.MkSysLimit) behaves like a kernel with
// a finite KVA range reserved for the reservation array.
func takeReservations(n int) bool {
	for i := 0; i < n; i++ {
		if !limits.Syslimit.Reservations.Take() {
			for j := 0; j < i; j++ {
				limits.Syslimit.Reservations.Give()
			}
			return false
		}
	}
	return true
}

func giveReservations(n int) {
	for i := 0; i < n; i++ {
		limits.Syslimit.Reservations.Give()
	}
}

func isVnodeTail(object *vmobj.Object_t, first uint64) bool {
	o := object
	for o != nil {
		if o.Type == vmobj.OBJT_VNODE {
			return first+N > o.Size
		}
		o = o.Backing
	}
	return false
}

/// AllocPage implements the single-page allocation front-end. The
/// caller must hold object's write-lock. Returns nil on any feasibility,
/// resource-exhaustion, or lost-race failure.
func (t *Table_t) AllocPage(object *vmobj.Object_t, pindex uint64, mpred *vmobj.Page_t) *vmobj.Page_t {
	if !object.CanSuperpage() {
		return nil
	}

	first, rv, ok := t.probe(object, pindex, mpred)
	if !ok {
		return nil
	}

	index := int(pindex - first)

	if rv != nilIdx {
		t.LockShard(rv)
		r := t.rvAt(rv)
		if r.Object != object || r.Pindex != first || r.popmapTest(index) {
			t.UnlockShard(rv)
			return nil
		}
		t.Populate(rv, index)
		pa := r.Pages + mem.Pa_t(index)<<mem.PGSHIFT
		t.UnlockShard(rv)
		return t.bindPage(object, pindex, pa)
	}

	if first+N > object.Size && isVnodeTail(object, first) {
		return nil
	}

	base, pa, okAlloc := t.phys.AllocContig(N, 0, 0, SuperpageBytes, 0)
	if !okAlloc {
		return nil
	}
	_ = base

	newRv := tableIndex(pa)
	if newRv < 0 || int(newRv) >= len(t.recs) || !t.recs[newRv].Valid {
		// The small-page allocator handed back memory this table was
		// never sized to cover; fail rather than index out of range.
		t.phys.FreeContig(pa, N)
		return nil
	}

	if !takeReservations(1) {
		t.phys.FreeContig(pa, N)
		return nil
	}

	t.LockShard(newRv)
	r := t.rvAt(newRv)
	t.assert(r.Object == nil, "reserv: fresh reservation already bound")
	seqBegin(r)
	r.Object = object
	r.Pindex = first
	seqEnd(r)
	t.UnlockShard(newRv)

	t.LockFreeq()
	object.AddRv(newRv)
	t.UnlockFreeq()
	if t.ObjIndex != nil {
		t.ObjIndex.Set(object.ID.String(), int(newRv))
	}

	t.LockShard(newRv)
	t.Populate(newRv, index)
	t.UnlockShard(newRv)

	return t.bindPage(object, pindex, pa+mem.Pa_t(index)<<mem.PGSHIFT)
}

func (t *Table_t) bindPage(object *vmobj.Object_t, pindex uint64, pa mem.Pa_t) *vmobj.Page_t {
	p := vmobj.NewPage(pindex, pa)
	object.InsertPage(p)
	return p
}

/// AllocContig implements the contiguous allocation front-end: npages
/// pages satisfying align/boundary constraints within [low, high). The
/// caller must hold object's write-lock.
func (t *Table_t) AllocContig(object *vmobj.Object_t, pindex uint64, npages int, low, high, align, boundary mem.Pa_t, mpred *vmobj.Page_t) *vmobj.Page_t {
	if !object.CanSuperpage() || npages <= 0 || npages > N {
		return nil
	}

	off := int(pindex % N)
	pa := mem.Pa_t(off) << mem.PGSHIFT
	if align != 0 && pa%align != 0 {
		return nil
	}
	span := mem.Pa_t(npages) << mem.PGSHIFT
	if boundary != 0 && pa/boundary != (pa+span-1)/boundary {
		return nil
	}

	first, rv, ok := t.probe(object, pindex, mpred)
	if !ok {
		return nil
	}

	minpages := off + npages
	maxpages := util.Roundup(minpages, N)

	if rv != nilIdx {
		if off+npages > N {
			// A single existing reservation can never satisfy more than
			// N-1 additional slots past its own offset; spec.md 8 calls
			// this out explicitly as a found-branch boundary failure.
			return nil
		}
		t.LockShard(rv)
		r := t.rvAt(rv)
		fits := r.Object == object && r.Pindex == first
		if fits {
			for i := off; i < off+npages; i++ {
				if r.popmapTest(i) {
					fits = false
					break
				}
			}
		}
		rangeOK := fits && r.Pages >= low && r.Pages+mem.Pa_t(N)<<mem.PGSHIFT <= orMax(high)
		if !rangeOK {
			t.UnlockShard(rv)
			return nil
		}
		for i := off; i < off+npages; i++ {
			t.Populate(rv, i)
		}
		base := r.Pages + mem.Pa_t(off)<<mem.PGSHIFT
		t.UnlockShard(rv)
		return t.bindPage(object, pindex, base)
	}

	reqPages := maxpages
	if first+uint64(maxpages) > object.Size && isVnodeTail(object, first) {
		reqPages = minpages
	}

	allocAlign := align
	if allocAlign < SuperpageBytes {
		allocAlign = SuperpageBytes
	}
	allocBoundary := mem.Pa_t(0)
	if boundary > SuperpageBytes {
		allocBoundary = boundary
	}

	_, basepa, okAlloc := t.phys.AllocContig(reqPages, low, high, allocAlign, allocBoundary)
	if !okAlloc {
		return nil
	}

	nres := (reqPages + N - 1) / N
	if !takeReservations(nres) {
		t.phys.FreeContig(basepa, reqPages)
		return nil
	}

	var result *vmobj.Page_t
	for k := 0; k < nres; k++ {
		rvk := tableIndex(basepa + mem.Pa_t(k*N)<<mem.PGSHIFT)
		if rvk < 0 || int(rvk) >= len(t.recs) || !t.recs[rvk].Valid {
			giveReservations(nres)
			t.phys.FreeContig(basepa, reqPages)
			return nil
		}

		fk := first + uint64(k*N)
		t.LockShard(rvk)
		r := t.rvAt(rvk)
		t.assert(r.Object == nil, "reserv: fresh reservation already bound")
		seqBegin(r)
		r.Object = object
		r.Pindex = fk
		seqEnd(r)
		t.UnlockShard(rvk)

		t.LockFreeq()
		object.AddRv(rvk)
		t.UnlockFreeq()
		if t.ObjIndex != nil {
			t.ObjIndex.Set(object.ID.String(), int(rvk))
		}

		lo, hi := 0, N
		if k == 0 && off > 0 {
			lo = off
		}
		remaining := off + npages - k*N
		if remaining < N {
			hi = remaining
		}
		t.LockShard(rvk)
		for i := lo; i < hi; i++ {
			if i < 0 || i >= N {
				continue
			}
			t.Populate(rvk, i)
			// Bind every populated slot, not just the one the caller asked
			// for: a resident Page_t is what lets FreePage and Pred/Succ
			// see this slot later, matching AllocPage's single-page path.
			pa := r.Pages + mem.Pa_t(i)<<mem.PGSHIFT
			pg := t.bindPage(object, fk+uint64(i), pa)
			if result == nil {
				result = pg
			}
		}
		t.UnlockShard(rvk)
	}
	return result
}

func orMax(high mem.Pa_t) mem.Pa_t {
	if high == 0 {
		return ^mem.Pa_t(0)
	}
	return high
}

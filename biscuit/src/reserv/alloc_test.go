package reserv

import "testing"

import "mem"
import "vmobj"

// TestAllocPageFreshSingle covers spec.md 8's S1: a fresh system, a single
// AllocPage call, and the resulting reservation's state.
func TestAllocPageFreshSingle(t *testing.T) {
	table := newTestTable(t, 2)
	obj := newTestObject(N * 4)

	p := table.AllocPage(obj, 0, nil)
	if p == nil {
		t.Fatal("AllocPage: want a page, got nil")
	}

	rv, ok := table.reservationAt(p.Phys)
	if !ok {
		t.Fatal("returned page does not map to a valid reservation")
	}
	r := table.rvAt(rv)
	if r.Popcnt != 1 {
		t.Fatalf("Popcnt = %d, want 1", r.Popcnt)
	}
	if !r.popmapTest(0) {
		t.Fatal("bit 0 not set")
	}
	if r.flags&flagActive == 0 {
		t.Fatal("reservation not on active queue")
	}
	if r.Actcnt != 2 {
		t.Fatalf("Actcnt = %d, want 2", r.Actcnt)
	}
	found := false
	for _, id := range obj.Rvq {
		if int32(id) == rv {
			found = true
		}
	}
	if !found {
		t.Fatal("object.Rvq does not contain the new reservation")
	}
}

// TestAllocPageFillPromotes covers S2: filling every slot promotes the
// reservation to a large page and removes it from the LRU.
func TestAllocPageFillPromotes(t *testing.T) {
	table := newTestTable(t, 2)
	obj := newTestObject(N * 4)

	var mpred *vmobj.Page_t
	var rv int32 = -1
	for i := uint64(0); i < N; i++ {
		p := table.AllocPage(obj, i, mpred)
		if p == nil {
			t.Fatalf("AllocPage(%d) failed", i)
		}
		if rv == -1 {
			rv, _ = table.reservationAt(p.Phys)
		}
		mpred = p
	}

	r := table.rvAt(rv)
	if r.Popcnt != N {
		t.Fatalf("Popcnt = %d, want %d", r.Popcnt, N)
	}
	if r.flags&(flagActive|flagInactive) != 0 {
		t.Fatal("fully populated reservation still queued")
	}
	if table.phys.Psind(r.Pages) != 1 {
		t.Fatal("fully populated reservation's psind was not promoted")
	}
}

// TestAllocPageFreeBack covers S3: freeing one slot out of a full
// reservation demotes it back onto the active queue's tail.
func TestAllocPageFreeBack(t *testing.T) {
	table := newTestTable(t, 2)
	obj := newTestObject(N * 4)

	var mpred *vmobj.Page_t
	var first *vmobj.Page_t
	for i := uint64(0); i < N; i++ {
		p := table.AllocPage(obj, i, mpred)
		if p == nil {
			t.Fatalf("AllocPage(%d) failed", i)
		}
		if i == 0 {
			first = p
		}
		mpred = p
	}

	rv, ok := table.reservationAt(first.Phys)
	if !ok {
		t.Fatal("page does not map to a reservation")
	}

	if !table.FreePage(first) {
		t.Fatal("FreePage reported the page had no reservation")
	}

	r := table.rvAt(rv)
	if r.Popcnt != N-1 {
		t.Fatalf("Popcnt = %d, want %d", r.Popcnt, N-1)
	}
	if table.phys.Psind(r.Pages) != 0 {
		t.Fatal("psind not cleared on demotion")
	}
	if table.activeTail != rv {
		t.Fatalf("reservation not at active tail after demotion: activeTail=%d rv=%d", table.activeTail, rv)
	}
}

// TestAllocPageVnodeTail covers S4: a vnode-backed object refuses a
// reservation that would extend past its size.
func TestAllocPageVnodeTail(t *testing.T) {
	table := newTestTable(t, 2)
	obj := vmobj.NewObject(vmobj.OBJT_VNODE, 100, "file")

	if p := table.AllocPage(obj, 0, nil); p != nil {
		t.Fatal("AllocPage on a vnode tail should fail")
	}
}

// TestAllocPageLastSlotOfReservation relates to the "pindex < pindex mod N" boundary
// behaviour from spec.md 8; pindex is unsigned so this can only be
// exercised at pindex==0 with a hypothetically negative N, which can't
// happen, so instead this checks the mirror case: a pindex whose
// reservation-relative offset addresses exactly the last slot still
// succeeds (no off-by-one underflow in the probe).
func TestAllocPageLastSlotOfReservation(t *testing.T) {
	table := newTestTable(t, 2)
	obj := newTestObject(N * 4)

	p := table.AllocPage(obj, N-1, nil)
	if p == nil {
		t.Fatal("AllocPage at the last slot of a fresh reservation failed")
	}
	rv, _ := table.reservationAt(p.Phys)
	r := table.rvAt(rv)
	if !r.popmapTest(N - 1) {
		t.Fatal("expected bit N-1 set")
	}
}

// TestAllocPageSecondFillsSameReservation exercises the probe's FOUND path:
// a second AllocPage call adjacent to the first should populate the same
// reservation rather than creating a new one.
func TestAllocPageSecondFillsSameReservation(t *testing.T) {
	table := newTestTable(t, 2)
	obj := newTestObject(N * 4)

	p0 := table.AllocPage(obj, 0, nil)
	if p0 == nil {
		t.Fatal("first AllocPage failed")
	}
	p1 := table.AllocPage(obj, 1, p0)
	if p1 == nil {
		t.Fatal("second AllocPage failed")
	}

	rv0, _ := table.reservationAt(p0.Phys)
	rv1, _ := table.reservationAt(p1.Phys)
	if rv0 != rv1 {
		t.Fatal("adjacent pages ended up in different reservations")
	}
	if table.rvAt(rv0).Popcnt != 2 {
		t.Fatalf("Popcnt = %d, want 2", table.rvAt(rv0).Popcnt)
	}
}

// TestFreePageRoundTrip covers the round-trip property from spec.md 8: an
// AllocPage followed by FreePage on a reservation that had been empty
// fully frees the reservation back to the small-page allocator.
func TestFreePageRoundTrip(t *testing.T) {
	table := newTestTable(t, 2)
	obj := newTestObject(N * 4)

	p := table.AllocPage(obj, 0, nil)
	if p == nil {
		t.Fatal("AllocPage failed")
	}
	rv, _ := table.reservationAt(p.Phys)

	if !table.FreePage(p) {
		t.Fatal("FreePage reported no reservation")
	}

	r := table.rvAt(rv)
	if r.Popcnt != 0 || r.Object != nil {
		t.Fatalf("reservation not fully freed: popcnt=%d object=%v", r.Popcnt, r.Object)
	}
	if r.flags&(flagActive|flagInactive) != 0 {
		t.Fatal("freed reservation still queued")
	}
}

// TestAllocContigFullReservation exercises the boundary behaviour from
// spec.md 8: align=SuperpageBytes, pindex=0, npages=N produces exactly one
// fully populated reservation.
func TestAllocContigFullReservation(t *testing.T) {
	table := newTestTable(t, 2)
	obj := newTestObject(N * 4)

	p := table.AllocContig(obj, 0, N, 0, 0, mem.Pa_t(SuperpageBytes), 0, nil)
	if p == nil {
		t.Fatal("AllocContig failed")
	}
	rv, _ := table.reservationAt(p.Phys)
	r := table.rvAt(rv)
	if r.Popcnt != N {
		t.Fatalf("Popcnt = %d, want %d", r.Popcnt, N)
	}
	if table.phys.Psind(r.Pages) != 1 {
		t.Fatal("full reservation from AllocContig not promoted")
	}
	if r.flags&(flagActive|flagInactive) != 0 {
		t.Fatal("full reservation from AllocContig still queued")
	}
}

// TestAllocContigHonoursPhysicalWindow covers the miss branch: the
// allocator must constrain the small-page allocator's search to [low,
// high), not just check the range after the fact in the FOUND branch
// (spec.md §6's alloc_contig(npages, low, high, align, boundary)).
func TestAllocContigHonoursPhysicalWindow(t *testing.T) {
	table := newTestTable(t, 3)
	obj := newTestObject(N * 4)

	// Reservation 0's first page is permanently claimed by
	// mem.Phys_init's zero page, so it can never host a full N-page run;
	// restricting high to one SuperpageBytes window must fail outright
	// rather than spilling into reservation 1.
	if p := table.AllocContig(obj, 0, N, 0, mem.Pa_t(SuperpageBytes), mem.Pa_t(SuperpageBytes), 0, nil); p != nil {
		t.Fatal("AllocContig should fail when [low,high) cannot fit a full reservation")
	}

	// Restricting low to exclude reservation 0 must still succeed, landing
	// somewhere in [low, high).
	low := mem.Pa_t(SuperpageBytes)
	high := 3 * mem.Pa_t(SuperpageBytes)
	p := table.AllocContig(obj, 0, N, low, high, mem.Pa_t(SuperpageBytes), 0, nil)
	if p == nil {
		t.Fatal("AllocContig failed inside a feasible [low,high) window")
	}
	if p.Phys < low || p.Phys >= high {
		t.Fatalf("returned page %v outside requested window [%v,%v)", p.Phys, low, high)
	}
}

// TestAllocContigRejectsOversizeOnFound covers the boundary behaviour
// "npages > N-1 on the found branch fails": once a reservation already
// exists and holds one populated slot, a contiguous request spanning the
// whole reservation can no longer fit and must fail rather than spilling
// into a second reservation.
func TestAllocContigRejectsOversizeOnFound(t *testing.T) {
	table := newTestTable(t, 2)
	obj := newTestObject(N * 4)

	p0 := table.AllocPage(obj, 0, nil)
	if p0 == nil {
		t.Fatal("setup AllocPage failed")
	}

	// The existing reservation covers [0, N); requesting N more slots
	// starting at offset 1 would need N+1 total slots, one more than the
	// reservation can ever hold.
	if p := table.AllocContig(obj, 1, N, 0, 0, 0, 0, p0); p != nil {
		t.Fatal("AllocContig should fail when the request overruns the reservation")
	}
}

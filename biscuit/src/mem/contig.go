package mem

import "sync/atomic"

// contig.go implements the bitmap-based small-page allocator the
// reservation manager sits on top of. The teacher allocated single pages
// off a per-CPU linked free list; a reservation needs an aligned,
// contiguous run of N pages, which a linked list of loose pages can't
// produce without an unbounded search. A flat free bitmap with a
// shard-local scan cursor (percpu_t) is scanned page by page for each
// candidate start, while keeping sharded allocators from constantly
// colliding on the same words.

func bitSet(bitmap []uint64, i int) bool {
	return bitmap[i/64]&(uint64(1)<<uint(i%64)) != 0
}

func bitClear(bitmap []uint64, i int) {
	bitmap[i/64] &^= uint64(1) << uint(i%64)
}

func bitMark(bitmap []uint64, i int) {
	bitmap[i/64] |= uint64(1) << uint(i%64)
}

// _findrun scans the bitmap for a run of n consecutive free pages whose
// start page number is a multiple of (align/PGSIZE) and which, along with
// its run, does not straddle a multiple of (boundary/PGSIZE) when
// boundary is nonzero. start is the shard's cursor; if nothing is found
// from start onward the scan is retried once from floor, matching the
// teacher's preference to keep scans shard-local before falling back to
// a full sweep.
func (phys *Physmem_t) _findrun(n int, align, boundary Pa_t, start, floor int) (int, bool) {
	alignpg := 1
	if align > Pa_t(PGSIZE) {
		alignpg = int(align) / PGSIZE
	}
	boundarypg := 0
	if boundary != 0 {
		boundarypg = int(boundary) / PGSIZE
	}

	try := func(from int) (int, bool) {
		for base := from; base+n <= phys.npages; base++ {
			if alignpg > 1 && base%alignpg != 0 {
				continue
			}
			if boundarypg > 0 && base/boundarypg != (base+n-1)/boundarypg {
				continue
			}
			ok := true
			for i := base; i < base+n; i++ {
				if !bitSet(phys.bitmap, i) {
					ok = false
					break
				}
			}
			if ok {
				return base, true
			}
		}
		return 0, false
	}

	if pgn, ok := try(start); ok {
		return pgn, true
	}
	if start != floor {
		if pgn, ok := try(floor); ok {
			return pgn, true
		}
	}
	return 0, false
}

// _allocContig carves out n contiguous pages satisfying align/boundary,
// below maxaddr (0 means no limit), and returns the first page as a Pg_t
// plus its physical address. Callers must hold no lock; this method
// takes phys's lock itself.
func (phys *Physmem_t) _allocContig(n int, minaddr, maxaddr Pa_t, align, boundary Pa_t) (*Pg_t, Pa_t, bool) {
	phys.Lock()
	defer phys.Unlock()

	limit := phys.npages
	if maxaddr != 0 {
		mp := int(maxaddr) / PGSIZE
		if mp < limit {
			limit = mp
		}
	}
	minpg := 0
	if minaddr != 0 {
		minpg = int(minaddr) / PGSIZE
	}
	if align == 0 {
		align = Pa_t(PGSIZE)
	}

	shard := cpuHint() % len(phys.percpu)
	start := int(phys.percpu[shard].cursor)
	if start < minpg || start >= limit {
		start = minpg
	}

	saved := phys.npages
	phys.npages = limit
	pgn, ok := phys._findrun(n, align, boundary, start, minpg)
	phys.npages = saved
	if !ok {
		return nil, 0, false
	}

	for i := pgn; i < pgn+n; i++ {
		bitClear(phys.bitmap, i)
		phys.Pgs[i].Refcnt = 1
	}
	atomic.AddInt32(&phys.free, int32(-n))
	phys.percpu[shard].cursor = uint32(pgn + n)

	pa := Pa_t(pgn) << PGSHIFT
	return phys.Dmap(pa), pa, true
}

/// AllocContig allocates n physically contiguous, aligned pages whose
/// entire range falls within [low, high); low=0, high=0 means no
/// constraint on either end, matching the small-page allocator's
/// alloc_contig(npages, low, high, align, boundary) signature (spec.md
/// §6). It is the reservation manager's front-end onto the underlying
/// small-page allocator for populating a whole reservation at once.
func (phys *Physmem_t) AllocContig(n int, low, high, align, boundary Pa_t) (*Pg_t, Pa_t, bool) {
	return phys._allocContig(n, low, high, align, boundary)
}

/// FreeContig returns n contiguous pages starting at pa to the free
/// bitmap and resets each page's refcount to zero.
func (phys *Physmem_t) FreeContig(pa Pa_t, n int) {
	phys.Lock()
	defer phys.Unlock()
	start := int(pa >> PGSHIFT)
	for i := start; i < start+n; i++ {
		// XXXPANIC
		if bitSet(phys.bitmap, i) {
			panic("double free")
		}
		bitMark(phys.bitmap, i)
		phys.Pgs[i].Refcnt = 0
	}
	atomic.AddInt32(&phys.free, int32(n))
}

/// AllocPages allocates n contiguous free pages, with no alignment
/// requirement beyond page size. It is the plain, non-superpage
/// allocation path.
func (phys *Physmem_t) AllocPages(n int) (*Pg_t, Pa_t, bool) {
	return phys._allocContig(n, 0, 0, Pa_t(PGSIZE), 0)
}

/// FreePages returns pages previously handed out by AllocPages.
func (phys *Physmem_t) FreePages(pa Pa_t, n int) {
	phys.FreeContig(pa, n)
}

/// IsFree reports whether the given page is currently unallocated.
func (phys *Physmem_t) IsFree(pa Pa_t) bool {
	phys.Lock()
	defer phys.Unlock()
	return bitSet(phys.bitmap, int(pa>>PGSHIFT))
}

package reserv

import (
	"testing"

	"golang.org/x/sync/errgroup"

	"vmobj"
)

// TestConcurrentAllocFreeAcrossObjects exercises the concurrency guarantees
// from spec.md 5: distinct objects, each single-threaded from the caller's
// side (an object's write lock is never shared across goroutines here, as
// the caller contract requires), can drive AllocPage/FreePage against a
// shared Table_t at the same time. The shard lock pool and the free-queue
// lock are what make this safe; this test is the thing that would hang,
// deadlock, or corrupt the popmap if that locking were wrong.
func TestConcurrentAllocFreeAcrossObjects(t *testing.T) {
	const nobjs = 8
	const pages = N / 2

	table := newTestTable(t, nobjs+1)

	var g errgroup.Group
	for i := 0; i < nobjs; i++ {
		g.Go(func() error {
			obj := newTestObject(N * 4)
			var mpred *vmobj.Page_t
			for j := uint64(0); j < uint64(pages); j++ {
				p := table.AllocPage(obj, j, mpred)
				if p == nil {
					t.Errorf("AllocPage(%d) failed under concurrency", j)
					return nil
				}
				mpred = p
			}

			// Free every other page back, exercising Depopulate's LRU
			// transitions concurrently with other goroutines' populates.
			for j := uint64(0); j < uint64(pages); j += 2 {
				var target *vmobj.Page_t
				for _, p := range obj.Memq {
					if p.Pindex == j {
						target = p
						break
					}
				}
				if target == nil {
					t.Errorf("resident page %d missing before free", j)
					return nil
				}
				if !table.FreePage(target) {
					t.Errorf("FreePage(%d) reported no reservation", j)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("errgroup: %v", err)
	}
}

// TestConcurrentScanAndAlloc drives the aging scanner against live
// allocation traffic: the scanner takes the free-queue lock and per-shard
// try-locks exactly as AllocPage/FreePage do, so this is the scenario
// spec.md 5 calls out where a scan and an allocation must never observe a
// reservation mid-transition.
func TestConcurrentScanAndAlloc(t *testing.T) {
	table := newTestTable(t, 9)

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			obj := newTestObject(N * 4)
			var mpred *vmobj.Page_t
			for j := uint64(0); j < uint64(N/4); j++ {
				p := table.AllocPage(obj, j, mpred)
				if p == nil {
					return nil
				}
				mpred = p
			}
			return nil
		})
	}
	g.Go(func() error {
		for i := 0; i < 20; i++ {
			table.Scan(4)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		t.Fatalf("errgroup: %v", err)
	}
}

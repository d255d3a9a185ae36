package mem

import "sync"
import "sync/atomic"
import "unsafe"
import "fmt"

/// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks offsets within a page.
const PGOFFSET Pa_t = 0xfff

/// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^(PGOFFSET)

/// Pa_t represents a physical address: an offset into the simulated
/// physical arena mmap'd by Phys_init, not a real machine address.
/// Address 0 is a valid page in this rendering; "no physical page" is
/// tracked with an explicit bool everywhere in this module, never with a
/// sentinel Pa_t value.
type Pa_t uintptr

/// Bytepg_t is a byte addressed page.
type Bytepg_t [PGSIZE]uint8

/// Pg_t is a generic page of ints.
type Pg_t [PGSIZE / 8]int

func pg2bytes(pg *Pg_t) *Bytepg_t {
	return (*Bytepg_t)(unsafe.Pointer(pg))
}

func _pg2pgn(p_pg Pa_t) uint32 {
	return uint32(p_pg >> PGSHIFT)
}

/// Physpg_t is the bookkeeping biscuit keeps for one physical page.
type Physpg_t struct {
	Refcnt int32
	// Psind is the page-table size-hint for this physical page: 0 means
	// it is mapped (if at all) at small-page granularity, 1 means a
	// superpage-aligned range starting here is fully populated and may be
	// mapped as one large page. Written only by package reserv: set to 1
	// when a reservation becomes fully populated, and set to 0 when a
	// reservation is partially populated or broken.
	Psind int32
}

/// Psind returns the size-hint of the page at p_pg.
func (phys *Physmem_t) Psind(p_pg Pa_t) int32 {
	return atomic.LoadInt32(&phys.Pgs[_pg2pgn(p_pg)].Psind)
}

/// SetPsind sets the size-hint of the page at p_pg.
func (phys *Physmem_t) SetPsind(p_pg Pa_t, v int32) {
	atomic.StoreInt32(&phys.Pgs[_pg2pgn(p_pg)].Psind, v)
}

/// percpu_t is a per-shard scan cursor into the free bitmap. It replaces
/// the teacher's per-CPU single-page free list: a contiguous allocator
/// can't satisfy multi-page alignment off a private per-CPU list of lone
/// pages, so instead each shard just remembers where its last bitmap scan
/// stopped, which keeps concurrent allocators from colliding on the same
/// cache line without needing a single global scan cursor.
type percpu_t struct {
	cursor uint32
}

/// Physmem_t manages all physical memory for the system: an mmap-backed
/// arena (arena.go) and the bitmap allocator that carves pages and
/// contiguous runs out of it (contig.go).
type Physmem_t struct {
	arena  []byte
	Pgs    []Physpg_t
	bitmap []uint64 // bit set means free
	npages int
	sync.Mutex
	free     int32
	Dmapinit bool
	percpu   []percpu_t
}

/// Refaddr returns the refcount pointer for the given page.
func (phys *Physmem_t) Refaddr(p_pg Pa_t) *int32 {
	return &phys.Pgs[_pg2pgn(p_pg)].Refcnt
}

/// Refcnt returns the current reference count of a page.
func (phys *Physmem_t) Refcnt(p_pg Pa_t) int {
	return int(atomic.LoadInt32(phys.Refaddr(p_pg)))
}

/// Refup increments the reference count of a page.
func (phys *Physmem_t) Refup(p_pg Pa_t) {
	c := atomic.AddInt32(phys.Refaddr(p_pg), 1)
	// XXXPANIC
	if c <= 0 {
		panic("wut")
	}
}

/// Refdown decrements the reference count of a page.
/// It returns true when the count reaches zero.
func (phys *Physmem_t) Refdown(p_pg Pa_t) bool {
	c := atomic.AddInt32(phys.Refaddr(p_pg), -1)
	// XXXPANIC
	if c < 0 {
		panic("wut")
	}
	return c == 0
}

/// Pg2bytes converts a page of ints to a page of bytes.
func Pg2bytes(pg *Pg_t) *Bytepg_t {
	return pg2bytes(pg)
}

/// Bytepg2pg converts a byte page back to a Pg_t.
func Bytepg2pg(pg *Bytepg_t) *Pg_t {
	return (*Pg_t)(unsafe.Pointer(pg))
}

/// Pgcount reports the number of free and total pages in the arena.
func (phys *Physmem_t) Pgcount() (free int, total int) {
	phys.Lock()
	defer phys.Unlock()
	return int(phys.free), phys.npages
}

const numShards = 4096

var cpuRoundRobin uint64

// cpuHint picks a shard index the way runtime.CPUHint picked a per-CPU free
// list in the teacher: cheaply, and only to spread contention, never for
// correctness. A round robin counter stands in for the patched runtime's
// real CPU affinity hint, which isn't available outside biscuit's own
// kernel build.
func cpuHint() int {
	v := atomic.AddUint64(&cpuRoundRobin, 1)
	return int(v % numShards)
}

/// Zeropg is a global zero-filled page used for allocations.
var Zeropg *Pg_t

/// Zerobpg is Zeropg's byte-slice view.
var Zerobpg *Bytepg_t

/// P_zeropg is the physical address backing Zeropg.
var P_zeropg Pa_t

/// Physmem is the global physical memory allocator instance, populated by
/// Phys_init.
var Physmem = &Physmem_t{}

/// Phys_init sizes and mmaps the simulated physical arena and prepares the
/// free bitmap. It mirrors the teacher's original Phys_init in spirit
/// (reserve N pages, zero the bookkeeping array, print what was reserved)
/// but sources the page count from Config_t instead of a hardcoded
/// constant, and the backing store from a real mmap (arena.go) instead of
/// the patched runtime's Get_phys().
func Phys_init(cfg Config_t) (*Physmem_t, error) {
	npages := cfg.ArenaBytes / PGSIZE
	if npages <= 0 {
		return nil, fmt.Errorf("mem: arena too small for a single page")
	}
	phys := Physmem
	arena, err := mmapArena(cfg.ArenaBytes)
	if err != nil {
		return nil, err
	}
	phys.arena = arena
	phys.npages = npages
	phys.Pgs = make([]Physpg_t, npages)
	words := (npages + 63) / 64
	phys.bitmap = make([]uint64, words)
	for i := range phys.bitmap {
		phys.bitmap[i] = ^uint64(0)
	}
	if rem := npages % 64; rem != 0 {
		// clear bits beyond npages in the last word so a contiguous scan
		// never reports phantom free pages past the end of the arena.
		phys.bitmap[words-1] = (uint64(1) << uint(rem)) - 1
	}
	phys.free = int32(npages)
	phys.percpu = make([]percpu_t, numShards)
	phys.Dmapinit = true

	zp, zpa, ok := phys._allocContig(1, 0, Pa_t(npages)<<PGSHIFT, Pa_t(PGSIZE), 0)
	if !ok {
		return nil, fmt.Errorf("mem: out of memory reserving the zero page")
	}
	for i := range zp {
		zp[i] = 0
	}
	Zeropg = zp
	P_zeropg = zpa
	Zerobpg = Pg2bytes(zp)
	fmt.Printf("Reserved %v pages (%vMB)\n", npages, npages>>8)
	return phys, nil
}

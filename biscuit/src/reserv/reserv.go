// Package reserv implements the superpage reservation manager: it
// speculatively groups small physical pages into superpage-aligned
// ranges ("reservations") on behalf of a vmobj.Object_t, tracks which
// slots are populated, and promotes a reservation to a large-page
// mapping hint the moment it fills. Partially populated reservations
// live on one of two LRU queues so the aging scanner (scan.go) and the
// reclaim path (break.go) can find cold ones to tear down under memory
// pressure.
//
// Everything here operates at a single level, "level 0" — the only
// level this design supports; see Level/LevelIffullpop.
package reserv

import "sync"
import "sync/atomic"

import "caller"
import "hashtable"
import "mem"
import "stats"
import "vmobj"

/// SuperpageShift is the base-2 log of N, the number of small pages per
/// reservation.
const SuperpageShift = 9

/// N is the number of small pages a single reservation covers.
const N = 1 << SuperpageShift

/// ACT_MAX caps a reservation's activation count.
const ACT_MAX = 64

/// L is the number of shard mutexes protecting reservation records.
const L = 256

/// SuperpageBytes is the byte size of one reservation's physical range.
const SuperpageBytes = N << mem.PGSHIFT

/// nilIdx marks the absence of a reservation-table index in a link field.
const nilIdx int32 = -1

type flags_t uint8

const (
	flagActive   flags_t = 1 << iota
	flagInactive
	flagMarker
)

/// Reservation_t is one table record: a superpage-aligned run of N small
/// pages, optionally bound to an object at a pindex, with a population
/// bitmap and LRU linkage. All mutable fields except seq and the LRU
/// links (lruPrev/lruNext, guarded by the free-queue lock) are protected
/// by the record's shard lock (see lock.go); seq itself is updated
/// atomically so readers can snapshot {Object, Pindex} without the lock.
type Reservation_t struct {
	Pages mem.Pa_t
	Valid bool

	Object *vmobj.Object_t
	Pindex uint64

	popmap [N / 64]uint64
	Popcnt int
	Actcnt int
	flags  flags_t
	seq    uint64

	lruPrev, lruNext int32
}

/// IsMarker reports whether this record is the scanner's placeholder
/// rather than a real reservation.
func (r *Reservation_t) IsMarker() bool {
	return r.flags&flagMarker != 0
}

/// Table_t is the module handle: the reservation array, its locks, LRU
/// queue heads, and counters. One Table_t is created per small-page
/// allocator instance by Startup.
type Table_t struct {
	phys *mem.Physmem_t

	recs  []Reservation_t
	locks [L]sync.Mutex

	freeq sync.Mutex

	activeHead, activeTail     int32
	inactiveHead, inactiveTail int32
	markerIdx                  int32

	Broken    stats.Counter_t
	Freed     stats.Counter_t
	Reclaimed stats.Counter_t

	// ObjIndex is a debug index from an object's uuid string to the first
	// reservation index recorded for it (Set keeps an existing entry),
	// kept alongside (not instead of) Object_t.Rvq. Entries are not
	// removed when a reservation is freed or broken, and nothing in this
	// package reads the index.
	ObjIndex *hashtable.Hashtable_t

	// Panics is deduplicated so a hot loop tripping the same invariant
	// violation doesn't flood the console with identical stack traces.
	Panics caller.Distinct_caller_t

	// EnableReclaimContig gates ReclaimContig; see break.go.
	EnableReclaimContig bool
}

func tableIndex(p mem.Pa_t) int32 {
	return int32(p >> (mem.PGSHIFT + SuperpageShift))
}

/// Size returns the byte size of a reservation at the given level. Only
/// level 0 exists in this design.
func Size(level int) int {
	if level != 0 {
		panic("reserv: only level 0 is supported")
	}
	return SuperpageBytes
}

/// rvAt returns a pointer to the table record at index rv.
func (t *Table_t) rvAt(rv int32) *Reservation_t {
	return &t.recs[rv]
}

func (t *Table_t) assert(cond bool, msg string) {
	if cond {
		return
	}
	if ok, trace := t.Panics.Distinct(); ok {
		panic(msg + "\n" + trace)
	}
	panic(msg)
}

// atomic helpers for the seq-counter protocol (C3). Writers bracket any
// mutation of {Object, Pindex} with seqBegin/seqEnd while holding the
// record's shard lock; readers use SeqRead without any lock at all.

func seqBegin(r *Reservation_t) {
	atomic.AddUint64(&r.seq, 1)
}

func seqEnd(r *Reservation_t) {
	atomic.AddUint64(&r.seq, 1)
}

/// SeqRead performs a wait-free, lock-free read of a record's (Object,
/// Pindex) pair. ok is false when a concurrent writer was observed; the
/// spec's contract is that the caller retries at a higher level rather
/// than spinning inside this call.
func SeqRead(r *Reservation_t) (obj *vmobj.Object_t, pindex uint64, ok bool) {
	s1 := atomic.LoadUint64(&r.seq)
	if s1%2 != 0 {
		return nil, 0, false
	}
	obj = r.Object
	pindex = r.Pindex
	s2 := atomic.LoadUint64(&r.seq)
	if s1 != s2 {
		return nil, 0, false
	}
	return obj, pindex, true
}

package reserv

// bootstrap.go implements C10: sizing and zeroing the reservation table,
// initialising the shard locks (zero-value sync.Mutex needs no explicit
// init, unlike the source's spinlock array), and inserting the single
// global scan marker at the head of the active queue.

import "os"

import "gopkg.in/yaml.v3"

import "hashtable"
import "mem"

/// Config_t configures a Table_t's bootstrap. EnableReclaimContig exists
/// here (mirrored onto the Table_t field of the same name) so it can be
/// toggled from the same YAML document that sizes the small-page arena.
type Config_t struct {
	EnableReclaimContig bool `yaml:"enable_reclaim_contig"`
	DebugIndex          bool `yaml:"debug_index"`
}

/// LoadConfig reads a Config_t from a YAML file at path.
func LoadConfig(path string) (Config_t, error) {
	var cfg Config_t
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

/// Startup sizes the reservation table to cover every page phys already
/// manages, marks the record for each superpage-aligned, fully-contained
/// physical range as valid, and initialises the LRU marker. phys must
/// already be initialised (mem.Phys_init) before Startup runs: the table
/// size depends on how much physical memory exists, exactly as the
/// original's vm_reserv_init runs after vm_page's own bootstrap.
func Startup(phys *mem.Physmem_t, cfg Config_t) *Table_t {
	_, total := phys.Pgcount()
	nres := (total + N - 1) / N

	t := &Table_t{
		phys:                phys,
		recs:                make([]Reservation_t, nres+1), // +1 reserved for the marker
		EnableReclaimContig: cfg.EnableReclaimContig,
	}
	t.Panics.Enabled = true
	for i := range t.recs {
		t.recs[i].lruPrev = nilIdx
		t.recs[i].lruNext = nilIdx
	}
	for i := 0; i < nres; i++ {
		if (i+1)*N <= total {
			t.recs[i].Pages = mem.Pa_t(i*N) << mem.PGSHIFT
			t.recs[i].Valid = true
		}
	}

	if cfg.DebugIndex {
		t.ObjIndex = hashtable.MkHash(1024)
	}

	t.activeHead, t.activeTail = nilIdx, nilIdx
	t.inactiveHead, t.inactiveTail = nilIdx, nilIdx

	markerIdx := int32(len(t.recs) - 1)
	t.insertMarker(markerIdx)

	return t
}

/// Counters reports the module's observability counters.
func (t *Table_t) Counters() (broken, freed, reclaimed int64) {
	return int64(t.Broken), int64(t.Freed), int64(t.Reclaimed)
}

/// FullPopCount scans the whole table and counts fully populated
/// reservations, the "read-only full population count" observability
/// surface from spec.md 6.
func (t *Table_t) FullPopCount() int {
	n := 0
	for i := range t.recs {
		r := &t.recs[i]
		if r.IsMarker() || !r.Valid {
			continue
		}
		t.LockShard(int32(i))
		if r.Popcnt == N {
			n++
		}
		t.UnlockShard(int32(i))
	}
	return n
}

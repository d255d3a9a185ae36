package tinfo

import "sync"

import "defs"

/// Tnote_t stores per-thread state used by the runtime.
type Tnote_t struct {
	// XXX "alive" should be "terminated"
	State    interface{}
	Alive    bool
	Killed   bool
	Isdoomed bool // XXX maybe don't need doomed, but can use killed?
	// protects killed, Killnaps.Cond and Kerr, and is a leaf lock
	sync.Mutex
	Killnaps struct {
		Killch chan bool
		Cond   *sync.Cond
		Kerr   defs.Err_t
	}
}

/// Doomed reports whether the thread is marked as doomed.
func (t *Tnote_t) Doomed() bool {
	return t.Isdoomed
}

/// Threadinfo_t tracks all thread notes.
type Threadinfo_t struct {
	Notes map[defs.Tid_t]*Tnote_t
	sync.Mutex
	cur sync.Map // defs.Tid_t -> *Tnote_t, the "current thread" table
}

/// Init initializes the thread info map.
func (t *Threadinfo_t) Init() {
	t.Notes = make(map[defs.Tid_t]*Tnote_t)
}

// Current and SetCurrent stand in for the per-goroutine g.gptr field the
// teacher's patched runtime carried; stock Go has no goroutine-local
// storage, so callers identify themselves by Tid_t explicitly instead of
// relying on an implicit "current goroutine" lookup.

/// Current returns the thread note registered for tid.
func (t *Threadinfo_t) Current(tid defs.Tid_t) *Tnote_t {
	v, ok := t.cur.Load(tid)
	if !ok {
		panic("nuts")
	}
	return v.(*Tnote_t)
}

/// SetCurrent registers p as the thread note for tid.
func (t *Threadinfo_t) SetCurrent(tid defs.Tid_t, p *Tnote_t) {
	if p == nil {
		panic("nuts")
	}
	if _, loaded := t.cur.LoadOrStore(tid, p); loaded {
		panic("nuts")
	}
}

/// ClearCurrent removes the thread note registered for tid.
func (t *Threadinfo_t) ClearCurrent(tid defs.Tid_t) {
	if _, ok := t.cur.LoadAndDelete(tid); !ok {
		panic("nuts")
	}
}

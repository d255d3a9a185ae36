package vmobj

import "mem"

/// Page_t is a single resident page belonging to an Object_t at a given
/// page index. Psind is not updated by package reserv and stays 0; the
/// size hint reserv maintains lives in mem.Physpg_t.Psind.
type Page_t struct {
	Object *Object_t
	Pindex uint64
	Phys   mem.Pa_t
	Psind  int
}

/// NewPage creates an unattached page at the given physical address.
func NewPage(pindex uint64, phys mem.Pa_t) *Page_t {
	return &Page_t{Pindex: pindex, Phys: phys}
}

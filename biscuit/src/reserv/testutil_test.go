package reserv

import "testing"

import "mem"
import "vmobj"

// newTestTable bootstraps a Table_t over a fresh, privately mmap'd arena
// sized to n+1 reservations' worth of physical pages. Reservation index 0
// always ends up permanently short one page (mem.Phys_init puts Zeropg at
// physical page 0), leaving n reservations that can be allocated whole.
func newTestTable(t *testing.T, n int) *Table_t {
	t.Helper()
	cfg := mem.Config_t{ArenaBytes: (n + 1) * SuperpageBytes}
	phys, err := mem.Phys_init(cfg)
	if err != nil {
		t.Fatalf("mem.Phys_init: %v", err)
	}
	return Startup(phys, Config_t{})
}

func newTestObject(size uint64) *vmobj.Object_t {
	return vmobj.NewObject(vmobj.OBJT_DEFAULT, size, "test")
}

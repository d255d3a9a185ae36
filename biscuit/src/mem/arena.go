package mem

import "golang.org/x/sys/unix"
import "unsafe"

func bytesliceptr(b []byte, off uintptr) unsafe.Pointer {
	return unsafe.Pointer(&b[off])
}

func unsafeptr(v *Bytepg_t) unsafe.Pointer {
	return unsafe.Pointer(v)
}

// mmapArena reserves an anonymous, zero-filled region to stand in for the
// physical address space the teacher's Phys_init obtained from
// runtime.Get_phys(). Outside biscuit's own patched runtime there is no
// such call, so a private, anonymous mmap plays the same role: a flat
// byte range the allocator carves pages out of.
func mmapArena(size int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return b, nil
}

/// Dmap returns a pointer to the Pg_t backing the given physical page.
/// The teacher's Dmap walked a recursive direct-map page table slot;
/// here the arena is already a flat Go slice, so translation is an index
/// into it.
func (phys *Physmem_t) Dmap(p_pg Pa_t) *Pg_t {
	off := uintptr(p_pg) &^ uintptr(PGOFFSET)
	return Bytepg2pg((*Bytepg_t)(bytesliceptr(phys.arena, off)))
}

/// Dmap8 returns a pointer to the Bytepg_t backing the given physical page.
func (phys *Physmem_t) Dmap8(p_pg Pa_t) *Bytepg_t {
	off := uintptr(p_pg) &^ uintptr(PGOFFSET)
	return (*Bytepg_t)(bytesliceptr(phys.arena, off))
}

/// Dmap_v2p recovers the physical address of a page previously handed out
/// by Dmap, reversing the translation above.
func (phys *Physmem_t) Dmap_v2p(va *Bytepg_t) Pa_t {
	base := bytesliceptr(phys.arena, 0)
	off := uintptr(unsafeptr(va)) - uintptr(base)
	return Pa_t(off)
}

// Package vmobj models the VM objects and pages that the reservation
// manager (package reserv) allocates superpages on behalf of. biscuit's
// real VM object/page types live behind the address-space layer that sits
// above physical memory management and outside this module's scope; this
// package provides the minimal collaborator shape the reservation manager
// needs to drive against: something identifiable, sizeable, and capable
// of holding pages at a pindex.
package vmobj

import "sync"
import "ustr"

import "github.com/google/uuid"

/// Objtype_t classifies the kind of backing store a vm object represents.
type Objtype_t int

const (
	/// OBJT_DEFAULT is an anonymous, swap-backed object.
	OBJT_DEFAULT Objtype_t = iota
	/// OBJT_VNODE is a file-backed object.
	OBJT_VNODE
	/// OBJT_DEVICE is a device-backed object, never eligible for
	/// superpage reservations.
	OBJT_DEVICE
)

/// Object_t is a VM object: a named, sized span of pages, optionally
/// chained to a backing object (as with copy-on-write children). Its
/// write lock serializes the handful of reservation operations the
/// caller must already hold it across (vm_object_reserv invariant).
type Object_t struct {
	sync.Mutex
	ID     uuid.UUID
	Name   ustr.Ustr
	Type   Objtype_t
	Size   uint64 // in pages
	Backing *Object_t

	// Memq holds resident pages in no particular order; Pred and Succ
	// scan it linearly.
	Memq []*Page_t
	// Rvq is the list of reservation IDs associated with this object;
	// the reservation manager owns the storage, this field only
	// anchors them for object-destroy-time cleanup.
	Rvq []int
}

/// NewObject allocates an object of the given type and size in pages.
func NewObject(typ Objtype_t, size uint64, name string) *Object_t {
	return &Object_t{
		ID:   uuid.New(),
		Name: ustr.Ustr(name),
		Type: typ,
		Size: size,
	}
}

/// CanSuperpage reports whether this object type is eligible to back
/// reservations at all; device objects map fixed physical hardware and
/// never go through the page allocator.
func (o *Object_t) CanSuperpage() bool {
	return o.Type != OBJT_DEVICE
}

/// InsertPage adds p to the object's resident page list.
func (o *Object_t) InsertPage(p *Page_t) {
	p.Object = o
	o.Memq = append(o.Memq, p)
}

/// RemovePage removes p from the object's resident page list.
func (o *Object_t) RemovePage(p *Page_t) {
	for i, q := range o.Memq {
		if q == p {
			o.Memq[i] = o.Memq[len(o.Memq)-1]
			o.Memq = o.Memq[:len(o.Memq)-1]
			p.Object = nil
			return
		}
	}
	panic("page not resident")
}

// Pred and Succ give the reservation allocator the neighbour pages
// (mpred/msucc) it uses to find an existing reservation before creating
// one. Memq is small in every test and demo workload this module drives,
// so a linear scan is the straightforward rendering; a real VM object
// keeps this list ordered and would use a tree or skip list instead.

/// Pred returns the resident page with the largest Pindex strictly less
/// than pindex, or nil if none.
func (o *Object_t) Pred(pindex uint64) *Page_t {
	var best *Page_t
	for _, p := range o.Memq {
		if p.Pindex < pindex && (best == nil || p.Pindex > best.Pindex) {
			best = p
		}
	}
	return best
}

/// Succ returns the resident page with the smallest Pindex strictly
/// greater than pindex, or nil if none.
func (o *Object_t) Succ(pindex uint64) *Page_t {
	var best *Page_t
	for _, p := range o.Memq {
		if p.Pindex > pindex && (best == nil || p.Pindex < best.Pindex) {
			best = p
		}
	}
	return best
}

/// AddRv records that reservation index rv belongs to this object.
func (o *Object_t) AddRv(rv int32) {
	o.Rvq = append(o.Rvq, int(rv))
}

/// RemoveRv forgets that reservation index rv belongs to this object.
func (o *Object_t) RemoveRv(rv int32) {
	for i, v := range o.Rvq {
		if v == int(rv) {
			o.Rvq[i] = o.Rvq[len(o.Rvq)-1]
			o.Rvq = o.Rvq[:len(o.Rvq)-1]
			return
		}
	}
	panic("reservation not linked to object")
}

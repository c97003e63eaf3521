package core

import "unsafe"

// descriptor is a segment's identity, dirty/locked flag, and the undo
// stack for the transaction currently owning it (if any). base holds
// the in-memory working copy the application mutates directly; its
// address, once handed out by Map, is stable until Unmap.
type descriptor struct {
	name  string
	dir   string
	base  []byte
	dirty bool
	undo  undoStack
}

func (d *descriptor) length() int { return len(d.base) }

// basePtr returns the opaque identity of a mapped segment's base address.
// The registry and transactions key on this value, not on the slice
// itself, so equality is pointer identity.
func basePtr(base []byte) uintptr {
	if len(base) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&base[0]))
}

// registry is the per-region associative container mapping an opaque
// base address to its descriptor. Iteration order is unspecified, so
// it is backed by a plain map; put/get/erase are O(1).
type registry struct {
	byBase map[uintptr]*descriptor
	byName map[string]*descriptor
}

func newRegistry() *registry {
	return &registry{
		byBase: make(map[uintptr]*descriptor),
		byName: make(map[string]*descriptor),
	}
}

func (r *registry) put(d *descriptor) {
	r.byBase[basePtr(d.base)] = d
	r.byName[d.name] = d
}

func (r *registry) get(base []byte) (*descriptor, bool) {
	d, ok := r.byBase[basePtr(base)]
	return d, ok
}

func (r *registry) getByName(name string) (*descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

func (r *registry) erase(base []byte) {
	if d, ok := r.byBase[basePtr(base)]; ok {
		delete(r.byName, d.name)
	}
	delete(r.byBase, basePtr(base))
}

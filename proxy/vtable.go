package proxy

import (
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/skdltmxn/pdbproxy/symdb"
)

var (
	ErrNotVirtual     = errors.New("proxy: method is not virtual")
	ErrNoVtableOffset = errors.New("proxy: introducing virtual has no vtable offset")
	ErrSlotNotFound   = errors.New("proxy: no vtable slot found")
)

// VirtualSlot locates a virtual method: the byte offset of the vtable
// pointer inside the object and the 0-based slot in that vtable.
type VirtualSlot struct {
	VtablePointerOffset uint32
	Slot                uint32
}

// ResolveVirtualSlot finds the vtable slot of method, a member function of
// udt.
//
// An introducing virtual sits at its recorded vtable byte offset divided by
// the pointer size. It shares the vtable of the first non-virtual base
// that has one, or gets a vtable pointer at offset 0.
//
// An override takes the slot of the virtual it replaces: bases are searched
// depth first in declaration order for an introducing virtual with the same
// name and parameter types (any virtual destructor matches a destructor).
// The vtable pointer offset is the base's offset plus the vtable pointer
// offset inside the base, so with several polymorphic bases the method is
// bound to the vtable of the first base that introduced it. Virtual bases
// have no fixed offset and are not searched.
func ResolveVirtualSlot(db symdb.Database, udt, method *symdb.Symbol) (VirtualSlot, error) {
	if !method.IsVirtual() {
		return VirtualSlot{}, errors.Wrapf(ErrNotVirtual, "%s::%s", udt.Name(), method.Name())
	}

	r := &slotResolver{ptrSize: uint32(db.PointerSize()), active: make(map[*symdb.Symbol]bool)}
	if r.ptrSize == 0 {
		r.ptrSize = symdb.DefaultPointerSize
	}

	if method.IsIntroVirtual() {
		return r.intro(udt, method)
	}

	key, err := newMethodKey(method)
	if err != nil {
		return VirtualSlot{}, errors.Wrapf(ErrSlotNotFound, "%s::%s: %v", udt.Name(), method.Name(), err)
	}
	vs, ok := r.inBases(udt, key)
	if !ok {
		return VirtualSlot{}, errors.Wrapf(ErrSlotNotFound, "%s::%s", udt.Name(), method.Name())
	}
	return vs, nil
}

type slotResolver struct {
	ptrSize uint32
	// active guards against base lists that refer back to themselves.
	active map[*symdb.Symbol]bool
}

func (r *slotResolver) intro(udt, method *symdb.Symbol) (VirtualSlot, error) {
	off, ok := method.VtableOffset()
	if !ok || off < 0 {
		return VirtualSlot{}, errors.Wrapf(ErrNoVtableOffset, "%s::%s", udt.Name(), method.Name())
	}
	vtpo, _ := r.vtablePointer(udt)
	return VirtualSlot{VtablePointerOffset: vtpo, Slot: uint32(off) / r.ptrSize}, nil
}

// vtablePointer returns the offset of the vtable pointer that new virtuals
// of u are appended to, and whether u has one at all.
func (r *slotResolver) vtablePointer(u *symdb.Symbol) (uint32, bool) {
	if r.active[u] {
		return 0, false
	}
	r.active[u] = true
	defer delete(r.active, u)

	for base := range u.Children(symdb.TagBaseClass) {
		if base.IsVirtualBase() || base.Type() == nil {
			continue
		}
		if off, ok := r.vtablePointer(base.Type()); ok {
			return uint32(base.Offset()) + off, true
		}
	}
	for fn := range u.Children(symdb.TagFunction) {
		if fn.IsIntroVirtual() {
			return 0, true
		}
	}
	return 0, false
}

// inBases searches the non-virtual bases of u for the virtual that key
// overrides.
func (r *slotResolver) inBases(u *symdb.Symbol, key methodKey) (VirtualSlot, bool) {
	if r.active[u] {
		return VirtualSlot{}, false
	}
	r.active[u] = true
	defer delete(r.active, u)

	for base := range u.Children(symdb.TagBaseClass) {
		bt := base.Type()
		if base.IsVirtualBase() || bt == nil {
			continue
		}
		if vs, ok := r.introducedIn(bt, key); ok {
			vs.VtablePointerOffset += uint32(base.Offset())
			return vs, true
		}
	}
	return VirtualSlot{}, false
}

func (r *slotResolver) introducedIn(u *symdb.Symbol, key methodKey) (VirtualSlot, bool) {
	for fn := range u.Children(symdb.TagFunction) {
		if !fn.IsIntroVirtual() || !key.matches(fn) {
			continue
		}
		if vs, err := r.intro(u, fn); err == nil {
			return vs, true
		}
	}
	return r.inBases(u, key)
}

type methodKey struct {
	name   string
	params []string
	dtor   bool
}

func newMethodKey(fn *symdb.Symbol) (methodKey, error) {
	if strings.HasPrefix(fn.Name(), "~") {
		return methodKey{dtor: true}, nil
	}
	params, err := paramTypes(fn)
	if err != nil {
		return methodKey{}, err
	}
	return methodKey{name: fn.Name(), params: params}, nil
}

func (k methodKey) matches(fn *symdb.Symbol) bool {
	if k.dtor {
		return strings.HasPrefix(fn.Name(), "~")
	}
	if fn.Name() != k.name {
		return false
	}
	params, err := paramTypes(fn)
	return err == nil && slices.Equal(params, k.params)
}

func paramTypes(fn *symdb.Symbol) ([]string, error) {
	ft := fn.Type()
	if ft == nil || ft.Tag() != symdb.TagFunctionType {
		return nil, errors.Newf("%s has no signature", fn.Name())
	}
	return argTypes(ft)
}

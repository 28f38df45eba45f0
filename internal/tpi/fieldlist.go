package tpi

import (
	"fmt"

	"github.com/skdltmxn/pdbproxy/internal/stream"
)

// Member is an LF_MEMBER (instance data member).
type Member struct {
	Attrs  MemberAttributes
	Type   TypeIndex
	Offset uint64
	Name   string
}

// StaticMember is an LF_STMEMBER.
type StaticMember struct {
	Attrs MemberAttributes
	Type  TypeIndex
	Name  string
}

// BaseClass is an LF_BCLASS, or an LF_VBCLASS/LF_IVBCLASS when Virtual is set.
// For virtual bases Offset is the virtual base pointer offset.
type BaseClass struct {
	Attrs   MemberAttributes
	Type    TypeIndex
	Offset  uint64
	Virtual bool
}

// Method is an LF_ONEMETHOD, or an LF_METHOD overload group when List is
// non-zero. Groups are expanded with ParseMethodList.
type Method struct {
	Attrs MemberAttributes
	Type  TypeIndex

	// VBaseOffset is the byte offset of the slot in the vtable. Only
	// introducing virtuals carry one.
	VBaseOffset    int32
	HasVBaseOffset bool

	Name  string
	List  TypeIndex
	Count uint16
}

// NestedType is an LF_NESTTYPE or LF_NESTTYPEEX.
type NestedType struct {
	Type TypeIndex
	Name string
}

// Enumerate is an LF_ENUMERATE.
type Enumerate struct {
	Attrs MemberAttributes
	Value uint64
	Name  string
}

// FieldList is a decoded LF_FIELDLIST. Each slice keeps declaration order.
// Continuation is non-zero when an LF_INDEX chains to another field list.
type FieldList struct {
	Members       []Member
	StaticMembers []StaticMember
	Bases         []BaseClass
	Methods       []Method
	Nested        []NestedType
	Enumerates    []Enumerate
	VFuncTabs     []TypeIndex
	Continuation  TypeIndex
}

// ParseFieldList decodes the body of an LF_FIELDLIST record.
func ParseFieldList(data []byte) (*FieldList, error) {
	r := stream.NewReader(data)
	fl := &FieldList{}

	for r.Remaining() > 0 {
		b, err := r.PeekU8()
		if err != nil {
			return nil, err
		}
		// LF_PAD0..LF_PAD15: the low nibble is the distance to the next leaf.
		if b >= 0xF0 {
			if err := r.Skip(max(int(b&0x0F), 1)); err != nil {
				return nil, err
			}
			continue
		}

		at := r.Offset()
		leaf, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		if err := fl.parseLeaf(TypeRecordKind(leaf), r); err != nil {
			return nil, fmt.Errorf("tpi: field list leaf 0x%x at %d: %w", leaf, at, err)
		}
	}
	return fl, nil
}

func (fl *FieldList) parseLeaf(kind TypeRecordKind, r *stream.Reader) error {
	switch kind {
	case LF_MEMBER:
		attrs, ti, err := readAttrType(r)
		if err != nil {
			return err
		}
		off, err := r.ReadNumeric()
		if err != nil {
			return err
		}
		name, err := r.ReadCString()
		if err != nil {
			return err
		}
		fl.Members = append(fl.Members, Member{Attrs: attrs, Type: ti, Offset: off, Name: name})

	case LF_STMEMBER:
		attrs, ti, err := readAttrType(r)
		if err != nil {
			return err
		}
		name, err := r.ReadCString()
		if err != nil {
			return err
		}
		fl.StaticMembers = append(fl.StaticMembers, StaticMember{Attrs: attrs, Type: ti, Name: name})

	case LF_BCLASS:
		attrs, ti, err := readAttrType(r)
		if err != nil {
			return err
		}
		off, err := r.ReadNumeric()
		if err != nil {
			return err
		}
		fl.Bases = append(fl.Bases, BaseClass{Attrs: attrs, Type: ti, Offset: off})

	case LF_VBCLASS, LF_IVBCLASS:
		attrs, ti, err := readAttrType(r)
		if err != nil {
			return err
		}
		// Virtual base pointer type.
		if err := r.Skip(4); err != nil {
			return err
		}
		vbpOff, err := r.ReadNumeric()
		if err != nil {
			return err
		}
		if _, err := r.ReadNumeric(); err != nil {
			return err
		}
		fl.Bases = append(fl.Bases, BaseClass{Attrs: attrs, Type: ti, Offset: vbpOff, Virtual: true})

	case LF_ONEMETHOD:
		attrs, ti, err := readAttrType(r)
		if err != nil {
			return err
		}
		m := Method{Attrs: attrs, Type: ti}
		if attrs.IsIntroducing() {
			if m.VBaseOffset, err = r.ReadI32(); err != nil {
				return err
			}
			m.HasVBaseOffset = true
		}
		if m.Name, err = r.ReadCString(); err != nil {
			return err
		}
		fl.Methods = append(fl.Methods, m)

	case LF_METHOD:
		count, err := r.ReadU16()
		if err != nil {
			return err
		}
		list, err := r.ReadU32()
		if err != nil {
			return err
		}
		name, err := r.ReadCString()
		if err != nil {
			return err
		}
		fl.Methods = append(fl.Methods, Method{Name: name, List: TypeIndex(list), Count: count})

	case LF_NESTTYPE, LF_NESTTYPEEX:
		_, ti, err := readAttrType(r)
		if err != nil {
			return err
		}
		name, err := r.ReadCString()
		if err != nil {
			return err
		}
		fl.Nested = append(fl.Nested, NestedType{Type: ti, Name: name})

	case LF_ENUMERATE:
		attrs, err := r.ReadU16()
		if err != nil {
			return err
		}
		v, err := r.ReadNumeric()
		if err != nil {
			return err
		}
		name, err := r.ReadCString()
		if err != nil {
			return err
		}
		fl.Enumerates = append(fl.Enumerates, Enumerate{Attrs: MemberAttributes(attrs), Value: v, Name: name})

	case LF_VFUNCTAB:
		_, ti, err := readAttrType(r)
		if err != nil {
			return err
		}
		fl.VFuncTabs = append(fl.VFuncTabs, ti)

	case LF_INDEX:
		_, ti, err := readAttrType(r)
		if err != nil {
			return err
		}
		fl.Continuation = ti

	case LF_FRIENDCLS:
		return r.Skip(2 + 4)

	case LF_FRIENDFCN, LF_MEMBERMODIFY:
		if err := r.Skip(2 + 4); err != nil {
			return err
		}
		_, err := r.ReadCString()
		return err

	case LF_VFUNCOFF:
		return r.Skip(2 + 4 + 4)

	default:
		return fmt.Errorf("%w: 0x%x", ErrUnexpectedKind, uint16(kind))
	}
	return nil
}

// readAttrType reads the u16 attribute (or padding) word and u32 type index
// that open most field list leaves.
func readAttrType(r *stream.Reader) (MemberAttributes, TypeIndex, error) {
	attrs, err := r.ReadU16()
	if err != nil {
		return 0, 0, err
	}
	ti, err := r.ReadU32()
	if err != nil {
		return 0, 0, err
	}
	return MemberAttributes(attrs), TypeIndex(ti), nil
}

// ParseMethodList decodes an LF_METHODLIST into one Method per overload.
// The returned methods carry name.
func ParseMethodList(data []byte, name string) ([]Method, error) {
	r := stream.NewReader(data)
	var out []Method

	for r.Remaining() > 0 {
		attrs, err := r.ReadU16()
		if err != nil {
			return nil, err
		}
		if err := r.Skip(2); err != nil {
			return nil, err
		}
		ti, err := r.ReadU32()
		if err != nil {
			return nil, err
		}

		m := Method{Attrs: MemberAttributes(attrs), Type: TypeIndex(ti), Name: name}
		if m.Attrs.IsIntroducing() {
			if m.VBaseOffset, err = r.ReadI32(); err != nil {
				return nil, err
			}
			m.HasVBaseOffset = true
		}
		out = append(out, m)
	}
	return out, nil
}

// Package symdb is a read-only tree of debug symbols: user-defined types,
// their bases, data members and member functions, and the types those
// refer to. A database is built once by a source (a PDB file or a YAML
// snapshot) and never changes afterwards.
package symdb

import (
	"fmt"
	"iter"

	"github.com/cockroachdb/errors"
)

// ErrUnknownTag is returned by consumers that meet a symbol whose tag they
// do not handle.
var ErrUnknownTag = errors.New("symdb: unknown symbol tag")

// Tag is the kind of a Symbol. The set is closed.
type Tag uint8

const (
	TagNull Tag = iota
	TagUDT
	TagBaseClass
	TagData
	TagFunction
	TagFunctionType
	TagFunctionArg
	TagPointer
	TagArray
	TagEnum
	TagBaseType

	numTags
)

var tagNames = [numTags]string{
	TagNull:         "null",
	TagUDT:          "udt",
	TagBaseClass:    "baseclass",
	TagData:         "data",
	TagFunction:     "function",
	TagFunctionType: "functiontype",
	TagFunctionArg:  "functionarg",
	TagPointer:      "pointer",
	TagArray:        "array",
	TagEnum:         "enum",
	TagBaseType:     "basetype",
}

func (t Tag) String() string {
	if t < numTags {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// Check returns ErrUnknownTag, annotated with the tag, unless t is one of
// the defined kinds.
func (t Tag) Check() error {
	if t > TagNull && t < numTags {
		return nil
	}
	return errors.Wrapf(ErrUnknownTag, "tag %d", uint8(t))
}

// UDTKind distinguishes struct, class and union definitions.
type UDTKind uint8

const (
	UDTStruct UDTKind = iota
	UDTClass
	UDTUnion
)

// String returns the C++ keyword.
func (k UDTKind) String() string {
	switch k {
	case UDTClass:
		return "class"
	case UDTUnion:
		return "union"
	default:
		return "struct"
	}
}

// DataKind separates instance members from statics.
type DataKind uint8

const (
	DataUnknown DataKind = iota
	DataMember
	DataStaticMember
)

// LocationType says where a data member or function lives.
type LocationType uint8

const (
	// LocNull means no location: an optimized-away function, or a static
	// member without storage.
	LocNull LocationType = iota
	// LocStatic is a fixed address, see Symbol.RVA.
	LocStatic
	// LocThisRel is a byte offset from the start of the object.
	LocThisRel
	// LocBitField is a this-relative bit-field.
	LocBitField
)

// Enumerator is one named value of an enum.
type Enumerator struct {
	Name  string
	Value int64
}

// Symbol is one node of the tree. What the accessors mean depends on Tag:
//
//	UDT           Name, UDTKind, Length, Children
//	BaseClass     Name, Type (the base UDT), Offset, IsVirtualBase
//	Data          Name, Type, DataKind, LocationType, Offset, BitPosition, BitLength
//	Function      Name, UndecoratedName, Type (FunctionType), LocationType, RVA,
//	              IsVirtual, IsIntroVirtual, IsPure, IsStatic, VtableOffset
//	FunctionType  Type (return type), CallingConvention, Children (FunctionArg)
//	FunctionArg   Type
//	Pointer       Type (pointee), Length, IsReference, IsMemberPointer, MemberOf
//	Array         Type (element), Count, Length
//	Enum          Name, Type (underlying BaseType), Length, Enumerators
//	BaseType      Name, Length
//
// Any type symbol may carry IsConst.
type Symbol struct {
	tag         Tag
	name        string
	undecorated string
	typ         *Symbol
	children    []*Symbol

	udtKind  UDTKind
	length   uint64
	count    uint64
	dataKind DataKind
	location LocationType
	offset   int64
	rva      uint32
	bitPos   uint32
	bitLen   uint32

	virtual     bool
	intro       bool
	pure        bool
	static      bool
	virtualBase bool
	reference   bool
	constant    bool

	vtableOffset    int64
	hasVtableOffset bool

	callConv    string
	enumerators []Enumerator

	// memberOf names the class of a pointer to member.
	memberOf string
}

func (s *Symbol) Tag() Tag                    { return s.tag }
func (s *Symbol) Name() string                { return s.name }
func (s *Symbol) Type() *Symbol               { return s.typ }
func (s *Symbol) UDTKind() UDTKind            { return s.udtKind }
func (s *Symbol) Length() uint64              { return s.length }
func (s *Symbol) Count() uint64               { return s.count }
func (s *Symbol) DataKind() DataKind          { return s.dataKind }
func (s *Symbol) LocationType() LocationType  { return s.location }
func (s *Symbol) Offset() int64               { return s.offset }
func (s *Symbol) RVA() uint32                 { return s.rva }
func (s *Symbol) BitPosition() uint32         { return s.bitPos }
func (s *Symbol) BitLength() uint32           { return s.bitLen }
func (s *Symbol) IsVirtual() bool             { return s.virtual }
func (s *Symbol) IsIntroVirtual() bool        { return s.intro }
func (s *Symbol) IsPure() bool                { return s.pure }
func (s *Symbol) IsStatic() bool              { return s.static }
func (s *Symbol) IsVirtualBase() bool         { return s.virtualBase }
func (s *Symbol) IsReference() bool           { return s.reference }
func (s *Symbol) IsConst() bool               { return s.constant }
func (s *Symbol) CallingConvention() string   { return s.callConv }
func (s *Symbol) Enumerators() []Enumerator   { return s.enumerators }
func (s *Symbol) VtableOffset() (int64, bool) { return s.vtableOffset, s.hasVtableOffset }
func (s *Symbol) MemberOf() string            { return s.memberOf }
func (s *Symbol) IsMemberPointer() bool       { return s.memberOf != "" }

// UndecoratedName is the signature recovered from the function's linker
// name, for example "Vec3::Vec3(float,float,float)". It is "" when the
// source had none.
func (s *Symbol) UndecoratedName() string { return s.undecorated }

// Children yields the direct children with the given tag in declaration
// order.
func (s *Symbol) Children(tag Tag) iter.Seq[*Symbol] {
	return func(yield func(*Symbol) bool) {
		for _, c := range s.children {
			if c.tag != tag {
				continue
			}
			if !yield(c) {
				return
			}
		}
	}
}

// ChildCount returns the number of direct children with the given tag.
func (s *Symbol) ChildCount(tag Tag) int {
	n := 0
	for range s.Children(tag) {
		n++
	}
	return n
}

func (s *Symbol) add(c *Symbol) {
	s.children = append(s.children, c)
}

// withConst returns a const-qualified shallow copy of s.
func (s *Symbol) withConst() *Symbol {
	if s.constant {
		return s
	}
	c := *s
	c.constant = true
	return &c
}

// Database is the read-only view consumed by the generator.
type Database interface {
	// UDTs yields complete struct, class and union definitions in a stable
	// order.
	UDTs() iter.Seq[*Symbol]
	// Enums yields complete enum definitions in a stable order.
	Enums() iter.Seq[*Symbol]
	// PointerSize is the target pointer width in bytes.
	PointerSize() int
}

// Table is the Database built by the sources in this package.
type Table struct {
	udts    []*Symbol
	enums   []*Symbol
	ptrSize int
	byName  map[string]*Symbol
}

func newTable(ptrSize int) *Table {
	return &Table{ptrSize: ptrSize, byName: make(map[string]*Symbol)}
}

// addUDT registers u unless a definition with the same name exists.
func (t *Table) addUDT(u *Symbol) bool {
	if _, dup := t.byName[u.name]; dup {
		return false
	}
	t.byName[u.name] = u
	t.udts = append(t.udts, u)
	return true
}

func (t *Table) addEnum(e *Symbol) {
	for _, have := range t.enums {
		if have.name == e.name {
			return
		}
	}
	t.enums = append(t.enums, e)
}

func (t *Table) UDTs() iter.Seq[*Symbol] {
	return func(yield func(*Symbol) bool) {
		for _, u := range t.udts {
			if !yield(u) {
				return
			}
		}
	}
}

func (t *Table) Enums() iter.Seq[*Symbol] {
	return func(yield func(*Symbol) bool) {
		for _, e := range t.enums {
			if !yield(e) {
				return
			}
		}
	}
}

func (t *Table) PointerSize() int { return t.ptrSize }

// Lookup returns the UDT definition with the given name, or nil.
func (t *Table) Lookup(name string) *Symbol {
	return t.byName[name]
}

// Len returns the number of UDT definitions.
func (t *Table) Len() int { return len(t.udts) }

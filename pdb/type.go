package pdb

import (
	"fmt"
	"iter"

	"github.com/skdltmxn/pdbproxy/internal/tpi"
)

// TypeKind identifies the category of a type.
type TypeKind uint16

const (
	TypeKindUnknown TypeKind = iota
	TypeKindPrimitive
	TypeKindPointer
	TypeKindArray
	TypeKindFunction
	TypeKindClass
	TypeKindStruct
	TypeKindUnion
	TypeKindEnum
	TypeKindBitfield
	TypeKindModifier
)

func (k TypeKind) String() string {
	switch k {
	case TypeKindPrimitive:
		return "primitive"
	case TypeKindPointer:
		return "pointer"
	case TypeKindArray:
		return "array"
	case TypeKindFunction:
		return "function"
	case TypeKindClass:
		return "class"
	case TypeKindStruct:
		return "struct"
	case TypeKindUnion:
		return "union"
	case TypeKindEnum:
		return "enum"
	case TypeKindBitfield:
		return "bitfield"
	case TypeKindModifier:
		return "modifier"
	default:
		return "unknown"
	}
}

// TypeIndex is a reference into the type table.
type TypeIndex uint32

// Type is implemented by every decoded type.
type Type interface {
	Index() TypeIndex
	Kind() TypeKind
	Name() string
	Size() uint64
}

// PrimitiveType is a built-in type such as int or float.
type PrimitiveType struct {
	index TypeIndex
	name  string
	size  uint64
}

func (t *PrimitiveType) Index() TypeIndex { return t.index }
func (t *PrimitiveType) Kind() TypeKind   { return TypeKindPrimitive }
func (t *PrimitiveType) Name() string     { return t.name }
func (t *PrimitiveType) Size() uint64     { return t.size }
func (t *PrimitiveType) IsVoid() bool     { return t.name == "void" }

// PointerType is a pointer, reference, or pointer to member.
type PointerType struct {
	index         TypeIndex
	referent      TypeIndex
	size          uint64
	isConst       bool
	isReference   bool
	memberPointer bool
	containing    TypeIndex
}

func (t *PointerType) Index() TypeIndex        { return t.index }
func (t *PointerType) Kind() TypeKind          { return TypeKindPointer }
func (t *PointerType) Name() string            { return "" }
func (t *PointerType) Size() uint64            { return t.size }
func (t *PointerType) ReferentType() TypeIndex { return t.referent }
func (t *PointerType) IsConst() bool           { return t.isConst }
func (t *PointerType) IsReference() bool       { return t.isReference }
func (t *PointerType) IsMemberPointer() bool   { return t.memberPointer }

// ContainingClass is the class of a pointer to member, or 0.
func (t *PointerType) ContainingClass() TypeIndex { return t.containing }

// ModifierType adds const or volatile to another type.
type ModifierType struct {
	index      TypeIndex
	modified   TypeIndex
	isConst    bool
	isVolatile bool
}

func (t *ModifierType) Index() TypeIndex        { return t.index }
func (t *ModifierType) Kind() TypeKind          { return TypeKindModifier }
func (t *ModifierType) Name() string            { return "" }
func (t *ModifierType) Size() uint64            { return 0 }
func (t *ModifierType) ModifiedType() TypeIndex { return t.modified }
func (t *ModifierType) IsConst() bool           { return t.isConst }
func (t *ModifierType) IsVolatile() bool        { return t.isVolatile }

// ArrayType is a fixed-size array. Size is the total size in bytes.
type ArrayType struct {
	index   TypeIndex
	element TypeIndex
	size    uint64
}

func (t *ArrayType) Index() TypeIndex       { return t.index }
func (t *ArrayType) Kind() TypeKind         { return TypeKindArray }
func (t *ArrayType) Name() string           { return "" }
func (t *ArrayType) Size() uint64           { return t.size }
func (t *ArrayType) ElementType() TypeIndex { return t.element }

// FunctionType is a free or member function signature.
type FunctionType struct {
	index      TypeIndex
	returnType TypeIndex
	classType  TypeIndex
	thisType   TypeIndex
	argList    TypeIndex
	callConv   tpi.CallingConvention
	ctor       bool
}

func (t *FunctionType) Index() TypeIndex        { return t.index }
func (t *FunctionType) Kind() TypeKind          { return TypeKindFunction }
func (t *FunctionType) Name() string            { return "" }
func (t *FunctionType) Size() uint64            { return 0 }
func (t *FunctionType) ReturnType() TypeIndex   { return t.returnType }
func (t *FunctionType) ClassType() TypeIndex    { return t.classType }
func (t *FunctionType) ThisType() TypeIndex     { return t.thisType }
func (t *FunctionType) ArgumentList() TypeIndex { return t.argList }
func (t *FunctionType) IsConstructor() bool     { return t.ctor }

// CallingConvention returns the C++ keyword, e.g. "__thiscall".
func (t *FunctionType) CallingConvention() string { return t.callConv.String() }

// ClassType is a class, struct, interface or union.
type ClassType struct {
	index      TypeIndex
	kind       TypeKind
	name       string
	uniqueName string
	size       uint64
	fieldList  TypeIndex
	forwardRef bool
}

func (t *ClassType) Index() TypeIndex     { return t.index }
func (t *ClassType) Kind() TypeKind       { return t.kind }
func (t *ClassType) Name() string         { return t.name }
func (t *ClassType) Size() uint64         { return t.size }
func (t *ClassType) UniqueName() string   { return t.uniqueName }
func (t *ClassType) FieldList() TypeIndex { return t.fieldList }
func (t *ClassType) IsForwardRef() bool   { return t.forwardRef }

// EnumType is an enumeration.
type EnumType struct {
	index      TypeIndex
	name       string
	uniqueName string
	underlying TypeIndex
	size       uint64
	fieldList  TypeIndex
	forwardRef bool
}

func (t *EnumType) Index() TypeIndex          { return t.index }
func (t *EnumType) Kind() TypeKind            { return TypeKindEnum }
func (t *EnumType) Name() string              { return t.name }
func (t *EnumType) Size() uint64              { return t.size }
func (t *EnumType) UniqueName() string        { return t.uniqueName }
func (t *EnumType) UnderlyingType() TypeIndex { return t.underlying }
func (t *EnumType) FieldList() TypeIndex      { return t.fieldList }
func (t *EnumType) IsForwardRef() bool        { return t.forwardRef }

// BitfieldType is the type of a bit-field member.
type BitfieldType struct {
	index      TypeIndex
	underlying TypeIndex
	length     uint8
	position   uint8
}

func (t *BitfieldType) Index() TypeIndex          { return t.index }
func (t *BitfieldType) Kind() TypeKind            { return TypeKindBitfield }
func (t *BitfieldType) Name() string              { return "" }
func (t *BitfieldType) Size() uint64              { return 0 }
func (t *BitfieldType) UnderlyingType() TypeIndex { return t.underlying }
func (t *BitfieldType) Length() uint8             { return t.length }
func (t *BitfieldType) Position() uint8           { return t.position }

// TypeTable decodes TPI records on demand. It is not safe for concurrent use.
type TypeTable struct {
	tpi   *tpi.Stream
	cache map[TypeIndex]Type

	// definitions maps unique names, then plain names, of complete
	// class and enum records to their index.
	definitions map[string]TypeIndex
}

func newTypeTable(s *tpi.Stream) *TypeTable {
	return &TypeTable{tpi: s, cache: make(map[TypeIndex]Type)}
}

// All yields every decodable type record in index order. Records of kinds
// the table does not model are skipped.
func (tt *TypeTable) All() iter.Seq[Type] {
	return func(yield func(Type) bool) {
		for ti := tt.tpi.TypeIndexBegin(); ti < tt.tpi.TypeIndexEnd(); ti++ {
			typ, err := tt.ByIndex(TypeIndex(ti))
			if err != nil || typ == nil {
				continue
			}
			if !yield(typ) {
				return
			}
		}
	}
}

// Classes yields complete class, struct, interface and union definitions.
func (tt *TypeTable) Classes() iter.Seq[*ClassType] {
	return func(yield func(*ClassType) bool) {
		for typ := range tt.All() {
			c, ok := typ.(*ClassType)
			if !ok || c.forwardRef {
				continue
			}
			if !yield(c) {
				return
			}
		}
	}
}

// Count returns the number of type records.
func (tt *TypeTable) Count() int {
	return int(tt.tpi.TypeIndexEnd() - tt.tpi.TypeIndexBegin())
}

// ByIndex decodes the type at index. It returns ErrTypeNotFound for record
// kinds that carry no type (field lists, argument lists and the like).
func (tt *TypeTable) ByIndex(index TypeIndex) (Type, error) {
	if typ, ok := tt.cache[index]; ok {
		return typ, nil
	}

	var typ Type
	ti := tpi.TypeIndex(index)
	if ti.IsSimpleType() {
		typ = simpleType(ti)
	} else {
		rec, err := tt.tpi.Record(ti)
		if err != nil {
			return nil, err
		}
		if typ, err = decodeRecord(index, rec); err != nil {
			return nil, err
		}
	}

	tt.cache[index] = typ
	return typ, nil
}

// Resolve returns the complete definition for a forward-referenced class or
// enum, or t itself when it is already complete or nothing better exists.
func (tt *TypeTable) Resolve(t Type) Type {
	var unique, name string
	switch v := t.(type) {
	case *ClassType:
		if !v.forwardRef {
			return t
		}
		unique, name = v.uniqueName, v.name
	case *EnumType:
		if !v.forwardRef {
			return t
		}
		unique, name = v.uniqueName, v.name
	default:
		return t
	}

	tt.buildDefinitions()
	for _, key := range []string{unique, name} {
		if key == "" {
			continue
		}
		if idx, ok := tt.definitions[key]; ok {
			if def, err := tt.ByIndex(idx); err == nil {
				return def
			}
		}
	}
	return t
}

func (tt *TypeTable) buildDefinitions() {
	if tt.definitions != nil {
		return
	}
	tt.definitions = make(map[string]TypeIndex)

	add := func(key string, idx TypeIndex) {
		if key == "" {
			return
		}
		if _, dup := tt.definitions[key]; !dup {
			tt.definitions[key] = idx
		}
	}
	for typ := range tt.All() {
		switch v := typ.(type) {
		case *ClassType:
			if !v.forwardRef {
				add(v.uniqueName, v.index)
				add(v.name, v.index)
			}
		case *EnumType:
			if !v.forwardRef {
				add(v.uniqueName, v.index)
				add(v.name, v.index)
			}
		}
	}
}

// Fields decodes a field list and every LF_INDEX continuation it chains to.
func (tt *TypeTable) Fields(index TypeIndex) (*tpi.FieldList, error) {
	out := &tpi.FieldList{}
	seen := make(map[TypeIndex]bool)

	for index != 0 && !seen[index] {
		seen[index] = true

		rec, err := tt.tpi.Record(tpi.TypeIndex(index))
		if err != nil {
			return nil, err
		}
		if rec == nil || rec.Kind != tpi.LF_FIELDLIST {
			return nil, fmt.Errorf("%w: 0x%x is not a field list", ErrTypeNotFound, uint32(index))
		}
		fl, err := tpi.ParseFieldList(rec.Data)
		if err != nil {
			return nil, &ParseError{Stream: "TPI", Offset: int64(index), Message: "field list", Err: err}
		}

		out.Members = append(out.Members, fl.Members...)
		out.StaticMembers = append(out.StaticMembers, fl.StaticMembers...)
		out.Bases = append(out.Bases, fl.Bases...)
		out.Methods = append(out.Methods, fl.Methods...)
		out.Nested = append(out.Nested, fl.Nested...)
		out.Enumerates = append(out.Enumerates, fl.Enumerates...)
		out.VFuncTabs = append(out.VFuncTabs, fl.VFuncTabs...)
		index = TypeIndex(fl.Continuation)
	}
	return out, nil
}

// Methods expands overload groups of fl into one entry per method,
// keeping declaration order.
func (tt *TypeTable) Methods(fl *tpi.FieldList) ([]tpi.Method, error) {
	var out []tpi.Method
	for _, m := range fl.Methods {
		if m.List == 0 {
			out = append(out, m)
			continue
		}
		rec, err := tt.tpi.Record(m.List)
		if err != nil {
			return nil, err
		}
		if rec == nil || rec.Kind != tpi.LF_METHODLIST {
			return nil, fmt.Errorf("%w: 0x%x is not a method list", ErrTypeNotFound, uint32(m.List))
		}
		group, err := tpi.ParseMethodList(rec.Data, m.Name)
		if err != nil {
			return nil, &ParseError{Stream: "TPI", Offset: int64(m.List), Message: "method list", Err: err}
		}
		out = append(out, group...)
	}
	return out, nil
}

// Arguments returns the argument types of an LF_ARGLIST.
func (tt *TypeTable) Arguments(index TypeIndex) ([]TypeIndex, error) {
	if index == 0 {
		return nil, nil
	}
	rec, err := tt.tpi.Record(tpi.TypeIndex(index))
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Kind != tpi.LF_ARGLIST {
		return nil, fmt.Errorf("%w: 0x%x is not an argument list", ErrTypeNotFound, uint32(index))
	}
	raw, err := tpi.ParseArgListRecord(rec.Data)
	if err != nil {
		return nil, err
	}
	args := make([]TypeIndex, len(raw))
	for i, a := range raw {
		args[i] = TypeIndex(a)
	}
	return args, nil
}

func decodeRecord(index TypeIndex, rec *tpi.TypeRecord) (Type, error) {
	switch rec.Kind {
	case tpi.LF_MODIFIER:
		m, err := tpi.ParseModifierRecord(rec.Data)
		if err != nil {
			return nil, err
		}
		return &ModifierType{
			index:      index,
			modified:   TypeIndex(m.ModifiedType),
			isConst:    m.Modifiers.IsConst(),
			isVolatile: m.Modifiers.IsVolatile(),
		}, nil

	case tpi.LF_POINTER:
		p, err := tpi.ParsePointerRecord(rec.Data)
		if err != nil {
			return nil, err
		}
		return &PointerType{
			index:         index,
			referent:      TypeIndex(p.ReferentType),
			size:          uint64(p.Attributes.Size()),
			isConst:       p.Attributes.IsConst(),
			isReference:   p.Attributes.IsReference(),
			memberPointer: p.Attributes.IsMemberPointer(),
			containing:    TypeIndex(p.ContainingClass),
		}, nil

	case tpi.LF_ARRAY:
		a, err := tpi.ParseArrayRecord(rec.Data)
		if err != nil {
			return nil, err
		}
		return &ArrayType{index: index, element: TypeIndex(a.ElementType), size: a.Size}, nil

	case tpi.LF_PROCEDURE, tpi.LF_MFUNCTION:
		p, err := tpi.ParseProcedureRecord(rec.Kind, rec.Data)
		if err != nil {
			return nil, err
		}
		return &FunctionType{
			index:      index,
			returnType: TypeIndex(p.ReturnType),
			classType:  TypeIndex(p.ClassType),
			thisType:   TypeIndex(p.ThisType),
			argList:    TypeIndex(p.ArgumentList),
			callConv:   p.CallingConv,
			ctor:       p.FunctionOptions.IsConstructor(),
		}, nil

	case tpi.LF_CLASS, tpi.LF_STRUCTURE, tpi.LF_INTERFACE, tpi.LF_UNION:
		c, err := tpi.ParseClassRecord(rec.Kind, rec.Data)
		if err != nil {
			return nil, err
		}
		kind := TypeKindClass
		switch rec.Kind {
		case tpi.LF_STRUCTURE:
			kind = TypeKindStruct
		case tpi.LF_UNION:
			kind = TypeKindUnion
		}
		return &ClassType{
			index:      index,
			kind:       kind,
			name:       c.Name,
			uniqueName: c.UniqueName,
			size:       c.Size,
			fieldList:  TypeIndex(c.FieldList),
			forwardRef: c.Properties.IsForwardRef(),
		}, nil

	case tpi.LF_ENUM:
		e, err := tpi.ParseEnumRecord(rec.Data)
		if err != nil {
			return nil, err
		}
		under := simpleType(e.UnderlyingType)
		return &EnumType{
			index:      index,
			name:       e.Name,
			uniqueName: e.UniqueName,
			underlying: TypeIndex(e.UnderlyingType),
			size:       under.Size(),
			fieldList:  TypeIndex(e.FieldList),
			forwardRef: e.Properties.IsForwardRef(),
		}, nil

	case tpi.LF_BITFIELD:
		b, err := tpi.ParseBitFieldRecord(rec.Data)
		if err != nil {
			return nil, err
		}
		return &BitfieldType{
			index:      index,
			underlying: TypeIndex(b.Type),
			length:     b.Length,
			position:   b.Position,
		}, nil
	}
	return nil, fmt.Errorf("%w: 0x%x has kind 0x%x", ErrTypeNotFound, uint32(index), uint16(rec.Kind))
}

var simpleNames = map[tpi.SimpleTypeKind]struct {
	name string
	size uint64
}{
	tpi.SimpleTypeVoid:         {"void", 0},
	tpi.SimpleTypeHResult:      {"long", 4},
	tpi.SimpleTypeSignedChar:   {"signed char", 1},
	tpi.SimpleTypeUnsignedChar: {"unsigned char", 1},
	tpi.SimpleTypeNarrowChar:   {"char", 1},
	tpi.SimpleTypeWideChar:     {"wchar_t", 2},
	tpi.SimpleTypeChar8:        {"char8_t", 1},
	tpi.SimpleTypeChar16:       {"char16_t", 2},
	tpi.SimpleTypeChar32:       {"char32_t", 4},
	tpi.SimpleTypeSByte:        {"signed char", 1},
	tpi.SimpleTypeByte:         {"unsigned char", 1},
	tpi.SimpleTypeInt16Short:   {"short", 2},
	tpi.SimpleTypeInt16:        {"short", 2},
	tpi.SimpleTypeUInt16Short:  {"unsigned short", 2},
	tpi.SimpleTypeUInt16:       {"unsigned short", 2},
	tpi.SimpleTypeInt32Long:    {"long", 4},
	tpi.SimpleTypeUInt32Long:   {"unsigned long", 4},
	tpi.SimpleTypeInt32:        {"int", 4},
	tpi.SimpleTypeUInt32:       {"unsigned int", 4},
	tpi.SimpleTypeInt64Quad:    {"__int64", 8},
	tpi.SimpleTypeInt64:        {"__int64", 8},
	tpi.SimpleTypeUInt64Quad:   {"unsigned __int64", 8},
	tpi.SimpleTypeUInt64:       {"unsigned __int64", 8},
	tpi.SimpleTypeFloat32:      {"float", 4},
	tpi.SimpleTypeFloat64:      {"double", 8},
	tpi.SimpleTypeFloat80:      {"long double", 10},
	tpi.SimpleTypeBool8:        {"bool", 1},
}

// simpleType decodes a built-in index. Indices with a pointer mode become
// a PointerType to the direct form.
func simpleType(ti tpi.TypeIndex) Type {
	kind := ti.SimpleKind()
	if mode := ti.SimpleMode(); mode != tpi.SimpleModeDirect {
		size := uint64(8)
		if mode == tpi.SimpleModeNearPointer || mode == tpi.SimpleModeNearPointer32 {
			size = 4
		}
		return &PointerType{index: TypeIndex(ti), referent: TypeIndex(kind), size: size}
	}

	if info, ok := simpleNames[kind]; ok {
		return &PrimitiveType{index: TypeIndex(ti), name: info.name, size: info.size}
	}
	return &PrimitiveType{index: TypeIndex(ti), name: fmt.Sprintf("__simple_0x%x", uint32(ti))}
}

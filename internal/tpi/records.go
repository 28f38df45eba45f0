// Package tpi parses TPI (Type Program Information) and IPI (ID Program
// Information) streams.
package tpi

// TypeIndex is a reference to a type in the TPI or IPI stream.
type TypeIndex uint32

// FirstUserTypeIndex is the first index backed by a record. Lower indices
// encode built-in types.
const FirstUserTypeIndex TypeIndex = 0x1000

// IsSimpleType reports whether ti is a built-in type.
func (ti TypeIndex) IsSimpleType() bool {
	return ti < FirstUserTypeIndex
}

// SimpleKind extracts the built-in kind (bits 0-7).
func (ti TypeIndex) SimpleKind() SimpleTypeKind {
	return SimpleTypeKind(ti & 0xFF)
}

// SimpleMode extracts the built-in pointer mode (bits 8-11).
func (ti TypeIndex) SimpleMode() SimpleTypeMode {
	return SimpleTypeMode((ti >> 8) & 0x0F)
}

// SimpleTypeKind identifies primitive types.
type SimpleTypeKind uint8

const (
	SimpleTypeNone         SimpleTypeKind = 0x00
	SimpleTypeVoid         SimpleTypeKind = 0x03
	SimpleTypeHResult      SimpleTypeKind = 0x08
	SimpleTypeSignedChar   SimpleTypeKind = 0x10
	SimpleTypeInt16Short   SimpleTypeKind = 0x11
	SimpleTypeInt32Long    SimpleTypeKind = 0x12
	SimpleTypeInt64Quad    SimpleTypeKind = 0x13
	SimpleTypeUnsignedChar SimpleTypeKind = 0x20
	SimpleTypeUInt16Short  SimpleTypeKind = 0x21
	SimpleTypeUInt32Long   SimpleTypeKind = 0x22
	SimpleTypeUInt64Quad   SimpleTypeKind = 0x23
	SimpleTypeBool8        SimpleTypeKind = 0x30
	SimpleTypeFloat32      SimpleTypeKind = 0x40
	SimpleTypeFloat64      SimpleTypeKind = 0x41
	SimpleTypeFloat80      SimpleTypeKind = 0x42
	SimpleTypeSByte        SimpleTypeKind = 0x68
	SimpleTypeByte         SimpleTypeKind = 0x69
	SimpleTypeNarrowChar   SimpleTypeKind = 0x70
	SimpleTypeWideChar     SimpleTypeKind = 0x71
	SimpleTypeInt16        SimpleTypeKind = 0x72
	SimpleTypeUInt16       SimpleTypeKind = 0x73
	SimpleTypeInt32        SimpleTypeKind = 0x74
	SimpleTypeUInt32       SimpleTypeKind = 0x75
	SimpleTypeInt64        SimpleTypeKind = 0x76
	SimpleTypeUInt64       SimpleTypeKind = 0x77
	SimpleTypeChar16       SimpleTypeKind = 0x7a
	SimpleTypeChar32       SimpleTypeKind = 0x7b
	SimpleTypeChar8        SimpleTypeKind = 0x7c
)

// SimpleTypeMode identifies the pointer mode of a built-in type.
type SimpleTypeMode uint8

const (
	SimpleModeDirect        SimpleTypeMode = 0x00
	SimpleModeNearPointer   SimpleTypeMode = 0x01
	SimpleModeNearPointer32 SimpleTypeMode = 0x04
	SimpleModeNearPointer64 SimpleTypeMode = 0x06
)

// TypeRecordKind identifies a type record or field list leaf.
type TypeRecordKind uint16

const (
	LF_VTSHAPE      TypeRecordKind = 0x000a
	LF_MODIFIER     TypeRecordKind = 0x1001
	LF_POINTER      TypeRecordKind = 0x1002
	LF_PROCEDURE    TypeRecordKind = 0x1008
	LF_MFUNCTION    TypeRecordKind = 0x1009
	LF_ARGLIST      TypeRecordKind = 0x1201
	LF_FIELDLIST    TypeRecordKind = 0x1203
	LF_BITFIELD     TypeRecordKind = 0x1205
	LF_METHODLIST   TypeRecordKind = 0x1206
	LF_BCLASS       TypeRecordKind = 0x1400
	LF_VBCLASS      TypeRecordKind = 0x1401
	LF_IVBCLASS     TypeRecordKind = 0x1402
	LF_INDEX        TypeRecordKind = 0x1404
	LF_VFUNCTAB     TypeRecordKind = 0x1409
	LF_FRIENDCLS    TypeRecordKind = 0x140a
	LF_VFUNCOFF     TypeRecordKind = 0x140c
	LF_ENUMERATE    TypeRecordKind = 0x1502
	LF_ARRAY        TypeRecordKind = 0x1503
	LF_CLASS        TypeRecordKind = 0x1504
	LF_STRUCTURE    TypeRecordKind = 0x1505
	LF_UNION        TypeRecordKind = 0x1506
	LF_ENUM         TypeRecordKind = 0x1507
	LF_FRIENDFCN    TypeRecordKind = 0x150c
	LF_MEMBER       TypeRecordKind = 0x150d
	LF_STMEMBER     TypeRecordKind = 0x150e
	LF_METHOD       TypeRecordKind = 0x150f
	LF_NESTTYPE     TypeRecordKind = 0x1510
	LF_ONEMETHOD    TypeRecordKind = 0x1511
	LF_NESTTYPEEX   TypeRecordKind = 0x1512
	LF_MEMBERMODIFY TypeRecordKind = 0x1513
	LF_INTERFACE    TypeRecordKind = 0x1519

	// IPI records
	LF_FUNC_ID  TypeRecordKind = 0x1601
	LF_MFUNC_ID TypeRecordKind = 0x1602
)

// CallingConvention is the CV_call_e value of a function type.
type CallingConvention uint8

const (
	CallingConvNearC      CallingConvention = 0x00
	CallingConvFarC       CallingConvention = 0x01
	CallingConvNearPascal CallingConvention = 0x02
	CallingConvFarPascal  CallingConvention = 0x03
	CallingConvNearFast   CallingConvention = 0x04
	CallingConvFarFast    CallingConvention = 0x05
	CallingConvNearStd    CallingConvention = 0x07
	CallingConvFarStd     CallingConvention = 0x08
	CallingConvThisCall   CallingConvention = 0x0b
	CallingConvClrCall    CallingConvention = 0x16
	CallingConvNearVector CallingConvention = 0x18
)

// String returns the C++ keyword for cc, or "" when it has none.
func (cc CallingConvention) String() string {
	switch cc {
	case CallingConvNearC, CallingConvFarC:
		return "__cdecl"
	case CallingConvNearPascal, CallingConvFarPascal:
		return "__pascal"
	case CallingConvNearFast, CallingConvFarFast:
		return "__fastcall"
	case CallingConvNearStd, CallingConvFarStd:
		return "__stdcall"
	case CallingConvThisCall:
		return "__thiscall"
	case CallingConvClrCall:
		return "__clrcall"
	case CallingConvNearVector:
		return "__vectorcall"
	default:
		return ""
	}
}

// PointerMode distinguishes pointers from references and member pointers.
type PointerMode uint8

const (
	PointerModePointer                 PointerMode = 0x00
	PointerModeLValueReference         PointerMode = 0x01
	PointerModePointerToDataMember     PointerMode = 0x02
	PointerModePointerToMemberFunction PointerMode = 0x03
	PointerModeRValueReference         PointerMode = 0x04
)

// PointerAttributes is the LF_POINTER attribute word.
type PointerAttributes uint32

func (pa PointerAttributes) Mode() PointerMode { return PointerMode((pa >> 5) & 0x07) }
func (pa PointerAttributes) IsConst() bool     { return pa&0x400 != 0 }
func (pa PointerAttributes) Size() uint8       { return uint8((pa >> 13) & 0x3F) }

// IsReference reports whether the pointer is an lvalue or rvalue reference.
func (pa PointerAttributes) IsReference() bool {
	m := pa.Mode()
	return m == PointerModeLValueReference || m == PointerModeRValueReference
}

// IsMemberPointer reports whether the pointer is a pointer to member.
func (pa PointerAttributes) IsMemberPointer() bool {
	m := pa.Mode()
	return m == PointerModePointerToDataMember || m == PointerModePointerToMemberFunction
}

// ClassProperties is the property word of class, union and enum records.
type ClassProperties uint16

func (cp ClassProperties) IsForwardRef() bool  { return cp&0x0080 != 0 }
func (cp ClassProperties) HasUniqueName() bool { return cp&0x0200 != 0 }

// ModifierOptions is the LF_MODIFIER option word.
type ModifierOptions uint16

func (mo ModifierOptions) IsConst() bool    { return mo&0x01 != 0 }
func (mo ModifierOptions) IsVolatile() bool { return mo&0x02 != 0 }

// FunctionOptions is the option byte of procedure records.
type FunctionOptions uint8

func (fo FunctionOptions) IsConstructor() bool { return fo&0x02 != 0 }

// MethodKind is the mprop field of a member attribute word.
type MethodKind uint8

const (
	MethodKindVanilla      MethodKind = 0x00
	MethodKindVirtual      MethodKind = 0x01
	MethodKindStatic       MethodKind = 0x02
	MethodKindFriend       MethodKind = 0x03
	MethodKindIntroVirtual MethodKind = 0x04
	MethodKindPureVirtual  MethodKind = 0x05
	MethodKindPureIntro    MethodKind = 0x06
)

// MemberAttributes is the CV_fldattr_t word carried by field list leaves.
type MemberAttributes uint16

func (a MemberAttributes) Access() MemberAccess      { return MemberAccess(a & 0x03) }
func (a MemberAttributes) MethodKind() MethodKind    { return MethodKind((a >> 2) & 0x07) }
func (a MemberAttributes) IsCompilerGenerated() bool { return a&0x0100 != 0 }

// IsIntroducing reports whether the method introduces a new vtable slot.
// Introducing records carry a vtable offset.
func (a MemberAttributes) IsIntroducing() bool {
	k := a.MethodKind()
	return k == MethodKindIntroVirtual || k == MethodKindPureIntro
}

func (a MemberAttributes) IsVirtual() bool {
	switch a.MethodKind() {
	case MethodKindVirtual, MethodKindIntroVirtual, MethodKindPureVirtual, MethodKindPureIntro:
		return true
	}
	return false
}

func (a MemberAttributes) IsPure() bool {
	k := a.MethodKind()
	return k == MethodKindPureVirtual || k == MethodKindPureIntro
}

func (a MemberAttributes) IsStatic() bool { return a.MethodKind() == MethodKindStatic }

// MemberAccess identifies member accessibility.
type MemberAccess uint8

const (
	MemberAccessNone      MemberAccess = 0
	MemberAccessPrivate   MemberAccess = 1
	MemberAccessProtected MemberAccess = 2
	MemberAccessPublic    MemberAccess = 3
)

func (ma MemberAccess) String() string {
	switch ma {
	case MemberAccessPrivate:
		return "private"
	case MemberAccessProtected:
		return "protected"
	case MemberAccessPublic:
		return "public"
	default:
		return ""
	}
}

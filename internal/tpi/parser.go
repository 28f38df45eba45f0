package tpi

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/pdbproxy/internal/stream"
)

// Supported stream versions.
const (
	TPIVersionV70 uint32 = 19990903
	TPIVersionV80 uint32 = 20040203
)

const headerSize = 56

var (
	ErrInvalidTPIHeader    = errors.New("tpi: invalid TPI header")
	ErrUnsupportedVersion  = errors.New("tpi: unsupported TPI version")
	ErrTypeIndexOutOfRange = errors.New("tpi: type index out of range")
	ErrInvalidTypeRecord   = errors.New("tpi: invalid type record")
	ErrUnexpectedKind      = errors.New("tpi: unexpected record kind")
)

// Header holds the TPI header fields needed to walk the records.
type Header struct {
	Version         uint32
	HeaderSize      uint32
	TypeIndexBegin  TypeIndex
	TypeIndexEnd    TypeIndex
	TypeRecordBytes uint32
}

// Stream is a parsed TPI or IPI stream with random access by index.
type Stream struct {
	Header Header

	records []byte
	offsets []uint32
}

// ParseStream parses a TPI or IPI stream and indexes every record.
func ParseStream(data []byte) (*Stream, error) {
	if len(data) < headerSize {
		return nil, ErrInvalidTPIHeader
	}

	r := stream.NewReader(data)
	s := &Stream{}
	h := &s.Header

	var err error
	if h.Version, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if h.Version != TPIVersionV80 && h.Version != TPIVersionV70 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if h.HeaderSize, err = r.ReadU32(); err != nil {
		return nil, err
	}
	begin, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	end, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if end < begin {
		return nil, ErrInvalidTPIHeader
	}
	h.TypeIndexBegin, h.TypeIndexEnd = TypeIndex(begin), TypeIndex(end)
	if h.TypeRecordBytes, err = r.ReadU32(); err != nil {
		return nil, err
	}

	start := int(h.HeaderSize)
	stop := start + int(h.TypeRecordBytes)
	if stop > len(data) {
		return nil, fmt.Errorf("tpi: truncated stream: expected %d bytes, got %d", stop, len(data))
	}
	s.records = data[start:stop]

	if err := s.index(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Stream) index() error {
	r := stream.NewReader(s.records)
	want := int(s.Header.TypeIndexEnd - s.Header.TypeIndexBegin)
	s.offsets = make([]uint32, 0, want)

	for r.Remaining() > 0 && len(s.offsets) < want {
		s.offsets = append(s.offsets, uint32(r.Offset()))

		n, err := r.ReadU16()
		if err != nil {
			return err
		}
		if err := r.Skip(int(n)); err != nil {
			return fmt.Errorf("tpi: record 0x%x: %w", int(s.Header.TypeIndexBegin)+len(s.offsets)-1, err)
		}
	}
	return nil
}

// TypeRecord is an undecoded record: its kind and the bytes after the kind.
type TypeRecord struct {
	Kind TypeRecordKind
	Data []byte
}

// Record returns the record at ti. Built-in indices have no record.
func (s *Stream) Record(ti TypeIndex) (*TypeRecord, error) {
	if ti.IsSimpleType() {
		return nil, nil
	}
	if ti < s.Header.TypeIndexBegin || int(ti-s.Header.TypeIndexBegin) >= len(s.offsets) {
		return nil, fmt.Errorf("%w: 0x%x", ErrTypeIndexOutOfRange, uint32(ti))
	}

	r := stream.NewReader(s.records[s.offsets[ti-s.Header.TypeIndexBegin]:])
	n, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	if n < 2 {
		return nil, ErrInvalidTypeRecord
	}
	kind, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	data, err := r.ReadBytesRef(int(n) - 2)
	if err != nil {
		return nil, err
	}
	return &TypeRecord{Kind: TypeRecordKind(kind), Data: data}, nil
}

func (s *Stream) TypeIndexBegin() TypeIndex { return s.Header.TypeIndexBegin }
func (s *Stream) TypeIndexEnd() TypeIndex   { return s.Header.TypeIndexEnd }

// ModifierRecord is an LF_MODIFIER.
type ModifierRecord struct {
	ModifiedType TypeIndex
	Modifiers    ModifierOptions
}

func ParseModifierRecord(data []byte) (*ModifierRecord, error) {
	r := stream.NewReader(data)
	t, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	mods, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	return &ModifierRecord{ModifiedType: TypeIndex(t), Modifiers: ModifierOptions(mods)}, nil
}

// PointerRecord is an LF_POINTER.
type PointerRecord struct {
	ReferentType TypeIndex
	Attributes   PointerAttributes

	// ContainingClass is set for pointers to member.
	ContainingClass TypeIndex
}

func ParsePointerRecord(data []byte) (*PointerRecord, error) {
	r := stream.NewReader(data)
	t, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	attrs, err := r.ReadU32()
	if err != nil {
		return nil, err
	}

	rec := &PointerRecord{ReferentType: TypeIndex(t), Attributes: PointerAttributes(attrs)}
	if rec.Attributes.IsMemberPointer() {
		cls, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		rec.ContainingClass = TypeIndex(cls)
	}
	return rec, nil
}

// ProcedureRecord is an LF_PROCEDURE or LF_MFUNCTION. The class and this
// fields are zero for free functions; ThisType is zero for static members.
type ProcedureRecord struct {
	ReturnType      TypeIndex
	ClassType       TypeIndex
	ThisType        TypeIndex
	CallingConv     CallingConvention
	FunctionOptions FunctionOptions
	ParameterCount  uint16
	ArgumentList    TypeIndex
	ThisAdjust      int32
}

// ParseProcedureRecord decodes the body of a procedure record of the given kind.
func ParseProcedureRecord(kind TypeRecordKind, data []byte) (*ProcedureRecord, error) {
	r := stream.NewReader(data)
	rec := &ProcedureRecord{}

	ret, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	rec.ReturnType = TypeIndex(ret)

	switch kind {
	case LF_PROCEDURE:
	case LF_MFUNCTION:
		cls, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		this, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		rec.ClassType, rec.ThisType = TypeIndex(cls), TypeIndex(this)
	default:
		return nil, fmt.Errorf("%w: 0x%x", ErrUnexpectedKind, uint16(kind))
	}

	cc, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	opts, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	rec.CallingConv, rec.FunctionOptions = CallingConvention(cc), FunctionOptions(opts)

	if rec.ParameterCount, err = r.ReadU16(); err != nil {
		return nil, err
	}
	args, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	rec.ArgumentList = TypeIndex(args)

	if kind == LF_MFUNCTION {
		if rec.ThisAdjust, err = r.ReadI32(); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// ParseArgListRecord decodes an LF_ARGLIST into its argument types.
func ParseArgListRecord(data []byte) ([]TypeIndex, error) {
	r := stream.NewReader(data)
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if int(count)*4 > r.Remaining() {
		return nil, ErrInvalidTypeRecord
	}

	args := make([]TypeIndex, count)
	for i := range args {
		t, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		args[i] = TypeIndex(t)
	}
	return args, nil
}

// ArrayRecord is an LF_ARRAY. Size is the total size in bytes.
type ArrayRecord struct {
	ElementType TypeIndex
	IndexType   TypeIndex
	Size        uint64
	Name        string
}

func ParseArrayRecord(data []byte) (*ArrayRecord, error) {
	r := stream.NewReader(data)
	elem, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	idx, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	size, err := r.ReadNumeric()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadCString()
	if err != nil {
		return nil, err
	}
	return &ArrayRecord{ElementType: TypeIndex(elem), IndexType: TypeIndex(idx), Size: size, Name: name}, nil
}

// ClassRecord is an LF_CLASS, LF_STRUCTURE, LF_INTERFACE or LF_UNION.
// Unions carry neither DerivedFrom nor VShape.
type ClassRecord struct {
	Kind        TypeRecordKind
	MemberCount uint16
	Properties  ClassProperties
	FieldList   TypeIndex
	DerivedFrom TypeIndex
	VShape      TypeIndex
	Size        uint64
	Name        string
	UniqueName  string
}

// ParseClassRecord decodes a class-like record of the given kind.
func ParseClassRecord(kind TypeRecordKind, data []byte) (*ClassRecord, error) {
	switch kind {
	case LF_CLASS, LF_STRUCTURE, LF_INTERFACE, LF_UNION:
	default:
		return nil, fmt.Errorf("%w: 0x%x", ErrUnexpectedKind, uint16(kind))
	}

	r := stream.NewReader(data)
	rec := &ClassRecord{Kind: kind}

	var err error
	if rec.MemberCount, err = r.ReadU16(); err != nil {
		return nil, err
	}
	props, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	rec.Properties = ClassProperties(props)

	fl, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	rec.FieldList = TypeIndex(fl)

	if kind != LF_UNION {
		derived, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		vshape, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		rec.DerivedFrom, rec.VShape = TypeIndex(derived), TypeIndex(vshape)
	}

	if rec.Size, err = r.ReadNumeric(); err != nil {
		return nil, err
	}
	if rec.Name, err = r.ReadCString(); err != nil {
		return nil, err
	}
	if rec.Properties.HasUniqueName() {
		if rec.UniqueName, err = r.ReadCString(); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// EnumRecord is an LF_ENUM.
type EnumRecord struct {
	Count          uint16
	Properties     ClassProperties
	UnderlyingType TypeIndex
	FieldList      TypeIndex
	Name           string
	UniqueName     string
}

func ParseEnumRecord(data []byte) (*EnumRecord, error) {
	r := stream.NewReader(data)
	rec := &EnumRecord{}

	var err error
	if rec.Count, err = r.ReadU16(); err != nil {
		return nil, err
	}
	props, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	rec.Properties = ClassProperties(props)

	under, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	fl, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	rec.UnderlyingType, rec.FieldList = TypeIndex(under), TypeIndex(fl)

	if rec.Name, err = r.ReadCString(); err != nil {
		return nil, err
	}
	if rec.Properties.HasUniqueName() {
		if rec.UniqueName, err = r.ReadCString(); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// BitFieldRecord is an LF_BITFIELD.
type BitFieldRecord struct {
	Type     TypeIndex
	Length   uint8
	Position uint8
}

func ParseBitFieldRecord(data []byte) (*BitFieldRecord, error) {
	r := stream.NewReader(data)
	t, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	length, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	pos, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	return &BitFieldRecord{Type: TypeIndex(t), Length: length, Position: pos}, nil
}

// FuncIDRecord is an IPI LF_FUNC_ID or LF_MFUNC_ID. Scope is the enclosing
// scope id or, for member functions, the parent class type.
type FuncIDRecord struct {
	Scope        TypeIndex
	FunctionType TypeIndex
	Name         string
}

func ParseFuncIDRecord(data []byte) (*FuncIDRecord, error) {
	r := stream.NewReader(data)
	scope, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	ft, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	name, err := r.ReadCString()
	if err != nil {
		return nil, err
	}
	return &FuncIDRecord{Scope: TypeIndex(scope), FunctionType: TypeIndex(ft), Name: name}, nil
}

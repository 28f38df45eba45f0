package symdb

import (
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/skdltmxn/pdbproxy/internal/demangle"
	"github.com/skdltmxn/pdbproxy/internal/logger"
	"github.com/skdltmxn/pdbproxy/pdb"
)

// FromPDB builds a Table from the type and symbol streams of f. Member
// functions are bound to procedure records by qualified name to obtain
// their RVAs, then to public symbols for their undecorated names. A
// function without a procedure record takes the address of its public
// symbol; with neither it gets LocNull.
func FromPDB(f *pdb.File) (*Table, error) {
	tt, err := f.Types()
	if err != nil {
		return nil, errors.Wrap(err, "read type table")
	}
	ptrSize, err := f.PointerSize()
	if err != nil {
		return nil, errors.Wrap(err, "read machine type")
	}
	procs, err := f.Procedures()
	if err != nil {
		return nil, errors.Wrap(err, "read procedures")
	}
	pubs, err := f.Publics()
	if err != nil {
		return nil, errors.Wrap(err, "read public symbols")
	}

	b := &pdbBuilder{
		tt:    tt,
		table: newTable(ptrSize),
		types: make(map[pdb.TypeIndex]*Symbol),
		udts:  make(map[pdb.TypeIndex]*Symbol),
		procs: make(map[string][]pdb.Procedure),

		pubsByRVA:  make(map[uint32][]*publicFunc),
		pubsByName: make(map[string][]*publicFunc),

		log: logger.ComponentLogger("symdb"),
	}
	for _, p := range procs {
		b.procs[p.Name] = append(b.procs[p.Name], p)
	}
	b.indexPublics(pubs)

	for c := range tt.Classes() {
		b.udt(c)
	}
	for typ := range tt.All() {
		if e, ok := typ.(*pdb.EnumType); ok && !e.IsForwardRef() {
			if s := b.typeOf(e.Index()); s != nil && s.tag == TagEnum {
				b.table.addEnum(s)
			}
		}
	}

	b.log.Infow("loaded symbols from PDB",
		logger.FieldCount, b.table.Len(),
		"enums", len(b.table.enums),
		"procedures", len(procs),
		"publics", len(pubs))
	return b.table, nil
}

type pdbBuilder struct {
	tt    *pdb.TypeTable
	table *Table
	types map[pdb.TypeIndex]*Symbol
	udts  map[pdb.TypeIndex]*Symbol
	procs map[string][]pdb.Procedure
	void  *Symbol

	pubsByRVA  map[uint32][]*publicFunc
	pubsByName map[string][]*publicFunc

	log *zap.SugaredLogger
}

// publicFunc is a public symbol that decodes as a function.
type publicFunc struct {
	rva uint32
	key string
	fn  *demangle.Function
}

// nameKey drops the spaces that template argument lists may or may not
// carry, e.g. "Box<Box<int> >".
func nameKey(name string) string {
	return strings.ReplaceAll(name, " ", "")
}

func (b *pdbBuilder) indexPublics(pubs []*pdb.PublicSymbol) {
	skipped := 0
	for _, p := range pubs {
		fn, err := demangle.Parse(p.Name)
		if err != nil {
			skipped++
			continue
		}
		pf := &publicFunc{rva: p.RVA, key: nameKey(fn.Name.String()), fn: fn}
		if pf.rva != 0 {
			b.pubsByRVA[pf.rva] = append(b.pubsByRVA[pf.rva], pf)
		}
		b.pubsByName[pf.key] = append(b.pubsByName[pf.key], pf)
	}
	if skipped > 0 {
		b.log.Debugw("public symbols not decoded as functions", logger.FieldCount, skipped)
	}
}

func udtKindOf(k pdb.TypeKind) UDTKind {
	switch k {
	case pdb.TypeKindClass:
		return UDTClass
	case pdb.TypeKindUnion:
		return UDTUnion
	default:
		return UDTStruct
	}
}

func (b *pdbBuilder) voidType() *Symbol {
	if b.void == nil {
		b.void = &Symbol{tag: TagBaseType, name: "void"}
	}
	return b.void
}

// udt returns the symbol for a complete class record, registering it in
// the table the first time a name is seen. The symbol is registered before
// its field list is walked so self-referencing members resolve to it.
func (b *pdbBuilder) udt(c *pdb.ClassType) *Symbol {
	if s, ok := b.udts[c.Index()]; ok {
		return s
	}

	s := &Symbol{
		tag:     TagUDT,
		name:    c.Name(),
		udtKind: udtKindOf(c.Kind()),
		length:  c.Size(),
	}
	if !b.table.addUDT(s) {
		// Identical definitions repeat across compilation units. Anonymous
		// types share placeholder names, so only merge on matching size.
		if have := b.table.Lookup(s.name); have.length == s.length {
			b.udts[c.Index()] = have
			return have
		}
	}
	b.udts[c.Index()] = s
	b.fill(s, c)
	return s
}

func (b *pdbBuilder) fill(s *Symbol, c *pdb.ClassType) {
	fl, err := b.tt.Fields(c.FieldList())
	if err != nil {
		b.log.Debugw("skipping field list", logger.FieldType, s.name, logger.FieldError, err)
		return
	}

	for _, base := range fl.Bases {
		bt := b.typeOf(pdb.TypeIndex(base.Type))
		if bt == nil {
			continue
		}
		s.add(&Symbol{
			tag:         TagBaseClass,
			name:        bt.name,
			typ:         bt,
			offset:      int64(base.Offset),
			virtualBase: base.Virtual,
		})
	}

	for _, m := range fl.Members {
		d := &Symbol{
			tag:      TagData,
			name:     m.Name,
			dataKind: DataMember,
			location: LocThisRel,
			offset:   int64(m.Offset),
		}
		raw, err := b.tt.ByIndex(pdb.TypeIndex(m.Type))
		if err != nil {
			b.log.Debugw("skipping member", logger.FieldType, s.name, logger.FieldMember, m.Name, logger.FieldError, err)
			continue
		}
		if bf, ok := raw.(*pdb.BitfieldType); ok {
			d.location = LocBitField
			d.bitPos = uint32(bf.Position())
			d.bitLen = uint32(bf.Length())
			d.typ = b.typeOf(bf.UnderlyingType())
		} else {
			d.typ = b.typeOf(pdb.TypeIndex(m.Type))
		}
		if d.typ == nil {
			continue
		}
		s.add(d)
	}

	for _, m := range fl.StaticMembers {
		typ := b.typeOf(pdb.TypeIndex(m.Type))
		if typ == nil {
			continue
		}
		s.add(&Symbol{tag: TagData, name: m.Name, typ: typ, dataKind: DataStaticMember})
	}

	methods, err := b.tt.Methods(fl)
	if err != nil {
		b.log.Debugw("skipping methods", logger.FieldType, s.name, logger.FieldError, err)
		return
	}
	for _, m := range methods {
		fn := &Symbol{
			tag:     TagFunction,
			name:    m.Name,
			virtual: m.Attrs.IsVirtual(),
			intro:   m.Attrs.IsIntroducing(),
			pure:    m.Attrs.IsPure(),
			static:  m.Attrs.IsStatic(),
		}
		if m.HasVBaseOffset {
			fn.vtableOffset = int64(m.VBaseOffset)
			fn.hasVtableOffset = true
		}
		if ft := b.typeOf(pdb.TypeIndex(m.Type)); ft != nil && ft.tag == TagFunctionType {
			fn.typ = ft
		} else {
			fn.typ = &Symbol{tag: TagFunctionType, typ: b.voidType()}
		}

		qualified := s.name + "::" + m.Name
		if p, ok := b.procedure(qualified, pdb.TypeIndex(m.Type)); ok && p.RVA != 0 {
			fn.rva = p.RVA
			fn.location = LocStatic
		}
		if pub := b.public(qualified, fn); pub != nil {
			fn.undecorated = pub.fn.String()
			if fn.rva == 0 && pub.rva != 0 {
				fn.rva = pub.rva
				fn.location = LocStatic
			}
		}
		s.add(fn)
	}
}

// public finds the public symbol of a member function. When the function
// has an address the public there is used, preferring one of the same name
// since identical code folding can leave several publics at one address.
// Otherwise publics are matched by name, then parameter list, then arity.
func (b *pdbBuilder) public(qualified string, fn *Symbol) *publicFunc {
	key := nameKey(qualified)
	if at := b.pubsByRVA[fn.rva]; fn.rva != 0 && len(at) > 0 {
		for _, p := range at {
			if p.key == key {
				return p
			}
		}
		return at[0]
	}

	candidates := b.pubsByName[key]
	want := nameKey(params(fn.typ))
	for _, p := range candidates {
		if nameKey(p.fn.Type.ParamList()) == want {
			return p
		}
	}
	var match *publicFunc
	n := 0
	for _, p := range candidates {
		if len(p.fn.Type.Params) == fn.typ.ChildCount(TagFunctionArg) {
			match = p
			n++
		}
	}
	if n == 1 {
		return match
	}
	return nil
}

// procedure finds the code for a member function. Overloads are told apart
// by signature; a lone candidate whose signature could not be recovered is
// accepted as is.
func (b *pdbBuilder) procedure(qualified string, ft pdb.TypeIndex) (pdb.Procedure, bool) {
	candidates := b.procs[qualified]
	for _, p := range candidates {
		if p.FunctionType == ft {
			return p, true
		}
	}
	if len(candidates) == 1 && candidates[0].FunctionType == 0 {
		return candidates[0], true
	}
	return pdb.Procedure{}, false
}

// typeOf converts a type index to a symbol. It returns nil when the index
// cannot be decoded.
func (b *pdbBuilder) typeOf(ti pdb.TypeIndex) *Symbol {
	if s, ok := b.types[ti]; ok {
		return s
	}
	typ, err := b.tt.ByIndex(ti)
	if err != nil {
		b.log.Debugw("unresolvable type", "index", uint32(ti), logger.FieldError, err)
		return nil
	}

	var s *Symbol
	switch t := typ.(type) {
	case *pdb.PrimitiveType:
		s = &Symbol{tag: TagBaseType, name: t.Name(), length: t.Size()}

	case *pdb.PointerType:
		s = &Symbol{tag: TagPointer, length: t.Size(), reference: t.IsReference()}
		b.types[ti] = s
		if t.IsMemberPointer() {
			s.memberOf = b.className(t.ContainingClass())
		}
		if s.typ = b.typeOf(t.ReferentType()); s.typ == nil {
			s.typ = b.voidType()
		}
		return s

	case *pdb.ModifierType:
		inner := b.typeOf(t.ModifiedType())
		if inner == nil {
			return nil
		}
		s = inner
		if t.IsConst() {
			s = inner.withConst()
		}

	case *pdb.ArrayType:
		elem := b.typeOf(t.ElementType())
		if elem == nil {
			return nil
		}
		s = &Symbol{tag: TagArray, typ: elem, length: t.Size()}
		if elem.length > 0 {
			s.count = t.Size() / elem.length
		}

	case *pdb.FunctionType:
		s = b.functionType(t)

	case *pdb.ClassType:
		if def, ok := b.tt.Resolve(t).(*pdb.ClassType); ok && !def.IsForwardRef() {
			s = b.udt(def)
		} else {
			// Declared but never defined in this PDB.
			s = &Symbol{tag: TagUDT, name: t.Name(), udtKind: udtKindOf(t.Kind())}
		}

	case *pdb.EnumType:
		def, ok := b.tt.Resolve(t).(*pdb.EnumType)
		if !ok {
			def = t
		}
		if def.Index() != ti {
			s = b.typeOf(def.Index())
			break
		}
		s = b.enum(def)

	case *pdb.BitfieldType:
		s = b.typeOf(t.UnderlyingType())
	}

	b.types[ti] = s
	return s
}

// className names the class of a pointer to member without building the
// class, which may still be in the middle of its own field list.
func (b *pdbBuilder) className(ti pdb.TypeIndex) string {
	if typ, err := b.tt.ByIndex(ti); err == nil && typ.Name() != "" {
		return typ.Name()
	}
	return "?"
}

func (b *pdbBuilder) enum(e *pdb.EnumType) *Symbol {
	s := &Symbol{tag: TagEnum, name: e.Name(), length: e.Size()}
	if s.typ = b.typeOf(e.UnderlyingType()); s.typ == nil {
		s.typ = &Symbol{tag: TagBaseType, name: "int", length: 4}
	}
	if e.IsForwardRef() {
		return s
	}
	fl, err := b.tt.Fields(e.FieldList())
	if err != nil {
		b.log.Debugw("skipping enumerators", logger.FieldType, e.Name(), logger.FieldError, err)
		return s
	}
	for _, en := range fl.Enumerates {
		s.enumerators = append(s.enumerators, Enumerator{Name: en.Name, Value: int64(en.Value)})
	}
	return s
}

func (b *pdbBuilder) functionType(t *pdb.FunctionType) *Symbol {
	s := &Symbol{tag: TagFunctionType, callConv: t.CallingConvention()}
	if s.typ = b.typeOf(t.ReturnType()); s.typ == nil {
		s.typ = b.voidType()
	}

	args, err := b.tt.Arguments(t.ArgumentList())
	if err != nil {
		b.log.Debugw("skipping argument list", logger.FieldError, err)
		return s
	}
	for _, a := range args {
		// Index 0 terminates a variadic list.
		if a == 0 {
			break
		}
		at := b.typeOf(a)
		if at == nil {
			at = b.voidType()
		}
		if at.tag == TagBaseType && strings.EqualFold(at.name, "void") {
			continue
		}
		s.add(&Symbol{tag: TagFunctionArg, typ: at})
	}
	return s
}

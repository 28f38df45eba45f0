package symdb

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// DefaultPointerSize applies to snapshots that do not set pointer_size.
const DefaultPointerSize = 8

// Snapshot schema. A type names exactly one of base, udt, enum, pointer,
// reference, array or function:
//
//	udts:
//	  - name: Vec3
//	    size: 12
//	    members:
//	      - {name: x, offset: 0, type: {base: float}}
//	      - {name: next, offset: 8, type: {pointer: {udt: Vec3}}}
//	    functions:
//	      - {name: length, rva: 0x1040, call: __thiscall, return: {base: float}}
//
// A pointer to member names its class and its size:
// {pointer: {function: {...}}, member: Widget, size: 16}.
type yamlDoc struct {
	PointerSize int        `yaml:"pointer_size,omitempty"`
	Enums       []yamlEnum `yaml:"enums,omitempty"`
	UDTs        []yamlUDT  `yaml:"udts"`
}

type yamlEnum struct {
	Name       string           `yaml:"name"`
	Underlying string           `yaml:"underlying,omitempty"`
	Size       uint64           `yaml:"size,omitempty"`
	Values     []yamlEnumerator `yaml:"values,omitempty"`
}

type yamlEnumerator struct {
	Name  string `yaml:"name"`
	Value int64  `yaml:"value"`
}

type yamlUDT struct {
	Name      string         `yaml:"name"`
	Kind      string         `yaml:"kind,omitempty"`
	Size      uint64         `yaml:"size"`
	Bases     []yamlBase     `yaml:"bases,omitempty"`
	Members   []yamlMember   `yaml:"members,omitempty"`
	Functions []yamlFunction `yaml:"functions,omitempty"`
}

type yamlBase struct {
	Name    string `yaml:"name"`
	Offset  int64  `yaml:"offset"`
	Virtual bool   `yaml:"virtual,omitempty"`
}

type yamlMember struct {
	Name   string    `yaml:"name"`
	Type   *yamlType `yaml:"type"`
	Offset int64     `yaml:"offset"`
	Static bool      `yaml:"static,omitempty"`
	Bits   *yamlBits `yaml:"bits,omitempty"`
}

type yamlBits struct {
	Position uint32 `yaml:"position"`
	Length   uint32 `yaml:"length"`
}

type yamlFunction struct {
	Name         string      `yaml:"name"`
	Undecorated  string      `yaml:"undecorated,omitempty"`
	RVA          uint32      `yaml:"rva,omitempty"`
	Virtual      bool        `yaml:"virtual,omitempty"`
	Intro        bool        `yaml:"intro,omitempty"`
	Pure         bool        `yaml:"pure,omitempty"`
	Static       bool        `yaml:"static,omitempty"`
	VtableOffset *int64      `yaml:"vtable_offset,omitempty"`
	Call         string      `yaml:"call,omitempty"`
	Return       *yamlType   `yaml:"return,omitempty"`
	Args         []*yamlType `yaml:"args,omitempty"`
}

type yamlSig struct {
	Call   string      `yaml:"call,omitempty"`
	Return *yamlType   `yaml:"return,omitempty"`
	Args   []*yamlType `yaml:"args,omitempty"`
}

type yamlType struct {
	Base      string    `yaml:"base,omitempty"`
	UDT       string    `yaml:"udt,omitempty"`
	Enum      string    `yaml:"enum,omitempty"`
	Pointer   *yamlType `yaml:"pointer,omitempty"`
	Reference *yamlType `yaml:"reference,omitempty"`
	Array     *yamlType `yaml:"array,omitempty"`
	Count     uint64    `yaml:"count,omitempty"`
	Function  *yamlSig  `yaml:"function,omitempty"`
	Size      uint64    `yaml:"size,omitempty"`
	Const     bool      `yaml:"const,omitempty"`
	Member    string    `yaml:"member,omitempty"`
}

// ParseYAML builds a Table from a snapshot document.
func ParseYAML(data []byte) (*Table, error) {
	var doc yamlDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parse symbol snapshot")
	}
	return doc.build()
}

// LoadYAMLFile reads and parses a snapshot file.
func LoadYAMLFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read symbol snapshot %s", path)
	}
	t, err := ParseYAML(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return t, nil
}

type yamlLoader struct {
	table     *Table
	enums     map[string]*Symbol
	undefined map[string]*Symbol
}

func (doc *yamlDoc) build() (*Table, error) {
	ptrSize := doc.PointerSize
	if ptrSize == 0 {
		ptrSize = DefaultPointerSize
	}
	if ptrSize != 4 && ptrSize != 8 {
		return nil, errors.Newf("pointer_size must be 4 or 8, got %d", ptrSize)
	}

	l := &yamlLoader{
		table:     newTable(ptrSize),
		enums:     make(map[string]*Symbol),
		undefined: make(map[string]*Symbol),
	}

	for _, e := range doc.Enums {
		if err := l.enum(e); err != nil {
			return nil, errors.Wrapf(err, "enum %q", e.Name)
		}
	}

	// Register every UDT before resolving references so members may point
	// at types declared later in the document.
	for _, u := range doc.UDTs {
		if u.Name == "" {
			return nil, errors.New("udt without a name")
		}
		kind, err := parseUDTKind(u.Kind)
		if err != nil {
			return nil, errors.Wrapf(err, "udt %q", u.Name)
		}
		s := &Symbol{tag: TagUDT, name: u.Name, udtKind: kind, length: u.Size}
		if !l.table.addUDT(s) {
			return nil, errors.Newf("duplicate udt %q", u.Name)
		}
	}

	for _, u := range doc.UDTs {
		if err := l.fill(l.table.Lookup(u.Name), u); err != nil {
			return nil, errors.Wrapf(err, "udt %q", u.Name)
		}
	}
	return l.table, nil
}

func parseUDTKind(s string) (UDTKind, error) {
	switch s {
	case "", "struct":
		return UDTStruct, nil
	case "class":
		return UDTClass, nil
	case "union":
		return UDTUnion, nil
	}
	return 0, errors.Newf("unknown kind %q", s)
}

func (l *yamlLoader) enum(e yamlEnum) error {
	if e.Name == "" {
		return errors.New("missing name")
	}
	under := e.Underlying
	if under == "" {
		under = "int"
	}
	ut, err := l.base(under, 0)
	if err != nil {
		return err
	}
	size := e.Size
	if size == 0 {
		size = ut.length
	}
	s := &Symbol{tag: TagEnum, name: e.Name, typ: ut, length: size}
	for _, v := range e.Values {
		s.enumerators = append(s.enumerators, Enumerator{Name: v.Name, Value: v.Value})
	}
	l.enums[e.Name] = s
	l.table.addEnum(s)
	return nil
}

func (l *yamlLoader) fill(s *Symbol, u yamlUDT) error {
	for _, b := range u.Bases {
		s.add(&Symbol{
			tag:         TagBaseClass,
			name:        b.Name,
			typ:         l.udtRef(b.Name, 0),
			offset:      b.Offset,
			virtualBase: b.Virtual,
		})
	}

	for _, m := range u.Members {
		if m.Type == nil {
			return errors.Newf("member %q has no type", m.Name)
		}
		typ, err := l.typeOf(m.Type)
		if err != nil {
			return errors.Wrapf(err, "member %q", m.Name)
		}
		d := &Symbol{tag: TagData, name: m.Name, typ: typ, offset: m.Offset}
		switch {
		case m.Static:
			d.dataKind = DataStaticMember
		case m.Bits != nil:
			d.dataKind = DataMember
			d.location = LocBitField
			d.bitPos = m.Bits.Position
			d.bitLen = m.Bits.Length
		default:
			d.dataKind = DataMember
			d.location = LocThisRel
		}
		s.add(d)
	}

	for _, f := range u.Functions {
		ft, err := l.signature(yamlSig{Call: f.Call, Return: f.Return, Args: f.Args})
		if err != nil {
			return errors.Wrapf(err, "function %q", f.Name)
		}
		fn := &Symbol{
			tag:         TagFunction,
			name:        f.Name,
			undecorated: f.Undecorated,
			typ:         ft,
			rva:         f.RVA,
			virtual:     f.Virtual || f.Intro,
			intro:       f.Intro,
			pure:        f.Pure,
			static:      f.Static,
		}
		if f.RVA != 0 {
			fn.location = LocStatic
		}
		if f.VtableOffset != nil {
			fn.vtableOffset = *f.VtableOffset
			fn.hasVtableOffset = true
		}
		s.add(fn)
	}
	return nil
}

// udtRef returns the definition named name, or a shared placeholder for a
// type the snapshot only refers to.
func (l *yamlLoader) udtRef(name string, size uint64) *Symbol {
	if s := l.table.Lookup(name); s != nil {
		return s
	}
	if s, ok := l.undefined[name]; ok {
		return s
	}
	s := &Symbol{tag: TagUDT, name: name, length: size}
	l.undefined[name] = s
	return s
}

func (l *yamlLoader) base(name string, size uint64) (*Symbol, error) {
	if size == 0 {
		known, ok := baseSizes[name]
		if !ok {
			return nil, errors.Newf("base type %q needs a size", name)
		}
		size = known
	}
	return &Symbol{tag: TagBaseType, name: name, length: size}, nil
}

func (l *yamlLoader) signature(sig yamlSig) (*Symbol, error) {
	ft := &Symbol{tag: TagFunctionType, callConv: sig.Call}
	if sig.Return == nil {
		ft.typ = &Symbol{tag: TagBaseType, name: "void"}
	} else {
		ret, err := l.typeOf(sig.Return)
		if err != nil {
			return nil, errors.Wrap(err, "return type")
		}
		ft.typ = ret
	}
	for i, a := range sig.Args {
		at, err := l.typeOf(a)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", i)
		}
		ft.add(&Symbol{tag: TagFunctionArg, typ: at})
	}
	return ft, nil
}

func (l *yamlLoader) typeOf(t *yamlType) (*Symbol, error) {
	if t == nil {
		return nil, errors.New("missing type")
	}

	set := 0
	for _, ok := range []bool{t.Base != "", t.UDT != "", t.Enum != "", t.Pointer != nil, t.Reference != nil, t.Array != nil, t.Function != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, errors.WithHint(
			errors.New("type must name exactly one kind"),
			"use one of base, udt, enum, pointer, reference, array, function")
	}

	if t.Member != "" {
		if t.Pointer == nil {
			return nil, errors.New("member is only valid on a pointer")
		}
		if t.Size == 0 {
			return nil, errors.WithHint(
				errors.Newf("pointer to member of %q needs a size", t.Member),
				"member pointer sizes depend on the class's inheritance model")
		}
	}

	var s *Symbol
	var err error
	switch {
	case t.Base != "":
		s, err = l.base(t.Base, t.Size)
	case t.UDT != "":
		s = l.udtRef(t.UDT, t.Size)
	case t.Enum != "":
		e, ok := l.enums[t.Enum]
		if !ok {
			return nil, errors.Newf("unknown enum %q", t.Enum)
		}
		s = e
	case t.Pointer != nil, t.Reference != nil:
		inner := t.Pointer
		if inner == nil {
			inner = t.Reference
		}
		var pointee *Symbol
		if pointee, err = l.typeOf(inner); err == nil {
			s = &Symbol{
				tag:       TagPointer,
				typ:       pointee,
				length:    uint64(l.table.ptrSize),
				reference: t.Reference != nil,
				memberOf:  t.Member,
			}
			if t.Member != "" {
				s.length = t.Size
			}
		}
	case t.Array != nil:
		if t.Count == 0 {
			return nil, errors.New("array needs a count")
		}
		var elem *Symbol
		if elem, err = l.typeOf(t.Array); err == nil {
			s = &Symbol{tag: TagArray, typ: elem, count: t.Count, length: elem.length * t.Count}
		}
	case t.Function != nil:
		s, err = l.signature(*t.Function)
	}
	if err != nil {
		return nil, err
	}
	if t.Const {
		s = s.withConst()
	}
	return s, nil
}

// WriteYAML serialises db in the snapshot format read by ParseYAML.
func WriteYAML(w io.Writer, db Database) error {
	x := &yamlExporter{
		doc:   yamlDoc{PointerSize: db.PointerSize()},
		enums: make(map[string]bool),
	}
	for e := range db.Enums() {
		x.addEnum(e)
	}
	for u := range db.UDTs() {
		yu, err := x.udt(u)
		if err != nil {
			return errors.Wrapf(err, "udt %q", u.Name())
		}
		x.doc.UDTs = append(x.doc.UDTs, yu)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&x.doc); err != nil {
		return errors.Wrap(err, "encode symbol snapshot")
	}
	return enc.Close()
}

type yamlExporter struct {
	doc   yamlDoc
	enums map[string]bool
}

func (x *yamlExporter) addEnum(e *Symbol) {
	if x.enums[e.name] {
		return
	}
	x.enums[e.name] = true
	ye := yamlEnum{Name: e.name, Size: e.length}
	if e.typ != nil {
		ye.Underlying = e.typ.name
	}
	for _, v := range e.enumerators {
		ye.Values = append(ye.Values, yamlEnumerator{Name: v.Name, Value: v.Value})
	}
	x.doc.Enums = append(x.doc.Enums, ye)
}

func (x *yamlExporter) udt(u *Symbol) (yamlUDT, error) {
	yu := yamlUDT{Name: u.name, Size: u.length}
	if u.udtKind != UDTStruct {
		yu.Kind = u.udtKind.String()
	}

	for b := range u.Children(TagBaseClass) {
		yu.Bases = append(yu.Bases, yamlBase{Name: b.name, Offset: b.offset, Virtual: b.virtualBase})
	}

	for d := range u.Children(TagData) {
		t, err := x.typeOf(d.typ)
		if err != nil {
			return yu, errors.Wrapf(err, "member %q", d.name)
		}
		ym := yamlMember{Name: d.name, Type: t, Offset: d.offset}
		switch {
		case d.dataKind == DataStaticMember:
			ym.Static = true
		case d.location == LocBitField:
			ym.Bits = &yamlBits{Position: d.bitPos, Length: d.bitLen}
		}
		yu.Members = append(yu.Members, ym)
	}

	for fn := range u.Children(TagFunction) {
		sig, err := x.signature(fn.typ)
		if err != nil {
			return yu, errors.Wrapf(err, "function %q", fn.name)
		}
		yf := yamlFunction{
			Name:        fn.name,
			Undecorated: fn.undecorated,
			Virtual:     fn.virtual,
			Intro:       fn.intro,
			Pure:        fn.pure,
			Static:      fn.static,
			Call:        sig.Call,
			Return:      sig.Return,
			Args:        sig.Args,
		}
		if fn.location == LocStatic {
			yf.RVA = fn.rva
		}
		if off, ok := fn.VtableOffset(); ok {
			yf.VtableOffset = &off
		}
		yu.Functions = append(yu.Functions, yf)
	}
	return yu, nil
}

func (x *yamlExporter) signature(ft *Symbol) (yamlSig, error) {
	var sig yamlSig
	if ft == nil {
		return sig, nil
	}
	if ft.tag != TagFunctionType {
		return sig, errors.Wrapf(ErrUnknownTag, "%s is not a function type", ft.tag)
	}
	sig.Call = ft.callConv
	if ft.typ != nil && !(ft.typ.tag == TagBaseType && ft.typ.name == "void") {
		ret, err := x.typeOf(ft.typ)
		if err != nil {
			return sig, err
		}
		sig.Return = ret
	}
	for a := range ft.Children(TagFunctionArg) {
		at, err := x.typeOf(a.typ)
		if err != nil {
			return sig, err
		}
		sig.Args = append(sig.Args, at)
	}
	return sig, nil
}

func (x *yamlExporter) typeOf(s *Symbol) (*yamlType, error) {
	if s == nil {
		return nil, errors.New("missing type")
	}
	t := &yamlType{Const: s.constant}
	switch s.tag {
	case TagBaseType:
		t.Base = s.name
		if known, ok := baseSizes[s.name]; !ok || known != s.length {
			t.Size = s.length
		}
	case TagUDT:
		t.UDT = s.name
	case TagEnum:
		x.addEnum(s)
		t.Enum = s.name
	case TagPointer:
		inner, err := x.typeOf(s.typ)
		if err != nil {
			return nil, err
		}
		if s.reference {
			t.Reference = inner
		} else {
			t.Pointer = inner
		}
		if s.memberOf != "" {
			t.Member = s.memberOf
			t.Size = s.length
		}
	case TagArray:
		elem, err := x.typeOf(s.typ)
		if err != nil {
			return nil, err
		}
		t.Array = elem
		t.Count = s.count
	case TagFunctionType:
		sig, err := x.signature(s)
		if err != nil {
			return nil, err
		}
		t.Function = &sig
	default:
		if err := s.tag.Check(); err != nil {
			return nil, err
		}
		return nil, errors.Wrapf(ErrUnknownTag, "%s cannot be used as a type", s.tag)
	}
	return t, nil
}

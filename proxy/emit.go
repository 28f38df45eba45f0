package proxy

import (
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/skdltmxn/pdbproxy/internal/logger"
	"github.com/skdltmxn/pdbproxy/symdb"
)

// vecDelDtor is the compiler-generated vector deleting destructor.
const vecDelDtor = "__vecDelDtor"

// EmitUDT writes the proxy definition of one struct or class. Unions and
// types without a usable name produce no output.
func EmitUDT(w io.Writer, db symdb.Database, udt *symdb.Symbol, opts Options) error {
	if err := udt.Tag().Check(); err != nil {
		return err
	}
	if udt.Tag() != symdb.TagUDT {
		return errors.Newf("proxy: %s symbol %q is not a udt", udt.Tag(), udt.Name())
	}

	e := &udtEmitter{
		db:   db,
		udt:  udt,
		name: Sanitize(udt.Name()),
		opts: opts,
		log:  logger.ComponentLogger("proxy").With(logger.FieldType, udt.Name()),
	}
	if e.name == "" || udt.UDTKind() == symdb.UDTUnion {
		e.log.Debugw("not emitted", logger.FieldReason, "union or unnamed")
		return nil
	}

	e.header()
	e.vtable()
	e.members()
	e.methods()
	if opts.EmitLayoutGuards {
		e.guard()
	}
	e.b.WriteString("};\n\n")

	_, err := io.WriteString(w, e.b.String())
	return err
}

type udtEmitter struct {
	db   symdb.Database
	udt  *symdb.Symbol
	name string
	opts Options
	log  *zap.SugaredLogger

	b strings.Builder
	// emitted holds the members written, for the guard block.
	emitted []*symdb.Symbol
}

func (e *udtEmitter) printf(format string, args ...any) {
	fmt.Fprintf(&e.b, format, args...)
}

func (e *udtEmitter) header() {
	e.printf("%s %s", e.udt.UDTKind(), e.name)

	n := 0
	for base := range e.udt.Children(symdb.TagBaseClass) {
		bn := Sanitize(base.Name())
		if bn == "" {
			e.log.Debugw("skipping unnamed base", "base", base.Name())
			continue
		}
		if n == 0 {
			e.b.WriteString(" : ")
		} else {
			e.b.WriteString(", ")
		}
		e.printf("public %s", bn)
		n++
	}
	e.b.WriteString(" {\npublic:\n")
}

// vtable reserves the vtable pointer when this type starts a vtable. Debug
// info has no data member for it; a type that only overrides inherits the
// pointer from its base.
func (e *udtEmitter) vtable() {
	var intro, override bool
	for fn := range e.udt.Children(symdb.TagFunction) {
		if !fn.IsVirtual() {
			continue
		}
		if fn.IsIntroVirtual() {
			intro = true
		} else {
			override = true
		}
	}
	if intro && !override {
		e.b.WriteString("\tvoid* _vtable;\n")
	}
}

func (e *udtEmitter) members() {
	for d := range e.udt.Children(symdb.TagData) {
		if d.DataKind() != symdb.DataMember {
			continue
		}
		t := d.Type()
		decl, err := Declaration(t, d.Name())
		if err != nil {
			e.log.Debugw("skipping member", logger.FieldMember, d.Name(), logger.FieldError, err)
			continue
		}

		e.b.WriteByte('\t')
		e.b.WriteString(decl)
		switch {
		case d.LocationType() == symdb.LocBitField:
			e.printf(" : %d", d.BitLength())
		case e.opts.ZeroInitializeMembers:
			e.b.WriteString(zeroInit(t))
		}
		e.b.WriteString(";\n")
		e.emitted = append(e.emitted, d)
	}
}

// zeroInit returns the default initializer for a member of type t, or "".
// Enums get a cast since some compilers reject "= {}" for enum members.
func zeroInit(t *symdb.Symbol) string {
	if opaque(t) {
		return ""
	}
	switch t.Tag() {
	case symdb.TagBaseType:
		return " = 0"
	case symdb.TagPointer:
		if t.IsReference() {
			return ""
		}
		return " = 0"
	case symdb.TagEnum:
		s, err := Render(t)
		if err != nil {
			return ""
		}
		return " = (" + s + ")(0)"
	case symdb.TagArray:
		elem := t.Type()
		if elem == nil {
			return ""
		}
		if elem.Tag() == symdb.TagBaseType || (elem.Tag() == symdb.TagPointer && !elem.IsReference() && !opaque(elem)) {
			return " = {}"
		}
	}
	return ""
}

// signature is a member function's parts as spelled in wrappers.
type signature struct {
	ret    string
	conv   string
	params string
	types  string
	args   string
}

func (e *udtEmitter) signature(fn *symdb.Symbol) (*signature, error) {
	ft := fn.Type()
	if ft == nil || ft.Tag() != symdb.TagFunctionType {
		return nil, errors.Newf("%s has no signature", fn.Name())
	}
	if opaque(ft.Type()) {
		return nil, errors.Wrapf(ErrOpaqueType, "return type %q", ft.Type().Name())
	}
	ret, err := Render(ft.Type())
	if err != nil {
		return nil, err
	}

	var params, types, args []string
	i := 0
	for a := range ft.Children(symdb.TagFunctionArg) {
		name := fmt.Sprintf("arg%d", i)
		p, err := parameter(a.Type(), name)
		if err != nil {
			return nil, err
		}
		t, err := Render(a.Type())
		if err != nil {
			return nil, err
		}
		params = append(params, p)
		types = append(types, t)
		args = append(args, name)
		i++
	}

	s := &signature{
		ret:    ret,
		params: strings.Join(params, ", "),
		types:  strings.Join(types, ", "),
		args:   strings.Join(args, ", "),
	}
	if cc := ft.CallingConvention(); cc != "" && cc != "__cdecl" {
		s.conv = cc
	}
	return s, nil
}

// methodName returns the name a wrapper may use, or false for names that
// are not identifiers or operators.
func methodName(udtName, fn string) (string, bool) {
	fn = strings.TrimPrefix(fn, udtName+"::")
	if rest, ok := strings.CutPrefix(fn, "operator"); ok {
		rest = strings.TrimSpace(rest)
		return fn, rest != "" && !isIdentRune(rune(rest[0]))
	}
	if fn == "" {
		return "", false
	}
	for _, r := range fn {
		if !isIdentRune(r) {
			return "", false
		}
	}
	return fn, !('0' <= fn[0] && fn[0] <= '9')
}

func (e *udtEmitter) methods() {
	var hasCtor, hasDtor bool

	for fn := range e.udt.Children(symdb.TagFunction) {
		if strings.Contains(fn.Name(), vecDelDtor) {
			continue
		}

		c := Classify(e.udt.Name(), fn)
		if len(c.Disagreements) > 0 {
			e.log.Debugw("classification signals disagree",
				logger.FieldMethod, fn.Name(), "kind", c.Kind.String(), "signals", c.Disagreements)
		}

		optimized := fn.LocationType() == symdb.LocNull || fn.RVA() == 0

		var slot VirtualSlot
		validVirtual := false
		if fn.IsVirtual() {
			var err error
			if slot, err = ResolveVirtualSlot(e.db, e.udt, fn); err != nil {
				e.log.Warnw("unresolved virtual slot", logger.FieldMethod, fn.Name(), logger.FieldError, err)
				e.printf("\t#error INVALID VFID %s::%s\n", e.name, fn.Name())
			} else {
				validVirtual = true
			}
		}

		sig, err := e.signature(fn)
		if err != nil {
			e.log.Debugw("skipping method", logger.FieldMethod, fn.Name(), logger.FieldError, err)
			continue
		}

		switch c.Kind {
		case Constructor:
			if optimized {
				continue
			}
			hasCtor = true
			e.printf("\tinline %s * ctor(%s) { typedef %s * (%s::*_fpt)(%s); auto _f=xcast<_fpt>(_drva(%d)); return (this->*_f)(%s); }\n",
				e.name, sig.params, e.name, e.name, sig.types, fn.RVA(), sig.args)

		case Destructor:
			if optimized && !validVirtual {
				continue
			}
			hasDtor = true
			addr := fmt.Sprintf("_drva(%d)", fn.RVA())
			if fn.IsVirtual() && validVirtual {
				addr = slotAddress(slot)
			}
			e.printf("\tinline void dtor() { typedef %s (%s::*_fpt)(%s); auto _f=xcast<_fpt>(%s); (this->*_f)(); }\n",
				sig.ret, e.name, sig.types, addr)

		default:
			name, ok := methodName(e.udt.Name(), fn.Name())
			if !ok {
				e.log.Debugw("skipping method", logger.FieldMethod, fn.Name(), logger.FieldReason, "not an identifier")
				continue
			}
			e.function(fn, name, sig, c.Static, optimized, slot, validVirtual)
		}
	}

	if !hasCtor {
		e.printf("\tinline %s * ctor() { return this; }\n", e.name)
	}
	if !hasDtor {
		e.b.WriteString("\tinline void dtor() {}\n")
	}
}

// function writes the wrappers of an ordinary member function. Each wrapper
// uses one addressing mode: a virtual's "_impl" dispatches through its slot,
// or calls its address when redirectors are enabled, in which case the
// plain name dispatches through the slot. Methods that cannot be reached
// are left out.
func (e *udtEmitter) function(fn *symdb.Symbol, name string, sig *signature, static, optimized bool, slot VirtualSlot, validVirtual bool) {
	if !fn.IsVirtual() {
		if !optimized {
			e.direct(name, sig, static, fn.RVA())
		}
		return
	}

	if !e.opts.EmitVirtualRedirectors {
		if validVirtual {
			e.dispatch(name+"_impl", sig, slot)
		}
		return
	}
	if !optimized {
		e.direct(name+"_impl", sig, false, fn.RVA())
	}
	if validVirtual {
		e.dispatch(name, sig, slot)
	}
}

func (e *udtEmitter) direct(name string, sig *signature, static bool, rva uint32) {
	conv := ""
	if sig.conv != "" {
		conv = sig.conv + " "
	}

	e.b.WriteString("\tinline ")
	if static {
		e.b.WriteString("static ")
	}
	e.printf("%s %s%s(%s) { ", sig.ret, conv, name, sig.params)
	if static {
		e.printf("typedef %s (%s*_fpt)(%s); auto _f=(_fpt)_drva(%d); return _f(%s); }\n",
			sig.ret, conv, sig.types, rva, sig.args)
		return
	}
	e.printf("typedef %s (%s%s::*_fpt)(%s); auto _f=xcast<_fpt>(_drva(%d)); return (this->*_f)(%s); }\n",
		sig.ret, conv, e.name, sig.types, rva, sig.args)
}

func (e *udtEmitter) dispatch(name string, sig *signature, slot VirtualSlot) {
	conv := ""
	if sig.conv != "" {
		conv = sig.conv + " "
	}
	e.printf("\tinline %s %s%s(%s) { typedef %s (%s%s::*_fpt)(%s); auto _f=xcast<_fpt>(%s); return (this->*_f)(%s); }\n",
		sig.ret, conv, name, sig.params, sig.ret, conv, e.name, sig.types, slotAddress(slot), sig.args)
}

func slotAddress(slot VirtualSlot) string {
	if slot.VtablePointerOffset == 0 {
		return fmt.Sprintf("get_vfp(this, %d)", slot.Slot)
	}
	return fmt.Sprintf("get_vfp_at(this, 0x%X, %d)", slot.VtablePointerOffset, slot.Slot)
}

func (e *udtEmitter) guard() {
	e.b.WriteString("\tinline void _guard_obj() {\n")
	e.printf("\t\tstatic_assert((sizeof(%s)==%d),\"bad size\");\n", e.name, e.udt.Length())
	for _, d := range e.emitted {
		if d.LocationType() != symdb.LocThisRel {
			continue
		}
		if t := d.Type(); t != nil && t.Tag() == symdb.TagPointer && t.IsReference() {
			continue
		}
		e.printf("\t\tstatic_assert((offsetof(%s,%s)==0x%X),\"bad off\");\n", e.name, d.Name(), d.Offset())
	}
	e.b.WriteString("\t}\n")
}

package proxy

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/skdltmxn/pdbproxy/symdb"
)

// ErrOpaqueType is returned when a signature passes by value a type that
// the output cannot name.
var ErrOpaqueType = errors.New("proxy: type has no usable name")

// opaque reports whether values of t cannot be spelled with the right
// size: anonymous UDTs, unions and pointers to member, whose width depends
// on the class's inheritance model. Such values are laid out as byte blobs
// and pointers to them become void*.
func opaque(t *symdb.Symbol) bool {
	switch t.Tag() {
	case symdb.TagUDT:
		return t.UDTKind() == symdb.UDTUnion || Sanitize(t.Name()) == ""
	case symdb.TagPointer:
		return t.IsMemberPointer()
	}
	return false
}

// Render returns the C++ spelling of a type symbol.
func Render(t *symdb.Symbol) (string, error) {
	if t == nil {
		return "", errors.New("proxy: missing type")
	}

	var s string
	switch t.Tag() {
	case symdb.TagBaseType:
		s = t.Name()

	case symdb.TagUDT:
		if s = Sanitize(t.Name()); s == "" || opaque(t) {
			s = "void"
		}

	case symdb.TagEnum:
		if s = Sanitize(t.Name()); s == "" {
			return Render(t.Type())
		}

	case symdb.TagPointer:
		if t.IsMemberPointer() {
			return "", errors.Wrapf(ErrOpaqueType, "pointer to member of %q", t.MemberOf())
		}
		pointee := t.Type()
		if pointee != nil && pointee.Tag() == symdb.TagFunctionType {
			return functionPointer(pointee, "")
		}
		inner := "void"
		if pointee == nil || !opaque(pointee) {
			var err error
			if inner, err = Render(pointee); err != nil {
				return "", err
			}
		}
		if t.IsReference() {
			return inner + "&", nil
		}
		return inner + "*", nil

	case symdb.TagArray:
		elem, dims := arrayDims(t)
		inner, err := Render(elem)
		if err != nil {
			return "", err
		}
		return inner + dims, nil

	case symdb.TagFunctionType:
		ret, err := Render(t.Type())
		if err != nil {
			return "", err
		}
		args, err := argTypes(t)
		if err != nil {
			return "", err
		}
		return ret + "(" + strings.Join(args, ", ") + ")", nil

	default:
		if err := t.Tag().Check(); err != nil {
			return "", err
		}
		return "", errors.Wrapf(symdb.ErrUnknownTag, "%s is not a type", t.Tag())
	}

	if t.IsConst() {
		s = "const " + s
	}
	return s, nil
}

// MemberType renders t as stored in memory: a top-level reference is
// spelled as a pointer.
func MemberType(t *symdb.Symbol) (string, error) {
	if t != nil && t.Tag() == symdb.TagPointer && t.IsReference() {
		inner, err := Render(t.Type())
		if err != nil {
			return "", err
		}
		return inner + "*", nil
	}
	return Render(t)
}

// Declaration renders a member declaration of t named name, e.g.
// "float v[3]" or "int (*cb)(int)". Opaque values, including pointers to
// member, become "unsigned char name[len]".
func Declaration(t *symdb.Symbol, name string) (string, error) {
	return declare(t, name, true)
}

// parameter renders a function parameter. References stay references
// and opaque values are an error.
func parameter(t *symdb.Symbol, name string) (string, error) {
	return declare(t, name, false)
}

func declare(t *symdb.Symbol, name string, member bool) (string, error) {
	if t == nil {
		return "", errors.New("proxy: missing type")
	}
	switch {
	case t.Tag() == symdb.TagArray:
		return declare(t.Type(), name+"["+strconv.FormatUint(t.Count(), 10)+"]", member)

	case opaque(t):
		if !member {
			return "", errors.Wrapf(ErrOpaqueType, "%q", t.Name())
		}
		return "unsigned char " + name + "[" + strconv.FormatUint(t.Length(), 10) + "]", nil

	case t.Tag() == symdb.TagPointer && t.Type() != nil && t.Type().Tag() == symdb.TagFunctionType:
		return functionPointer(t.Type(), name)
	}

	var s string
	var err error
	if member {
		s, err = MemberType(t)
	} else {
		s, err = Render(t)
	}
	if err != nil {
		return "", err
	}
	return s + " " + name, nil
}

func functionPointer(ft *symdb.Symbol, name string) (string, error) {
	ret, err := Render(ft.Type())
	if err != nil {
		return "", err
	}
	args, err := argTypes(ft)
	if err != nil {
		return "", err
	}
	return ret + " (*" + name + ")(" + strings.Join(args, ", ") + ")", nil
}

func argTypes(ft *symdb.Symbol) ([]string, error) {
	var out []string
	for a := range ft.Children(symdb.TagFunctionArg) {
		s, err := Render(a.Type())
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// arrayDims unwraps nested arrays, returning the element type and the
// extents in declaration order.
func arrayDims(t *symdb.Symbol) (*symdb.Symbol, string) {
	var b strings.Builder
	for t != nil && t.Tag() == symdb.TagArray {
		b.WriteByte('[')
		b.WriteString(strconv.FormatUint(t.Count(), 10))
		b.WriteByte(']')
		t = t.Type()
	}
	return t, b.String()
}

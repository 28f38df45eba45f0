package proxy

import (
	"strings"

	"github.com/skdltmxn/pdbproxy/symdb"
)

// FunctionKind is how the emitter treats a member function.
type FunctionKind uint8

const (
	OrdinaryFunction FunctionKind = iota
	Constructor
	Destructor
)

func (k FunctionKind) String() string {
	switch k {
	case Constructor:
		return "constructor"
	case Destructor:
		return "destructor"
	default:
		return "function"
	}
}

// Classification is the result of Classify. Disagreements lists the
// signals that contradicted each other.
type Classification struct {
	Kind          FunctionKind
	Static        bool
	Disagreements []string
}

// innerName returns the last scope component of a type name, ignoring
// separators inside template arguments: "ns::Foo<a::b>" gives "Foo<a::b>".
func innerName(name string) string {
	depth := 0
	last := 0
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '<':
			depth++
		case '>':
			depth--
		case ':':
			if depth == 0 && i+1 < len(name) && name[i+1] == ':' {
				last = i + 2
				i++
			}
		}
	}
	return name[last:]
}

// Classify decides whether fn of the UDT named udtName is a constructor, a
// destructor or an ordinary function, and whether it is static. Debug info
// producers disagree on how these are encoded, so several weak signals are
// combined:
//
//   - a constructor's name equals the unscoped type name, or its
//     undecorated name contains "T::T(";
//   - a destructor's name starts with '~' ("operator~" does not);
//   - an ordinary function with a fixed address that is flagged pure but
//     not virtual is static.
//
// When signals conflict the most permissive reading wins and the conflict
// is recorded.
func Classify(udtName string, fn *symdb.Symbol) Classification {
	var c Classification
	inner := innerName(udtName)
	name := fn.Name()

	isDtor := strings.HasPrefix(name, "~")
	isCtor := name == inner

	// Without an undecorated name there is nothing to compare against.
	if und := fn.UndecoratedName(); und != "" {
		byUndecorated := strings.Contains(und, inner+"::"+inner+"(")
		if byUndecorated != isCtor {
			c.Disagreements = append(c.Disagreements, "constructor: name and undecorated name disagree")
		}
		isCtor = isCtor || byUndecorated
	}

	switch {
	case isDtor && isCtor:
		c.Disagreements = append(c.Disagreements, "both constructor and destructor; treated as destructor")
		c.Kind = Destructor
	case isDtor:
		c.Kind = Destructor
	case isCtor:
		c.Kind = Constructor
	}

	c.Static = fn.IsStatic()
	if c.Kind == OrdinaryFunction && fn.LocationType() == symdb.LocStatic && fn.RVA() != 0 &&
		fn.IsPure() && !fn.IsVirtual() {
		if !c.Static {
			c.Disagreements = append(c.Disagreements, "pure flag on a non-virtual function with an address; treated as static")
		}
		c.Static = true
	}
	return c
}

package demangle

import (
	"strconv"
	"strings"
)

// Node is a decoded piece of a name or type.
type Node interface {
	String() string
}

// Name is one scope component: an identifier, an operator or a template
// instance.
type Name struct {
	Ident    string
	Template bool
	Args     []Node
}

// String spells template arguments the way PDB type records do:
// "Map<int,Box<float> >".
func (n *Name) String() string {
	if !n.Template {
		return n.Ident
	}
	var b strings.Builder
	b.WriteString(n.Ident)
	b.WriteByte('<')
	for i, a := range n.Args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(a.String())
	}
	if strings.HasSuffix(b.String(), ">") {
		b.WriteByte(' ')
	}
	b.WriteByte('>')
	return b.String()
}

// QualifiedName is a scope path in source order.
type QualifiedName struct {
	Parts []*Name
}

func (q *QualifiedName) String() string {
	parts := make([]string, len(q.Parts))
	for i, p := range q.Parts {
		parts[i] = p.String()
	}
	return strings.Join(parts, "::")
}

// Last returns the unscoped name.
func (q *QualifiedName) Last() *Name {
	if len(q.Parts) == 0 {
		return &Name{}
	}
	return q.Parts[len(q.Parts)-1]
}

type Primitive struct {
	Name string
}

func (p *Primitive) String() string { return p.Name }

type TagKind uint8

const (
	TagStruct TagKind = iota
	TagClass
	TagUnion
	TagEnum
)

// Tag is a class, struct, union or enum. It prints without the keyword.
type Tag struct {
	Kind TagKind
	Name *QualifiedName
}

func (t *Tag) String() string { return t.Name.String() }

// Qualified adds const or volatile to a type.
type Qualified struct {
	Inner    Node
	Const    bool
	Volatile bool
}

func (q *Qualified) String() string {
	s := q.Inner.String()
	if q.Volatile {
		s = "volatile " + s
	}
	if q.Const {
		s = "const " + s
	}
	return s
}

type RefKind uint8

const (
	NotReference RefKind = iota
	LValueReference
	RValueReference
)

// Pointer is a pointer or reference. Qualifiers of the pointer itself are
// dropped when printing, as they are in signatures.
type Pointer struct {
	Pointee Node
	Ref     RefKind
}

func (p *Pointer) String() string {
	if ft, ok := p.Pointee.(*FunctionType); ok {
		return ft.returnString() + "(*)(" + ft.ParamList() + ")"
	}
	switch p.Ref {
	case LValueReference:
		return p.Pointee.String() + "&"
	case RValueReference:
		return p.Pointee.String() + "&&"
	}
	return p.Pointee.String() + "*"
}

type Array struct {
	Elem Node
	Dims []int64
}

func (a *Array) String() string {
	var b strings.Builder
	b.WriteString(a.Elem.String())
	for _, d := range a.Dims {
		b.WriteByte('[')
		b.WriteString(strconv.FormatInt(d, 10))
		b.WriteByte(']')
	}
	return b.String()
}

// Literal is a non-type template argument.
type Literal struct {
	Value int64
}

func (l *Literal) String() string { return strconv.FormatInt(l.Value, 10) }

// FunctionType is a signature. Return is nil for constructors and
// destructors.
type FunctionType struct {
	CallingConvention string
	Return            Node
	Params            []Node
	Variadic          bool

	// Const and Volatile qualify the this pointer.
	Const    bool
	Volatile bool
}

func (f *FunctionType) returnString() string {
	if f.Return == nil {
		return "void"
	}
	return f.Return.String()
}

// ParamList joins the parameter types: "float,const Shape&".
func (f *FunctionType) ParamList() string {
	parts := make([]string, 0, len(f.Params)+1)
	for _, p := range f.Params {
		parts = append(parts, p.String())
	}
	if f.Variadic {
		parts = append(parts, "...")
	}
	return strings.Join(parts, ",")
}

func (f *FunctionType) String() string {
	return f.returnString() + "(" + f.ParamList() + ")"
}

type Access uint8

const (
	AccessNone Access = iota
	AccessPrivate
	AccessProtected
	AccessPublic
)

func (a Access) String() string {
	switch a {
	case AccessPrivate:
		return "private"
	case AccessProtected:
		return "protected"
	case AccessPublic:
		return "public"
	}
	return ""
}

// StructorKind marks constructors and destructors.
type StructorKind uint8

const (
	NotStructor StructorKind = iota
	Constructor
	Destructor
)

// Function is a decoded function symbol.
type Function struct {
	Name     *QualifiedName
	Access   Access
	Static   bool
	Virtual  bool
	Structor StructorKind
	Type     *FunctionType
}

// String returns the compact signature "Scope::name(params)", followed by
// " const" for const member functions.
func (f *Function) String() string {
	s := f.Name.String() + "(" + f.Type.ParamList() + ")"
	if f.Type.Const {
		s += " const"
	}
	return s
}

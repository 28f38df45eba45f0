// Package demangle decodes MSVC decorated names of functions, as found in
// the public symbols of a PDB.
package demangle

import (
	"errors"
	"strings"
)

var (
	ErrNotMangled      = errors.New("demangle: not a decorated name")
	ErrNotFunction     = errors.New("demangle: not a function")
	ErrUnexpectedEnd   = errors.New("demangle: unexpected end of input")
	ErrInvalidMangled  = errors.New("demangle: invalid mangled name")
	ErrInvalidBackref  = errors.New("demangle: invalid back-reference")
	ErrUnknownOperator = errors.New("demangle: unknown operator")
	ErrUnknownType     = errors.New("demangle: unknown type")
	ErrUnsupported     = errors.New("demangle: unsupported encoding")
)

// IsMangled reports whether name looks like an MSVC decorated name.
func IsMangled(name string) bool {
	return strings.HasPrefix(name, "?")
}

// Parse decodes a decorated function name.
func Parse(decorated string) (*Function, error) {
	if !IsMangled(decorated) {
		return nil, ErrNotMangled
	}
	d := &demangler{input: decorated, pos: 1}
	return d.parseFunction()
}

// Demangle returns the compact signature of a decorated function name, or
// the name unchanged when it cannot be decoded.
func Demangle(decorated string) string {
	fn, err := Parse(decorated)
	if err != nil {
		return decorated
	}
	return fn.String()
}

// backrefs are the two tables a decorated name refers back into: names
// (by digit, in name position) and function parameter types (by digit, in
// parameter position). Template arguments get fresh tables.
type backrefs struct {
	names  []*Name
	params []Node
}

type demangler struct {
	input string
	pos   int
	refs  backrefs
}

func (d *demangler) peek() byte {
	if d.pos >= len(d.input) {
		return 0
	}
	return d.input[d.pos]
}

func (d *demangler) next() (byte, error) {
	if d.pos >= len(d.input) {
		return 0, ErrUnexpectedEnd
	}
	c := d.input[d.pos]
	d.pos++
	return c, nil
}

func (d *demangler) consume(prefix string) bool {
	if strings.HasPrefix(d.input[d.pos:], prefix) {
		d.pos += len(prefix)
		return true
	}
	return false
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func (d *demangler) memorizeName(n *Name) {
	if len(d.refs.names) >= 10 {
		return
	}
	s := n.String()
	for _, have := range d.refs.names {
		if have.String() == s {
			return
		}
	}
	d.refs.names = append(d.refs.names, n)
}

func (d *demangler) parseFunction() (*Function, error) {
	fn := &Function{}

	var first *Name
	var err error
	switch {
	case d.consume("?$"):
		first, err = d.parseTemplate(false)
	case d.consume("?"):
		first, fn.Structor, err = d.parseOperator()
	default:
		first, err = d.parseSimpleName()
	}
	if err != nil {
		return nil, err
	}

	scope, err := d.parseScope()
	if err != nil {
		return nil, err
	}
	if fn.Structor != NotStructor {
		if len(scope) == 0 {
			return nil, ErrInvalidMangled
		}
		class := scope[len(scope)-1].String()
		if fn.Structor == Destructor {
			class = "~" + class
		}
		first = &Name{Ident: class}
	}
	fn.Name = &QualifiedName{Parts: append(scope, first)}

	if err := d.parseFunctionClass(fn); err != nil {
		return nil, err
	}
	fn.Type, err = d.parseFunctionType(!fn.Static && fn.Access != AccessNone)
	if err != nil {
		return nil, err
	}
	return fn, nil
}

// parseFunctionClass reads the access and storage letter.
func (d *demangler) parseFunctionClass(fn *Function) error {
	c := d.peek()
	switch {
	case c == 0:
		return ErrUnexpectedEnd
	case isDigit(c):
		return ErrNotFunction
	case c == '$':
		// vtordisp and adjustor thunks
		return ErrUnsupported
	case c < 'A' || c > 'Z':
		return ErrInvalidMangled
	}
	d.pos++

	switch c {
	case 'Y', 'Z':
		return nil
	case 'G', 'H', 'O', 'P', 'W', 'X':
		// this-adjusting thunks
		return ErrUnsupported
	}

	i := c - 'A'
	fn.Access = [...]Access{AccessPrivate, AccessProtected, AccessPublic}[i/8]
	switch i % 8 / 2 {
	case 1:
		fn.Static = true
	case 2:
		fn.Virtual = true
	}
	return nil
}

// parseFunctionType reads what follows the function class, or the '6'
// of a function pointer.
func (d *demangler) parseFunctionType(member bool) (*FunctionType, error) {
	ft := &FunctionType{}
	if member {
		d.skipPointerExtQualifiers()
		if !d.consume("G") {
			d.consume("H")
		}
		c, err := d.next()
		if err != nil {
			return nil, err
		}
		switch c {
		case 'A':
		case 'B':
			ft.Const = true
		case 'C':
			ft.Volatile = true
		case 'D':
			ft.Const, ft.Volatile = true, true
		default:
			return nil, ErrInvalidMangled
		}
	}

	cc, err := d.parseCallingConvention()
	if err != nil {
		return nil, err
	}
	ft.CallingConvention = cc

	if !d.consume("@") {
		if ft.Return, err = d.parseReturnType(); err != nil {
			return nil, err
		}
	}

	if err := d.parseParams(ft); err != nil {
		return nil, err
	}

	// Throw specification.
	if !d.consume("_E") && !d.consume("Z") {
		return nil, ErrInvalidMangled
	}
	return ft, nil
}

func (d *demangler) parseCallingConvention() (string, error) {
	c, err := d.next()
	if err != nil {
		return "", err
	}
	switch c {
	case 'A', 'B':
		return "__cdecl", nil
	case 'C', 'D':
		return "__pascal", nil
	case 'E', 'F':
		return "__thiscall", nil
	case 'G', 'H':
		return "__stdcall", nil
	case 'I', 'J':
		return "__fastcall", nil
	case 'M', 'N':
		return "__clrcall", nil
	case 'Q':
		return "__vectorcall", nil
	}
	return "", ErrUnsupported
}

// parseReturnType reads a return type, which may carry a '?' and a
// qualifier letter for class types.
func (d *demangler) parseReturnType() (Node, error) {
	if !d.consume("?") {
		return d.parseType()
	}
	q, err := d.parseQualifierLetter()
	if err != nil {
		return nil, err
	}
	t, err := d.parseType()
	if err != nil {
		return nil, err
	}
	return q.wrap(t), nil
}

func (d *demangler) parseParams(ft *FunctionType) error {
	if d.consume("X") {
		return nil
	}
	for {
		switch c := d.peek(); {
		case c == 0:
			return ErrUnexpectedEnd
		case c == '@':
			d.pos++
			return nil
		case c == 'Z':
			d.pos++
			ft.Variadic = true
			return nil
		case isDigit(c):
			d.pos++
			i := int(c - '0')
			if i >= len(d.refs.params) {
				return ErrInvalidBackref
			}
			ft.Params = append(ft.Params, d.refs.params[i])
		default:
			start := d.pos
			t, err := d.parseType()
			if err != nil {
				return err
			}
			// Single-letter types are never back-referenced.
			if d.pos-start > 1 && len(d.refs.params) < 10 {
				d.refs.params = append(d.refs.params, t)
			}
			ft.Params = append(ft.Params, t)
		}
	}
}

// parseScope reads name fragments up to the terminating '@' and returns
// them in source order.
func (d *demangler) parseScope() ([]*Name, error) {
	var parts []*Name
	for !d.consume("@") {
		n, err := d.parseScopePiece()
		if err != nil {
			return nil, err
		}
		parts = append(parts, n)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return parts, nil
}

func (d *demangler) parseScopePiece() (*Name, error) {
	c := d.peek()
	switch {
	case c == 0:
		return nil, ErrUnexpectedEnd
	case isDigit(c):
		return d.parseNameBackref()
	case d.consume("?$"):
		return d.parseTemplate(true)
	case d.consume("?A"):
		end := strings.IndexByte(d.input[d.pos:], '@')
		if end < 0 {
			return nil, ErrUnexpectedEnd
		}
		d.pos += end + 1
		n := &Name{Ident: "`anonymous namespace'"}
		d.memorizeName(n)
		return n, nil
	case c == '?':
		// Local scopes of function-static entities.
		return nil, ErrUnsupported
	}
	return d.parseSimpleName()
}

func (d *demangler) parseNameBackref() (*Name, error) {
	c, _ := d.next()
	i := int(c - '0')
	if i >= len(d.refs.names) {
		return nil, ErrInvalidBackref
	}
	return d.refs.names[i], nil
}

func (d *demangler) parseSimpleName() (*Name, error) {
	end := strings.IndexByte(d.input[d.pos:], '@')
	if end < 0 {
		return nil, ErrUnexpectedEnd
	}
	if end == 0 {
		return nil, ErrInvalidMangled
	}
	n := &Name{Ident: d.input[d.pos : d.pos+end]}
	d.pos += end + 1
	d.memorizeName(n)
	return n, nil
}

// parseTemplate reads a template instance after its "?$" prefix. The
// instance has its own back-reference tables; the whole instance is then
// remembered as one name when memorize is set.
func (d *demangler) parseTemplate(memorize bool) (*Name, error) {
	outer := d.refs
	d.refs = backrefs{}

	n, err := d.parseTemplateBody()
	d.refs = outer
	if err != nil {
		return nil, err
	}
	if memorize {
		d.memorizeName(n)
	}
	return n, nil
}

func (d *demangler) parseTemplateBody() (*Name, error) {
	var n *Name
	var err error
	if d.consume("?") {
		// Operator templates such as operator<<<T>.
		var kind StructorKind
		n, kind, err = d.parseOperator()
		if err == nil && kind != NotStructor {
			err = ErrUnsupported
		}
	} else {
		n, err = d.parseSimpleName()
	}
	if err != nil {
		return nil, err
	}
	t := &Name{Ident: n.Ident, Template: true}

	for !d.consume("@") {
		switch {
		case d.peek() == 0:
			return nil, ErrUnexpectedEnd
		case d.consume("$$V"), d.consume("$$Z"):
			// Empty parameter pack.
		case d.consume("$0"):
			v, err := d.parseNumber()
			if err != nil {
				return nil, err
			}
			t.Args = append(t.Args, &Literal{Value: v})
		case d.consume("$$C"):
			q, err := d.parseQualifierLetter()
			if err != nil {
				return nil, err
			}
			inner, err := d.parseType()
			if err != nil {
				return nil, err
			}
			t.Args = append(t.Args, q.wrap(inner))
		case d.consume("$$B"):
			a, err := d.parseType()
			if err != nil {
				return nil, err
			}
			t.Args = append(t.Args, a)
		case d.peek() == '$' && !strings.HasPrefix(d.input[d.pos:], "$$"):
			// Entity, member pointer and float arguments.
			return nil, ErrUnsupported
		default:
			a, err := d.parseType()
			if err != nil {
				return nil, err
			}
			t.Args = append(t.Args, a)
		}
	}
	return t, nil
}

var operators = map[byte]string{
	'2': "operator new",
	'3': "operator delete",
	'4': "operator=",
	'5': "operator>>",
	'6': "operator<<",
	'7': "operator!",
	'8': "operator==",
	'9': "operator!=",
	'A': "operator[]",
	'C': "operator->",
	'D': "operator*",
	'E': "operator++",
	'F': "operator--",
	'G': "operator-",
	'H': "operator+",
	'I': "operator&",
	'J': "operator->*",
	'K': "operator/",
	'L': "operator%",
	'M': "operator<",
	'N': "operator<=",
	'O': "operator>",
	'P': "operator>=",
	'Q': "operator,",
	'R': "operator()",
	'S': "operator~",
	'T': "operator^",
	'U': "operator|",
	'V': "operator&&",
	'W': "operator||",
	'X': "operator*=",
	'Y': "operator+=",
	'Z': "operator-=",
}

var extendedOperators = map[byte]string{
	'0': "operator/=",
	'1': "operator%=",
	'2': "operator>>=",
	'3': "operator<<=",
	'4': "operator&=",
	'5': "operator|=",
	'6': "operator^=",
	'E': "`vector deleting destructor'",
	'G': "`scalar deleting destructor'",
	'U': "operator new[]",
	'V': "operator delete[]",
}

// parseOperator reads the code after a '?' in name position.
func (d *demangler) parseOperator() (*Name, StructorKind, error) {
	c, err := d.next()
	if err != nil {
		return nil, NotStructor, err
	}
	switch c {
	case '0':
		return nil, Constructor, nil
	case '1':
		return nil, Destructor, nil
	case 'B':
		// Conversion operators are named after their return type.
		return nil, NotStructor, ErrUnsupported
	case '_':
		c, err := d.next()
		if err != nil {
			return nil, NotStructor, err
		}
		if op, ok := extendedOperators[c]; ok {
			return &Name{Ident: op}, NotStructor, nil
		}
		return nil, NotStructor, ErrUnknownOperator
	}
	if op, ok := operators[c]; ok {
		return &Name{Ident: op}, NotStructor, nil
	}
	return nil, NotStructor, ErrUnknownOperator
}

var primitives = map[byte]string{
	'X': "void",
	'C': "signed char",
	'D': "char",
	'E': "unsigned char",
	'F': "short",
	'G': "unsigned short",
	'H': "int",
	'I': "unsigned int",
	'J': "long",
	'K': "unsigned long",
	'M': "float",
	'N': "double",
	'O': "long double",
}

var extendedPrimitives = map[byte]string{
	'N': "bool",
	'J': "__int64",
	'K': "unsigned __int64",
	'W': "wchar_t",
	'S': "char16_t",
	'U': "char32_t",
	'Q': "char8_t",
}

func (d *demangler) parseType() (Node, error) {
	c, err := d.next()
	if err != nil {
		return nil, err
	}
	if p, ok := primitives[c]; ok {
		return &Primitive{Name: p}, nil
	}

	switch c {
	case '_':
		c, err := d.next()
		if err != nil {
			return nil, err
		}
		if p, ok := extendedPrimitives[c]; ok {
			return &Primitive{Name: p}, nil
		}
		return nil, ErrUnknownType
	case 'T':
		return d.parseTag(TagUnion)
	case 'U':
		return d.parseTag(TagStruct)
	case 'V':
		return d.parseTag(TagClass)
	case 'W':
		// Underlying type digit.
		if !isDigit(d.peek()) {
			return nil, ErrInvalidMangled
		}
		d.pos++
		return d.parseTag(TagEnum)
	case 'A', 'B':
		return d.parsePointer(LValueReference)
	case 'P', 'Q', 'R', 'S':
		return d.parsePointer(NotReference)
	case 'Y':
		return d.parseArray()
	case '$':
		return d.parseDollarType()
	}
	return nil, ErrUnknownType
}

func (d *demangler) parseDollarType() (Node, error) {
	switch {
	case d.consume("$Q"), d.consume("$R"):
		return d.parsePointer(RValueReference)
	case d.consume("$T"):
		return &Primitive{Name: "std::nullptr_t"}, nil
	case d.consume("$A6"):
		return d.parseFunctionType(false)
	case d.consume("$C"):
		q, err := d.parseQualifierLetter()
		if err != nil {
			return nil, err
		}
		inner, err := d.parseType()
		if err != nil {
			return nil, err
		}
		return q.wrap(inner), nil
	case d.consume("$B"):
		return d.parseType()
	}
	return nil, ErrUnsupported
}

func (d *demangler) parseTag(kind TagKind) (Node, error) {
	var first *Name
	var err error
	switch c := d.peek(); {
	case isDigit(c):
		first, err = d.parseNameBackref()
	case d.consume("?$"):
		first, err = d.parseTemplate(true)
	default:
		first, err = d.parseSimpleName()
	}
	if err != nil {
		return nil, err
	}
	scope, err := d.parseScope()
	if err != nil {
		return nil, err
	}
	return &Tag{Kind: kind, Name: &QualifiedName{Parts: append(scope, first)}}, nil
}

// parsePointer reads the rest of a pointer or reference type after its
// letter. The letter also carries the pointer's own const and volatile,
// which are not kept.
func (d *demangler) parsePointer(ref RefKind) (Node, error) {
	if d.consume("6") {
		ft, err := d.parseFunctionType(false)
		if err != nil {
			return nil, err
		}
		return &Pointer{Pointee: ft, Ref: ref}, nil
	}
	if d.peek() == '8' {
		// Pointer to member function.
		return nil, ErrUnsupported
	}

	d.skipPointerExtQualifiers()
	q, err := d.parseQualifierLetter()
	if err != nil {
		return nil, err
	}
	pointee, err := d.parseType()
	if err != nil {
		return nil, err
	}
	return &Pointer{Pointee: q.wrap(pointee), Ref: ref}, nil
}

// skipPointerExtQualifiers drops __ptr64, __restrict and __unaligned.
func (d *demangler) skipPointerExtQualifiers() {
	d.consume("E")
	d.consume("I")
	d.consume("F")
}

type qualifiers struct {
	isConst    bool
	isVolatile bool
}

func (q qualifiers) wrap(n Node) Node {
	if !q.isConst && !q.isVolatile {
		return n
	}
	return &Qualified{Inner: n, Const: q.isConst, Volatile: q.isVolatile}
}

func (d *demangler) parseQualifierLetter() (qualifiers, error) {
	c, err := d.next()
	if err != nil {
		return qualifiers{}, err
	}
	switch c {
	case 'A':
		return qualifiers{}, nil
	case 'B':
		return qualifiers{isConst: true}, nil
	case 'C':
		return qualifiers{isVolatile: true}, nil
	case 'D':
		return qualifiers{isConst: true, isVolatile: true}, nil
	case 'Q', 'R', 'S', 'T':
		// Pointer to data member.
		return qualifiers{}, ErrUnsupported
	}
	return qualifiers{}, ErrInvalidMangled
}

func (d *demangler) parseArray() (Node, error) {
	rank, err := d.parseNumber()
	if err != nil {
		return nil, err
	}
	if rank <= 0 {
		return nil, ErrInvalidMangled
	}
	a := &Array{}
	for range rank {
		n, err := d.parseNumber()
		if err != nil {
			return nil, err
		}
		a.Dims = append(a.Dims, n)
	}
	q := qualifiers{}
	if d.consume("$$C") {
		if q, err = d.parseQualifierLetter(); err != nil {
			return nil, err
		}
	}
	elem, err := d.parseType()
	if err != nil {
		return nil, err
	}
	a.Elem = q.wrap(elem)
	return a, nil
}

// parseNumber reads an encoded integer: a digit d stands for d+1, other
// values are hex digits 'A'..'P' terminated by '@'. A leading '?' negates.
func (d *demangler) parseNumber() (int64, error) {
	neg := d.consume("?")
	c := d.peek()
	if isDigit(c) {
		d.pos++
		v := int64(c-'0') + 1
		if neg {
			v = -v
		}
		return v, nil
	}

	var v int64
	for {
		c, err := d.next()
		if err != nil {
			return 0, err
		}
		if c == '@' {
			break
		}
		if c < 'A' || c > 'P' {
			return 0, ErrInvalidMangled
		}
		v = v<<4 | int64(c-'A')
	}
	if neg {
		v = -v
	}
	return v, nil
}

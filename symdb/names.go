package symdb

import (
	"strconv"
	"strings"
)

// baseSizes are the byte sizes of built-in types that snapshots may name
// without an explicit size.
var baseSizes = map[string]uint64{
	"void":               0,
	"bool":               1,
	"char":               1,
	"signed char":        1,
	"unsigned char":      1,
	"char8_t":            1,
	"wchar_t":            2,
	"char16_t":           2,
	"char32_t":           4,
	"short":              2,
	"unsigned short":     2,
	"int":                4,
	"unsigned int":       4,
	"long":               4,
	"unsigned long":      4,
	"__int64":            8,
	"unsigned __int64":   8,
	"long long":          8,
	"unsigned long long": 8,
	"float":              4,
	"double":             8,
	"long double":        8,
}

// spell returns the compact spelling used to compare signatures, e.g.
// "const Vec3&" or "float[3]".
func spell(s *Symbol) string {
	if s == nil {
		return "void"
	}
	var b strings.Builder
	if s.constant && s.tag != TagPointer {
		b.WriteString("const ")
	}
	switch s.tag {
	case TagPointer:
		b.WriteString(spell(s.typ))
		if s.reference {
			b.WriteByte('&')
		} else {
			b.WriteByte('*')
		}
	case TagArray:
		b.WriteString(spell(s.typ))
		b.WriteByte('[')
		b.WriteString(strconv.FormatUint(s.count, 10))
		b.WriteByte(']')
	case TagFunctionType:
		b.WriteString(spell(s.typ))
		b.WriteString("()")
	default:
		b.WriteString(s.name)
	}
	return b.String()
}

// params joins the spelled argument types of a FunctionType symbol.
func params(ft *Symbol) string {
	var args []string
	if ft != nil {
		for a := range ft.Children(TagFunctionArg) {
			args = append(args, spell(a.typ))
		}
	}
	return strings.Join(args, ",")
}

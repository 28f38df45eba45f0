package proxy

import (
	"fmt"
	"strings"
)

// Markers of compiler-synthesized names that have no spelling in source.
var suppressedMarkers = []string{
	"<unnamed-",
	"<anonymous-",
	"<lambda_",
	"`",
	"?",
}

var keywords = map[string]bool{
	"alignas": true, "alignof": true, "asm": true, "auto": true, "bool": true,
	"break": true, "case": true, "catch": true, "char": true, "char8_t": true,
	"char16_t": true, "char32_t": true, "class": true, "const": true,
	"consteval": true, "constexpr": true, "constinit": true, "const_cast": true,
	"continue": true, "decltype": true, "default": true, "delete": true,
	"do": true, "double": true, "dynamic_cast": true, "else": true, "enum": true,
	"explicit": true, "export": true, "extern": true, "false": true,
	"float": true, "for": true, "friend": true, "goto": true, "if": true,
	"inline": true, "int": true, "long": true, "mutable": true,
	"namespace": true, "new": true, "noexcept": true, "nullptr": true,
	"operator": true, "private": true, "protected": true, "public": true,
	"register": true, "reinterpret_cast": true, "requires": true,
	"return": true, "short": true, "signed": true, "sizeof": true,
	"static": true, "static_assert": true, "static_cast": true, "struct": true,
	"switch": true, "template": true, "this": true, "thread_local": true,
	"throw": true, "true": true, "try": true, "typedef": true, "typeid": true,
	"typename": true, "union": true, "unsigned": true, "using": true,
	"virtual": true, "void": true, "volatile": true, "wchar_t": true,
	"while": true,
}

func isSuppressed(name string) bool {
	if strings.HasPrefix(name, "__unnamed") {
		return true
	}
	for _, m := range suppressedMarkers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

func balancedTemplate(name string) bool {
	depth := 0
	for _, r := range name {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func isIdentRune(r rune) bool {
	return r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')
}

// tokens spell the punctuation of template arguments and declarators so
// that distinct names stay distinct: "Box<int>" and "Box<int*>" give
// "Box_Tint_E" and "Box_Tint_P_E".
var tokens = map[rune]string{
	'<': "_T",
	'>': "_E",
	',': "_C",
	'*': "_P",
	'&': "_R",
	'(': "_F",
	')': "_Q",
	'[': "_A",
	']': "_Z",
	'-': "_N",
	'.': "_D",
}

// Sanitize maps a raw type name to a C++ identifier. Scope separators
// become "__", template and declarator punctuation becomes a short token
// (see tokens), a space between two words becomes "_" and any other
// character is escaped as "_x" plus its hex code. It returns "" for names
// that must not appear in the output: anonymous and compiler-synthesized
// types, unbalanced templates, keywords and names that would start with a
// digit. Sanitize is idempotent.
func Sanitize(raw string) string {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "::")
	if raw == "" || isSuppressed(raw) || !balancedTemplate(raw) {
		return ""
	}

	var b strings.Builder
	rs := []rune(raw)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case isIdentRune(r):
			b.WriteRune(r)
		case r == ':' && i+1 < len(rs) && rs[i+1] == ':':
			b.WriteString("__")
			i++
		case r == ' ':
			if i > 0 && i+1 < len(rs) && isIdentRune(rs[i-1]) && isIdentRune(rs[i+1]) {
				b.WriteByte('_')
			}
		case tokens[r] != "":
			b.WriteString(tokens[r])
		default:
			fmt.Fprintf(&b, "_x%X", r)
		}
	}
	name := b.String()

	if name == "" || ('0' <= name[0] && name[0] <= '9') || keywords[name] {
		return ""
	}
	return name
}

// depName strips qualifiers from a rendered dependency spelling, leaving
// the type name: "const Foo *" gives "Foo".
func depName(spelling string) string {
	s := strings.TrimSpace(spelling)
	for {
		prev := s
		s = strings.TrimPrefix(s, "const ")
		s = strings.TrimSuffix(s, " const")
		s = strings.TrimRight(s, "*& ")
		if s == prev {
			return s
		}
	}
}

// IsAllowed reports whether a dependency spelling may be referenced at
// all. It rejects empty names, the void sentinel, compiler-synthesized
// names and keywords.
func IsAllowed(spelling string) bool {
	name := depName(spelling)
	if name == "" || name == "void" {
		return false
	}
	if isSuppressed(name) || keywords[name] {
		return false
	}
	return true
}

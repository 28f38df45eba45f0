package proxy

import (
	"fmt"
	"io"
	"strings"

	"github.com/skdltmxn/pdbproxy/symdb"
)

// Prelude defines the helpers generated wrappers call. PDBPROXY_IMAGE_BASE
// may be defined beforehand to locate the module some other way.
const Prelude = `#pragma once
#include <cstddef>
#include <cstdint>
#include <cstring>

#ifndef PDBPROXY_IMAGE_BASE
#include <windows.h>
#define PDBPROXY_IMAGE_BASE ((uintptr_t)GetModuleHandleW(nullptr))
#endif

template <typename To, typename From>
inline To xcast(From from) {
	To to{};
	std::memcpy(&to, &from, sizeof(From) < sizeof(To) ? sizeof(From) : sizeof(To));
	return to;
}

inline void* _drva(uintptr_t rva) {
	return (void*)(PDBPROXY_IMAGE_BASE + rva);
}

inline void* get_vfp_at(const void* obj, size_t vtpo, size_t slot) {
	void** vtable = *(void***)((const char*)obj + vtpo);
	return vtable[slot];
}

inline void* get_vfp(const void* obj, size_t slot) {
	return get_vfp_at(obj, 0, slot);
}

`

// EnumDefinition renders e as a scoped-underlying enum definition. It
// returns "" for anonymous enums.
func EnumDefinition(e *symdb.Symbol) (string, error) {
	name := Sanitize(e.Name())
	if name == "" {
		return "", nil
	}
	under, err := Render(e.Type())
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "enum %s : %s {\n", name, under)
	for _, v := range e.Enumerators() {
		fmt.Fprintf(&b, "\t%s = %d,\n", v.Name, v.Value)
	}
	b.WriteString("};\n\n")
	return b.String(), nil
}

// usedEnums returns the enums that emitted members refer to, directly or
// through pointers and arrays, in first-use order.
func usedEnums(resolved *ResolvedUdtGraph) []*symdb.Symbol {
	var out []*symdb.Symbol
	seen := make(map[string]bool)
	for _, n := range resolved.Nodes {
		for d := range n.Symbol.Children(symdb.TagData) {
			if d.DataKind() != symdb.DataMember {
				continue
			}
			t := d.Type()
			for t != nil && (t.Tag() == symdb.TagArray || t.Tag() == symdb.TagPointer) && !opaque(t) {
				t = t.Type()
			}
			if t == nil || t.Tag() != symdb.TagEnum {
				continue
			}
			name := Sanitize(t.Name())
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, t)
		}
	}
	return out
}

func writeEnums(w io.Writer, enums []*symdb.Symbol) error {
	for _, e := range enums {
		def, err := EnumDefinition(e)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, def); err != nil {
			return err
		}
	}
	return nil
}

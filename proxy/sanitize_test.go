package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Vec3", "Vec3"},
		{"ns::Foo", "ns__Foo"},
		{"::Foo", "Foo"},
		{"Foo<int>", "Foo_Tint_E"},
		{"std::vector<std::pair<int,float> >", "std__vector_Tstd__pair_Tint_Cfloat_E_E"},
		{"Box<int *>", "Box_Tint_P_E"},
		{"Box<unsigned int>", "Box_Tunsigned_int_E"},
		{"Ref<const Foo &>", "Ref_Tconst_Foo_R_E"},
		{"Fixed<-1>", "Fixed_T_N1_E"},
		{"Fn<void (int)>", "Fn_Tvoid_Fint_Q_E"},
		{"Buf<char[4]>", "Buf_Tchar_A4_Z_E"},
		{"op~", "op_x7E"},
		{"a b", "a_b"},
		{"Foo<int", ""},
		{"Foo>int<", ""},
		{"<unnamed-tag>", ""},
		{"<anonymous-struct>", ""},
		{"<lambda_1a2b>", ""},
		{"__unnamed_struct_12", ""},
		{"`anonymous namespace'::Foo", ""},
		{"?Foo@@", ""},
		{"class", ""},
		{"3DVector", ""},
		{"", ""},
		{"  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := Sanitize(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Sanitize(got), "not idempotent")
		})
	}
}

func TestSanitizeKeepsInstantiationsApart(t *testing.T) {
	raws := []string{
		"Box<int>",
		"Box<int*>",
		"Box<int&>",
		"Box<int,int>",
		"Box<Box<int> >",
		"Box<Box<int>,int>",
		"std::vector<Foo>",
		"std::vector<Foo*>",
		"std::vector<Foo**>",
	}

	seen := make(map[string]string)
	for _, raw := range raws {
		name := Sanitize(raw)
		require.NotEmpty(t, name, raw)
		if other, ok := seen[name]; ok {
			t.Errorf("%q and %q both sanitize to %q", other, raw, name)
		}
		seen[name] = raw
	}
}

func TestIsAllowed(t *testing.T) {
	tests := []struct {
		spelling string
		want     bool
	}{
		{"Foo*", true},
		{"const Foo&", true},
		{"const Foo *", true},
		{"ns__Foo", true},
		{"void*", false},
		{"void", false},
		{"", false},
		{"*", false},
		{"<lambda_1>*", false},
		{"int", false},
		{"class*", false},
	}

	for _, tt := range tests {
		t.Run(tt.spelling, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAllowed(tt.spelling))
		})
	}
}

func TestDepName(t *testing.T) {
	assert.Equal(t, "Foo", depName("const Foo *"))
	assert.Equal(t, "Foo", depName("Foo**"))
	assert.Equal(t, "Foo", depName("const Foo&"))
	assert.Equal(t, "", depName("*"))
}

package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skdltmxn/pdbproxy/symdb"
)

func TestInnerName(t *testing.T) {
	assert.Equal(t, "Foo", innerName("Foo"))
	assert.Equal(t, "Foo", innerName("a::b::Foo"))
	assert.Equal(t, "Box<a::b>", innerName("ns::Box<a::b>"))
	assert.Equal(t, "Map<K, ns::V<x::y>>", innerName("Map<K, ns::V<x::y>>"))
}

func TestClassify(t *testing.T) {
	db := loadFixture(t, "classify.yaml")
	box := lookupUDT(t, db, "ns::Box<a::b>")

	tests := []struct {
		name     string
		method   string
		nth      int
		kind     FunctionKind
		static   bool
		disagree bool
	}{
		{name: "constructor", method: "Box<a::b>", kind: Constructor},
		{name: "constructor by name only", method: "Box<a::b>", nth: 1, kind: Constructor, disagree: true},
		{name: "constructor by undecorated name only", method: "make", kind: Constructor, disagree: true},
		{name: "destructor", method: "~Box<a::b>", kind: Destructor},
		{name: "pure with address is static", method: "count", kind: OrdinaryFunction, static: true, disagree: true},
		{name: "static", method: "total", kind: OrdinaryFunction, static: true},
		{name: "ordinary", method: "size", kind: OrdinaryFunction},
		{name: "complement operator", method: "operator~", kind: OrdinaryFunction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(box.Name(), child(t, box, symdb.TagFunction, tt.method, tt.nth))
			assert.Equal(t, tt.kind, c.Kind)
			assert.Equal(t, tt.static, c.Static)
			assert.Equal(t, tt.disagree, len(c.Disagreements) > 0, "%v", c.Disagreements)
		})
	}
}

func TestClassifyVirtualPureIsNotStatic(t *testing.T) {
	db := loadFixture(t, "shapes.yaml")
	shape := lookupUDT(t, db, "Shape")

	c := Classify(shape.Name(), method(t, shape, "area"))
	assert.Equal(t, OrdinaryFunction, c.Kind)
	assert.False(t, c.Static)
	assert.Empty(t, c.Disagreements)
}

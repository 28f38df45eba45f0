package proxy

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	db := loadFixture(t, "shapes.yaml")

	var b bytes.Buffer
	require.NoError(t, Generate(&b, db, Options{}))
	assert.Equal(t, "class Circle;\n\n"+shapeProxy+circleProxy+widgetProxy, b.String())
}

func TestGeneratePreludeAndEnums(t *testing.T) {
	db := loadFixture(t, "shapes.yaml")

	var b bytes.Buffer
	require.NoError(t, Generate(&b, db, Options{EmitPrelude: true, EmitEnums: true}))
	out := b.String()

	require.True(t, strings.HasPrefix(out, Prelude))
	out = strings.TrimPrefix(out, Prelude)
	assert.True(t, strings.HasPrefix(out, "enum Color : int {\n\tRed = 0,\n\tGreen = 1,\n};\n\nclass Circle;\n\nclass Shape {"), out)
	assert.NotContains(t, out, "Unused")
}

func TestGenerateIsDeterministic(t *testing.T) {
	db := loadFixture(t, "graph.yaml")
	opts := Options{EmitPrelude: true, EmitEnums: true, EmitLayoutGuards: true, ZeroInitializeMembers: true}

	g := NewGenerator(db, opts)
	var first, second, third bytes.Buffer
	require.NoError(t, g.Generate(&first))
	require.NoError(t, g.Generate(&second))
	require.NoError(t, Generate(&third, loadFixture(t, "graph.yaml"), opts))

	assert.Equal(t, first.String(), second.String())
	assert.Equal(t, first.String(), third.String())
}

func TestGenerateOrder(t *testing.T) {
	db := loadFixture(t, "graph.yaml")

	var b bytes.Buffer
	require.NoError(t, Generate(&b, db, Options{}))
	out := b.String()

	decls := strings.Index(out, "struct Tree;\nstruct Node;\n\n")
	payload := strings.Index(out, "struct Payload {")
	node := strings.Index(out, "struct Node {")
	tree := strings.Index(out, "struct Tree {")
	require.Equal(t, 0, decls)
	assert.Less(t, decls, payload)
	assert.Less(t, payload, node)
	assert.Less(t, node, tree)
	assert.NotContains(t, out, "Blob {")
	assert.Contains(t, out, "\tunsigned char raw[8];\n")
}

func TestGenerateTypes(t *testing.T) {
	db := loadFixture(t, "shapes.yaml")

	var b bytes.Buffer
	require.NoError(t, Generate(&b, db, Options{Types: []string{"Circle"}}))
	assert.Equal(t, "class Circle;\n\n"+shapeProxy+circleProxy, b.String())

	b.Reset()
	err := Generate(&b, db, Options{Types: []string{"Triangle"}})
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.Empty(t, b.String())
}

func TestGeneratePointerSizeOverride(t *testing.T) {
	db := loadFixture(t, "streams.yaml")

	var narrow, wide bytes.Buffer
	require.NoError(t, Generate(&narrow, db, Options{Types: []string{"Stream"}}))
	require.NoError(t, Generate(&wide, db, Options{Types: []string{"Stream"}, PointerSize: 8}))

	assert.Contains(t, narrow.String(), "get_vfp_at(this, 0x4, 2)")
	assert.Contains(t, wide.String(), "get_vfp_at(this, 0x4, 1)")
}

func TestGenerateKeepsInstantiationsApart(t *testing.T) {
	db := loadFixture(t, "templates.yaml")

	g := NewGenerator(db, Options{EmitLayoutGuards: true})
	assert.Equal(t, 3, g.Graph().Len())

	var b bytes.Buffer
	require.NoError(t, g.Generate(&b))
	out := b.String()

	assert.Contains(t, out, "struct Box_Tint_E {\npublic:\n\tint v;\n")
	assert.Contains(t, out, "static_assert((sizeof(Box_Tint_E)==4),\"bad size\");")
	assert.Contains(t, out, "struct Box_Tint_P_E {\npublic:\n\tint* v;\n")
	assert.Contains(t, out, "static_assert((sizeof(Box_Tint_P_E)==8),\"bad size\");")
	assert.Contains(t, out, "struct Holder {\npublic:\n\tBox_Tint_P_E b;\n")
	assert.Less(t, strings.Index(out, "struct Box_Tint_P_E {"), strings.Index(out, "struct Holder {"))
}

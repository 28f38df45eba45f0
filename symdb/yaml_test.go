package symdb

import (
	"bytes"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadShapes(t *testing.T) *Table {
	t.Helper()
	db, err := LoadYAMLFile("testdata/shapes.yaml")
	require.NoError(t, err)
	return db
}

func TestLoadYAMLFile(t *testing.T) {
	db := loadShapes(t)

	assert.Equal(t, 8, db.PointerSize())
	assert.Equal(t, 2, db.Len())

	shape := db.Lookup("Shape")
	require.NotNil(t, shape)
	assert.Equal(t, TagUDT, shape.Tag())
	assert.Equal(t, UDTClass, shape.UDTKind())
	assert.Equal(t, uint64(16), shape.Length())

	members := slices.Collect(shape.Children(TagData))
	require.Len(t, members, 3)

	color := members[0]
	assert.Equal(t, DataMember, color.DataKind())
	assert.Equal(t, LocThisRel, color.LocationType())
	assert.Equal(t, TagEnum, color.Type().Tag())
	assert.Equal(t, uint64(4), color.Type().Length())
	assert.Len(t, color.Type().Enumerators(), 2)

	flags := members[1]
	assert.Equal(t, LocBitField, flags.LocationType())
	assert.Equal(t, uint32(3), flags.BitLength())

	assert.Equal(t, DataStaticMember, members[2].DataKind())

	fns := slices.Collect(shape.Children(TagFunction))
	require.Len(t, fns, 2)

	area := fns[0]
	assert.True(t, area.IsVirtual())
	assert.True(t, area.IsIntroVirtual())
	assert.True(t, area.IsPure())
	assert.Equal(t, LocNull, area.LocationType())
	off, ok := area.VtableOffset()
	assert.True(t, ok)
	assert.Equal(t, int64(0), off)
	assert.Equal(t, "__thiscall", area.Type().CallingConvention())
	assert.Equal(t, "float", area.Type().Type().Name())

	dtor := fns[1]
	assert.Equal(t, LocStatic, dtor.LocationType())
	assert.Equal(t, uint32(0x1100), dtor.RVA())
	assert.Equal(t, "void", dtor.Type().Type().Name())

	circle := db.Lookup("Circle")
	require.NotNil(t, circle)
	bases := slices.Collect(circle.Children(TagBaseClass))
	require.Len(t, bases, 1)
	assert.Same(t, shape, bases[0].Type())

	next := slices.Collect(circle.Children(TagData))[1]
	assert.Equal(t, TagPointer, next.Type().Tag())
	assert.Same(t, circle, next.Type().Type())

	// Undecorated names are only what the snapshot supplies.
	assert.Empty(t, slices.Collect(circle.Children(TagFunction))[0].UndecoratedName())
	scale := slices.Collect(circle.Children(TagFunction))[1]
	assert.Equal(t, "Circle::scale(float,const Shape&)", scale.UndecoratedName())
	args := slices.Collect(scale.Type().Children(TagFunctionArg))
	require.Len(t, args, 2)
	assert.True(t, args[1].Type().IsReference())
	assert.True(t, args[1].Type().Type().IsConst())
	assert.False(t, shape.IsConst())
}

func TestParseYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "duplicate udt",
			doc:  "udts: [{name: A, size: 1}, {name: A, size: 1}]",
			want: `duplicate udt "A"`,
		},
		{
			name: "unknown enum",
			doc:  "udts: [{name: A, size: 4, members: [{name: e, type: {enum: E}}]}]",
			want: `unknown enum "E"`,
		},
		{
			name: "ambiguous type",
			doc:  "udts: [{name: A, size: 4, members: [{name: e, type: {base: int, udt: B}}]}]",
			want: "exactly one kind",
		},
		{
			name: "unknown kind",
			doc:  "udts: [{name: A, kind: record, size: 4}]",
			want: `unknown kind "record"`,
		},
		{
			name: "unsized base",
			doc:  "udts: [{name: A, size: 4, members: [{name: h, type: {base: HANDLE}}]}]",
			want: `base type "HANDLE" needs a size`,
		},
		{
			name: "array without count",
			doc:  "udts: [{name: A, size: 4, members: [{name: a, type: {array: {base: int}}}]}]",
			want: "array needs a count",
		},
		{
			name: "pointer size",
			doc:  "pointer_size: 2\nudts: []",
			want: "pointer_size must be 4 or 8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWriteYAMLIsStable(t *testing.T) {
	db := loadShapes(t)

	var first bytes.Buffer
	require.NoError(t, WriteYAML(&first, db))

	again, err := ParseYAML(first.Bytes())
	require.NoError(t, err)

	var second bytes.Buffer
	require.NoError(t, WriteYAML(&second, again))
	assert.Equal(t, first.String(), second.String())

	scale := slices.Collect(again.Lookup("Circle").Children(TagFunction))[1]
	assert.Equal(t, uint32(0x1240), scale.RVA())
	assert.Equal(t, "Circle::scale(float,const Shape&)", scale.UndecoratedName())
}

func TestTagCheck(t *testing.T) {
	assert.NoError(t, TagUDT.Check())
	assert.ErrorIs(t, TagNull.Check(), ErrUnknownTag)
	assert.ErrorIs(t, Tag(42).Check(), ErrUnknownTag)
	assert.Equal(t, "tag(42)", Tag(42).String())
}

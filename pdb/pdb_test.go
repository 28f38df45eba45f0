package pdb

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/pdbproxy/internal/pdbtest"
	"github.com/skdltmxn/pdbproxy/internal/tpi"
)

func openImage(t *testing.T, img *pdbtest.Image) *File {
	t.Helper()
	data := img.Build()
	f, err := OpenReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

// shapeTypes encodes a forward reference to Shape, its field list with one
// member and one introducing virtual, and the complete definition.
func shapeTypes() (*pdbtest.Types, map[string]uint32) {
	types := pdbtest.NewTypes()
	idx := make(map[string]uint32)

	fwd := &pdbtest.Leaf{}
	fwd.U16(0).U16(0x0080 | 0x0200).U32(0).U32(0).U32(0).U16(0).Str("Shape").Str(".?AVShape@@")
	idx["fwd"] = types.Add(uint16(tpi.LF_CLASS), fwd.Bytes())

	ptr := &pdbtest.Leaf{}
	ptr.U32(idx["fwd"]).U32(0x0001000c)
	idx["this"] = types.Add(uint16(tpi.LF_POINTER), ptr.Bytes())

	args := &pdbtest.Leaf{}
	args.U32(0)
	idx["args"] = types.Add(uint16(tpi.LF_ARGLIST), args.Bytes())

	fn := &pdbtest.Leaf{}
	fn.U32(0x40).U32(idx["fwd"]).U32(idx["this"]).U8(uint8(tpi.CallingConvThisCall)).U8(0).U16(0).U32(idx["args"]).U32(0)
	idx["area"] = types.Add(uint16(tpi.LF_MFUNCTION), fn.Bytes())

	fl := &pdbtest.Leaf{}
	fl.U16(uint16(tpi.LF_VFUNCTAB)).U16(0).U32(0x0603).Pad()
	fl.U16(uint16(tpi.LF_MEMBER)).U16(3).U32(0x74).U16(8).Str("id").Pad()
	fl.U16(uint16(tpi.LF_ONEMETHOD)).U16(3 | uint16(tpi.MethodKindIntroVirtual)<<2).U32(idx["area"]).U32(0).Str("area").Pad()
	idx["fields"] = types.Add(uint16(tpi.LF_FIELDLIST), fl.Bytes())

	def := &pdbtest.Leaf{}
	def.U16(2).U16(0x0200).U32(idx["fields"]).U32(0).U32(0).U16(16).Str("Shape").Str(".?AVShape@@")
	idx["def"] = types.Add(uint16(tpi.LF_CLASS), def.Bytes())

	return types, idx
}

func TestInfoAndMachine(t *testing.T) {
	f := openImage(t, &pdbtest.Image{Machine: 0x014c})

	info, err := f.Info()
	require.NoError(t, err)
	assert.Equal(t, uint32(20000404), info.Version)
	assert.Equal(t, uint32(1), info.Age)
	assert.Equal(t, "12345678-9ABC-DEF0-0102-030405060708", info.GUIDString())

	ptr, err := f.PointerSize()
	require.NoError(t, err)
	assert.Equal(t, 4, ptr)
}

func TestOpenReaderRejectsGarbage(t *testing.T) {
	data := make([]byte, 1024)
	_, err := OpenReader(bytes.NewReader(data), int64(len(data)))
	assert.ErrorIs(t, err, ErrNotPDB)
}

func TestTypeTable(t *testing.T) {
	types, idx := shapeTypes()
	f := openImage(t, &pdbtest.Image{Types: types})

	tt, err := f.Types()
	require.NoError(t, err)
	assert.Equal(t, 6, tt.Count())

	var classes []*ClassType
	for c := range tt.Classes() {
		classes = append(classes, c)
	}
	require.Len(t, classes, 1)
	shape := classes[0]
	assert.Equal(t, "Shape", shape.Name())
	assert.Equal(t, TypeKindClass, shape.Kind())
	assert.Equal(t, uint64(16), shape.Size())

	fwd, err := tt.ByIndex(TypeIndex(idx["fwd"]))
	require.NoError(t, err)
	assert.True(t, fwd.(*ClassType).IsForwardRef())
	assert.Same(t, shape, tt.Resolve(fwd))

	fl, err := tt.Fields(shape.FieldList())
	require.NoError(t, err)
	require.Len(t, fl.Members, 1)
	assert.Equal(t, "id", fl.Members[0].Name)
	assert.Len(t, fl.VFuncTabs, 1)

	methods, err := tt.Methods(fl)
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.True(t, methods[0].Attrs.IsIntroducing())

	fn, err := tt.ByIndex(TypeIndex(idx["area"]))
	require.NoError(t, err)
	ft := fn.(*FunctionType)
	assert.Equal(t, "__thiscall", ft.CallingConvention())
	assert.Equal(t, TypeIndex(idx["fwd"]), ft.ClassType())

	args, err := tt.Arguments(ft.ArgumentList())
	require.NoError(t, err)
	assert.Empty(t, args)

	vp, err := tt.ByIndex(0x0603)
	require.NoError(t, err)
	p := vp.(*PointerType)
	assert.Equal(t, uint64(8), p.Size())
	void, err := tt.ByIndex(p.ReferentType())
	require.NoError(t, err)
	assert.True(t, void.(*PrimitiveType).IsVoid())

	_, err = tt.ByIndex(TypeIndex(idx["fields"]))
	assert.ErrorIs(t, err, ErrTypeNotFound)
}

func TestProcedures(t *testing.T) {
	types, idx := shapeTypes()

	ids := pdbtest.NewTypes()
	mfid := &pdbtest.Leaf{}
	mfid.U32(idx["def"]).U32(idx["area"]).Str("area")
	id := ids.Add(uint16(tpi.LF_MFUNC_ID), mfid.Bytes())

	f := openImage(t, &pdbtest.Image{
		Types: types,
		IDs:   ids,
		Sections: []pdbtest.Section{
			{Name: ".text", VirtualAddress: 0x1000, VirtualSize: 0x2000},
		},
		Procs: []pdbtest.Proc{
			{Name: "Shape::area", Section: 1, Offset: 0x40, Type: id, ID: true},
			{Name: "main", Section: 1, Offset: 0x100, Type: 0},
		},
	})

	sections, err := f.Sections()
	require.NoError(t, err)
	require.Equal(t, 1, sections.Count())
	assert.Equal(t, ".text", sections.All()[0].Name)
	assert.Equal(t, uint32(0), sections.ToRVA(0, 5))

	procs, err := f.Procedures()
	require.NoError(t, err)
	require.Len(t, procs, 2)

	assert.Equal(t, "Shape::area", procs[0].Name)
	assert.Equal(t, uint32(0x1040), procs[0].RVA)
	assert.Equal(t, TypeIndex(idx["area"]), procs[0].FunctionType)
	assert.Equal(t, "test.obj", procs[0].Module)
	assert.Equal(t, uint32(0x1100), procs[1].RVA)
}

func TestPublics(t *testing.T) {
	f := openImage(t, &pdbtest.Image{
		Sections: []pdbtest.Section{
			{Name: ".text", VirtualAddress: 0x1000, VirtualSize: 0x2000},
		},
		Publics: []pdbtest.Public{
			{Name: "?area@Shape@@UEBAMXZ", Section: 1, Offset: 0x40},
			{Name: "main", Section: 1, Offset: 0x100},
		},
	})

	pubs, err := f.Publics()
	require.NoError(t, err)
	require.Len(t, pubs, 2)

	assert.Equal(t, "?area@Shape@@UEBAMXZ", pubs[0].Name)
	assert.Equal(t, uint16(1), pubs[0].Section)
	assert.Equal(t, uint32(0x40), pubs[0].Offset)
	assert.Equal(t, uint32(0x1040), pubs[0].RVA)
	assert.True(t, pubs[0].Function)
	assert.False(t, pubs[0].Code)
	assert.Equal(t, "Shape::area() const", pubs[0].DemangledName())

	assert.Equal(t, "main", pubs[1].DemangledName())
	assert.Equal(t, uint32(0x1100), pubs[1].RVA)
}

func TestPublicsAbsent(t *testing.T) {
	f := openImage(t, &pdbtest.Image{})
	pubs, err := f.Publics()
	require.NoError(t, err)
	assert.Nil(t, pubs)
}

func TestCloseIsIdempotent(t *testing.T) {
	data := (&pdbtest.Image{}).Build()
	f, err := OpenReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err = f.Info()
	assert.ErrorIs(t, err, ErrFileClosed)
}

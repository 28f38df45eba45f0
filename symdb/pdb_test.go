package symdb

import (
	"bytes"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/pdbproxy/internal/pdbtest"
	"github.com/skdltmxn/pdbproxy/internal/tpi"
	"github.com/skdltmxn/pdbproxy/pdb"
)

const (
	tFloat = 0x40
	tInt   = 0x74
	tUInt  = 0x75
	tVoid  = 0x03
)

// vec3Image encodes
//
//	struct Vec3 {
//		float x, y, z;
//		unsigned flags : 3;
//		Vec3(float, float, float);
//		float length();
//		void reset();
//	};
//
// with code for the constructor and length only. All three have public
// symbols; reset's is the only record of its address.
func vec3Image() *pdbtest.Image {
	types := pdbtest.NewTypes()

	fwd := &pdbtest.Leaf{}
	fwd.U16(0).U16(0x0080 | 0x0200).U32(0).U32(0).U32(0).U16(0).Str("Vec3").Str(".?AUVec3@@")
	fwdIdx := types.Add(uint16(tpi.LF_STRUCTURE), fwd.Bytes())

	this := &pdbtest.Leaf{}
	this.U32(fwdIdx).U32(0x0001000c)
	thisIdx := types.Add(uint16(tpi.LF_POINTER), this.Bytes())

	threeFloats := &pdbtest.Leaf{}
	threeFloats.U32(3).U32(tFloat).U32(tFloat).U32(tFloat)
	threeIdx := types.Add(uint16(tpi.LF_ARGLIST), threeFloats.Bytes())

	ctor := &pdbtest.Leaf{}
	ctor.U32(tVoid).U32(fwdIdx).U32(thisIdx).U8(uint8(tpi.CallingConvThisCall)).U8(0x02).U16(3).U32(threeIdx).U32(0)
	ctorIdx := types.Add(uint16(tpi.LF_MFUNCTION), ctor.Bytes())

	none := &pdbtest.Leaf{}
	none.U32(0)
	noneIdx := types.Add(uint16(tpi.LF_ARGLIST), none.Bytes())

	length := &pdbtest.Leaf{}
	length.U32(tFloat).U32(fwdIdx).U32(thisIdx).U8(uint8(tpi.CallingConvThisCall)).U8(0).U16(0).U32(noneIdx).U32(0)
	lengthIdx := types.Add(uint16(tpi.LF_MFUNCTION), length.Bytes())

	reset := &pdbtest.Leaf{}
	reset.U32(tVoid).U32(fwdIdx).U32(thisIdx).U8(uint8(tpi.CallingConvThisCall)).U8(0).U16(0).U32(noneIdx).U32(0)
	resetIdx := types.Add(uint16(tpi.LF_MFUNCTION), reset.Bytes())

	bits := &pdbtest.Leaf{}
	bits.U32(tUInt).U8(3).U8(0)
	bitsIdx := types.Add(uint16(tpi.LF_BITFIELD), bits.Bytes())

	fl := &pdbtest.Leaf{}
	for i, name := range []string{"x", "y", "z"} {
		fl.U16(uint16(tpi.LF_MEMBER)).U16(3).U32(tFloat).U16(uint16(4 * i)).Str(name).Pad()
	}
	fl.U16(uint16(tpi.LF_MEMBER)).U16(3).U32(bitsIdx).U16(12).Str("flags").Pad()
	fl.U16(uint16(tpi.LF_ONEMETHOD)).U16(3).U32(ctorIdx).Str("Vec3").Pad()
	fl.U16(uint16(tpi.LF_ONEMETHOD)).U16(3).U32(lengthIdx).Str("length").Pad()
	fl.U16(uint16(tpi.LF_ONEMETHOD)).U16(3).U32(resetIdx).Str("reset").Pad()
	flIdx := types.Add(uint16(tpi.LF_FIELDLIST), fl.Bytes())

	def := &pdbtest.Leaf{}
	def.U16(7).U16(0x0200).U32(flIdx).U32(0).U32(0).U16(16).Str("Vec3").Str(".?AUVec3@@")
	types.Add(uint16(tpi.LF_STRUCTURE), def.Bytes())

	return &pdbtest.Image{
		Types: types,
		Sections: []pdbtest.Section{
			{Name: ".text", VirtualAddress: 0x1000, VirtualSize: 0x1000},
		},
		Procs: []pdbtest.Proc{
			{Name: "Vec3::Vec3", Section: 1, Offset: 0x10, Type: ctorIdx},
			{Name: "Vec3::length", Section: 1, Offset: 0x80, Type: lengthIdx},
		},
		Publics: []pdbtest.Public{
			{Name: "??0Vec3@@QEAA@MMM@Z", Section: 1, Offset: 0x10},
			{Name: "?length@Vec3@@QEAAMXZ", Section: 1, Offset: 0x80},
			{Name: "?reset@Vec3@@QEAAXXZ", Section: 1, Offset: 0x200},
		},
	}
}

func loadImage(t *testing.T, img *pdbtest.Image) *Table {
	t.Helper()
	data := img.Build()
	f, err := pdb.OpenReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	db, err := FromPDB(f)
	require.NoError(t, err)
	return db
}

func TestFromPDB(t *testing.T) {
	data := vec3Image().Build()
	f, err := pdb.OpenReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	db, err := FromPDB(f)
	require.NoError(t, err)
	assert.Equal(t, 8, db.PointerSize())
	require.Equal(t, 1, db.Len())

	vec := db.Lookup("Vec3")
	require.NotNil(t, vec)
	assert.Equal(t, UDTStruct, vec.UDTKind())
	assert.Equal(t, uint64(16), vec.Length())

	members := slices.Collect(vec.Children(TagData))
	require.Len(t, members, 4)
	for i, name := range []string{"x", "y", "z"} {
		assert.Equal(t, name, members[i].Name())
		assert.Equal(t, int64(4*i), members[i].Offset())
		assert.Equal(t, "float", members[i].Type().Name())
		assert.Equal(t, LocThisRel, members[i].LocationType())
	}
	assert.Equal(t, LocBitField, members[3].LocationType())
	assert.Equal(t, uint32(3), members[3].BitLength())
	assert.Equal(t, "unsigned int", members[3].Type().Name())

	fns := slices.Collect(vec.Children(TagFunction))
	require.Len(t, fns, 3)

	ctor := fns[0]
	assert.Equal(t, "Vec3::Vec3(float,float,float)", ctor.UndecoratedName())
	assert.Equal(t, LocStatic, ctor.LocationType())
	assert.Equal(t, uint32(0x1010), ctor.RVA())
	assert.Equal(t, 3, ctor.Type().ChildCount(TagFunctionArg))
	assert.Equal(t, "__thiscall", ctor.Type().CallingConvention())

	length := fns[1]
	assert.Equal(t, "Vec3::length()", length.UndecoratedName())
	assert.Equal(t, uint32(0x1080), length.RVA())
	assert.Equal(t, "float", length.Type().Type().Name())
	assert.False(t, length.IsVirtual())

	reset := fns[2]
	assert.Equal(t, "Vec3::reset()", reset.UndecoratedName())
	assert.Equal(t, LocStatic, reset.LocationType())
	assert.Equal(t, uint32(0x1200), reset.RVA())
}

func TestFromPDBWithoutPublics(t *testing.T) {
	img := vec3Image()
	img.Publics = nil
	db := loadImage(t, img)

	fns := slices.Collect(db.Lookup("Vec3").Children(TagFunction))
	require.Len(t, fns, 3)
	for _, fn := range fns {
		assert.Empty(t, fn.UndecoratedName(), fn.Name())
	}
	assert.Equal(t, uint32(0x1010), fns[0].RVA())

	reset := fns[2]
	assert.Equal(t, LocNull, reset.LocationType())
	assert.Zero(t, reset.RVA())
}

func TestFromPDBFoldedAddress(t *testing.T) {
	img := vec3Image()
	img.Publics = []pdbtest.Public{
		{Name: "?clear@Vec3@@QEAAXXZ", Section: 1, Offset: 0x80},
		{Name: "??0Vec3@@QEAA@MMM@Z", Section: 1, Offset: 0x80},
		{Name: "??0Vec3@@QEAA@MMM@Z", Section: 1, Offset: 0x10},
	}
	db := loadImage(t, img)

	fns := slices.Collect(db.Lookup("Vec3").Children(TagFunction))
	require.Len(t, fns, 3)

	// Only other functions' publics sit at length's address.
	length := fns[1]
	assert.Equal(t, uint32(0x1080), length.RVA())
	assert.Equal(t, "Vec3::clear()", length.UndecoratedName())

	ctor := fns[0]
	assert.Equal(t, uint32(0x1010), ctor.RVA())
	assert.Equal(t, "Vec3::Vec3(float,float,float)", ctor.UndecoratedName())

	reset := fns[2]
	assert.Empty(t, reset.UndecoratedName())
	assert.Equal(t, LocNull, reset.LocationType())
}

// handlerImage encodes
//
//	struct Handler {
//		int Handler::*field;
//		int (Handler::*cb)(int);
//	};
//
// with the member pointer sizes MSVC records for a class of unknown
// inheritance.
func handlerImage() *pdbtest.Image {
	types := pdbtest.NewTypes()

	fwd := &pdbtest.Leaf{}
	fwd.U16(0).U16(0x0080).U32(0).U32(0).U32(0).U16(0).Str("Handler")
	fwdIdx := types.Add(uint16(tpi.LF_STRUCTURE), fwd.Bytes())

	// 64-bit pointer to data member, 4 bytes.
	field := &pdbtest.Leaf{}
	field.U32(tInt).U32(0x0c | 2<<5 | 4<<13).U32(fwdIdx).U16(0)
	fieldIdx := types.Add(uint16(tpi.LF_POINTER), field.Bytes())

	this := &pdbtest.Leaf{}
	this.U32(fwdIdx).U32(0x0001000c)
	thisIdx := types.Add(uint16(tpi.LF_POINTER), this.Bytes())

	oneInt := &pdbtest.Leaf{}
	oneInt.U32(1).U32(tInt)
	oneIdx := types.Add(uint16(tpi.LF_ARGLIST), oneInt.Bytes())

	fn := &pdbtest.Leaf{}
	fn.U32(tInt).U32(fwdIdx).U32(thisIdx).U8(uint8(tpi.CallingConvThisCall)).U8(0).U16(1).U32(oneIdx).U32(0)
	fnIdx := types.Add(uint16(tpi.LF_MFUNCTION), fn.Bytes())

	// 64-bit pointer to member function, 16 bytes.
	cb := &pdbtest.Leaf{}
	cb.U32(fnIdx).U32(0x0c | 3<<5 | 16<<13).U32(fwdIdx).U16(0)
	cbIdx := types.Add(uint16(tpi.LF_POINTER), cb.Bytes())

	fl := &pdbtest.Leaf{}
	fl.U16(uint16(tpi.LF_MEMBER)).U16(3).U32(fieldIdx).U16(0).Str("field").Pad()
	fl.U16(uint16(tpi.LF_MEMBER)).U16(3).U32(cbIdx).U16(8).Str("cb").Pad()
	flIdx := types.Add(uint16(tpi.LF_FIELDLIST), fl.Bytes())

	def := &pdbtest.Leaf{}
	def.U16(2).U16(0).U32(flIdx).U32(0).U32(0).U16(24).Str("Handler")
	types.Add(uint16(tpi.LF_STRUCTURE), def.Bytes())

	return &pdbtest.Image{Types: types}
}

func TestFromPDBMemberPointers(t *testing.T) {
	db := loadImage(t, handlerImage())

	handler := db.Lookup("Handler")
	require.NotNil(t, handler)
	members := slices.Collect(handler.Children(TagData))
	require.Len(t, members, 2)

	field := members[0].Type()
	assert.Equal(t, TagPointer, field.Tag())
	assert.True(t, field.IsMemberPointer())
	assert.Equal(t, "Handler", field.MemberOf())
	assert.Equal(t, uint64(4), field.Length())
	assert.Equal(t, "int", field.Type().Name())

	cb := members[1].Type()
	assert.True(t, cb.IsMemberPointer())
	assert.Equal(t, uint64(16), cb.Length())
	assert.Equal(t, TagFunctionType, cb.Type().Tag())
}

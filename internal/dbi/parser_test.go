package dbi

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func moduleEntry(symStream uint16, symSize uint32, name, obj string) []byte {
	var b bytes.Buffer
	le := binary.LittleEndian
	b.Write(make([]byte, 4+28+2))
	binary.Write(&b, le, symStream)
	binary.Write(&b, le, symSize)
	b.Write(make([]byte, 24))
	b.WriteString(name)
	b.WriteByte(0)
	b.WriteString(obj)
	b.WriteByte(0)
	for b.Len()%4 != 0 {
		b.WriteByte(0)
	}
	return b.Bytes()
}

func buildDBI(machine uint16, mods []byte, optDbg []byte) []byte {
	le := binary.LittleEndian
	hdr := make([]byte, headerSize)
	le.PutUint32(hdr[0:], 0xFFFFFFFF)
	le.PutUint32(hdr[4:], 19990903)
	le.PutUint32(hdr[8:], 3)
	le.PutUint16(hdr[12:], InvalidStreamIndex)
	le.PutUint16(hdr[16:], 7)
	le.PutUint16(hdr[20:], 8)
	le.PutUint32(hdr[24:], uint32(len(mods)))
	le.PutUint32(hdr[48:], uint32(len(optDbg)))
	le.PutUint16(hdr[58:], machine)

	out := append(hdr, mods...)
	return append(out, optDbg...)
}

func TestParseStream(t *testing.T) {
	var mods []byte
	mods = append(mods, moduleEntry(12, 400, "a.obj", "a.obj")...)
	mods = append(mods, moduleEntry(0xFFFF, 0, "* Linker *", "")...)

	opt := make([]byte, 22)
	binary.LittleEndian.PutUint16(opt[10:], 9)

	s, err := ParseStream(buildDBI(MachineAMD64, mods, opt))
	require.NoError(t, err)

	assert.Equal(t, uint32(3), s.Header.Age)
	assert.Equal(t, 8, s.Header.PointerSize())
	require.Len(t, s.Modules, 2)
	assert.Equal(t, uint16(12), s.Modules[0].SymStreamIndex)
	assert.Equal(t, uint32(400), s.Modules[0].SymByteSize)
	assert.Equal(t, "a.obj", s.Modules[0].ModuleName)
	assert.Equal(t, "* Linker *", s.Modules[1].ModuleName)
	assert.Equal(t, uint16(9), s.SectionHdrStreamIndex)
	assert.Equal(t, InvalidStreamIndex, s.Header.GlobalStreamIndex)
	assert.Equal(t, uint16(7), s.Header.PublicStreamIndex)
	assert.Equal(t, uint16(8), s.Header.SymRecordStreamIndex)
}

func TestParseStreamWithoutOptionalHeader(t *testing.T) {
	s, err := ParseStream(buildDBI(MachineI386, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, 4, s.Header.PointerSize())
	assert.Equal(t, InvalidStreamIndex, s.SectionHdrStreamIndex)
}

func TestParseStreamRejectsBadSignature(t *testing.T) {
	data := buildDBI(MachineAMD64, nil, nil)
	data[0] = 0

	_, err := ParseStream(data)
	assert.ErrorIs(t, err, ErrInvalidDBIHeader)

	_, err = ParseStream(data[:10])
	assert.ErrorIs(t, err, ErrInvalidDBIHeader)
}

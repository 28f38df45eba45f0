package symbols

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u32s(vs ...uint32) []byte {
	var b bytes.Buffer
	for _, v := range vs {
		binary.Write(&b, binary.LittleEndian, v)
	}
	return b.Bytes()
}

func nameHash(offsets ...uint32) []byte {
	var b bytes.Buffer
	b.Write(u32s(gsiSignature, gsiVersion, uint32(8*len(offsets)), 4))
	for _, off := range offsets {
		b.Write(u32s(off+1, 1))
	}
	// One bitmap word with no buckets set.
	b.Write(u32s(0))
	return b.Bytes()
}

func TestParsePSI(t *testing.T) {
	hash := nameHash(0x20, 0)
	var b bytes.Buffer
	b.Write(u32s(uint32(len(hash)), 8, 0, 0))
	binary.Write(&b, binary.LittleEndian, uint16(0))
	binary.Write(&b, binary.LittleEndian, uint16(0))
	b.Write(u32s(0, 3))
	b.Write(hash)
	// Address order differs from hash order.
	b.Write(u32s(0, 0x20))

	psi, err := ParsePSI(b.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint32(3), psi.Header.NumSections)
	assert.Equal(t, []uint32{0x20, 0}, psi.Hash.RecordOffsets())
	assert.Equal(t, []uint32{0, 0x20}, psi.Offsets())
}

func TestPSIOffsetsFallBackToHash(t *testing.T) {
	hash := nameHash(0x10)
	var b bytes.Buffer
	b.Write(u32s(uint32(len(hash)), 0, 0, 0, 0, 0, 1))
	b.Write(hash)

	psi, err := ParsePSI(b.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x10}, psi.Offsets())
}

func TestParseGSIErrors(t *testing.T) {
	_, err := ParseGSI(u32s(0, 0))
	assert.ErrorIs(t, err, ErrUnexpectedEnd)

	_, err = ParseGSI(u32s(0, gsiVersion, 0, 0))
	assert.ErrorIs(t, err, ErrInvalidGSI)

	_, err = ParseGSI(u32s(gsiSignature, gsiVersion, 16, 0))
	assert.ErrorIs(t, err, ErrUnexpectedEnd)
}

func TestParsePublicSym32(t *testing.T) {
	var b bytes.Buffer
	b.Write(u32s(0x3, 0x40))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	b.WriteString("?area@Shape@@UEBAMXZ")
	b.WriteByte(0)

	p, err := ParsePublicSym32(b.Bytes())
	require.NoError(t, err)
	assert.True(t, p.Flags.IsCode())
	assert.True(t, p.Flags.IsFunction())
	assert.Equal(t, uint32(0x40), p.Offset)
	assert.Equal(t, uint16(1), p.Segment)
	assert.Equal(t, "?area@Shape@@UEBAMXZ", p.Name)
}

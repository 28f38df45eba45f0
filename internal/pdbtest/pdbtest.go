// Package pdbtest assembles small synthetic PDB files for tests.
package pdbtest

import (
	"bytes"
	"encoding/binary"

	"github.com/skdltmxn/pdbproxy/msf"
)

var le = binary.LittleEndian

// Leaf accumulates little-endian record bytes.
type Leaf struct {
	bytes.Buffer
}

func (l *Leaf) U8(v uint8) *Leaf {
	l.WriteByte(v)
	return l
}

func (l *Leaf) U16(v uint16) *Leaf {
	binary.Write(&l.Buffer, le, v)
	return l
}

func (l *Leaf) U32(v uint32) *Leaf {
	binary.Write(&l.Buffer, le, v)
	return l
}

func (l *Leaf) Str(s string) *Leaf {
	l.WriteString(s)
	l.WriteByte(0)
	return l
}

// Pad aligns to 4 bytes with LF_PADn bytes.
func (l *Leaf) Pad() *Leaf {
	for n := (4 - l.Len()%4) % 4; n > 0; n-- {
		l.WriteByte(byte(0xF0 | n))
	}
	return l
}

// Types builds a TPI or IPI stream.
type Types struct {
	next uint32
	body bytes.Buffer
}

// NewTypes starts a stream whose first record gets index 0x1000.
func NewTypes() *Types {
	return &Types{next: 0x1000}
}

// Add appends a record and returns its index.
func (t *Types) Add(kind uint16, body []byte) uint32 {
	binary.Write(&t.body, le, uint16(len(body)+2))
	binary.Write(&t.body, le, kind)
	t.body.Write(body)
	t.next++
	return t.next - 1
}

// Stream returns the encoded stream with a V80 header.
func (t *Types) Stream() []byte {
	hdr := make([]byte, 56)
	le.PutUint32(hdr[0:], 20040203)
	le.PutUint32(hdr[4:], 56)
	le.PutUint32(hdr[8:], 0x1000)
	le.PutUint32(hdr[12:], t.next)
	le.PutUint32(hdr[16:], uint32(t.body.Len()))
	return append(hdr, t.body.Bytes()...)
}

// Proc is a procedure symbol placed in the single module stream.
type Proc struct {
	Name    string
	Section uint16
	Offset  uint32
	Type    uint32

	// ID marks an S_GPROC32_ID whose Type indexes the IPI stream.
	ID bool
}

// Section is a PE section header.
type Section struct {
	Name           string
	VirtualAddress uint32
	VirtualSize    uint32
}

// Public is an S_PUB32 record. Name is the decorated name.
type Public struct {
	Name    string
	Section uint16
	Offset  uint32
}

// Image describes a PDB to assemble.
type Image struct {
	Types    *Types
	IDs      *Types
	Machine  uint16
	Procs    []Proc
	Sections []Section

	// Publics go into the address map in the order given.
	Publics []Public
}

const (
	streamModule     = 5
	streamSections   = 6
	streamPublics    = 7
	streamSymRecords = 8

	invalidStream = 0xFFFF
)

// Build encodes the image as an MSF container.
func (img *Image) Build() []byte {
	info := &Leaf{}
	info.U32(20000404).U32(0x5EED).U32(1)
	info.Write([]byte{0x78, 0x56, 0x34, 0x12, 0xBC, 0x9A, 0xF0, 0xDE, 1, 2, 3, 4, 5, 6, 7, 8})

	tpiData := NewTypes().Stream()
	if img.Types != nil {
		tpiData = img.Types.Stream()
	}
	var ipiData []byte
	if img.IDs != nil {
		ipiData = img.IDs.Stream()
	}

	mod := img.moduleStream()
	streams := [][]byte{nil, info.Bytes(), tpiData, img.dbiStream(len(mod)), ipiData, mod, img.sectionStream()}
	if len(img.Publics) > 0 {
		psi, records := img.publicStreams()
		streams = append(streams, psi, records)
	}
	return container(streams)
}

// publicStreams encodes the public symbol index and the symbol records it
// points into. The name hash has no buckets.
func (img *Image) publicStreams() (psi, records []byte) {
	recs := &Leaf{}
	offsets := make([]uint32, 0, len(img.Publics))
	for _, p := range img.Publics {
		offsets = append(offsets, uint32(recs.Len()))
		body := &Leaf{}
		body.U16(0x110e).U32(0x2).U32(p.Offset).U16(p.Section).Str(p.Name)
		for body.Len()%4 != 2 {
			body.WriteByte(0)
		}
		recs.U16(uint16(body.Len()))
		recs.Write(body.Bytes())
	}

	hash := &Leaf{}
	hash.U32(0xFFFFFFFF).U32(0xeffe0000 + 19990810).U32(uint32(8 * len(offsets))).U32(0)
	for _, off := range offsets {
		hash.U32(off + 1).U32(1)
	}

	out := &Leaf{}
	out.U32(uint32(hash.Len())).U32(uint32(4 * len(offsets)))
	out.U32(0).U32(0).U16(0).U16(0).U32(0).U32(uint32(len(img.Sections)))
	out.Write(hash.Bytes())
	for _, off := range offsets {
		out.U32(off)
	}
	return out.Bytes(), recs.Bytes()
}

func (img *Image) moduleStream() []byte {
	m := &Leaf{}
	m.U32(4)
	for _, p := range img.Procs {
		body := &Leaf{}
		kind := uint16(0x1110)
		if p.ID {
			kind = 0x1147
		}
		body.U16(kind)
		body.U32(0).U32(0).U32(0).U32(0x20).U32(0).U32(0)
		body.U32(p.Type).U32(p.Offset).U16(p.Section).U8(0).Str(p.Name)
		for body.Len()%4 != 2 {
			body.WriteByte(0)
		}
		m.U16(uint16(body.Len()))
		m.Write(body.Bytes())
	}
	return m.Bytes()
}

func (img *Image) dbiStream(modSize int) []byte {
	mods := &Leaf{}
	mods.Write(make([]byte, 4+28+2))
	mods.U16(streamModule).U32(uint32(modSize))
	mods.Write(make([]byte, 24))
	mods.Str("test.obj").Str("test.obj")
	for mods.Len()%4 != 0 {
		mods.WriteByte(0)
	}

	opt := make([]byte, 22)
	for i := 0; i < len(opt); i += 2 {
		le.PutUint16(opt[i:], 0xFFFF)
	}
	le.PutUint16(opt[10:], streamSections)

	machine := img.Machine
	if machine == 0 {
		machine = 0x8664
	}

	hdr := make([]byte, 64)
	le.PutUint32(hdr[0:], 0xFFFFFFFF)
	le.PutUint32(hdr[4:], 19990903)
	le.PutUint32(hdr[8:], 1)
	public, symRecords := uint16(invalidStream), uint16(invalidStream)
	if len(img.Publics) > 0 {
		public, symRecords = streamPublics, streamSymRecords
	}
	le.PutUint16(hdr[12:], invalidStream)
	le.PutUint16(hdr[16:], public)
	le.PutUint16(hdr[20:], symRecords)
	le.PutUint32(hdr[24:], uint32(mods.Len()))
	le.PutUint32(hdr[48:], uint32(len(opt)))
	le.PutUint16(hdr[58:], machine)

	out := append(hdr, mods.Bytes()...)
	return append(out, opt...)
}

func (img *Image) sectionStream() []byte {
	s := &Leaf{}
	for _, sec := range img.Sections {
		name := make([]byte, 8)
		copy(name, sec.Name)
		s.Write(name)
		s.U32(sec.VirtualSize).U32(sec.VirtualAddress)
		s.Write(make([]byte, 24))
	}
	return s.Bytes()
}

const blockSize = 512

// container lays out the superblock, FPM blocks, block map, directory and
// stream blocks.
func container(streams [][]byte) []byte {
	blocksFor := func(n int) uint32 { return uint32((n + blockSize - 1) / blockSize) }

	// Stream data starts after the superblock, two FPM blocks and the block map.
	next := uint32(4)
	placed := make([]uint32, len(streams))
	for i, s := range streams {
		placed[i] = next
		next += blocksFor(len(s))
	}

	dir := &Leaf{}
	dir.U32(uint32(len(streams)))
	for _, s := range streams {
		dir.U32(uint32(len(s)))
	}
	for i, s := range streams {
		for b := uint32(0); b < blocksFor(len(s)); b++ {
			dir.U32(placed[i] + b)
		}
	}

	dirStart := next
	dirBlocks := blocksFor(dir.Len())
	total := dirStart + dirBlocks

	out := make([]byte, int(total)*blockSize)
	copy(out, msf.Magic)
	le.PutUint32(out[32:], blockSize)
	le.PutUint32(out[36:], 1)
	le.PutUint32(out[40:], total)
	le.PutUint32(out[44:], uint32(dir.Len()))
	le.PutUint32(out[52:], 3)

	for b := uint32(0); b < dirBlocks; b++ {
		le.PutUint32(out[3*blockSize+int(b)*4:], dirStart+b)
	}
	copy(out[int(dirStart)*blockSize:], dir.Bytes())

	for i, s := range streams {
		copy(out[int(placed[i])*blockSize:], s)
	}
	return out
}

package symbols

import (
	"errors"

	"github.com/skdltmxn/pdbproxy/internal/stream"
)

const (
	gsiSignature = 0xFFFFFFFF
	gsiVersion   = 0xeffe0000 + 19990810

	gsiHeaderSize     = 16
	publicsHeaderSize = 28
	hashRecordSize    = 8
)

var ErrInvalidGSI = errors.New("symbols: invalid symbol hash header")

// HashRecord locates one record in the symbol record stream. Offset is
// stored plus one so that zero can mean empty.
type HashRecord struct {
	Offset uint32
	CRef   uint32
}

// GSI is a symbol name hash. Only its records are decoded; the bucket
// bitmap is skipped since names are never looked up by hash.
type GSI struct {
	Records []HashRecord
}

// ParseGSI parses a symbol name hash.
func ParseGSI(data []byte) (*GSI, error) {
	r := stream.NewReader(data)
	if r.Len() < gsiHeaderSize {
		return nil, ErrUnexpectedEnd
	}

	sig, _ := r.ReadU32()
	ver, _ := r.ReadU32()
	if sig != gsiSignature || ver != gsiVersion {
		return nil, ErrInvalidGSI
	}
	hrSize, _ := r.ReadU32()
	bucketSize, _ := r.ReadU32()
	if int(hrSize)+int(bucketSize) > r.Remaining() {
		return nil, ErrUnexpectedEnd
	}

	g := &GSI{Records: make([]HashRecord, 0, hrSize/hashRecordSize)}
	for range hrSize / hashRecordSize {
		var rec HashRecord
		rec.Offset, _ = r.ReadU32()
		rec.CRef, _ = r.ReadU32()
		g.Records = append(g.Records, rec)
	}
	return g, nil
}

// RecordOffsets returns the symbol record stream offsets of all non-empty
// records.
func (g *GSI) RecordOffsets() []uint32 {
	offsets := make([]uint32, 0, len(g.Records))
	for _, rec := range g.Records {
		if rec.Offset > 0 {
			offsets = append(offsets, rec.Offset-1)
		}
	}
	return offsets
}

// PublicsHeader precedes the name hash in the public symbol stream.
type PublicsHeader struct {
	SymHashSize       uint32
	AddrMapSize       uint32
	NumThunks         uint32
	SizeOfThunk       uint32
	ThunkTableSection uint16
	ThunkTableOffset  uint32
	NumSections       uint32
}

// PSI is the public symbol index: a header, a name hash, then an address
// map of record offsets sorted by section and offset.
type PSI struct {
	Header  PublicsHeader
	Hash    *GSI
	AddrMap []uint32
}

// ParsePSI parses a public symbol stream.
func ParsePSI(data []byte) (*PSI, error) {
	r := stream.NewReader(data)
	if r.Len() < publicsHeaderSize {
		return nil, ErrUnexpectedEnd
	}

	var h PublicsHeader
	h.SymHashSize, _ = r.ReadU32()
	h.AddrMapSize, _ = r.ReadU32()
	h.NumThunks, _ = r.ReadU32()
	h.SizeOfThunk, _ = r.ReadU32()
	h.ThunkTableSection, _ = r.ReadU16()
	_ = r.Skip(2)
	h.ThunkTableOffset, _ = r.ReadU32()
	h.NumSections, _ = r.ReadU32()

	hashData, err := r.ReadBytesRef(int(h.SymHashSize))
	if err != nil {
		return nil, ErrUnexpectedEnd
	}
	hash, err := ParseGSI(hashData)
	if err != nil {
		return nil, err
	}

	p := &PSI{Header: h, Hash: hash, AddrMap: make([]uint32, 0, h.AddrMapSize/4)}
	for range h.AddrMapSize / 4 {
		off, err := r.ReadU32()
		if err != nil {
			return nil, ErrUnexpectedEnd
		}
		p.AddrMap = append(p.AddrMap, off)
	}
	return p, nil
}

// Offsets returns the record offsets of the public symbols in address
// order, falling back to hash order when the address map is empty.
func (p *PSI) Offsets() []uint32 {
	if len(p.AddrMap) > 0 {
		return p.AddrMap
	}
	return p.Hash.RecordOffsets()
}

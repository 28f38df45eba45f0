package symbols

import (
	"errors"

	"github.com/skdltmxn/pdbproxy/internal/stream"
	"github.com/skdltmxn/pdbproxy/internal/tpi"
)

var (
	ErrInvalidSymbolRecord = errors.New("symbols: invalid symbol record")
	ErrUnexpectedEnd       = errors.New("symbols: unexpected end of data")
)

// ParseSymbolRecord parses one record and returns it with the number of
// bytes consumed. The length prefix does not count itself.
func ParseSymbolRecord(data []byte) (*SymbolRecord, int, error) {
	r := stream.NewReader(data)

	length, err := r.ReadU16()
	if err != nil {
		return nil, 0, ErrUnexpectedEnd
	}
	if length < 2 {
		return nil, 0, ErrInvalidSymbolRecord
	}
	body, err := r.ReadBytesRef(int(length))
	if err != nil {
		return nil, 0, ErrUnexpectedEnd
	}

	kind := uint16(body[0]) | uint16(body[1])<<8
	return &SymbolRecord{Kind: SymbolRecordKind(kind), Data: body[2:]}, int(length) + 2, nil
}

// SymbolIterator walks the records of a symbol stream.
type SymbolIterator struct {
	data   []byte
	offset int
}

// NewSymbolIterator creates an iterator over data.
func NewSymbolIterator(data []byte) *SymbolIterator {
	return &SymbolIterator{data: data}
}

// Next returns the next record, or nil at the end of the data.
func (it *SymbolIterator) Next() (*SymbolRecord, error) {
	if it.offset >= len(it.data) {
		return nil, nil
	}

	rec, size, err := ParseSymbolRecord(it.data[it.offset:])
	if err != nil {
		return nil, err
	}
	it.offset += size
	return rec, nil
}

// ParseProcSym decodes an S_GPROC32 family record body.
func ParseProcSym(data []byte) (*ProcSym, error) {
	r := stream.NewReader(data)

	// Parent, end and next pointers.
	if err := r.Skip(12); err != nil {
		return nil, err
	}

	var p ProcSym
	var err error
	if p.CodeSize, err = r.ReadU32(); err != nil {
		return nil, err
	}
	// Debug start and end.
	if err := r.Skip(8); err != nil {
		return nil, err
	}

	ti, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	p.FunctionType = tpi.TypeIndex(ti)

	if p.CodeOffset, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if p.Segment, err = r.ReadU16(); err != nil {
		return nil, err
	}
	flags, err := r.ReadU8()
	if err != nil {
		return nil, err
	}
	p.Flags = ProcFlags(flags)

	if p.Name, err = r.ReadCString(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParsePublicSym32 decodes an S_PUB32 record body.
func ParsePublicSym32(data []byte) (*PublicSym32, error) {
	r := stream.NewReader(data)

	var p PublicSym32
	flags, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	p.Flags = PublicSymFlags(flags)
	if p.Offset, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if p.Segment, err = r.ReadU16(); err != nil {
		return nil, err
	}
	if p.Name, err = r.ReadCString(); err != nil {
		return nil, err
	}
	return &p, nil
}

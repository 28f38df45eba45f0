// Package stream provides the little-endian cursor used by the PDB stream parsers.
package stream

import (
	"encoding/binary"
	"errors"
)

var (
	ErrUnexpectedEOF  = errors.New("stream: unexpected end of data")
	ErrInvalidNumeric = errors.New("stream: invalid numeric encoding")
)

// Reader is a bounds-checked cursor over a byte slice.
type Reader struct {
	data   []byte
	offset int
}

// NewReader creates a Reader from a byte slice.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Offset returns the current read position.
func (r *Reader) Offset() int {
	return r.offset
}

// Len returns the size of the underlying data.
func (r *Reader) Len() int {
	return len(r.data)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	if r.offset >= len(r.data) {
		return 0
	}
	return len(r.data) - r.offset
}

func (r *Reader) need(n int) error {
	if n < 0 || r.offset+n > len(r.data) {
		return ErrUnexpectedEOF
	}
	return nil
}

// Skip advances the read position by n bytes.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.offset += n
	return nil
}

// Align rounds the read position up to a multiple of alignment.
func (r *Reader) Align(alignment int) {
	if alignment <= 1 {
		return
	}
	if mod := r.offset % alignment; mod != 0 {
		r.offset += alignment - mod
	}
}

func (r *Reader) ReadU8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.offset]
	r.offset++
	return v, nil
}

func (r *Reader) ReadU16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.offset:])
	r.offset += 2
	return v, nil
}

func (r *Reader) ReadU32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v, nil
}

func (r *Reader) ReadU64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.offset:])
	r.offset += 8
	return v, nil
}

func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

// PeekU8 returns the next byte without advancing.
func (r *Reader) PeekU8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	return r.data[r.offset], nil
}

// PeekU16 returns the next 16-bit value without advancing.
func (r *Reader) PeekU16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(r.data[r.offset:]), nil
}

// ReadBytesRef returns the next n bytes without copying.
func (r *Reader) ReadBytesRef(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.data[r.offset : r.offset+n]
	r.offset += n
	return v, nil
}

// ReadGUID reads a 16-byte GUID.
func (r *Reader) ReadGUID() ([16]byte, error) {
	var guid [16]byte
	b, err := r.ReadBytesRef(16)
	if err != nil {
		return guid, err
	}
	copy(guid[:], b)
	return guid, nil
}

// ReadCString reads a NUL-terminated string.
func (r *Reader) ReadCString() (string, error) {
	for i := r.offset; i < len(r.data); i++ {
		if r.data[i] == 0 {
			s := string(r.data[r.offset:i])
			r.offset = i + 1
			return s, nil
		}
	}
	return "", ErrUnexpectedEOF
}

// ReadFixedString reads an n-byte field and trims trailing NUL padding.
func (r *Reader) ReadFixedString(n int) (string, error) {
	b, err := r.ReadBytesRef(n)
	if err != nil {
		return "", err
	}
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end]), nil
}

// ReadNumeric reads a CodeView numeric leaf. Values below 0x8000 are stored
// inline; larger ones carry a leaf kind followed by the value. Signed kinds
// are sign-extended.
func (r *Reader) ReadNumeric() (uint64, error) {
	leaf, err := r.ReadU16()
	if err != nil {
		return 0, err
	}
	if leaf < 0x8000 {
		return uint64(leaf), nil
	}

	switch leaf {
	case 0x8000: // LF_CHAR
		v, err := r.ReadU8()
		return uint64(int8(v)), err
	case 0x8001: // LF_SHORT
		v, err := r.ReadU16()
		return uint64(int16(v)), err
	case 0x8002: // LF_USHORT
		v, err := r.ReadU16()
		return uint64(v), err
	case 0x8003: // LF_LONG
		v, err := r.ReadU32()
		return uint64(int32(v)), err
	case 0x8004: // LF_ULONG
		v, err := r.ReadU32()
		return uint64(v), err
	case 0x8009, 0x800a: // LF_QUADWORD, LF_UQUADWORD
		return r.ReadU64()
	default:
		return 0, ErrInvalidNumeric
	}
}

// SubReader returns a Reader over the next length bytes and skips past them.
func (r *Reader) SubReader(length int) (*Reader, error) {
	b, err := r.ReadBytesRef(length)
	if err != nil {
		return nil, err
	}
	return NewReader(b), nil
}

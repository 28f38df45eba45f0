// Package dbi parses the parts of the DBI (Debug Information) stream needed to
// locate module symbol streams and the PE section headers.
package dbi

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/pdbproxy/internal/stream"
)

const headerSize = 64

// Machine types.
const (
	MachineI386  uint16 = 0x014c
	MachineAMD64 uint16 = 0x8664
	MachineARM64 uint16 = 0xaa64
)

// InvalidStreamIndex marks an absent stream reference.
const InvalidStreamIndex uint16 = 0xFFFF

var (
	ErrInvalidDBIHeader = errors.New("dbi: invalid DBI header")
	ErrTruncatedStream  = errors.New("dbi: truncated stream")
)

// Header holds the DBI header fields this package consumes.
type Header struct {
	VersionHeader uint32
	Age           uint32
	Machine       uint16
	Flags         uint16

	// Stream indices of the global and public symbol hashes and of the
	// symbol records both refer into. Each may be InvalidStreamIndex.
	GlobalStreamIndex    uint16
	PublicStreamIndex    uint16
	SymRecordStreamIndex uint16

	substreams [7]uint32
}

// substream positions inside Header.substreams, in on-disk order.
const (
	subModInfo = iota
	subSectionContrib
	subSectionMap
	subSourceInfo
	subTypeServerMap
	subEC
	subOptionalDbg
)

// PointerSize returns the pointer width implied by the machine type.
func (h *Header) PointerSize() int {
	if h.Machine == MachineI386 {
		return 4
	}
	return 8
}

// ModuleInfo describes one compiland.
type ModuleInfo struct {
	SymStreamIndex uint16
	SymByteSize    uint32
	ModuleName     string
	ObjFileName    string
}

// Stream is a parsed DBI stream.
type Stream struct {
	Header  Header
	Modules []ModuleInfo

	// SectionHdrStreamIndex is InvalidStreamIndex when the optional debug
	// header is missing or does not reference section headers.
	SectionHdrStreamIndex uint16
}

// ParseStream parses a DBI stream from raw data.
func ParseStream(data []byte) (*Stream, error) {
	if len(data) < headerSize {
		return nil, ErrInvalidDBIHeader
	}

	r := stream.NewReader(data)
	s := &Stream{SectionHdrStreamIndex: InvalidStreamIndex}
	if err := s.parseHeader(r); err != nil {
		return nil, err
	}

	offset := headerSize
	for i, size := range s.Header.substreams {
		end := offset + int(size)
		if end > len(data) {
			return nil, fmt.Errorf("%w: substream %d", ErrTruncatedStream, i)
		}
		sub := data[offset:end]
		offset = end

		switch i {
		case subModInfo:
			if err := s.parseModuleInfo(sub); err != nil {
				return nil, fmt.Errorf("dbi: failed to parse module info: %w", err)
			}
		case subOptionalDbg:
			s.parseOptionalDbgHeader(sub)
		}
	}
	return s, nil
}

func (s *Stream) parseHeader(r *stream.Reader) error {
	sig, err := r.ReadI32()
	if err != nil {
		return err
	}
	if sig != -1 {
		return ErrInvalidDBIHeader
	}
	if s.Header.VersionHeader, err = r.ReadU32(); err != nil {
		return err
	}
	if s.Header.Age, err = r.ReadU32(); err != nil {
		return err
	}

	// Each index is followed by a version field: build number, dll
	// version and dll rebuild.
	indices := []*uint16{
		&s.Header.GlobalStreamIndex,
		&s.Header.PublicStreamIndex,
		&s.Header.SymRecordStreamIndex,
	}
	for _, dst := range indices {
		if *dst, err = r.ReadU16(); err != nil {
			return err
		}
		if err := r.Skip(2); err != nil {
			return err
		}
	}

	sizes := []*uint32{
		&s.Header.substreams[subModInfo],
		&s.Header.substreams[subSectionContrib],
		&s.Header.substreams[subSectionMap],
		&s.Header.substreams[subSourceInfo],
		&s.Header.substreams[subTypeServerMap],
		nil, // MFC type server index
		&s.Header.substreams[subOptionalDbg],
		&s.Header.substreams[subEC],
	}
	for _, dst := range sizes {
		v, err := r.ReadU32()
		if err != nil {
			return err
		}
		if dst != nil {
			*dst = v
		}
	}

	if s.Header.Flags, err = r.ReadU16(); err != nil {
		return err
	}
	if s.Header.Machine, err = r.ReadU16(); err != nil {
		return err
	}
	return nil
}

// parseModuleInfo decodes the fixed 64-byte module entries and their two
// trailing names, each entry padded to 4 bytes.
func (s *Stream) parseModuleInfo(data []byte) error {
	r := stream.NewReader(data)

	for r.Remaining() > 0 {
		var mod ModuleInfo

		// Opened, section contribution, flags.
		if err := r.Skip(4 + 28 + 2); err != nil {
			return err
		}
		var err error
		if mod.SymStreamIndex, err = r.ReadU16(); err != nil {
			return err
		}
		if mod.SymByteSize, err = r.ReadU32(); err != nil {
			return err
		}
		// C11/C13 sizes, file count, padding, unused, name indices.
		if err := r.Skip(4 + 4 + 2 + 2 + 4 + 4 + 4); err != nil {
			return err
		}
		if mod.ModuleName, err = r.ReadCString(); err != nil {
			return err
		}
		if mod.ObjFileName, err = r.ReadCString(); err != nil {
			return err
		}
		r.Align(4)

		s.Modules = append(s.Modules, mod)
	}
	return nil
}

// parseOptionalDbgHeader reads the section header stream index, the sixth
// entry of the optional debug header. Short headers leave it unset.
func (s *Stream) parseOptionalDbgHeader(data []byte) {
	r := stream.NewReader(data)
	if err := r.Skip(5 * 2); err != nil {
		return
	}
	if idx, err := r.ReadU16(); err == nil {
		s.SectionHdrStreamIndex = idx
	}
}

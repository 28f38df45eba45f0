package pdb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/skdltmxn/pdbproxy/internal/dbi"
	"github.com/skdltmxn/pdbproxy/internal/demangle"
	"github.com/skdltmxn/pdbproxy/internal/symbols"
)

// PublicSymbol is an S_PUB32 record from the public symbol index.
type PublicSymbol struct {
	// Name is the decorated linker name, e.g. "?area@Shape@@UEBAMXZ".
	Name    string
	Section uint16
	Offset  uint32
	RVA     uint32

	Code     bool
	Function bool

	demangleOnce sync.Once
	demangled    string
}

// DemangledName returns the compact undecorated signature, or Name when it
// cannot be decoded.
func (p *PublicSymbol) DemangledName() string {
	p.demangleOnce.Do(func() {
		p.demangled = demangle.Demangle(p.Name)
	})
	return p.demangled
}

// Publics returns the public symbols in address order. It returns nil
// without error when the PDB has no public symbol index.
func (f *File) Publics() ([]*PublicSymbol, error) {
	f.publicsOnce.Do(func() {
		f.publics, f.publicsErr = f.loadPublics()
	})
	return f.publics, f.publicsErr
}

func (f *File) loadPublics() ([]*PublicSymbol, error) {
	d, err := f.getDBI()
	if err != nil {
		return nil, err
	}
	if d.Header.PublicStreamIndex == dbi.InvalidStreamIndex ||
		d.Header.SymRecordStreamIndex == dbi.InvalidStreamIndex {
		return nil, nil
	}

	sections, err := f.Sections()
	if errors.Is(err, ErrNoSectionHeaders) {
		sections = NewSectionHeaders()
	} else if err != nil {
		return nil, err
	}

	data, err := f.readStream(uint32(d.Header.PublicStreamIndex))
	if err != nil {
		return nil, fmt.Errorf("pdb: failed to read public symbol stream: %w", err)
	}
	psi, err := symbols.ParsePSI(data)
	if err != nil {
		return nil, &ParseError{Stream: "PSI", Message: "header", Err: err}
	}

	records, err := f.readStream(uint32(d.Header.SymRecordStreamIndex))
	if err != nil {
		return nil, fmt.Errorf("pdb: failed to read symbol record stream: %w", err)
	}

	var pubs []*PublicSymbol
	for _, off := range psi.Offsets() {
		if int(off) >= len(records) {
			return nil, &ParseError{Stream: "symbol records", Offset: int64(off), Message: "offset out of range"}
		}
		rec, _, err := symbols.ParseSymbolRecord(records[off:])
		if err != nil {
			return nil, &ParseError{Stream: "symbol records", Offset: int64(off), Message: "record", Err: err}
		}
		if rec.Kind != symbols.S_PUB32 {
			continue
		}
		p, err := symbols.ParsePublicSym32(rec.Data)
		if err != nil {
			return nil, &ParseError{Stream: "symbol records", Offset: int64(off), Message: "public symbol", Err: err}
		}
		pubs = append(pubs, &PublicSymbol{
			Name:     p.Name,
			Section:  p.Segment,
			Offset:   p.Offset,
			RVA:      sections.ToRVA(p.Segment, p.Offset),
			Code:     p.Flags.IsCode(),
			Function: p.Flags.IsFunction(),
		})
	}
	return pubs, nil
}

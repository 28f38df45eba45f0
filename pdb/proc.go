package pdb

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/pdbproxy/internal/dbi"
	"github.com/skdltmxn/pdbproxy/internal/symbols"
	"github.com/skdltmxn/pdbproxy/internal/tpi"
)

// Procedure is a function with code in the image, taken from a module's
// S_GPROC32 or S_LPROC32 family record.
type Procedure struct {
	// Name is the qualified name, e.g. "Shape::area".
	Name string
	RVA  uint32

	Section  uint16
	Offset   uint32
	CodeSize uint32

	// FunctionType is the TPI signature. For *_ID records the IPI id has
	// already been resolved to the TPI type; it is 0 when that failed.
	FunctionType TypeIndex

	Module string
}

// Procedures walks every module symbol stream and returns the procedures in
// module order. RVAs are 0 when the PDB carries no section headers.
func (f *File) Procedures() ([]Procedure, error) {
	d, err := f.getDBI()
	if err != nil {
		return nil, err
	}

	sections, err := f.Sections()
	if errors.Is(err, ErrNoSectionHeaders) {
		sections = NewSectionHeaders()
	} else if err != nil {
		return nil, err
	}

	ipi, err := f.getIPI()
	if err != nil {
		return nil, err
	}

	var procs []Procedure
	for i := range d.Modules {
		mod := &d.Modules[i]
		if mod.SymStreamIndex == dbi.InvalidStreamIndex || mod.SymByteSize <= 4 {
			continue
		}

		data, err := f.readStream(uint32(mod.SymStreamIndex))
		if err != nil {
			return nil, fmt.Errorf("pdb: module %q: %w", mod.ModuleName, err)
		}
		if uint32(len(data)) > mod.SymByteSize {
			data = data[:mod.SymByteSize]
		}
		// The records follow a 4-byte CV signature.
		if len(data) < 4 {
			continue
		}

		it := symbols.NewSymbolIterator(data[4:])
		for {
			rec, err := it.Next()
			if err != nil {
				return nil, &ParseError{Stream: mod.ModuleName, Message: "symbol record", Err: err}
			}
			if rec == nil {
				break
			}
			if !rec.Kind.IsProc() {
				continue
			}

			p, err := symbols.ParseProcSym(rec.Data)
			if err != nil {
				return nil, &ParseError{Stream: mod.ModuleName, Message: "procedure", Err: err}
			}

			ft := p.FunctionType
			if rec.Kind.IsIDProc() {
				ft = functionTypeFromID(ipi, ft)
			}

			procs = append(procs, Procedure{
				Name:         p.Name,
				RVA:          sections.ToRVA(p.Segment, p.CodeOffset),
				Section:      p.Segment,
				Offset:       p.CodeOffset,
				CodeSize:     p.CodeSize,
				FunctionType: TypeIndex(ft),
				Module:       mod.ModuleName,
			})
		}
	}
	return procs, nil
}

// functionTypeFromID maps an IPI LF_FUNC_ID or LF_MFUNC_ID to the TPI
// signature it names.
func functionTypeFromID(ipi *tpi.Stream, id tpi.TypeIndex) tpi.TypeIndex {
	if ipi == nil {
		return 0
	}
	rec, err := ipi.Record(id)
	if err != nil || rec == nil {
		return 0
	}
	if rec.Kind != tpi.LF_FUNC_ID && rec.Kind != tpi.LF_MFUNC_ID {
		return 0
	}
	fid, err := tpi.ParseFuncIDRecord(rec.Data)
	if err != nil {
		return 0
	}
	return fid.FunctionType
}

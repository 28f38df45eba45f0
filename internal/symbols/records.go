// Package symbols parses CodeView symbol records from module symbol streams
// and the public symbol index.
package symbols

import "github.com/skdltmxn/pdbproxy/internal/tpi"

// SymbolRecordKind identifies a symbol record (S_*).
type SymbolRecordKind uint16

const (
	S_END            SymbolRecordKind = 0x0006
	S_PUB32          SymbolRecordKind = 0x110e
	S_LPROC32        SymbolRecordKind = 0x110f
	S_GPROC32        SymbolRecordKind = 0x1110
	S_LPROC32_ID     SymbolRecordKind = 0x1146
	S_GPROC32_ID     SymbolRecordKind = 0x1147
	S_LPROC32_DPC    SymbolRecordKind = 0x1155
	S_LPROC32_DPC_ID SymbolRecordKind = 0x1156
)

// IsProc reports whether k is a 32-bit procedure record.
func (k SymbolRecordKind) IsProc() bool {
	switch k {
	case S_GPROC32, S_LPROC32, S_GPROC32_ID, S_LPROC32_ID, S_LPROC32_DPC, S_LPROC32_DPC_ID:
		return true
	}
	return false
}

// IsIDProc reports whether the record's type field indexes the IPI stream
// (an LF_FUNC_ID or LF_MFUNC_ID) rather than TPI.
func (k SymbolRecordKind) IsIDProc() bool {
	return k == S_GPROC32_ID || k == S_LPROC32_ID || k == S_LPROC32_DPC_ID
}

// ProcFlags describes procedure attributes.
type ProcFlags uint8

func (pf ProcFlags) IsNoReturn() bool { return pf&0x08 != 0 }
func (pf ProcFlags) IsNoInline() bool { return pf&0x40 != 0 }

// SymbolRecord is an undecoded symbol record.
type SymbolRecord struct {
	Kind SymbolRecordKind
	Data []byte
}

// ProcSym is the decoded body of a procedure record.
type ProcSym struct {
	CodeSize     uint32
	FunctionType tpi.TypeIndex
	CodeOffset   uint32
	Segment      uint16
	Flags        ProcFlags
	Name         string
}

// PublicSymFlags describes a public symbol.
type PublicSymFlags uint32

func (f PublicSymFlags) IsCode() bool     { return f&0x1 != 0 }
func (f PublicSymFlags) IsFunction() bool { return f&0x2 != 0 }

// PublicSym32 is the decoded body of an S_PUB32 record. Name is the
// decorated linker name.
type PublicSym32 struct {
	Flags   PublicSymFlags
	Offset  uint32
	Segment uint16
	Name    string
}

// Package pdb reads type and procedure information from Microsoft PDB files.
package pdb

import (
	"errors"
	"fmt"
)

var (
	// ErrNotPDB indicates the file is not a valid PDB.
	ErrNotPDB = errors.New("pdb: not a valid PDB file")

	// ErrTypeNotFound indicates a type index has no record.
	ErrTypeNotFound = errors.New("pdb: type not found")

	// ErrNoSectionHeaders indicates the DBI stream does not reference the
	// PE section headers, so procedure addresses cannot be mapped to RVAs.
	ErrNoSectionHeaders = errors.New("pdb: no section header stream")

	ErrFileClosed = errors.New("pdb: file is closed")
)

// ParseError locates a parsing failure inside a stream.
type ParseError struct {
	Stream  string
	Offset  int64
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pdb: parse error in %s at offset 0x%x: %s: %v",
			e.Stream, e.Offset, e.Message, e.Err)
	}
	return fmt.Sprintf("pdb: parse error in %s at offset 0x%x: %s",
		e.Stream, e.Offset, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

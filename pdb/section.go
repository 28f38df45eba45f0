package pdb

import (
	"fmt"

	"github.com/skdltmxn/pdbproxy/internal/dbi"
	"github.com/skdltmxn/pdbproxy/internal/stream"
)

const sectionHeaderSize = 40

// SectionHeader is the subset of IMAGE_SECTION_HEADER used for address mapping.
type SectionHeader struct {
	Name           string
	VirtualSize    uint32
	VirtualAddress uint32
}

// SectionHeaders maps section:offset pairs to RVAs.
type SectionHeaders struct {
	sections []SectionHeader
}

// NewSectionHeaders builds a table from already decoded headers.
func NewSectionHeaders(sections ...SectionHeader) *SectionHeaders {
	return &SectionHeaders{sections: sections}
}

// Count returns the number of sections.
func (sh *SectionHeaders) Count() int {
	return len(sh.sections)
}

// All returns the section headers in file order.
func (sh *SectionHeaders) All() []SectionHeader {
	return sh.sections
}

// ToRVA converts a 1-based section number and offset to an RVA.
// It returns 0 for section numbers outside the table.
func (sh *SectionHeaders) ToRVA(section uint16, offset uint32) uint32 {
	if section == 0 || int(section) > len(sh.sections) {
		return 0
	}
	return sh.sections[section-1].VirtualAddress + offset
}

func parseSectionHeaders(data []byte) (*SectionHeaders, error) {
	r := stream.NewReader(data)
	sh := &SectionHeaders{}

	for r.Remaining() >= sectionHeaderSize {
		var sec SectionHeader
		var err error
		if sec.Name, err = r.ReadFixedString(8); err != nil {
			return nil, err
		}
		if sec.VirtualSize, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if sec.VirtualAddress, err = r.ReadU32(); err != nil {
			return nil, err
		}
		// Raw data, relocation and line number fields, characteristics.
		if err := r.Skip(sectionHeaderSize - 16); err != nil {
			return nil, err
		}
		sh.sections = append(sh.sections, sec)
	}
	return sh, nil
}

// Sections returns the PE section headers recorded in the PDB.
func (f *File) Sections() (*SectionHeaders, error) {
	f.sectionsOnce.Do(func() {
		f.sections, f.sectionsErr = f.loadSections()
	})
	return f.sections, f.sectionsErr
}

func (f *File) loadSections() (*SectionHeaders, error) {
	d, err := f.getDBI()
	if err != nil {
		return nil, err
	}
	if d.SectionHdrStreamIndex == dbi.InvalidStreamIndex {
		return nil, ErrNoSectionHeaders
	}

	data, err := f.readStream(uint32(d.SectionHdrStreamIndex))
	if err != nil {
		return nil, fmt.Errorf("pdb: failed to read section header stream: %w", err)
	}
	return parseSectionHeaders(data)
}

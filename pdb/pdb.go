package pdb

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/skdltmxn/pdbproxy/internal/dbi"
	"github.com/skdltmxn/pdbproxy/internal/stream"
	"github.com/skdltmxn/pdbproxy/internal/tpi"
	"github.com/skdltmxn/pdbproxy/msf"
)

// File is an opened PDB file. Streams are parsed on first use.
type File struct {
	msf    *msf.File
	closed bool
	mu     sync.Mutex

	infoOnce sync.Once
	info     *Info
	infoErr  error

	tpiOnce sync.Once
	tpi     *tpi.Stream
	tpiErr  error

	ipiOnce sync.Once
	ipi     *tpi.Stream
	ipiErr  error

	dbiOnce sync.Once
	dbi     *dbi.Stream
	dbiErr  error

	typesOnce sync.Once
	types     *TypeTable

	sectionsOnce sync.Once
	sections     *SectionHeaders
	sectionsErr  error

	publicsOnce sync.Once
	publics     []*PublicSymbol
	publicsErr  error
}

// Info holds the PDB info stream header.
type Info struct {
	Version   uint32
	Signature uint32
	Age       uint32
	GUID      [16]byte
}

// GUIDString formats the GUID in registry form.
func (i *Info) GUIDString() string {
	g := i.GUID
	return fmt.Sprintf("%02X%02X%02X%02X-%02X%02X-%02X%02X-%02X%02X-%02X%02X%02X%02X%02X%02X",
		g[3], g[2], g[1], g[0], g[5], g[4], g[7], g[6],
		g[8], g[9], g[10], g[11], g[12], g[13], g[14], g[15])
}

// Open opens a PDB file from the given path.
func Open(path string) (*File, error) {
	m, err := msf.Open(path)
	if err != nil {
		return nil, wrapOpenErr(err)
	}
	return &File{msf: m}, nil
}

// OpenReader opens a PDB held by r.
func OpenReader(r io.ReaderAt, size int64) (*File, error) {
	m, err := msf.NewFile(r, size)
	if err != nil {
		return nil, wrapOpenErr(err)
	}
	return &File{msf: m}, nil
}

func wrapOpenErr(err error) error {
	if errors.Is(err, msf.ErrInvalidMagic) || errors.Is(err, msf.ErrTruncatedFile) {
		return fmt.Errorf("%w: %w", ErrNotPDB, err)
	}
	return fmt.Errorf("pdb: failed to open file: %w", err)
}

// Close releases the underlying file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	return f.msf.Close()
}

func (f *File) readStream(idx uint32) ([]byte, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return nil, ErrFileClosed
	}
	return f.msf.ReadStream(idx)
}

// Info returns the PDB info stream header.
func (f *File) Info() (*Info, error) {
	f.infoOnce.Do(func() {
		f.info, f.infoErr = f.loadInfo()
	})
	return f.info, f.infoErr
}

func (f *File) loadInfo() (*Info, error) {
	data, err := f.readStream(msf.StreamPDBInfo)
	if err != nil {
		return nil, fmt.Errorf("pdb: failed to read PDB info stream: %w", err)
	}

	r := stream.NewReader(data)
	info := &Info{}
	if info.Version, err = r.ReadU32(); err != nil {
		return nil, &ParseError{Stream: "PDB", Message: "version", Err: err}
	}
	if info.Signature, err = r.ReadU32(); err != nil {
		return nil, &ParseError{Stream: "PDB", Offset: 4, Message: "signature", Err: err}
	}
	if info.Age, err = r.ReadU32(); err != nil {
		return nil, &ParseError{Stream: "PDB", Offset: 8, Message: "age", Err: err}
	}
	if info.GUID, err = r.ReadGUID(); err != nil {
		return nil, &ParseError{Stream: "PDB", Offset: 12, Message: "guid", Err: err}
	}
	return info, nil
}

// Types returns the TPI type table.
func (f *File) Types() (*TypeTable, error) {
	s, err := f.getTPI()
	if err != nil {
		return nil, err
	}
	f.typesOnce.Do(func() {
		f.types = newTypeTable(s)
	})
	return f.types, nil
}

// Machine returns the DBI machine type.
func (f *File) Machine() (uint16, error) {
	d, err := f.getDBI()
	if err != nil {
		return 0, err
	}
	return d.Header.Machine, nil
}

// PointerSize returns the pointer width of the target machine in bytes.
func (f *File) PointerSize() (int, error) {
	d, err := f.getDBI()
	if err != nil {
		return 0, err
	}
	return d.Header.PointerSize(), nil
}

// NumStreams returns the number of MSF streams.
func (f *File) NumStreams() uint32 {
	return f.msf.NumStreams()
}

// BlockSize returns the MSF block size.
func (f *File) BlockSize() uint32 {
	return f.msf.BlockSize()
}

func (f *File) getTPI() (*tpi.Stream, error) {
	f.tpiOnce.Do(func() {
		data, err := f.readStream(msf.StreamTPI)
		if err != nil {
			f.tpiErr = fmt.Errorf("pdb: failed to read TPI stream: %w", err)
			return
		}
		f.tpi, f.tpiErr = tpi.ParseStream(data)
	})
	return f.tpi, f.tpiErr
}

// getIPI returns nil without error when the PDB has no IPI stream.
func (f *File) getIPI() (*tpi.Stream, error) {
	f.ipiOnce.Do(func() {
		if !f.msf.StreamExists(msf.StreamIPI) {
			return
		}
		data, err := f.readStream(msf.StreamIPI)
		if err != nil {
			f.ipiErr = fmt.Errorf("pdb: failed to read IPI stream: %w", err)
			return
		}
		f.ipi, f.ipiErr = tpi.ParseStream(data)
	})
	return f.ipi, f.ipiErr
}

func (f *File) getDBI() (*dbi.Stream, error) {
	f.dbiOnce.Do(func() {
		data, err := f.readStream(msf.StreamDBI)
		if err != nil {
			f.dbiErr = fmt.Errorf("pdb: failed to read DBI stream: %w", err)
			return
		}
		f.dbi, f.dbiErr = dbi.ParseStream(data)
	})
	return f.dbi, f.dbiErr
}

// Package msf reads the MSF (Multi-Stream File) container that wraps every
// PDB 7.0 file.
package msf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Magic is the signature at offset 0 of a PDB 7.0 ("BigMsf") file.
const Magic = "Microsoft C/C++ MSF 7.00\r\n\x1a\x44\x53\x00\x00\x00"

const (
	magicSize      = 32
	superBlockSize = 56

	// NilStreamSize marks a deleted stream in the directory.
	NilStreamSize = 0xFFFFFFFF
)

// Well-known stream indices.
const (
	StreamPDBInfo = 1
	StreamTPI     = 2
	StreamDBI     = 3
	StreamIPI     = 4
)

var (
	ErrInvalidMagic       = errors.New("msf: invalid magic signature, not a valid PDB file")
	ErrInvalidBlockSize   = errors.New("msf: invalid block size")
	ErrTruncatedFile      = errors.New("msf: file is truncated")
	ErrTruncatedDirectory = errors.New("msf: truncated stream directory")
	ErrInvalidStreamIndex = errors.New("msf: invalid stream index")
	ErrInvalidBlockIndex  = errors.New("msf: invalid block index")
)

type superBlock struct {
	blockSize         uint32
	numBlocks         uint32
	numDirectoryBytes uint32
	blockMapAddr      uint32
}

func (sb *superBlock) offset(block uint32) int64 {
	return int64(block) * int64(sb.blockSize)
}

func (sb *superBlock) blocksFor(n uint32) uint32 {
	return (n + sb.blockSize - 1) / sb.blockSize
}

// File is an opened MSF container. The stream directory is read eagerly;
// stream contents are read on demand.
type File struct {
	data   io.ReaderAt
	closer io.Closer
	sb     superBlock

	sizes  []uint32
	blocks [][]uint32
}

// Open opens an MSF file from the given path.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("msf: failed to open file: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("msf: failed to stat file: %w", err)
	}

	m, err := NewFile(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	m.closer = f
	return m, nil
}

// NewFile reads the superblock and stream directory from r.
// The caller keeps ownership of r.
func NewFile(r io.ReaderAt, size int64) (*File, error) {
	if size < superBlockSize {
		return nil, ErrTruncatedFile
	}

	hdr := make([]byte, superBlockSize)
	if _, err := r.ReadAt(hdr, 0); err != nil {
		return nil, fmt.Errorf("msf: failed to read superblock: %w", err)
	}
	if string(hdr[:magicSize]) != Magic {
		return nil, ErrInvalidMagic
	}

	le := binary.LittleEndian
	sb := superBlock{
		blockSize:         le.Uint32(hdr[32:]),
		numBlocks:         le.Uint32(hdr[40:]),
		numDirectoryBytes: le.Uint32(hdr[44:]),
		blockMapAddr:      le.Uint32(hdr[52:]),
	}
	if sb.blockSize < 512 || sb.blockSize > 65536 || sb.blockSize&(sb.blockSize-1) != 0 {
		return nil, ErrInvalidBlockSize
	}
	if fpm := le.Uint32(hdr[36:]); fpm != 1 && fpm != 2 {
		return nil, fmt.Errorf("msf: invalid free block map block %d", fpm)
	}
	if want := int64(sb.numBlocks) * int64(sb.blockSize); size < want {
		return nil, fmt.Errorf("msf: file too small: got %d bytes, expected %d", size, want)
	}

	f := &File{data: r, sb: sb}
	if err := f.readDirectory(); err != nil {
		return nil, err
	}
	return f, nil
}

// readDirectory follows the block map at blockMapAddr to the directory blocks
// and decodes the per-stream sizes and block lists.
func (f *File) readDirectory() error {
	sb := &f.sb
	dirBlocks := sb.blocksFor(sb.numDirectoryBytes)

	mapBytes := make([]byte, dirBlocks*4)
	if err := f.readBlocks(mapBytes, func(i uint32) uint32 { return sb.blockMapAddr + i }); err != nil {
		return fmt.Errorf("msf: failed to read block map: %w", err)
	}

	dir := make([]byte, sb.numDirectoryBytes)
	err := f.readBlocks(dir, func(i uint32) uint32 {
		return binary.LittleEndian.Uint32(mapBytes[i*4:])
	})
	if err != nil {
		return err
	}

	if len(dir) < 4 {
		return ErrTruncatedDirectory
	}
	le := binary.LittleEndian
	n := le.Uint32(dir)
	off := 4
	if len(dir) < off+int(n)*4 {
		return ErrTruncatedDirectory
	}

	f.sizes = make([]uint32, n)
	for i := range f.sizes {
		f.sizes[i] = le.Uint32(dir[off:])
		off += 4
	}

	f.blocks = make([][]uint32, n)
	for i, size := range f.sizes {
		if size == NilStreamSize || size == 0 {
			continue
		}
		count := int(sb.blocksFor(size))
		if off+count*4 > len(dir) {
			return ErrTruncatedDirectory
		}
		list := make([]uint32, count)
		for j := range list {
			list[j] = le.Uint32(dir[off:])
			off += 4
		}
		f.blocks[i] = list
	}
	return nil
}

// readBlocks fills dst from consecutive logical blocks, mapping each logical
// index to a physical block with phys.
func (f *File) readBlocks(dst []byte, phys func(i uint32) uint32) error {
	bs := f.sb.blockSize
	for i := uint32(0); len(dst) > 0; i++ {
		blk := phys(i)
		if blk >= f.sb.numBlocks {
			return fmt.Errorf("%w: %d >= %d", ErrInvalidBlockIndex, blk, f.sb.numBlocks)
		}
		n := min(uint32(len(dst)), bs)
		if _, err := f.data.ReadAt(dst[:n], f.sb.offset(blk)); err != nil && err != io.EOF {
			return err
		}
		dst = dst[n:]
	}
	return nil
}

// Close releases the underlying file when it was opened by Open.
func (f *File) Close() error {
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}

// BlockSize returns the container block size.
func (f *File) BlockSize() uint32 {
	return f.sb.blockSize
}

// NumStreams returns the number of directory entries.
func (f *File) NumStreams() uint32 {
	return uint32(len(f.sizes))
}

// StreamExists reports whether idx names a non-nil, non-empty stream.
func (f *File) StreamExists(idx uint32) bool {
	return idx < f.NumStreams() && f.sizes[idx] != NilStreamSize && f.sizes[idx] > 0
}

// ReadStream reads the entire stream idx into memory.
func (f *File) ReadStream(idx uint32) ([]byte, error) {
	if idx >= f.NumStreams() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStreamIndex, idx)
	}
	size := f.sizes[idx]
	if size == NilStreamSize {
		return nil, fmt.Errorf("msf: stream %d is nil", idx)
	}

	blocks := f.blocks[idx]
	buf := make([]byte, size)
	err := f.readBlocks(buf, func(i uint32) uint32 {
		if int(i) >= len(blocks) {
			return f.sb.numBlocks
		}
		return blocks[i]
	})
	if err != nil {
		return nil, fmt.Errorf("msf: stream %d: %w", idx, err)
	}
	return buf, nil
}

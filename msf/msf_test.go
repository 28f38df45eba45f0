package msf

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBlockSize = 512

// buildMSF lays out a minimal container: superblock, two FPM blocks, the
// block map, one directory block, then each stream in consecutive blocks.
func buildMSF(t *testing.T, streams ...[]byte) []byte {
	t.Helper()

	const (
		blockMapBlock = 3
		dirBlock      = 4
		firstData     = 5
	)

	le := binary.LittleEndian
	var dir bytes.Buffer
	binary.Write(&dir, le, uint32(len(streams)))
	for _, s := range streams {
		binary.Write(&dir, le, uint32(len(s)))
	}

	next := uint32(firstData)
	var placed [][2]uint32
	for _, s := range streams {
		n := (uint32(len(s)) + testBlockSize - 1) / testBlockSize
		for i := uint32(0); i < n; i++ {
			binary.Write(&dir, le, next+i)
		}
		placed = append(placed, [2]uint32{next, n})
		next += n
	}
	require.LessOrEqual(t, dir.Len(), testBlockSize)

	out := make([]byte, int(next)*testBlockSize)
	copy(out, Magic)
	le.PutUint32(out[32:], testBlockSize)
	le.PutUint32(out[36:], 1)
	le.PutUint32(out[40:], next)
	le.PutUint32(out[44:], uint32(dir.Len()))
	le.PutUint32(out[52:], blockMapBlock)

	le.PutUint32(out[blockMapBlock*testBlockSize:], dirBlock)
	copy(out[dirBlock*testBlockSize:], dir.Bytes())

	for i, s := range streams {
		copy(out[placed[i][0]*testBlockSize:], s)
	}
	return out
}

func TestReadStreams(t *testing.T) {
	big := bytes.Repeat([]byte{0xAB}, testBlockSize+17)
	data := buildMSF(t, []byte{}, []byte("info"), big)

	f, err := NewFile(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, uint32(3), f.NumStreams())
	assert.Equal(t, uint32(testBlockSize), f.BlockSize())
	assert.False(t, f.StreamExists(0))
	assert.True(t, f.StreamExists(1))
	assert.False(t, f.StreamExists(7))

	got, err := f.ReadStream(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("info"), got)

	got, err = f.ReadStream(2)
	require.NoError(t, err)
	assert.Equal(t, big, got)

	_, err = f.ReadStream(9)
	assert.ErrorIs(t, err, ErrInvalidStreamIndex)
}

func TestNewFileRejectsBadInput(t *testing.T) {
	good := buildMSF(t, []byte("x"))

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"truncated", func(b []byte) []byte { return b[:20] }, ErrTruncatedFile},
		{"magic", func(b []byte) []byte { b[0] = 'X'; return b }, ErrInvalidMagic},
		{"block size", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[32:], 1000)
			return b
		}, ErrInvalidBlockSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(append([]byte(nil), good...))
			_, err := NewFile(bytes.NewReader(data), int64(len(data)))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

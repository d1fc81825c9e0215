package blkindex

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Reader reads blocks directly from a node's block{NNNNN}.dat files
// using a pre-built height -> Location index, per spec.md §4.2.
type Reader struct {
	blocksDir string
	index     map[uint32]Location
}

// NewReader constructs a Reader over blocksDir (the directory holding
// block{NNNNN}.dat files, a sibling of blocks/index/) using a
// previously built location index.
func NewReader(blocksDir string, index map[uint32]Location) *Reader {
	return &Reader{blocksDir: blocksDir, index: index}
}

// MaxHeight returns the highest height present in the location index.
func (r *Reader) MaxHeight() uint32 {
	var max uint32
	for h := range r.index {
		if h > max {
			max = h
		}
	}
	return max
}

// Has reports whether the given height is present in the on-disk index.
func (r *Reader) Has(height uint32) bool {
	_, ok := r.index[height]
	return ok
}

// ReadRaw returns the raw serialized block bytes at height, or
// (nil, false, nil) if the height isn't in the on-disk index yet
// (tip blocks not flushed to disk) — the caller falls back to RPC.
func (r *Reader) ReadRaw(height uint32) ([]byte, bool, error) {
	loc, ok := r.index[height]
	if !ok {
		return nil, false, nil
	}

	path := filepath.Join(r.blocksDir, fmt.Sprintf("block%05d.dat", loc.FileNumber))
	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("blkindex: open %s: %w", path, err)
	}
	defer f.Close()

	// The stored offset points at the raw block bytes, immediately
	// after the 4-byte magic and 4-byte size; the size field itself
	// sits 4 bytes before that.
	if loc.DataOffset < 4 {
		return nil, false, fmt.Errorf("blkindex: data offset %d too small for size header", loc.DataOffset)
	}
	if _, err := f.Seek(int64(loc.DataOffset-4), io.SeekStart); err != nil {
		return nil, false, fmt.Errorf("blkindex: seek: %w", err)
	}

	var sizeBuf [4]byte
	if _, err := io.ReadFull(f, sizeBuf[:]); err != nil {
		return nil, false, fmt.Errorf("blkindex: read size header: %w", err)
	}
	size := binary.LittleEndian.Uint32(sizeBuf[:])

	buf := make([]byte, size)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, false, fmt.Errorf("blkindex: read block bytes: %w", err)
	}
	return buf, true, nil
}

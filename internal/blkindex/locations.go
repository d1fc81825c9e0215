package blkindex

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// Location is a block's position on disk: which block{file:05}.dat file
// it lives in, and the byte offset of its raw serialized form within
// that file.
type Location struct {
	FileNumber uint32
	DataOffset uint64
}

const (
	blockHaveData      = 0x08
	blockFailedValid   = 0x20
	blockFailedChild   = 0x40
	blockRecordKeyByte = 'b'
)

// BuildLocationIndex opens the LevelDB database at dir (a node's
// blocks/index directory, or a Mirror's shadow copy of it) and parses
// every block-location record into a height -> Location map, per
// spec.md §4.2's parsing rules.
func BuildLocationIndex(dir string) (map[uint32]Location, error) {
	// Operates against the Mirror's shadow copy, so a plain (writable)
	// open is fine — this process never writes to it.
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("blkindex: open leveldb %s: %w", dir, err)
	}
	defer db.Close()

	index := make(map[uint32]Location)

	iter := db.NewIterator(nil, nil)
	defer iter.Release()

	for iter.Seek([]byte{blockRecordKeyByte}); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) == 0 || key[0] != blockRecordKeyByte {
			break // past the block records, which are ordered first under 'b'
		}

		height, loc, ok := parseIndexRecord(iter.Value())
		if !ok {
			continue
		}

		// First-seen wins: keep the first record for a given height.
		if _, exists := index[height]; !exists {
			index[height] = loc
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("blkindex: iterate leveldb: %w", err)
	}

	return index, nil
}

// parseIndexRecord decodes a single block-index value per spec.md §4.2:
// varint version, height, status, tx_count, then (if status indicates
// on-disk data and no failure flags) file_number and data_offset.
func parseIndexRecord(value []byte) (height uint32, loc Location, ok bool) {
	r := varintReader{b: value}

	if _, ok = r.next(); !ok {
		return 0, Location{}, false // version
	}
	h, ok := r.next()
	if !ok {
		return 0, Location{}, false
	}
	status, ok := r.next()
	if !ok {
		return 0, Location{}, false
	}
	if _, ok = r.next(); !ok {
		return 0, Location{}, false // tx_count
	}

	if status&blockHaveData == 0 {
		return 0, Location{}, false
	}
	if status&(blockFailedValid|blockFailedChild) != 0 {
		return 0, Location{}, false
	}

	fileNumber, ok := r.next()
	if !ok {
		return 0, Location{}, false
	}
	dataOffset, ok := r.next()
	if !ok {
		return 0, Location{}, false
	}

	return uint32(h), Location{FileNumber: uint32(fileNumber), DataOffset: dataOffset}, true
}

// varintReader decodes Bitcoin/Dogecoin Core's LevelDB varint encoding:
// 7 payload bits per byte, continuation signaled by the high bit, with
// each continuation byte adding 1 to the accumulated value (so the
// encoding has no redundant representations), per spec.md §4.2.
type varintReader struct {
	b   []byte
	pos int
}

func (r *varintReader) next() (uint64, bool) {
	var n uint64
	for {
		if r.pos >= len(r.b) {
			return 0, false
		}
		b := r.b[r.pos]
		r.pos++
		n = (n << 7) | uint64(b&0x7F)
		if b&0x80 != 0 {
			n++
		} else {
			return n, true
		}
	}
}

package kvstore

import (
	"encoding/binary"
)

// Table prefixes, one byte each, matching the logical table names of
// spec.md §6. Grounded on the DeSo-style DBPrefixes constant block in
// other_examples/188b8cc7_Charizard13-badger__main.go, adapted from its
// struct-tag enumeration to a plain byte-constant block since this store
// has no reflection-driven prefix registry.
const (
	prefixHeightToHeader      byte = 0x01 // height -> block header
	prefixOutpointToUTXO      byte = 0x02 // outpoint -> utxo entry
	prefixScriptToOutpoints   byte = 0x03 // script -> outpoint (multi)
	prefixInscriptionIDToSeq  byte = 0x04 // inscription id -> sequence number
	prefixSeqToEntry          byte = 0x05 // sequence number -> inscription entry
	prefixSeqToSatpoint       byte = 0x06 // sequence number -> satpoint
	prefixSeqToChildren       byte = 0x07 // sequence number -> child sequence number (multi)
	prefixCoinToSatpoint      byte = 0x08 // coin index -> satpoint
	prefixCoinToSeq           byte = 0x09 // coin index -> sequence number (multi)
	prefixDNSNameToEntry      byte = 0x0A // name -> dns entry
	prefixDNSNamespaceToNames byte = 0x0B // namespace -> name (multi)
	prefixDRC20TickToToken    byte = 0x0C // lowercase tick -> token
	prefixDRC20Balance        byte = 0x0D // "address\ttick" -> available balance
	prefixDRC20Transferable   byte = 0x0E // "address\ttick" -> transferable balance
	prefixDRC20OutpointXfer   byte = 0x0F // outpoint -> pending transfer
	prefixStatistic           byte = 0x10 // statistic id -> count
	prefixHomeInscriptions    byte = 0x11 // ordinal position -> sequence number
)

// OutPoint is the 36-byte packed primary key of the UTXO table: a
// 32-byte transaction id followed by a 4-byte big-endian output index.
type OutPoint struct {
	TxID  [32]byte
	Index uint32
}

// LostCoinSink is the distinguished outpoint that absorbs coin units
// that were inputs to a transaction but credited to no output, per
// spec.md §6. Its transaction id is all-zero and its output index is
// the maximum u32.
var LostCoinSink = OutPoint{Index: 0xFFFFFFFF}

// Pack renders an OutPoint as its 36-byte key form.
func (o OutPoint) Pack() [36]byte {
	var b [36]byte
	copy(b[:32], o.TxID[:])
	binary.BigEndian.PutUint32(b[32:], o.Index)
	return b
}

// UnpackOutPoint parses a 36-byte packed outpoint key.
func UnpackOutPoint(b [36]byte) OutPoint {
	var o OutPoint
	copy(o.TxID[:], b[:32])
	o.Index = binary.BigEndian.Uint32(b[32:])
	return o
}

func outpointKey(prefix byte, o OutPoint) []byte {
	packed := o.Pack()
	key := make([]byte, 0, 1+len(packed))
	key = append(key, prefix)
	key = append(key, packed[:]...)
	return key
}

func u32Key(prefix byte, n uint32) []byte {
	key := make([]byte, 5)
	key[0] = prefix
	binary.BigEndian.PutUint32(key[1:], n)
	return key
}

func u64Key(prefix byte, n uint64) []byte {
	key := make([]byte, 9)
	key[0] = prefix
	binary.BigEndian.PutUint64(key[1:], n)
	return key
}

func stringKey(prefix byte, s string) []byte {
	key := make([]byte, 0, 1+len(s))
	key = append(key, prefix)
	key = append(key, s...)
	return key
}

func bytesKey(prefix byte, b []byte) []byte {
	key := make([]byte, 0, 1+len(b))
	key = append(key, prefix)
	key = append(key, b...)
	return key
}

// multiKey builds a key for a "multi" logical table (one primary key maps
// to many values) by length-prefixing the primary key and appending the
// value's own bytes after it, so each (primary, value) pair occupies a
// distinct badger key and a prefix scan over `prefix+lengthPrefixed(primary)`
// enumerates all values regardless of what bytes primary or value contain.
func multiKey(prefix byte, primary []byte, value []byte) []byte {
	key := make([]byte, 0, 1+4+len(primary)+len(value))
	key = append(key, prefix)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(primary)))
	key = append(key, lenBuf[:]...)
	key = append(key, primary...)
	key = append(key, value...)
	return key
}

// multiScanPrefix returns the fixed prefix that enumerates every value
// stored under a given primary key via multiKey.
func multiScanPrefix(prefix byte, primary []byte) []byte {
	key := make([]byte, 0, 1+4+len(primary))
	key = append(key, prefix)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(primary)))
	key = append(key, lenBuf[:]...)
	key = append(key, primary...)
	return key
}

package kvstore

import (
	"encoding/binary"
	"fmt"

	"github.com/dogeindex/dogeindexer/internal/coinrange"
)

// Satpoint is an inscription's or coin's current location: an outpoint
// plus an offset within that output's value. Packs to 44 bytes (36-byte
// outpoint + 8-byte big-endian offset), per spec.md §6.
type Satpoint struct {
	OutPoint OutPoint
	Offset   uint64
}

// Pack renders a Satpoint as its 44-byte key/value form.
func (s Satpoint) Pack() [44]byte {
	var b [44]byte
	op := s.OutPoint.Pack()
	copy(b[:36], op[:])
	binary.BigEndian.PutUint64(b[36:], s.Offset)
	return b
}

// UnpackSatpoint parses a 44-byte packed satpoint.
func UnpackSatpoint(b [44]byte) Satpoint {
	var op [36]byte
	copy(op[:], b[:36])
	return Satpoint{
		OutPoint: UnpackOutPoint(op),
		Offset:   binary.BigEndian.Uint64(b[36:]),
	}
}

// UTXOEntry is the value stored for a live outpoint: its koinu value, an
// optional owning script, an optional packed coin-range list, and an
// optional list of inscription bindings. Optional fields are encoded
// with a presence byte ahead of their content, per spec.md §6's
// "integer fields precede optional fields, each optional tagged by
// presence" framing.
type UTXOEntry struct {
	Value       uint64
	Script      []byte // nil if absent
	CoinRanges  []coinrange.Range
	Inscriptions []InscriptionBinding
}

// InscriptionBinding ties an inscription's sequence number to its offset
// within this UTXO's value.
type InscriptionBinding struct {
	SequenceNumber uint32
	Offset         uint64
}

// EncodeUTXOEntry serializes a UTXOEntry to its on-disk blob form.
func EncodeUTXOEntry(e UTXOEntry) []byte {
	buf := make([]byte, 0, 64)
	buf = appendUvarint(buf, e.Value)

	if e.Script != nil {
		buf = append(buf, 1)
		buf = appendUvarint(buf, uint64(len(e.Script)))
		buf = append(buf, e.Script...)
	} else {
		buf = append(buf, 0)
	}

	if e.CoinRanges != nil {
		buf = append(buf, 1)
		buf = appendUvarint(buf, uint64(len(e.CoinRanges)))
		for _, r := range e.CoinRanges {
			packed, err := coinrange.Pack(r)
			if err != nil {
				// Callers are expected to only ever store in-domain
				// ranges; an out-of-domain range here is an invariant
				// violation, not a recoverable encoding error.
				panic(fmt.Sprintf("kvstore: invalid coin range %+v: %v", r, err))
			}
			buf = append(buf, packed[:]...)
		}
	} else {
		buf = append(buf, 0)
	}

	if e.Inscriptions != nil {
		buf = append(buf, 1)
		buf = appendUvarint(buf, uint64(len(e.Inscriptions)))
		for _, ib := range e.Inscriptions {
			var tmp [4]byte
			binary.BigEndian.PutUint32(tmp[:], ib.SequenceNumber)
			buf = append(buf, tmp[:]...)
			buf = appendUvarint(buf, ib.Offset)
		}
	} else {
		buf = append(buf, 0)
	}

	return buf
}

// DecodeUTXOEntry parses a UTXOEntry from its on-disk blob form.
func DecodeUTXOEntry(blob []byte) (UTXOEntry, error) {
	var e UTXOEntry
	r := &byteReader{b: blob}

	value, err := r.uvarint()
	if err != nil {
		return e, fmt.Errorf("kvstore: utxo value: %w", err)
	}
	e.Value = value

	hasScript, err := r.byte_()
	if err != nil {
		return e, err
	}
	if hasScript == 1 {
		n, err := r.uvarint()
		if err != nil {
			return e, err
		}
		script, err := r.take(int(n))
		if err != nil {
			return e, err
		}
		e.Script = script
	}

	hasRanges, err := r.byte_()
	if err != nil {
		return e, err
	}
	if hasRanges == 1 {
		n, err := r.uvarint()
		if err != nil {
			return e, err
		}
		e.CoinRanges = make([]coinrange.Range, 0, n)
		for i := uint64(0); i < n; i++ {
			raw, err := r.take(11)
			if err != nil {
				return e, err
			}
			var packed [11]byte
			copy(packed[:], raw)
			e.CoinRanges = append(e.CoinRanges, coinrange.Unpack(packed))
		}
	}

	hasBindings, err := r.byte_()
	if err != nil {
		return e, err
	}
	if hasBindings == 1 {
		n, err := r.uvarint()
		if err != nil {
			return e, err
		}
		e.Inscriptions = make([]InscriptionBinding, 0, n)
		for i := uint64(0); i < n; i++ {
			seqBytes, err := r.take(4)
			if err != nil {
				return e, err
			}
			offset, err := r.uvarint()
			if err != nil {
				return e, err
			}
			e.Inscriptions = append(e.Inscriptions, InscriptionBinding{
				SequenceNumber: binary.BigEndian.Uint32(seqBytes),
				Offset:         offset,
			})
		}
	}

	return e, nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

type byteReader struct {
	b   []byte
	pos int
}

func (r *byteReader) byte_() (byte, error) {
	if r.pos >= len(r.b) {
		return 0, fmt.Errorf("kvstore: unexpected end of buffer")
	}
	v := r.b[r.pos]
	r.pos++
	return v, nil
}

func (r *byteReader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.b) {
		return nil, fmt.Errorf("kvstore: unexpected end of buffer")
	}
	v := r.b[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

func (r *byteReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.b[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("kvstore: malformed varint")
	}
	r.pos += n
	return v, nil
}

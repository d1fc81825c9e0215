package kvstore

import (
	"encoding/binary"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// InscriptionID identifies an inscription by the transaction that
// created it and the envelope's index within that transaction, per
// spec.md §3.
type InscriptionID struct {
	TxID          [32]byte
	EnvelopeIndex uint32
}

// Pack renders an InscriptionID as its 36-byte key form (same shape as
// OutPoint, but semantically distinct).
func (id InscriptionID) Pack() [36]byte {
	var b [36]byte
	copy(b[:32], id.TxID[:])
	binary.BigEndian.PutUint32(b[32:], id.EnvelopeIndex)
	return b
}

// UnpackInscriptionID parses a 36-byte packed inscription id.
func UnpackInscriptionID(b [36]byte) InscriptionID {
	var id InscriptionID
	copy(id.TxID[:], b[:32])
	id.EnvelopeIndex = binary.BigEndian.Uint32(b[32:])
	return id
}

// InscriptionEntry is the per-inscription record of spec.md §3: charms,
// fee (always 0, see DESIGN.md), confirming height, id, the signed
// inscription number (negative for cursed), parent sequence numbers,
// an optional bound coin index, the gapless sequence number, and the
// confirming block's timestamp.
type InscriptionEntry struct {
	Charms            uint16
	Fee               uint64
	Height            uint32
	ID                InscriptionID
	InscriptionNumber int64
	Parents           []uint32
	Sat               *uint64 // nil if coin-tracking disabled or unknown
	SequenceNumber    uint32
	Timestamp         uint32
}

// EncodeInscriptionEntry serializes an InscriptionEntry to its on-disk
// blob form: fixed fields first, then the optional Sat field tagged by
// presence, then the variable-length Parents list, mirroring
// EncodeUTXOEntry's "integers precede optionals" framing.
func EncodeInscriptionEntry(e InscriptionEntry) []byte {
	buf := make([]byte, 0, 48)

	var u16buf [2]byte
	binary.BigEndian.PutUint16(u16buf[:], e.Charms)
	buf = append(buf, u16buf[:]...)

	buf = appendUvarint(buf, e.Fee)

	var u32buf [4]byte
	binary.BigEndian.PutUint32(u32buf[:], e.Height)
	buf = append(buf, u32buf[:]...)

	packedID := e.ID.Pack()
	buf = append(buf, packedID[:]...)

	var signBuf [8]byte
	binary.BigEndian.PutUint64(signBuf[:], uint64(e.InscriptionNumber))
	buf = append(buf, signBuf[:]...)

	binary.BigEndian.PutUint32(u32buf[:], e.SequenceNumber)
	buf = append(buf, u32buf[:]...)

	binary.BigEndian.PutUint32(u32buf[:], e.Timestamp)
	buf = append(buf, u32buf[:]...)

	if e.Sat != nil {
		buf = append(buf, 1)
		buf = appendUvarint(buf, *e.Sat)
	} else {
		buf = append(buf, 0)
	}

	buf = appendUvarint(buf, uint64(len(e.Parents)))
	for _, p := range e.Parents {
		binary.BigEndian.PutUint32(u32buf[:], p)
		buf = append(buf, u32buf[:]...)
	}

	return buf
}

// DecodeInscriptionEntry parses an InscriptionEntry from its on-disk
// blob form.
func DecodeInscriptionEntry(blob []byte) (InscriptionEntry, error) {
	var e InscriptionEntry
	r := &byteReader{b: blob}

	charmsBytes, err := r.take(2)
	if err != nil {
		return e, err
	}
	e.Charms = binary.BigEndian.Uint16(charmsBytes)

	fee, err := r.uvarint()
	if err != nil {
		return e, err
	}
	e.Fee = fee

	heightBytes, err := r.take(4)
	if err != nil {
		return e, err
	}
	e.Height = binary.BigEndian.Uint32(heightBytes)

	idBytes, err := r.take(36)
	if err != nil {
		return e, err
	}
	var packedID [36]byte
	copy(packedID[:], idBytes)
	e.ID = UnpackInscriptionID(packedID)

	signBytes, err := r.take(8)
	if err != nil {
		return e, err
	}
	e.InscriptionNumber = int64(binary.BigEndian.Uint64(signBytes))

	seqBytes, err := r.take(4)
	if err != nil {
		return e, err
	}
	e.SequenceNumber = binary.BigEndian.Uint32(seqBytes)

	tsBytes, err := r.take(4)
	if err != nil {
		return e, err
	}
	e.Timestamp = binary.BigEndian.Uint32(tsBytes)

	hasSat, err := r.byte_()
	if err != nil {
		return e, err
	}
	if hasSat == 1 {
		sat, err := r.uvarint()
		if err != nil {
			return e, err
		}
		e.Sat = &sat
	}

	nParents, err := r.uvarint()
	if err != nil {
		return e, err
	}
	e.Parents = make([]uint32, 0, nParents)
	for i := uint64(0); i < nParents; i++ {
		pb, err := r.take(4)
		if err != nil {
			return e, err
		}
		e.Parents = append(e.Parents, binary.BigEndian.Uint32(pb))
	}

	return e, nil
}

// PutInscriptionEntry stores the entry for a sequence number.
func (s *Store) PutInscriptionEntry(txn *badger.Txn, seq uint32, entry InscriptionEntry) error {
	return txn.Set(u32Key(prefixSeqToEntry, seq), EncodeInscriptionEntry(entry))
}

// GetInscriptionEntry retrieves the entry for a sequence number.
func (s *Store) GetInscriptionEntry(txn *badger.Txn, seq uint32) (InscriptionEntry, bool, error) {
	item, err := txn.Get(u32Key(prefixSeqToEntry, seq))
	if err == badger.ErrKeyNotFound {
		return InscriptionEntry{}, false, nil
	}
	if err != nil {
		return InscriptionEntry{}, false, err
	}
	var entry InscriptionEntry
	err = item.Value(func(val []byte) error {
		decoded, err := DecodeInscriptionEntry(val)
		if err != nil {
			return err
		}
		entry = decoded
		return nil
	})
	return entry, err == nil, err
}

// PutInscriptionIDSeq records the sequence number assigned to an
// inscription id.
func (s *Store) PutInscriptionIDSeq(txn *badger.Txn, id InscriptionID, seq uint32) error {
	packed := id.Pack()
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], seq)
	return txn.Set(bytesKey(prefixInscriptionIDToSeq, packed[:]), buf[:])
}

// GetInscriptionIDSeq looks up the sequence number for an inscription id.
func (s *Store) GetInscriptionIDSeq(txn *badger.Txn, id InscriptionID) (uint32, bool, error) {
	packed := id.Pack()
	item, err := txn.Get(bytesKey(prefixInscriptionIDToSeq, packed[:]))
	if err == badger.ErrKeyNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var seq uint32
	err = item.Value(func(val []byte) error {
		if len(val) != 4 {
			return fmt.Errorf("kvstore: inscription seq value has length %d, want 4", len(val))
		}
		seq = binary.BigEndian.Uint32(val)
		return nil
	})
	return seq, err == nil, err
}

// PutSeqSatpoint records the current location of an inscription's
// sequence number.
func (s *Store) PutSeqSatpoint(txn *badger.Txn, seq uint32, sp Satpoint) error {
	packed := sp.Pack()
	return txn.Set(u32Key(prefixSeqToSatpoint, seq), packed[:])
}

// GetSeqSatpoint retrieves the current location of an inscription's
// sequence number.
func (s *Store) GetSeqSatpoint(txn *badger.Txn, seq uint32) (Satpoint, bool, error) {
	item, err := txn.Get(u32Key(prefixSeqToSatpoint, seq))
	if err == badger.ErrKeyNotFound {
		return Satpoint{}, false, nil
	}
	if err != nil {
		return Satpoint{}, false, err
	}
	var sp Satpoint
	err = item.Value(func(val []byte) error {
		if len(val) != 44 {
			return fmt.Errorf("kvstore: satpoint value has length %d, want 44", len(val))
		}
		var packed [44]byte
		copy(packed[:], val)
		sp = UnpackSatpoint(packed)
		return nil
	})
	return sp, err == nil, err
}

// AddChild records childSeq as a child of parentSeq.
func (s *Store) AddChild(txn *badger.Txn, parentSeq, childSeq uint32) error {
	var parentBuf, childBuf [4]byte
	binary.BigEndian.PutUint32(parentBuf[:], parentSeq)
	binary.BigEndian.PutUint32(childBuf[:], childSeq)
	return txn.Set(multiKey(prefixSeqToChildren, parentBuf[:], childBuf[:]), nil)
}

// ChildrenOf enumerates the child sequence numbers of parentSeq.
func (s *Store) ChildrenOf(txn *badger.Txn, parentSeq uint32) ([]uint32, error) {
	var parentBuf [4]byte
	binary.BigEndian.PutUint32(parentBuf[:], parentSeq)
	prefix := multiScanPrefix(prefixSeqToChildren, parentBuf[:])

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var children []uint32
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().Key()
		children = append(children, binary.BigEndian.Uint32(key[len(prefix):]))
	}
	return children, nil
}

// PutCoinSatpoint records the current location of a specific coin index.
func (s *Store) PutCoinSatpoint(txn *badger.Txn, coinIndex uint64, sp Satpoint) error {
	packed := sp.Pack()
	return txn.Set(u64Key(prefixCoinToSatpoint, coinIndex), packed[:])
}

// GetCoinSatpoint retrieves the current location of a coin index.
func (s *Store) GetCoinSatpoint(txn *badger.Txn, coinIndex uint64) (Satpoint, bool, error) {
	item, err := txn.Get(u64Key(prefixCoinToSatpoint, coinIndex))
	if err == badger.ErrKeyNotFound {
		return Satpoint{}, false, nil
	}
	if err != nil {
		return Satpoint{}, false, err
	}
	var sp Satpoint
	err = item.Value(func(val []byte) error {
		var packed [44]byte
		copy(packed[:], val)
		sp = UnpackSatpoint(packed)
		return nil
	})
	return sp, err == nil, err
}

// AddCoinSequence records seq as an inscription carried by coinIndex.
func (s *Store) AddCoinSequence(txn *badger.Txn, coinIndex uint64, seq uint32) error {
	var coinBuf [8]byte
	binary.BigEndian.PutUint64(coinBuf[:], coinIndex)
	var seqBuf [4]byte
	binary.BigEndian.PutUint32(seqBuf[:], seq)
	return txn.Set(multiKey(prefixCoinToSeq, coinBuf[:], seqBuf[:]), nil)
}

// SequencesForCoin enumerates inscription sequence numbers carried by coinIndex.
func (s *Store) SequencesForCoin(txn *badger.Txn, coinIndex uint64) ([]uint32, error) {
	var coinBuf [8]byte
	binary.BigEndian.PutUint64(coinBuf[:], coinIndex)
	prefix := multiScanPrefix(prefixCoinToSeq, coinBuf[:])

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var seqs []uint32
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().Key()
		seqs = append(seqs, binary.BigEndian.Uint32(key[len(prefix):]))
	}
	return seqs, nil
}

// PutHomeInscription records seq at the given home-inscription ordinal
// position (the caller enforces the home_inscription_count cap by
// writing positions modulo the cap, so a new entry overwrites the
// oldest one).
func (s *Store) PutHomeInscription(txn *badger.Txn, position uint32, seq uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], seq)
	return txn.Set(u32Key(prefixHomeInscriptions, position), buf[:])
}

// DeleteHomeInscription removes the home-inscription entry at position.
func (s *Store) DeleteHomeInscription(txn *badger.Txn, position uint32) error {
	return txn.Delete(u32Key(prefixHomeInscriptions, position))
}

// HomeInscriptions enumerates all currently recorded home inscriptions
// in ordinal position order.
func (s *Store) HomeInscriptions(txn *badger.Txn) ([]uint32, error) {
	opts := badger.DefaultIteratorOptions
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := []byte{prefixHomeInscriptions}
	var seqs []uint32
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		err := item.Value(func(val []byte) error {
			seqs = append(seqs, binary.BigEndian.Uint32(val))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return seqs, nil
}

package kvstore

import (
	"encoding/binary"

	badger "github.com/dgraph-io/badger/v4"
)

// DNSEntry is the value stored for a registered "label.namespace" name,
// per spec.md §4.9: the creating inscription, its confirming height and
// timestamp, and optional address/avatar/reverse fields.
type DNSEntry struct {
	InscriptionID     InscriptionID
	InscriptionNumber int64
	Height            uint32
	Timestamp         uint32
	Address           string // empty if absent
	Avatar            string // empty if absent
	Reverse           bool
}

// EncodeDNSEntry serializes a DNSEntry to its on-disk blob form.
func EncodeDNSEntry(e DNSEntry) []byte {
	buf := make([]byte, 0, 64)

	packedID := e.InscriptionID.Pack()
	buf = append(buf, packedID[:]...)

	var signBuf [8]byte
	binary.BigEndian.PutUint64(signBuf[:], uint64(e.InscriptionNumber))
	buf = append(buf, signBuf[:]...)

	var u32buf [4]byte
	binary.BigEndian.PutUint32(u32buf[:], e.Height)
	buf = append(buf, u32buf[:]...)
	binary.BigEndian.PutUint32(u32buf[:], e.Timestamp)
	buf = append(buf, u32buf[:]...)

	if e.Address != "" {
		buf = append(buf, 1)
		buf = appendUvarint(buf, uint64(len(e.Address)))
		buf = append(buf, e.Address...)
	} else {
		buf = append(buf, 0)
	}

	if e.Avatar != "" {
		buf = append(buf, 1)
		buf = appendUvarint(buf, uint64(len(e.Avatar)))
		buf = append(buf, e.Avatar...)
	} else {
		buf = append(buf, 0)
	}

	if e.Reverse {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	return buf
}

// DecodeDNSEntry parses a DNSEntry from its on-disk blob form.
func DecodeDNSEntry(blob []byte) (DNSEntry, error) {
	var e DNSEntry
	r := &byteReader{b: blob}

	idBytes, err := r.take(36)
	if err != nil {
		return e, err
	}
	var packedID [36]byte
	copy(packedID[:], idBytes)
	e.InscriptionID = UnpackInscriptionID(packedID)

	signBytes, err := r.take(8)
	if err != nil {
		return e, err
	}
	e.InscriptionNumber = int64(binary.BigEndian.Uint64(signBytes))

	heightBytes, err := r.take(4)
	if err != nil {
		return e, err
	}
	e.Height = binary.BigEndian.Uint32(heightBytes)

	tsBytes, err := r.take(4)
	if err != nil {
		return e, err
	}
	e.Timestamp = binary.BigEndian.Uint32(tsBytes)

	hasAddress, err := r.byte_()
	if err != nil {
		return e, err
	}
	if hasAddress == 1 {
		n, err := r.uvarint()
		if err != nil {
			return e, err
		}
		addr, err := r.take(int(n))
		if err != nil {
			return e, err
		}
		e.Address = string(addr)
	}

	hasAvatar, err := r.byte_()
	if err != nil {
		return e, err
	}
	if hasAvatar == 1 {
		n, err := r.uvarint()
		if err != nil {
			return e, err
		}
		avatar, err := r.take(int(n))
		if err != nil {
			return e, err
		}
		e.Avatar = string(avatar)
	}

	reverse, err := r.byte_()
	if err != nil {
		return e, err
	}
	e.Reverse = reverse == 1

	return e, nil
}

// PutDNSName stores a name's entry. Callers must check HasDNSName first
// to honor first-seen-wins — this method unconditionally overwrites.
func (s *Store) PutDNSName(txn *badger.Txn, name string, entry DNSEntry) error {
	return txn.Set(stringKey(prefixDNSNameToEntry, name), EncodeDNSEntry(entry))
}

// GetDNSName retrieves a name's entry.
func (s *Store) GetDNSName(txn *badger.Txn, name string) (DNSEntry, bool, error) {
	item, err := txn.Get(stringKey(prefixDNSNameToEntry, name))
	if err == badger.ErrKeyNotFound {
		return DNSEntry{}, false, nil
	}
	if err != nil {
		return DNSEntry{}, false, err
	}
	var entry DNSEntry
	err = item.Value(func(val []byte) error {
		decoded, err := DecodeDNSEntry(val)
		if err != nil {
			return err
		}
		entry = decoded
		return nil
	})
	return entry, err == nil, err
}

// HasDNSName reports whether name is already registered, without
// decoding its entry.
func (s *Store) HasDNSName(txn *badger.Txn, name string) (bool, error) {
	_, err := txn.Get(stringKey(prefixDNSNameToEntry, name))
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AddDNSNamespaceName indexes name under namespace for listing.
func (s *Store) AddDNSNamespaceName(txn *badger.Txn, namespace, name string) error {
	return txn.Set(multiKey(prefixDNSNamespaceToNames, []byte(namespace), []byte(name)), nil)
}

// NamesInNamespace enumerates every name registered under namespace.
func (s *Store) NamesInNamespace(txn *badger.Txn, namespace string) ([]string, error) {
	prefix := multiScanPrefix(prefixDNSNamespaceToNames, []byte(namespace))
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var names []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().Key()
		names = append(names, string(key[len(prefix):]))
	}
	return names, nil
}

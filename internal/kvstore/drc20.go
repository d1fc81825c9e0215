package kvstore

import (
	badger "github.com/dgraph-io/badger/v4"
)

// The DRC-20 tables store JSON-encoded values, per spec.md §6; this
// package stays opaque to the token/balance/transfer shapes and leaves
// marshaling to internal/drc20, exposing only raw byte get/set/delete,
// the same boundary the teacher draws between internal/storage and its
// callers in internal/wallet.

// PutDRC20Token stores the JSON-encoded token record for a lowercase tick.
func (s *Store) PutDRC20Token(txn *badger.Txn, tick string, data []byte) error {
	return txn.Set(stringKey(prefixDRC20TickToToken, tick), data)
}

// GetDRC20Token retrieves the JSON-encoded token record for a lowercase tick.
func (s *Store) GetDRC20Token(txn *badger.Txn, tick string) ([]byte, bool, error) {
	item, err := txn.Get(stringKey(prefixDRC20TickToToken, tick))
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	val, err := item.ValueCopy(nil)
	return val, err == nil, err
}

func balanceKey(address, tick string) string {
	return address + "\t" + tick
}

// PutDRC20Available stores the JSON-encoded available balance for (address, tick).
func (s *Store) PutDRC20Available(txn *badger.Txn, address, tick string, data []byte) error {
	return txn.Set(stringKey(prefixDRC20Balance, balanceKey(address, tick)), data)
}

// GetDRC20Available retrieves the JSON-encoded available balance for (address, tick).
func (s *Store) GetDRC20Available(txn *badger.Txn, address, tick string) ([]byte, bool, error) {
	item, err := txn.Get(stringKey(prefixDRC20Balance, balanceKey(address, tick)))
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	val, err := item.ValueCopy(nil)
	return val, err == nil, err
}

// PutDRC20Transferable stores the JSON-encoded transferable balance for (address, tick).
func (s *Store) PutDRC20Transferable(txn *badger.Txn, address, tick string, data []byte) error {
	return txn.Set(stringKey(prefixDRC20Transferable, balanceKey(address, tick)), data)
}

// GetDRC20Transferable retrieves the JSON-encoded transferable balance for (address, tick).
func (s *Store) GetDRC20Transferable(txn *badger.Txn, address, tick string) ([]byte, bool, error) {
	item, err := txn.Get(stringKey(prefixDRC20Transferable, balanceKey(address, tick)))
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	val, err := item.ValueCopy(nil)
	return val, err == nil, err
}

// PutDRC20PendingTransfer stores the JSON-encoded pending transfer at outpoint.
func (s *Store) PutDRC20PendingTransfer(txn *badger.Txn, op OutPoint, data []byte) error {
	return txn.Set(outpointKey(prefixDRC20OutpointXfer, op), data)
}

// GetDRC20PendingTransfer retrieves the JSON-encoded pending transfer at outpoint.
func (s *Store) GetDRC20PendingTransfer(txn *badger.Txn, op OutPoint) ([]byte, bool, error) {
	item, err := txn.Get(outpointKey(prefixDRC20OutpointXfer, op))
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	val, err := item.ValueCopy(nil)
	return val, err == nil, err
}

// DeleteDRC20PendingTransfer removes the pending transfer at outpoint.
func (s *Store) DeleteDRC20PendingTransfer(txn *badger.Txn, op OutPoint) error {
	return txn.Delete(outpointKey(prefixDRC20OutpointXfer, op))
}

package kvstore

import (
	"os"
	"testing"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/dogeindex/dogeindexer/internal/coinrange"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "kvstore-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := Open(Config{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestHeaderPutGet(t *testing.T) {
	store := newTestStore(t)

	var header [80]byte
	header[0] = 0xAB

	err := store.WithWriteTxn(func(txn *badger.Txn) error {
		return store.PutHeader(txn, 100, header)
	})
	if err != nil {
		t.Fatalf("PutHeader: %v", err)
	}

	var got [80]byte
	var found bool
	err = store.WithReadTxn(func(txn *badger.Txn) error {
		var err error
		got, found, err = store.GetHeader(txn, 100)
		return err
	})
	if err != nil {
		t.Fatalf("GetHeader: %v", err)
	}
	if !found {
		t.Fatal("expected header to be found")
	}
	if got != header {
		t.Errorf("header mismatch")
	}
}

func TestUTXOPutGetDelete(t *testing.T) {
	store := newTestStore(t)

	op := OutPoint{Index: 1}
	op.TxID[0] = 0x01

	entry := UTXOEntry{
		Value:      5000000000,
		Script:     []byte{0x76, 0xa9, 0x14},
		CoinRanges: []coinrange.Range{{Start: 0, Delta: 5000000000}},
	}

	err := store.WithWriteTxn(func(txn *badger.Txn) error {
		return store.PutUTXO(txn, op, entry)
	})
	if err != nil {
		t.Fatalf("PutUTXO: %v", err)
	}

	var got UTXOEntry
	var found bool
	err = store.WithReadTxn(func(txn *badger.Txn) error {
		var err error
		got, found, err = store.GetUTXO(txn, op)
		return err
	})
	if err != nil {
		t.Fatalf("GetUTXO: %v", err)
	}
	if !found {
		t.Fatal("expected utxo to be found")
	}
	if got.Value != entry.Value {
		t.Errorf("Value = %d, want %d", got.Value, entry.Value)
	}
	if len(got.CoinRanges) != 1 || got.CoinRanges[0] != entry.CoinRanges[0] {
		t.Errorf("CoinRanges = %+v, want %+v", got.CoinRanges, entry.CoinRanges)
	}

	err = store.WithWriteTxn(func(txn *badger.Txn) error {
		return store.DeleteUTXO(txn, op)
	})
	if err != nil {
		t.Fatalf("DeleteUTXO: %v", err)
	}

	err = store.WithReadTxn(func(txn *badger.Txn) error {
		_, found, err := store.GetUTXO(txn, op)
		if err != nil {
			return err
		}
		if found {
			t.Error("expected utxo to be gone after delete")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("GetUTXO after delete: %v", err)
	}
}

func TestScriptIndexing(t *testing.T) {
	store := newTestStore(t)

	script := []byte{0x76, 0xa9, 0x14, 0xde, 0xad}
	op1 := OutPoint{Index: 1}
	op2 := OutPoint{Index: 2}

	err := store.WithWriteTxn(func(txn *badger.Txn) error {
		if err := store.IndexScriptOutpoint(txn, script, op1); err != nil {
			return err
		}
		return store.IndexScriptOutpoint(txn, script, op2)
	})
	if err != nil {
		t.Fatalf("index: %v", err)
	}

	var outs []OutPoint
	err = store.WithReadTxn(func(txn *badger.Txn) error {
		var err error
		outs, err = store.OutpointsForScript(txn, script)
		return err
	})
	if err != nil {
		t.Fatalf("OutpointsForScript: %v", err)
	}
	if len(outs) != 2 {
		t.Fatalf("len(outs) = %d, want 2", len(outs))
	}

	err = store.WithWriteTxn(func(txn *badger.Txn) error {
		return store.UnindexScriptOutpoint(txn, script, op1)
	})
	if err != nil {
		t.Fatalf("unindex: %v", err)
	}

	err = store.WithReadTxn(func(txn *badger.Txn) error {
		var err error
		outs, err = store.OutpointsForScript(txn, script)
		return err
	})
	if err != nil {
		t.Fatalf("OutpointsForScript after unindex: %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("len(outs) = %d, want 1 after unindex", len(outs))
	}
}

func TestStatisticsIncrement(t *testing.T) {
	store := newTestStore(t)

	err := store.WithWriteTxn(func(txn *badger.Txn) error {
		if err := store.IncrementStatistic(txn, StatisticCursedInscriptions, 3); err != nil {
			return err
		}
		return store.IncrementStatistic(txn, StatisticCursedInscriptions, 2)
	})
	if err != nil {
		t.Fatalf("increment: %v", err)
	}

	var got uint64
	err = store.WithReadTxn(func(txn *badger.Txn) error {
		var err error
		got, err = store.GetStatistic(txn, StatisticCursedInscriptions)
		return err
	})
	if err != nil {
		t.Fatalf("GetStatistic: %v", err)
	}
	if got != 5 {
		t.Errorf("statistic = %d, want 5", got)
	}
}

func TestSavepointCreateAndRetention(t *testing.T) {
	store := newTestStore(t)
	dir, err := os.MkdirTemp("", "savepoints-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	mgr, err := NewSavepointManager(store, dir, 2, nil)
	if err != nil {
		t.Fatalf("NewSavepointManager: %v", err)
	}

	for h := uint32(1); h <= 3; h++ {
		if _, err := mgr.Create(h); err != nil {
			t.Fatalf("Create(%d): %v", h, err)
		}
	}

	savepoints, err := mgr.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(savepoints) != 2 {
		t.Fatalf("len(savepoints) = %d, want 2 after retention", len(savepoints))
	}
	if savepoints[0].Height != 2 || savepoints[1].Height != 3 {
		t.Errorf("expected heights [2,3], got %+v", savepoints)
	}
}

func TestUTXOEntryEncodeDecodeRoundtrip(t *testing.T) {
	entry := UTXOEntry{
		Value:      123456,
		Script:     []byte{0xde, 0xad, 0xbe, 0xef},
		CoinRanges: []coinrange.Range{{Start: 10, Delta: 5}, {Start: 100, Delta: 20}},
		Inscriptions: []InscriptionBinding{
			{SequenceNumber: 7, Offset: 3},
		},
	}

	encoded := EncodeUTXOEntry(entry)
	decoded, err := DecodeUTXOEntry(encoded)
	if err != nil {
		t.Fatalf("DecodeUTXOEntry: %v", err)
	}

	if decoded.Value != entry.Value {
		t.Errorf("Value = %d, want %d", decoded.Value, entry.Value)
	}
	if string(decoded.Script) != string(entry.Script) {
		t.Errorf("Script mismatch")
	}
	if len(decoded.CoinRanges) != len(entry.CoinRanges) {
		t.Fatalf("CoinRanges length = %d, want %d", len(decoded.CoinRanges), len(entry.CoinRanges))
	}
	for i := range entry.CoinRanges {
		if decoded.CoinRanges[i] != entry.CoinRanges[i] {
			t.Errorf("CoinRanges[%d] = %+v, want %+v", i, decoded.CoinRanges[i], entry.CoinRanges[i])
		}
	}
	if len(decoded.Inscriptions) != 1 || decoded.Inscriptions[0] != entry.Inscriptions[0] {
		t.Errorf("Inscriptions = %+v, want %+v", decoded.Inscriptions, entry.Inscriptions)
	}
}

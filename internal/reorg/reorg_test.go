package reorg

import (
	"os"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/dogeindex/dogeindexer/internal/kvstore"
)

func newTestManager(t *testing.T) (*Manager, *kvstore.Store) {
	t.Helper()
	dataDir, err := os.MkdirTemp("", "reorg-test-data-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dataDir) })
	store, err := kvstore.Open(kvstore.Config{Dir: dataDir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	spDir, err := os.MkdirTemp("", "reorg-test-savepoints-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(spDir) })
	savepoints, err := kvstore.NewSavepointManager(store, spDir, 10, nil)
	if err != nil {
		t.Fatalf("NewSavepointManager: %v", err)
	}

	return New(store, savepoints, nil), store
}

func putHeader(t *testing.T, store *kvstore.Store, height uint32, tag byte) [80]byte {
	t.Helper()
	var header [80]byte
	header[0] = tag
	err := store.WithWriteTxn(func(txn *badger.Txn) error {
		return store.PutHeader(txn, height, header)
	})
	if err != nil {
		t.Fatalf("PutHeader: %v", err)
	}
	return header
}

func TestDetectNoForkWhenPrevBlockMatches(t *testing.T) {
	mgr, store := newTestManager(t)
	header := putHeader(t, store, 99, 0x01)
	wantPrev := chainhash.DoubleHashH(header[:])

	var forked bool
	err := store.WithReadTxn(func(txn *badger.Txn) error {
		var err error
		forked, err = mgr.Detect(txn, 100, wantPrev)
		return err
	})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if forked {
		t.Error("Detect = true, want false for matching prevBlock")
	}
}

func TestDetectForkWhenPrevBlockDiverges(t *testing.T) {
	mgr, store := newTestManager(t)
	putHeader(t, store, 99, 0x01)

	var forked bool
	err := store.WithReadTxn(func(txn *badger.Txn) error {
		var err error
		forked, err = mgr.Detect(txn, 100, chainhash.Hash{0xff})
		return err
	})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if !forked {
		t.Error("Detect = false, want true for diverging prevBlock")
	}
}

func TestDetectNoForkAtGenesis(t *testing.T) {
	mgr, store := newTestManager(t)
	var forked bool
	err := store.WithReadTxn(func(txn *badger.Txn) error {
		var err error
		forked, err = mgr.Detect(txn, 0, chainhash.Hash{})
		return err
	})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if forked {
		t.Error("Detect = true at height 0, want false")
	}
}

func TestRecoverRestoresNewestSavepointAtOrBelowForkHeight(t *testing.T) {
	mgr, store := newTestManager(t)

	putHeader(t, store, 50, 0x01)
	if _, err := mgr.savepoints.Create(50); err != nil {
		t.Fatalf("Create savepoint at 50: %v", err)
	}

	putHeader(t, store, 75, 0x02)
	if _, err := mgr.savepoints.Create(75); err != nil {
		t.Fatalf("Create savepoint at 75: %v", err)
	}

	putHeader(t, store, 90, 0x03)

	restored, err := mgr.Recover(80)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if restored != 75 {
		t.Errorf("Recover landed on height %d, want 75", restored)
	}
}

func TestRecoverUnrecoverableWhenNoSavepointOldEnough(t *testing.T) {
	mgr, store := newTestManager(t)
	putHeader(t, store, 50, 0x01)
	if _, err := mgr.savepoints.Create(50); err != nil {
		t.Fatalf("Create savepoint: %v", err)
	}

	_, err := mgr.Recover(10)
	if err != ErrUnrecoverable {
		t.Fatalf("Recover error = %v, want ErrUnrecoverable", err)
	}
}

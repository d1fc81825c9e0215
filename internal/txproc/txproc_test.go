package txproc

import (
	"os"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/dogeindex/dogeindexer/internal/blkindex"
	"github.com/dogeindex/dogeindexer/internal/chain"
	"github.com/dogeindex/dogeindexer/internal/coinrange"
	"github.com/dogeindex/dogeindexer/internal/config"
	"github.com/dogeindex/dogeindexer/internal/drc20"
	"github.com/dogeindex/dogeindexer/internal/dnsreg"
	"github.com/dogeindex/dogeindexer/internal/events"
	"github.com/dogeindex/dogeindexer/internal/inscriptions"
	"github.com/dogeindex/dogeindexer/internal/kvstore"
	"github.com/dogeindex/dogeindexer/internal/subsidy"
)

var zeroHash chainhash.Hash

func newTestStore(t *testing.T) *kvstore.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "txproc-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	store, err := kvstore.Open(kvstore.Config{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestProcessor(store *kvstore.Store, flags func(*config.IndexingConfig)) *Processor {
	insc := inscriptions.New(store, events.NewBus(), 8, 4_600_000)
	d := drc20.New(store, chain.Mainnet)
	dns := dnsreg.New(store, chain.Mainnet)

	cfg := config.IndexingConfig{
		IndexCoins:        true,
		IndexAddresses:    true,
		IndexInscriptions: true,
		IndexDRC20:        true,
		IndexDNS:          true,
	}
	if flags != nil {
		flags(&cfg)
	}
	return New(store, insc, d, dns, cfg)
}

func inscriptionScript(t *testing.T, contentType string, body []byte) []byte {
	t.Helper()
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_FALSE)
	b.AddOp(txscript.OP_IF)
	b.AddData([]byte("ord"))
	b.AddFullData([]byte{1})
	b.AddData([]byte(contentType))
	b.AddFullData([]byte{0})
	b.AddData(body)
	b.AddOp(txscript.OP_ENDIF)
	script, err := b.Script()
	if err != nil {
		t.Fatalf("Script: %v", err)
	}
	return script
}

// coinbaseTx builds a height-1 coinbase whose single output claims the
// entire newly minted subsidy, leaving no leftover for the lost-coin
// sink when that's all a block contains.
func coinbaseTx(t *testing.T, height uint64, script []byte) *wire.MsgTx {
	t.Helper()
	amount, err := subsidy.AtHeight(height)
	if err != nil {
		t.Fatalf("subsidy.AtHeight(%d): %v", height, err)
	}
	tx := wire.NewMsgTx(1)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&zeroHash, 0xFFFFFFFF), script, nil))
	tx.AddTxOut(wire.NewTxOut(int64(amount), nil))
	return tx
}

// TestProcessBlockAssignsCoinbaseOutputsAndNoFees covers a block with
// only a coinbase transaction: its newly minted coin-range tape should
// be assigned fully to its own outputs with nothing left to merge into
// the lost-coin sink.
func TestProcessBlockAssignsCoinbaseOutputsAndNoFees(t *testing.T) {
	store := newTestStore(t)
	p := newTestProcessor(store, nil)

	block := &blkindex.Block{Transactions: []*wire.MsgTx{coinbaseTx(t, 1, []byte{0x51})}}

	err := store.DB().Update(func(txn *badger.Txn) error {
		return p.ProcessBlock(txn, 1, 0, block)
	})
	if err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}

	err = store.DB().View(func(txn *badger.Txn) error {
		_, ok, err := store.GetUTXO(txn, kvstore.LostCoinSink)
		if err != nil {
			t.Fatalf("GetUTXO lost sink: %v", err)
		}
		if ok {
			t.Error("lost-coin sink should not exist when the coinbase has no leftover")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

// TestProcessBlockMergesUnclaimedFeeIntoLostSink spends a prior output
// for less than its full value in a non-coinbase transaction, so the
// fee's coin range ends up in the coinbase's leftover tape and, since
// the coinbase's own outputs don't absorb it, in the lost-coin sink.
func TestProcessBlockMergesUnclaimedFeeIntoLostSink(t *testing.T) {
	store := newTestStore(t)
	p := newTestProcessor(store, nil)

	fundingOutpoint := kvstore.OutPoint{TxID: [32]byte{0xAA}, Index: 0}
	err := store.DB().Update(func(txn *badger.Txn) error {
		return store.PutUTXO(txn, fundingOutpoint, kvstore.UTXOEntry{
			Value:      1000,
			CoinRanges: []coinrange.Range{{Start: 0, Delta: 1000}},
		})
	})
	if err != nil {
		t.Fatalf("seed funding utxo: %v", err)
	}

	spend := wire.NewMsgTx(1)
	spend.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: chainhash.Hash(fundingOutpoint.TxID), Index: 0}, nil, nil))
	spend.AddTxOut(wire.NewTxOut(900, nil)) // 100 koinu fee

	block := &blkindex.Block{Transactions: []*wire.MsgTx{coinbaseTx(t, 1, []byte{0x51}), spend}}

	err = store.DB().Update(func(txn *badger.Txn) error {
		return p.ProcessBlock(txn, 1, 0, block)
	})
	if err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}

	err = store.DB().View(func(txn *badger.Txn) error {
		sink, ok, err := store.GetUTXO(txn, kvstore.LostCoinSink)
		if err != nil {
			t.Fatalf("GetUTXO lost sink: %v", err)
		}
		if !ok {
			t.Fatal("expected lost-coin sink entry after unclaimed fee")
		}
		if sink.Value != 100 {
			t.Errorf("lost sink value = %d, want 100", sink.Value)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

// TestProcessBlockCreatesInscriptionFromCoinbaseEnvelope exercises the
// coinbase-processed-last path creating its own inscription directly,
// independent of any carried-forward flotsam from other transactions.
func TestProcessBlockCreatesInscriptionFromCoinbaseEnvelope(t *testing.T) {
	store := newTestStore(t)
	p := newTestProcessor(store, func(c *config.IndexingConfig) {
		c.FirstInscriptionHeight = 0
	})

	cb := coinbaseTx(t, 1, inscriptionScript(t, "text/plain", []byte("gm")))

	block := &blkindex.Block{Transactions: []*wire.MsgTx{cb}}

	err := store.DB().Update(func(txn *badger.Txn) error {
		return p.ProcessBlock(txn, 1, 0, block)
	})
	if err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}

	err = store.DB().View(func(txn *badger.Txn) error {
		entry, ok, err := store.GetInscriptionEntry(txn, 0)
		if err != nil || !ok {
			t.Fatalf("GetInscriptionEntry(0): ok=%v err=%v", ok, err)
		}
		if entry.InscriptionNumber != 0 {
			t.Errorf("InscriptionNumber = %d, want 0", entry.InscriptionNumber)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

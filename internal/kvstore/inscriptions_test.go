package kvstore

import (
	badger "github.com/dgraph-io/badger/v4"
	"testing"
)

func TestInscriptionEntryEncodeDecodeRoundtrip(t *testing.T) {
	sat := uint64(12345)
	entry := InscriptionEntry{
		Charms:            3,
		Fee:               0,
		Height:            100,
		ID:                InscriptionID{TxID: [32]byte{1, 2, 3}, EnvelopeIndex: 1},
		InscriptionNumber: -5,
		Parents:           []uint32{1, 2, 3},
		Sat:               &sat,
		SequenceNumber:    42,
		Timestamp:         1_600_000_000,
	}

	blob := EncodeInscriptionEntry(entry)
	decoded, err := DecodeInscriptionEntry(blob)
	if err != nil {
		t.Fatalf("DecodeInscriptionEntry: %v", err)
	}
	if decoded.InscriptionNumber != -5 {
		t.Errorf("InscriptionNumber = %d, want -5", decoded.InscriptionNumber)
	}
	if decoded.Sat == nil || *decoded.Sat != sat {
		t.Errorf("Sat = %v, want %d", decoded.Sat, sat)
	}
	if len(decoded.Parents) != 3 {
		t.Errorf("Parents = %v, want 3 entries", decoded.Parents)
	}
	if decoded.SequenceNumber != 42 {
		t.Errorf("SequenceNumber = %d, want 42", decoded.SequenceNumber)
	}
}

func TestInscriptionTablesRoundtrip(t *testing.T) {
	store := newTestStore(t)

	id := InscriptionID{TxID: [32]byte{9}, EnvelopeIndex: 0}
	entry := InscriptionEntry{Height: 10, ID: id, SequenceNumber: 0, InscriptionNumber: 0}
	sp := Satpoint{OutPoint: OutPoint{TxID: [32]byte{9}, Index: 0}, Offset: 0}

	err := store.db.Update(func(txn *badger.Txn) error {
		if err := store.PutInscriptionEntry(txn, 0, entry); err != nil {
			return err
		}
		if err := store.PutInscriptionIDSeq(txn, id, 0); err != nil {
			return err
		}
		if err := store.PutSeqSatpoint(txn, 0, sp); err != nil {
			return err
		}
		if err := store.AddChild(txn, 0, 1); err != nil {
			return err
		}
		return store.AddCoinSequence(txn, 500, 0)
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = store.db.View(func(txn *badger.Txn) error {
		got, ok, err := store.GetInscriptionEntry(txn, 0)
		if err != nil || !ok {
			t.Fatalf("GetInscriptionEntry: ok=%v err=%v", ok, err)
		}
		if got.Height != 10 {
			t.Errorf("Height = %d, want 10", got.Height)
		}

		seq, ok, err := store.GetInscriptionIDSeq(txn, id)
		if err != nil || !ok || seq != 0 {
			t.Errorf("GetInscriptionIDSeq: seq=%d ok=%v err=%v", seq, ok, err)
		}

		gotSP, ok, err := store.GetSeqSatpoint(txn, 0)
		if err != nil || !ok || gotSP != sp {
			t.Errorf("GetSeqSatpoint: %+v ok=%v err=%v", gotSP, ok, err)
		}

		children, err := store.ChildrenOf(txn, 0)
		if err != nil || len(children) != 1 || children[0] != 1 {
			t.Errorf("ChildrenOf: %v err=%v", children, err)
		}

		seqs, err := store.SequencesForCoin(txn, 500)
		if err != nil || len(seqs) != 1 || seqs[0] != 0 {
			t.Errorf("SequencesForCoin: %v err=%v", seqs, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

package blkindex

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/btcsuite/btcd/wire"
)

func buildRawBlock(t *testing.T, version int32) []byte {
	t.Helper()

	var buf bytes.Buffer
	var versionBuf [4]byte
	binary.LittleEndian.PutUint32(versionBuf[:], uint32(version))
	buf.Write(versionBuf[:])
	buf.Write(make([]byte, 32)) // prev block
	buf.Write(make([]byte, 32)) // merkle root
	buf.Write(make([]byte, 4))  // timestamp
	buf.Write(make([]byte, 4))  // bits
	buf.Write(make([]byte, 4))  // nonce

	// One coinbase-shaped transaction, no inputs/outputs, to keep the
	// fixture minimal.
	tx := wire.NewMsgTx(1)
	var txBuf bytes.Buffer
	if err := tx.Serialize(&txBuf); err != nil {
		t.Fatalf("serialize tx: %v", err)
	}

	buf.Write(encodeVarint(1)) // tx count
	buf.Write(txBuf.Bytes())

	return buf.Bytes()
}

func TestDecodeBlockWithoutAuxPow(t *testing.T) {
	raw := buildRawBlock(t, 1)

	block, err := DecodeBlock(raw)
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}
	if block.Header.AuxPow != nil {
		t.Error("expected no AuxPow for a plain version")
	}
	if len(block.Transactions) != 1 {
		t.Fatalf("len(Transactions) = %d, want 1", len(block.Transactions))
	}
}

func TestHeaderHashIsDeterministic(t *testing.T) {
	raw := buildRawBlock(t, 1)
	block, err := DecodeBlock(raw)
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}

	h1 := block.Header.Hash()
	h2 := block.Header.Hash()
	if h1 != h2 {
		t.Error("Hash() should be deterministic")
	}
}

package blkindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// versionAuxPow is the bit Dogecoin (and other AuxPoW-merged-mined
// chains) sets in a block header's version field to signal that a
// parent-chain AuxPow proof follows the header fields, per Dogecoin
// Core's src/primitives/pureheader.h.
const versionAuxPow = 1 << 8

// Header is a Dogecoin block header: the 80-byte Bitcoin-shaped fields
// plus, when merge-mining is active, an AuxPow payload proving the
// block was mined as an auxiliary chain of a parent (Litecoin-family)
// chain.
type Header struct {
	Version    int32
	PrevBlock  chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  uint32
	Bits       uint32
	Nonce      uint32
	AuxPow     *AuxPow // nil unless Version&versionAuxPow is set
}

// AuxPow is Dogecoin's merge-mining proof: a parent-chain coinbase
// transaction plus Merkle branches tying it to both the parent block's
// transaction tree and (for chains merge-mining several auxiliary
// chains at once) the auxiliary-chain tree, and the parent block header
// itself.
type AuxPow struct {
	CoinbaseTx        *wire.MsgTx
	ParentBlockHash   chainhash.Hash
	CoinbaseBranch    []chainhash.Hash
	CoinbaseIndex     uint32
	BlockchainBranch  []chainhash.Hash
	BlockchainIndex   uint32
	ParentBlockHeader ParentHeader
}

// ParentHeader is the 80-byte header of the parent chain's block that
// contains the merge-mined coinbase.
type ParentHeader struct {
	Version    int32
	PrevBlock  chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  uint32
	Bits       uint32
	Nonce      uint32
}

// Block is a fully decoded Dogecoin block: its header (with AuxPow if
// present) and transactions.
type Block struct {
	Header       Header
	Transactions []*wire.MsgTx
}

// DecodeBlock parses raw serialized block bytes (as read from a
// block{NNNNN}.dat file) into a Block, handling Dogecoin's optional
// AuxPow header extension that btcd/wire's stock block decoder doesn't
// know about.
func DecodeBlock(raw []byte) (*Block, error) {
	r := bytes.NewReader(raw)

	header, err := decodeHeader(r)
	if err != nil {
		return nil, fmt.Errorf("blkindex: decode header: %w", err)
	}

	txCount, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, fmt.Errorf("blkindex: read tx count: %w", err)
	}

	txs := make([]*wire.MsgTx, 0, txCount)
	for i := uint64(0); i < txCount; i++ {
		// Dogecoin has no segregated witness: decode the legacy format.
		tx := &wire.MsgTx{}
		if err := tx.DeserializeNoWitness(r); err != nil {
			return nil, fmt.Errorf("blkindex: decode tx %d: %w", i, err)
		}
		txs = append(txs, tx)
	}

	return &Block{Header: header, Transactions: txs}, nil
}

func decodeHeader(r io.Reader) (Header, error) {
	var h Header

	var fixed [80]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return h, fmt.Errorf("read fixed header: %w", err)
	}
	h.Version = int32(binary.LittleEndian.Uint32(fixed[0:4]))
	copy(h.PrevBlock[:], reverse32(fixed[4:36]))
	copy(h.MerkleRoot[:], reverse32(fixed[36:68]))
	h.Timestamp = binary.LittleEndian.Uint32(fixed[68:72])
	h.Bits = binary.LittleEndian.Uint32(fixed[72:76])
	h.Nonce = binary.LittleEndian.Uint32(fixed[76:80])

	if h.Version&versionAuxPow != 0 {
		auxpow, err := decodeAuxPow(r)
		if err != nil {
			return h, fmt.Errorf("decode auxpow: %w", err)
		}
		h.AuxPow = auxpow
	}

	return h, nil
}

func decodeAuxPow(r io.Reader) (*AuxPow, error) {
	var a AuxPow

	tx := &wire.MsgTx{}
	if err := tx.Deserialize(r); err != nil {
		return nil, fmt.Errorf("coinbase tx: %w", err)
	}
	a.CoinbaseTx = tx

	var parentHash [32]byte
	if _, err := io.ReadFull(r, parentHash[:]); err != nil {
		return nil, fmt.Errorf("parent block hash: %w", err)
	}
	copy(a.ParentBlockHash[:], reverse32(parentHash[:]))

	branch, index, err := decodeMerkleBranch(r)
	if err != nil {
		return nil, fmt.Errorf("coinbase branch: %w", err)
	}
	a.CoinbaseBranch = branch
	a.CoinbaseIndex = index

	branch, index, err = decodeMerkleBranch(r)
	if err != nil {
		return nil, fmt.Errorf("blockchain branch: %w", err)
	}
	a.BlockchainBranch = branch
	a.BlockchainIndex = index

	var parentFixed [80]byte
	if _, err := io.ReadFull(r, parentFixed[:]); err != nil {
		return nil, fmt.Errorf("parent header: %w", err)
	}
	a.ParentBlockHeader.Version = int32(binary.LittleEndian.Uint32(parentFixed[0:4]))
	copy(a.ParentBlockHeader.PrevBlock[:], reverse32(parentFixed[4:36]))
	copy(a.ParentBlockHeader.MerkleRoot[:], reverse32(parentFixed[36:68]))
	a.ParentBlockHeader.Timestamp = binary.LittleEndian.Uint32(parentFixed[68:72])
	a.ParentBlockHeader.Bits = binary.LittleEndian.Uint32(parentFixed[72:76])
	a.ParentBlockHeader.Nonce = binary.LittleEndian.Uint32(parentFixed[76:80])

	return &a, nil
}

func decodeMerkleBranch(r io.Reader) ([]chainhash.Hash, uint32, error) {
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("branch count: %w", err)
	}

	branch := make([]chainhash.Hash, 0, count)
	for i := uint64(0); i < count; i++ {
		var raw [32]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return nil, 0, fmt.Errorf("branch hash %d: %w", i, err)
		}
		var h chainhash.Hash
		copy(h[:], reverse32(raw[:]))
		branch = append(branch, h)
	}

	var indexBuf [4]byte
	if _, err := io.ReadFull(r, indexBuf[:]); err != nil {
		return nil, 0, fmt.Errorf("branch index: %w", err)
	}
	return branch, binary.LittleEndian.Uint32(indexBuf[:]), nil
}

// reverse32 byte-reverses a 32-byte hash, since chainhash.Hash stores
// hashes in reversed (human-display / big-endian-looking) byte order
// while the wire format is little-endian internal byte order.
func reverse32(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// Hash returns the block header's double-SHA256 hash (the value used as
// PrevBlock by the next header), computed over the fixed 80-byte
// Bitcoin-shaped fields only — AuxPow, when present, is never part of
// the hashed header.
func (h Header) Hash() chainhash.Hash {
	buf := h.Raw()
	return chainhash.DoubleHashH(buf[:])
}

// Raw renders the header's fixed 80-byte Bitcoin-shaped fields in wire
// byte order, the same form internal/kvstore.Store.PutHeader persists
// and Hash hashes — AuxPow is never part of it.
func (h Header) Raw() [80]byte {
	var buf [80]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Version))
	copy(buf[4:36], reverse32(h.PrevBlock[:]))
	copy(buf[36:68], reverse32(h.MerkleRoot[:]))
	binary.LittleEndian.PutUint32(buf[68:72], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[72:76], h.Bits)
	binary.LittleEndian.PutUint32(buf[76:80], h.Nonce)
	return buf
}

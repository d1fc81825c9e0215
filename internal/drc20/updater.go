// Package drc20 implements the DRC-20 fungible-token meta-protocol
// updater of spec.md §4.8: a two-phase per-transaction state machine
// (complete pending transfers, then apply deploy/mint/transfer
// envelopes) built directly on internal/kvstore's raw-bytes DRC-20
// tables and internal/envelope's parsed envelope bodies.
package drc20

import (
	"math/big"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/btcsuite/btcd/wire"

	"github.com/dogeindex/dogeindexer/internal/address"
	"github.com/dogeindex/dogeindexer/internal/chain"
	"github.com/dogeindex/dogeindexer/internal/envelope"
	"github.com/dogeindex/dogeindexer/internal/kvstore"
)

// Updater applies DRC-20 state transitions against a kvstore.Store
// within an already-open write transaction.
type Updater struct {
	store   *kvstore.Store
	network chain.Network
}

// New constructs an Updater.
func New(store *kvstore.Store, network chain.Network) *Updater {
	return &Updater{store: store, network: network}
}

func toKVOutPoint(o wire.OutPoint) kvstore.OutPoint {
	var txid [32]byte
	copy(txid[:], o.Hash[:])
	return kvstore.OutPoint{TxID: txid, Index: o.Index}
}

// CompletePendingTransfers runs phase 1 of spec.md §4.8 for every input
// of tx: if the previous outpoint has a pending DRC-20 transfer, credit
// the recipient (tx.TxOut[0]'s address) and debit the sender's
// transferable balance, then remove the pending-transfer entry.
func (u *Updater) CompletePendingTransfers(txn *badger.Txn, tx *wire.MsgTx) error {
	for _, in := range tx.TxIn {
		prevOut := toKVOutPoint(in.PreviousOutPoint)

		raw, ok, err := u.store.GetDRC20PendingTransfer(txn, prevOut)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		pending, err := UnmarshalPendingTransfer(raw)
		if err != nil {
			// Malformed stored payload is an invariant violation, not a
			// protocol-payload error; but we tolerate it defensively by
			// dropping the stale entry rather than aborting the block.
			if delErr := u.store.DeleteDRC20PendingTransfer(txn, prevOut); delErr != nil {
				return delErr
			}
			continue
		}

		amount := mustParseBigInt(pending.Amount)

		if err := u.adjustTransferable(txn, pending.FromAddress, pending.Tick, new(big.Int).Neg(amount)); err != nil {
			return err
		}

		if len(tx.TxOut) > 0 {
			recipientAddr, kind := address.FromScriptPubKey(tx.TxOut[0].PkScript, u.network)
			if kind != address.KindUnknown {
				if err := u.adjustAvailable(txn, recipientAddr, pending.Tick, amount); err != nil {
					return err
				}
			}
			// Unknown recipient script: amount is burned, no credit.
		}

		if err := u.store.DeleteDRC20PendingTransfer(txn, prevOut); err != nil {
			return err
		}
	}
	return nil
}

// ApplyEnvelope runs phase 2 of spec.md §4.8 for a single envelope
// parsed from tx: if its body is a DRC-20 JSON message, apply the
// deploy/mint/transfer rule it names. txEnvelopeIndex is the
// envelope's position across the whole transaction (not just its
// input), since the "associated output" for an envelope at index i is
// tx.TxOut[i].
func (u *Updater) ApplyEnvelope(txn *badger.Txn, height, timestamp uint32, tx *wire.MsgTx, txEnvelopeIndex int, env envelope.Envelope, inscriptionID string) error {
	m, ok := parseMessage(env.Body)
	if !ok {
		return nil
	}

	var associatedAddress string
	if txEnvelopeIndex < len(tx.TxOut) {
		addr, kind := address.FromScriptPubKey(tx.TxOut[txEnvelopeIndex].PkScript, u.network)
		if kind != address.KindUnknown {
			associatedAddress = addr
		}
	}

	switch m.Op {
	case "deploy":
		return u.applyDeploy(txn, height, timestamp, m, associatedAddress, inscriptionID)
	case "mint":
		return u.applyMint(txn, m, associatedAddress)
	case "transfer":
		return u.applyTransfer(txn, tx, txEnvelopeIndex, m, associatedAddress)
	default:
		return nil
	}
}

func (u *Updater) applyDeploy(txn *badger.Txn, height, timestamp uint32, m message, deployer, inscriptionID string) error {
	if m.Tick == "" || m.Max == "" {
		return nil
	}
	tick := NormalizeTick(m.Tick)
	if len(tick) != 4 {
		return nil
	}

	_, existing, err := u.store.GetDRC20Token(txn, tick)
	if err != nil {
		return err
	}
	if existing {
		// First deploy per lowercase tick wins; silently ignore.
		return nil
	}

	decimals := uint8(8)
	if m.Decimals != nil {
		decimals = *m.Decimals
	}
	if decimals > 18 {
		decimals = 18
	}

	maxSupply, err := ParseAmount(string(m.Max), decimals)
	if err != nil || maxSupply.Sign() <= 0 {
		return nil
	}

	mintLimit := maxSupply
	if m.Limit != "" {
		mintLimit, err = ParseAmount(string(m.Limit), decimals)
		if err != nil || mintLimit.Sign() <= 0 {
			return nil
		}
	}

	token := Token{
		TickLowercase:     tick,
		OriginalTick:      m.Tick,
		MaxSupply:         maxSupply.String(),
		MintLimit:         mintLimit.String(),
		Decimals:          decimals,
		Minted:            "0",
		MintCount:         0,
		DeployInscription: inscriptionID,
		DeployHeight:      height,
		DeployTimestamp:   timestamp,
		DeployerAddress:   deployer,
	}
	data, err := MarshalToken(token)
	if err != nil {
		return err
	}
	return u.store.PutDRC20Token(txn, tick, data)
}

func (u *Updater) applyMint(txn *badger.Txn, m message, recipient string) error {
	if m.Tick == "" || m.Amount == "" || recipient == "" {
		return nil
	}
	tick := NormalizeTick(m.Tick)

	raw, ok, err := u.store.GetDRC20Token(txn, tick)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	token, err := UnmarshalToken(raw)
	if err != nil {
		return nil
	}

	minted := token.minted()
	maxSupply := token.maxSupply()
	if minted.Cmp(maxSupply) >= 0 {
		return nil
	}

	amt, err := ParseAmount(string(m.Amount), token.Decimals)
	if err != nil || amt.Sign() == 0 {
		return nil
	}
	if amt.Cmp(token.mintLimit()) > 0 {
		return nil
	}

	remaining := new(big.Int).Sub(maxSupply, minted)
	credited := amt
	if credited.Cmp(remaining) > 0 {
		credited = remaining
	}

	token.Minted = new(big.Int).Add(minted, credited).String()
	token.MintCount++
	data, err := MarshalToken(token)
	if err != nil {
		return err
	}
	if err := u.store.PutDRC20Token(txn, tick, data); err != nil {
		return err
	}

	return u.adjustAvailable(txn, recipient, tick, credited)
}

func (u *Updater) applyTransfer(txn *badger.Txn, tx *wire.MsgTx, txEnvelopeIndex int, m message, sender string) error {
	if m.Tick == "" || m.Amount == "" || sender == "" {
		return nil
	}
	tick := NormalizeTick(m.Tick)

	raw, ok, err := u.store.GetDRC20Token(txn, tick)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	token, err := UnmarshalToken(raw)
	if err != nil {
		return nil
	}

	amt, err := ParseAmount(string(m.Amount), token.Decimals)
	if err != nil || amt.Sign() == 0 {
		return nil
	}

	available, err := u.getAvailable(txn, sender, tick)
	if err != nil {
		return err
	}
	if available.Cmp(amt) < 0 {
		return nil
	}

	if err := u.adjustAvailable(txn, sender, tick, new(big.Int).Neg(amt)); err != nil {
		return err
	}
	if err := u.adjustTransferable(txn, sender, tick, amt); err != nil {
		return err
	}

	if txEnvelopeIndex >= len(tx.TxOut) {
		return nil
	}
	txHash := tx.TxHash()
	var txid [32]byte
	copy(txid[:], txHash[:])
	outpoint := kvstore.OutPoint{TxID: txid, Index: uint32(txEnvelopeIndex)}
	pending := PendingTransfer{Tick: tick, Amount: amt.String(), FromAddress: sender}
	data, err := MarshalPendingTransfer(pending)
	if err != nil {
		return err
	}
	return u.store.PutDRC20PendingTransfer(txn, outpoint, data)
}

func (u *Updater) getAvailable(txn *badger.Txn, addr, tick string) (*big.Int, error) {
	raw, _, err := u.store.GetDRC20Available(txn, addr, tick)
	if err != nil {
		return nil, err
	}
	b, err := UnmarshalBalance(raw)
	if err != nil {
		return big.NewInt(0), nil
	}
	return b.asBigInt(), nil
}

func (u *Updater) adjustAvailable(txn *badger.Txn, addr, tick string, delta *big.Int) error {
	current, err := u.getAvailable(txn, addr, tick)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(current, delta)
	if next.Sign() < 0 {
		next = big.NewInt(0)
	}
	data, err := MarshalBalance(balanceOf(next))
	if err != nil {
		return err
	}
	return u.store.PutDRC20Available(txn, addr, tick, data)
}

func (u *Updater) adjustTransferable(txn *badger.Txn, addr, tick string, delta *big.Int) error {
	raw, _, err := u.store.GetDRC20Transferable(txn, addr, tick)
	if err != nil {
		return err
	}
	b, err := UnmarshalBalance(raw)
	if err != nil {
		b = Balance{Amount: "0"}
	}
	current := b.asBigInt()
	next := new(big.Int).Add(current, delta)
	if next.Sign() < 0 {
		next = big.NewInt(0)
	}
	data, err := MarshalBalance(balanceOf(next))
	if err != nil {
		return err
	}
	return u.store.PutDRC20Transferable(txn, addr, tick, data)
}

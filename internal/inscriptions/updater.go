// Package inscriptions implements the inscription updater of spec.md
// §4.7: per-transaction flotsam tracking (carry forward, create, place)
// plus sequence/inscription numbering and the secondary indices of §6.
// Grounded on internal/kvstore's inscription tables and
// internal/envelope's parsed envelope bodies; the carry-forward/place
// walk mirrors internal/coinrange.AssignOutputs's "consume from the
// front of a tape, split at output boundaries" shape, applied to
// inscription offsets instead of coin-range units.
package inscriptions

import (
	"encoding/hex"
	"sort"
	"strconv"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/btcsuite/btcd/wire"

	"github.com/dogeindex/dogeindexer/internal/envelope"
	"github.com/dogeindex/dogeindexer/internal/events"
	"github.com/dogeindex/dogeindexer/internal/kvstore"
)

// Flotsam is an inscription in flight during transaction processing:
// its sequence number and its offset within the running input-value
// tape (carry-forward) or output-value tape (placement).
type Flotsam struct {
	SequenceNumber uint32
	Offset         uint64
	// New is true when this flotsam was created by the transaction
	// currently being processed, so Place can tell InscriptionCreated
	// from InscriptionTransferred apart.
	New bool
}

// Created describes one envelope turned into a new inscription during
// ProcessTransaction, for callers (the DRC-20 and DNS registry
// updaters) that need the parsed envelope and its tx-wide position to
// apply their own protocol rules against the same transaction.
type Created struct {
	SequenceNumber    uint32
	ID                kvstore.InscriptionID
	IDString          string
	EnvelopeIndex     int
	Envelope          envelope.Envelope
	InscriptionNumber int64
}

// Updater assigns sequence/inscription numbers and tracks inscription
// locations against a kvstore.Store within an already-open write
// transaction.
type Updater struct {
	store              *kvstore.Store
	bus                *events.Bus
	homeInscriptionCap uint32
	jubileeHeight      uint32
}

// New constructs an Updater. homeInscriptionCap bounds the home
// inscriptions ring buffer (0 disables it). jubileeHeight is the height
// at which a second envelope in one input starts being cursed, per
// spec.md:96 (Dogecoin has no separate jubilee era, so callers pass the
// same first-inscription height used to gate inscription indexing).
func New(store *kvstore.Store, bus *events.Bus, homeInscriptionCap uint32, jubileeHeight uint32) *Updater {
	return &Updater{store: store, bus: bus, homeInscriptionCap: homeInscriptionCap, jubileeHeight: jubileeHeight}
}

// ProcessTransaction runs spec.md §4.7's carry-forward/create/place
// pipeline for one transaction. inputFlotsam[i] holds the inscriptions
// the previous owner of tx.TxIn[i].PreviousOutPoint was carrying
// (offsets relative to that output's own value), and inputValues[i] is
// that output's koinu value. It returns, for each output index, the
// flotsam placed there, plus any flotsam whose offset reached or
// exceeded the transaction's total output value ("lost": internal/txproc
// records these at the lost-coin sink; they are not carried into the
// block's coinbase).
func (u *Updater) ProcessTransaction(
	txn *badger.Txn,
	height, timestamp uint32,
	tx *wire.MsgTx,
	inputFlotsam [][]Flotsam,
	inputValues []uint64,
) (outputFlotsam [][]Flotsam, lost []Flotsam, created []Created, err error) {
	txHash := tx.TxHash()
	var txid [32]byte
	copy(txid[:], txHash[:])

	var flotsam []Flotsam
	var cumulative uint64
	envelopeIndex := 0

	for i, in := range tx.TxIn {
		for _, f := range inputFlotsam[i] {
			flotsam = append(flotsam, Flotsam{SequenceNumber: f.SequenceNumber, Offset: f.Offset + cumulative})
		}

		for _, env := range envelope.ParseInput(in.SignatureScript, height, u.jubileeHeight) {
			id := kvstore.InscriptionID{TxID: txid, EnvelopeIndex: uint32(envelopeIndex)}
			seq, inscriptionNumber, err := u.create(txn, height, timestamp, id, env)
			if err != nil {
				return nil, nil, nil, err
			}
			flotsam = append(flotsam, Flotsam{SequenceNumber: seq, Offset: cumulative, New: true})
			idString := inscriptionIDString(id)
			created = append(created, Created{
				SequenceNumber:    seq,
				ID:                id,
				IDString:          idString,
				EnvelopeIndex:     envelopeIndex,
				Envelope:          env,
				InscriptionNumber: inscriptionNumber,
			})
			u.bus.Publish(events.Event{
				Kind:   events.InscriptionCreated,
				Height: height,
				Payload: events.InscriptionPayload{
					SequenceNumber: seq,
					InscriptionID:  idString,
				},
			})
			envelopeIndex++
		}

		if i < len(inputValues) {
			cumulative += inputValues[i]
		}
	}

	outputFlotsam, lost, err = u.place(txn, height, tx, flotsam)
	return outputFlotsam, lost, created, err
}

// create assigns sequence/inscription numbers to a newly parsed
// envelope, writes its InscriptionEntry and id->sequence index, links
// it to any decodable parents, and (if blessed) records it in the home
// inscriptions ring. It returns the assigned sequence number and signed
// inscription number.
func (u *Updater) create(txn *badger.Txn, height, timestamp uint32, id kvstore.InscriptionID, env envelope.Envelope) (uint32, int64, error) {
	blessedCount, err := u.store.GetStatistic(txn, kvstore.StatisticBlessedInscriptions)
	if err != nil {
		return 0, 0, err
	}
	cursedCount, err := u.store.GetStatistic(txn, kvstore.StatisticCursedInscriptions)
	if err != nil {
		return 0, 0, err
	}
	seq := uint32(blessedCount + cursedCount)

	var inscriptionNumber int64
	var charms uint16
	if env.Cursed {
		inscriptionNumber = -(int64(cursedCount) + 1)
		charms = charmCursed
		if err := u.store.IncrementStatistic(txn, kvstore.StatisticCursedInscriptions, 1); err != nil {
			return 0, 0, err
		}
	} else {
		inscriptionNumber = int64(blessedCount)
		if err := u.store.IncrementStatistic(txn, kvstore.StatisticBlessedInscriptions, 1); err != nil {
			return 0, 0, err
		}
	}

	var parentSeqs []uint32
	for _, raw := range env.Parents {
		parentID, ok := decodeParentReference(raw)
		if !ok {
			continue
		}
		parentSeq, found, err := u.store.GetInscriptionIDSeq(txn, parentID)
		if err != nil {
			return 0, 0, err
		}
		if found {
			parentSeqs = append(parentSeqs, parentSeq)
			if err := u.store.AddChild(txn, parentSeq, seq); err != nil {
				return 0, 0, err
			}
		}
	}

	entry := kvstore.InscriptionEntry{
		Charms: charms,
		// Fee is always 0: computing the true miner fee would need an
		// input-value lookup this updater doesn't perform.
		Fee:               0,
		Height:            height,
		ID:                id,
		InscriptionNumber: inscriptionNumber,
		Parents:           parentSeqs,
		SequenceNumber:    seq,
		Timestamp:         timestamp,
	}
	if err := u.store.PutInscriptionEntry(txn, seq, entry); err != nil {
		return 0, 0, err
	}
	if err := u.store.PutInscriptionIDSeq(txn, id, seq); err != nil {
		return 0, 0, err
	}

	if !env.Cursed && u.homeInscriptionCap > 0 {
		position := uint32(blessedCount % uint64(u.homeInscriptionCap))
		if err := u.store.PutHomeInscription(txn, position, seq); err != nil {
			return 0, 0, err
		}
	}

	return seq, inscriptionNumber, nil
}

const charmCursed uint16 = 1 << 0

// place walks tx's outputs in order and assigns each flotsam item to
// the first output whose cumulative value exceeds its offset, per
// spec.md §4.7 step 3. Items whose offset equals or exceeds the total
// output value are returned as lost.
func (u *Updater) place(txn *badger.Txn, height uint32, tx *wire.MsgTx, flotsam []Flotsam) ([][]Flotsam, []Flotsam, error) {
	txHash := tx.TxHash()
	var txid [32]byte
	copy(txid[:], txHash[:])

	// The walk consumes flotsam front to back, so it must be in offset
	// order: an input's carried items can precede a lower-offset new one.
	sort.SliceStable(flotsam, func(i, j int) bool { return flotsam[i].Offset < flotsam[j].Offset })

	outputFlotsam := make([][]Flotsam, len(tx.TxOut))
	var outCumulative uint64
	fi := 0

	for oi, out := range tx.TxOut {
		outCumulative += uint64(out.Value)
		for fi < len(flotsam) && flotsam[fi].Offset < outCumulative {
			f := flotsam[fi]
			localOffset := f.Offset - (outCumulative - uint64(out.Value))
			outputFlotsam[oi] = append(outputFlotsam[oi], Flotsam{SequenceNumber: f.SequenceNumber, Offset: localOffset, New: f.New})

			sp := kvstore.Satpoint{OutPoint: kvstore.OutPoint{TxID: txid, Index: uint32(oi)}, Offset: localOffset}
			if err := u.store.PutSeqSatpoint(txn, f.SequenceNumber, sp); err != nil {
				return nil, nil, err
			}
			if !f.New {
				u.bus.Publish(events.Event{
					Kind:   events.InscriptionTransferred,
					Height: height,
					Payload: events.InscriptionPayload{SequenceNumber: f.SequenceNumber},
				})
			}
			fi++
		}
	}

	lost := append([]Flotsam(nil), flotsam[fi:]...)
	return outputFlotsam, lost, nil
}

// decodeParentReference parses a parent reference push (36-byte packed
// inscription id: 32-byte txid + 4-byte little-endian envelope index,
// the ordinals wire convention) into an InscriptionID.
func decodeParentReference(raw []byte) (kvstore.InscriptionID, bool) {
	if len(raw) != 36 {
		return kvstore.InscriptionID{}, false
	}
	var packed [36]byte
	copy(packed[:32], raw[:32])
	// Stored big-endian internally; the wire convention for parent
	// references is little-endian index, so byte-swap on the way in.
	packed[32], packed[33], packed[34], packed[35] = raw[35], raw[34], raw[33], raw[32]
	return kvstore.UnpackInscriptionID(packed), true
}

func inscriptionIDString(id kvstore.InscriptionID) string {
	return hex.EncodeToString(id.TxID[:]) + "i" + strconv.FormatUint(uint64(id.EnvelopeIndex), 10)
}

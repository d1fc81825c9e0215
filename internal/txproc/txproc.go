// Package txproc implements the per-block transaction processing
// pipeline that ties together spec.md §4.5's coin-range assignment,
// §4.7's inscription flotsam tracking, §4.8's DRC-20 state machine, and
// §4.9's DNS registry into the single-writer sequence the indexer's
// main loop drives one block at a time. Grounded on the teacher's own
// orchestration shape in internal/swap/coordinator.go, where a single
// coordinator type sequences several narrower updaters against one
// shared transaction rather than each updater owning its own.
package txproc

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/btcsuite/btcd/wire"

	"github.com/dogeindex/dogeindexer/internal/blkindex"
	"github.com/dogeindex/dogeindexer/internal/coinrange"
	"github.com/dogeindex/dogeindexer/internal/config"
	"github.com/dogeindex/dogeindexer/internal/drc20"
	"github.com/dogeindex/dogeindexer/internal/dnsreg"
	"github.com/dogeindex/dogeindexer/internal/inscriptions"
	"github.com/dogeindex/dogeindexer/internal/kvstore"
	"github.com/dogeindex/dogeindexer/internal/subsidy"
)

// Processor drives one block's worth of transactions through the
// coin-range, inscription, DRC-20, and DNS updaters against a single
// open write transaction.
type Processor struct {
	store        *kvstore.Store
	inscriptions *inscriptions.Updater
	drc20        *drc20.Updater
	dnsreg       *dnsreg.Updater

	indexCoins             bool
	indexAddresses         bool
	indexInscriptions      bool
	indexDRC20             bool
	indexDNS               bool
	firstInscriptionHeight uint32

	fallback FallbackResolver
}

// FallbackResolver looks up an input's spent UTXO when it isn't present
// in the local store, for blocks ingested without the full chain's UTXO
// history behind them. A resolver-supplied entry carries only value and
// script: it predates this indexer's own coin-range and inscription
// tracking, so it contributes no coin ranges and carries no flotsam.
type FallbackResolver func(op kvstore.OutPoint) (kvstore.UTXOEntry, bool)

// SetFallbackResolver installs (or clears, with nil) the resolver used
// for inputs missing from the local UTXO set.
func (p *Processor) SetFallbackResolver(f FallbackResolver) {
	p.fallback = f
}

// New constructs a Processor from the already-constructed per-protocol
// updaters and the feature flags of spec.md §6.
func New(store *kvstore.Store, insc *inscriptions.Updater, drc20u *drc20.Updater, dnsu *dnsreg.Updater, cfg config.IndexingConfig) *Processor {
	return &Processor{
		store:                  store,
		inscriptions:           insc,
		drc20:                  drc20u,
		dnsreg:                 dnsu,
		indexCoins:             cfg.IndexCoins,
		indexAddresses:         cfg.IndexAddresses,
		indexInscriptions:      cfg.IndexInscriptions,
		indexDRC20:             cfg.IndexDRC20,
		indexDNS:               cfg.IndexDNS,
		firstInscriptionHeight: cfg.FirstInscriptionHeight,
	}
}

// ProcessBlock runs every transaction in block through the pipeline,
// processing the coinbase last per spec.md §4.5/§4.7 so its own
// coin-range placement can absorb the block's accumulated transaction
// fees. Lost flotsam from each transaction is recorded directly at the
// lost-coin sink; the coinbase carries none of it.
func (p *Processor) ProcessBlock(txn *badger.Txn, height, timestamp uint32, block *blkindex.Block) error {
	if len(block.Transactions) == 0 {
		return nil
	}

	inscriptionsEnabled := p.indexInscriptions && height >= p.firstInscriptionHeight

	sink, _, err := p.store.GetUTXO(txn, kvstore.LostCoinSink)
	if err != nil {
		return fmt.Errorf("txproc: read lost-coin sink: %w", err)
	}
	lostSinkValue := sink.Value

	var feeTape []coinrange.Range
	for _, tx := range block.Transactions[1:] {
		leftover, lostFlotsam, feeValue, totalOutputValue, err := p.processTransaction(txn, height, timestamp, tx, inscriptionsEnabled)
		if err != nil {
			return err
		}
		feeTape = append(feeTape, leftover...)

		for _, f := range lostFlotsam {
			offset := lostSinkValue + (f.Offset - totalOutputValue)
			sp := kvstore.Satpoint{OutPoint: kvstore.LostCoinSink, Offset: offset}
			if err := p.store.PutSeqSatpoint(txn, f.SequenceNumber, sp); err != nil {
				return fmt.Errorf("txproc: put lost satpoint: %w", err)
			}
		}
		lostSinkValue += feeValue
	}

	return p.processCoinbase(txn, height, timestamp, block.Transactions[0], feeTape, inscriptionsEnabled)
}

// processTransaction handles one non-coinbase transaction: it loads and
// deletes spent UTXOs, runs phase 1 of the DRC-20 state machine,
// carries forward and places inscription flotsam, applies DRC-20/DNS
// envelopes, assigns coin ranges to outputs, and writes the resulting
// UTXO entries. It returns the leftover coin-range tape (this
// transaction's fee, to be fed into the coinbase), any unplaced
// ("lost") flotsam, the fee value in koinu, and the transaction's total
// output value (koinu) so the caller can convert flotsam offsets into
// lost-coin-sink offsets.
func (p *Processor) processTransaction(txn *badger.Txn, height, timestamp uint32, tx *wire.MsgTx, inscriptionsEnabled bool) (leftover []coinrange.Range, lost []inscriptions.Flotsam, feeValue uint64, totalOutputValue uint64, err error) {
	txid := toTxID(tx)

	inputFlotsam := make([][]inscriptions.Flotsam, len(tx.TxIn))
	inputValues := make([]uint64, len(tx.TxIn))
	var inputRanges []coinrange.Range
	var totalInputValue uint64

	for i, in := range tx.TxIn {
		prevOut := kvstore.OutPoint{TxID: toHashArray(in.PreviousOutPoint.Hash), Index: in.PreviousOutPoint.Index}
		entry, ok, err := p.store.GetUTXO(txn, prevOut)
		if err != nil {
			return nil, nil, 0, 0, fmt.Errorf("txproc: read utxo %x:%d: %w", prevOut.TxID, prevOut.Index, err)
		}
		if !ok && p.fallback != nil {
			entry, ok = p.fallback(prevOut)
		}
		if !ok {
			continue
		}

		inputValues[i] = entry.Value
		totalInputValue += entry.Value
		if inscriptionsEnabled {
			inputFlotsam[i] = bindingsToFlotsam(entry.Inscriptions)
		}
		if p.indexCoins {
			inputRanges = append(inputRanges, entry.CoinRanges...)
		}

		if err := p.store.DeleteUTXO(txn, prevOut); err != nil {
			return nil, nil, 0, 0, fmt.Errorf("txproc: delete utxo: %w", err)
		}
		if p.indexAddresses && len(entry.Script) > 0 {
			if err := p.store.UnindexScriptOutpoint(txn, entry.Script, prevOut); err != nil {
				return nil, nil, 0, 0, fmt.Errorf("txproc: unindex script outpoint: %w", err)
			}
		}
	}

	if p.indexDRC20 {
		if err := p.drc20.CompletePendingTransfers(txn, tx); err != nil {
			return nil, nil, 0, 0, fmt.Errorf("txproc: complete pending transfers: %w", err)
		}
	}

	var outputFlotsam [][]inscriptions.Flotsam
	var created []inscriptions.Created
	if inscriptionsEnabled {
		outputFlotsam, lost, created, err = p.inscriptions.ProcessTransaction(txn, height, timestamp, tx, inputFlotsam, inputValues)
		if err != nil {
			return nil, nil, 0, 0, fmt.Errorf("txproc: process inscriptions: %w", err)
		}
	}

	if err := p.applyProtocolEnvelopes(txn, height, timestamp, tx, created); err != nil {
		return nil, nil, 0, 0, err
	}

	outputRanges, err := p.writeOutputs(txn, txid, tx, inputRanges, outputFlotsam)
	if err != nil {
		return nil, nil, 0, 0, err
	}

	for _, out := range tx.TxOut {
		totalOutputValue += uint64(out.Value)
	}
	if totalInputValue > totalOutputValue {
		feeValue = totalInputValue - totalOutputValue
	}

	if p.indexCoins {
		leftover = outputRanges.leftover
	}
	return leftover, lost, feeValue, totalOutputValue, nil
}

// processCoinbase handles the block's coinbase transaction last: its
// coin-range tape is the newly minted subsidy range followed by the
// fee tape accumulated from every other transaction in the block, and
// any leftover after its own outputs are assigned is merged into the
// lost-coin sink (the miner's unclaimed fees).
func (p *Processor) processCoinbase(txn *badger.Txn, height, timestamp uint32, tx *wire.MsgTx, feeTape []coinrange.Range, inscriptionsEnabled bool) error {
	txid := toTxID(tx)

	var inputRanges []coinrange.Range
	var totalInputValue uint64
	if p.indexCoins {
		subsidyAmount, err := subsidy.AtHeight(uint64(height))
		if err != nil {
			return fmt.Errorf("txproc: subsidy at height %d: %w", height, err)
		}
		cumulative, err := subsidy.CumulativeAt(uint64(height))
		if err != nil {
			return fmt.Errorf("txproc: cumulative supply at height %d: %w", height, err)
		}
		inputRanges = append([]coinrange.Range{{Start: cumulative, Delta: subsidyAmount}}, feeTape...)
		totalInputValue = subsidyAmount
		for _, r := range feeTape {
			totalInputValue += r.Delta
		}
	}

	var outputFlotsam [][]inscriptions.Flotsam
	var lost []inscriptions.Flotsam
	var created []inscriptions.Created
	var err error
	if inscriptionsEnabled {
		// The coinbase has no previous owner to carry flotsam forward
		// from; only its own scriptSig can create new inscriptions.
		inputFlotsam := [][]inscriptions.Flotsam{nil}
		inputValues := []uint64{totalInputValue}
		outputFlotsam, lost, created, err = p.inscriptions.ProcessTransaction(txn, height, timestamp, tx, inputFlotsam, inputValues)
		if err != nil {
			return fmt.Errorf("txproc: process coinbase inscriptions: %w", err)
		}
	}

	if err := p.applyProtocolEnvelopes(txn, height, timestamp, tx, created); err != nil {
		return err
	}

	outputRanges, err := p.writeOutputs(txn, txid, tx, inputRanges, outputFlotsam)
	if err != nil {
		return err
	}

	var unclaimed []coinrange.Range
	if p.indexCoins {
		unclaimed = outputRanges.leftover
	}

	if len(unclaimed) > 0 {
		if err := p.mergeLostCoins(txn, unclaimed); err != nil {
			return err
		}
	}

	if len(lost) > 0 {
		sink, _, err := p.store.GetUTXO(txn, kvstore.LostCoinSink)
		if err != nil {
			return fmt.Errorf("txproc: read lost-coin sink: %w", err)
		}
		var totalOutputValue uint64
		for _, out := range tx.TxOut {
			totalOutputValue += uint64(out.Value)
		}
		for _, f := range lost {
			offset := sink.Value + (f.Offset - totalOutputValue)
			sp := kvstore.Satpoint{OutPoint: kvstore.LostCoinSink, Offset: offset}
			if err := p.store.PutSeqSatpoint(txn, f.SequenceNumber, sp); err != nil {
				return fmt.Errorf("txproc: put lost satpoint: %w", err)
			}
		}
	}

	return nil
}

// applyProtocolEnvelopes runs phase 2 of the DRC-20 state machine and
// the DNS registry against every envelope newly created in tx.
func (p *Processor) applyProtocolEnvelopes(txn *badger.Txn, height, timestamp uint32, tx *wire.MsgTx, created []inscriptions.Created) error {
	if !p.indexDRC20 && !p.indexDNS {
		return nil
	}
	for _, c := range created {
		if p.indexDRC20 {
			if err := p.drc20.ApplyEnvelope(txn, height, timestamp, tx, c.EnvelopeIndex, c.Envelope, c.IDString); err != nil {
				return fmt.Errorf("txproc: apply drc20 envelope: %w", err)
			}
		}
		if p.indexDNS {
			var script []byte
			if c.EnvelopeIndex < len(tx.TxOut) {
				script = tx.TxOut[c.EnvelopeIndex].PkScript
			}
			if err := p.dnsreg.Register(txn, height, timestamp, c.Envelope.Body, c.ID, c.InscriptionNumber, script); err != nil {
				return fmt.Errorf("txproc: register dns name: %w", err)
			}
		}
	}
	return nil
}

type assignedOutputs struct {
	ranges   [][]coinrange.Range
	leftover []coinrange.Range
}

// writeOutputs assigns coin ranges to tx's outputs (if coin-tracking is
// enabled) and writes each output's UTXOEntry, combining its value,
// owning script, coin ranges, and any placed inscription bindings, plus
// the address secondary index.
func (p *Processor) writeOutputs(txn *badger.Txn, txid [32]byte, tx *wire.MsgTx, inputRanges []coinrange.Range, outputFlotsam [][]inscriptions.Flotsam) (assignedOutputs, error) {
	outputValues := make([]uint64, len(tx.TxOut))
	for i, out := range tx.TxOut {
		outputValues[i] = uint64(out.Value)
	}

	var result assignedOutputs
	if p.indexCoins {
		tape := coinrange.NewTape(inputRanges...)
		crossings := []coinrange.UncommonCrossing(nil)
		result.ranges, crossings = coinrange.AssignOutputs(tape, outputValues, subsidy.IsFirstCoinOfBlock)
		result.leftover = tape.Ranges()

		for _, cr := range crossings {
			sp := kvstore.Satpoint{OutPoint: kvstore.OutPoint{TxID: txid, Index: uint32(cr.OutputIndex)}, Offset: cr.OutputOffset}
			if err := p.store.PutCoinSatpoint(txn, cr.CoinIndex, sp); err != nil {
				return result, fmt.Errorf("txproc: put coin satpoint: %w", err)
			}
		}
	}

	for oi, out := range tx.TxOut {
		entry := kvstore.UTXOEntry{Value: uint64(out.Value)}
		if p.indexAddresses {
			entry.Script = out.PkScript
		}
		if p.indexCoins && oi < len(result.ranges) {
			entry.CoinRanges = result.ranges[oi]
		}
		if oi < len(outputFlotsam) {
			for _, f := range outputFlotsam[oi] {
				entry.Inscriptions = append(entry.Inscriptions, kvstore.InscriptionBinding{SequenceNumber: f.SequenceNumber, Offset: f.Offset})
				if p.indexCoins {
					if coinIndex, ok := coinIndexAtOffset(entry.CoinRanges, f.Offset); ok {
						if err := p.store.AddCoinSequence(txn, coinIndex, f.SequenceNumber); err != nil {
							return result, fmt.Errorf("txproc: add coin sequence: %w", err)
						}
					}
				}
			}
		}

		op := kvstore.OutPoint{TxID: txid, Index: uint32(oi)}
		if err := p.store.PutUTXO(txn, op, entry); err != nil {
			return result, fmt.Errorf("txproc: put utxo: %w", err)
		}
		if p.indexAddresses && len(out.PkScript) > 0 {
			if err := p.store.IndexScriptOutpoint(txn, out.PkScript, op); err != nil {
				return result, fmt.Errorf("txproc: index script outpoint: %w", err)
			}
		}
	}

	return result, nil
}

// mergeLostCoins appends ranges to the lost-coin sink's UTXO entry
// (merge semantics, per spec.md §4.5/§6) and increments the running
// lost-coin statistic.
func (p *Processor) mergeLostCoins(txn *badger.Txn, ranges []coinrange.Range) error {
	existing, _, err := p.store.GetUTXO(txn, kvstore.LostCoinSink)
	if err != nil {
		return fmt.Errorf("txproc: read lost-coin sink: %w", err)
	}

	var total uint64
	for _, r := range ranges {
		total += r.Delta
	}

	merged := kvstore.UTXOEntry{
		Value:       existing.Value + total,
		CoinRanges:  append(append([]coinrange.Range(nil), existing.CoinRanges...), ranges...),
		Inscriptions: existing.Inscriptions,
	}
	if err := p.store.PutUTXO(txn, kvstore.LostCoinSink, merged); err != nil {
		return fmt.Errorf("txproc: put lost-coin sink: %w", err)
	}
	return p.store.IncrementStatistic(txn, kvstore.StatisticLostCoins, total)
}

func bindingsToFlotsam(bindings []kvstore.InscriptionBinding) []inscriptions.Flotsam {
	if len(bindings) == 0 {
		return nil
	}
	out := make([]inscriptions.Flotsam, len(bindings))
	for i, b := range bindings {
		out[i] = inscriptions.Flotsam{SequenceNumber: b.SequenceNumber, Offset: b.Offset}
	}
	return out
}

// coinIndexAtOffset finds the absolute coin index underlying a
// byte-offset position within a coin-range list (an output's assigned
// ranges), for the coin_number->sequence_number secondary index.
func coinIndexAtOffset(ranges []coinrange.Range, offset uint64) (uint64, bool) {
	var cumulative uint64
	for _, r := range ranges {
		if offset < cumulative+r.Delta {
			return r.Start + (offset - cumulative), true
		}
		cumulative += r.Delta
	}
	return 0, false
}

func toTxID(tx *wire.MsgTx) [32]byte {
	hash := tx.TxHash()
	return toHashArray(hash)
}

func toHashArray(h [32]byte) [32]byte {
	var out [32]byte
	copy(out[:], h[:])
	return out
}

// Package reorg implements the fork detection and savepoint rollback of
// spec.md §4.10/§9: whenever the next block's PrevBlock doesn't match
// the locally indexed tip, the indexer must unwind to the most recent
// savepoint at or below the fork point rather than attempt a
// transaction-level undo. Grounded on the sentinel-error-plus-manager
// shape the teacher uses throughout internal/storage (e.g.
// ErrSwapNotFound in internal/storage/swaps.go) applied to a
// chain-reorganization manager instead of a swap-state lookup.
package reorg

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/dogeindex/dogeindexer/internal/kvstore"
	"github.com/dogeindex/dogeindexer/pkg/logging"
)

// ErrUnrecoverable is returned when a fork is detected but no retained
// savepoint is old enough to roll back past it, per spec.md §9's
// operator-intervention escape hatch.
var ErrUnrecoverable = errors.New("reorg: no savepoint old enough to recover from this fork")

// Manager detects chain forks against the locally indexed header table
// and recovers by restoring the newest savepoint at or below the fork
// height.
type Manager struct {
	store      *kvstore.Store
	savepoints *kvstore.SavepointManager
	logger     *logging.Logger
}

// New constructs a Manager.
func New(store *kvstore.Store, savepoints *kvstore.SavepointManager, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.GetDefault()
	}
	return &Manager{store: store, savepoints: savepoints, logger: logger}
}

// Detect reports whether a block being considered for height, whose
// header declares prevBlock as its predecessor, extends the locally
// indexed chain. A fork is detected when a header is already indexed at
// height-1 and its hash doesn't match prevBlock. No header at height-1
// (e.g. at genesis, or when the caller is indexing into previously
// unindexed territory) is never a fork.
func (m *Manager) Detect(txn *badger.Txn, height uint32, prevBlock chainhash.Hash) (bool, error) {
	if height == 0 {
		return false, nil
	}
	raw, ok, err := m.store.GetHeader(txn, height-1)
	if err != nil {
		return false, fmt.Errorf("reorg: read header at height %d: %w", height-1, err)
	}
	if !ok {
		return false, nil
	}
	localHash := chainhash.DoubleHashH(raw[:])
	return !localHash.IsEqual(&prevBlock), nil
}

// Recover unwinds the store to the newest retained savepoint at or
// below forkHeight, returning the height recovery landed on. The
// caller is responsible for quiescing all writers before calling this
// (badger's Load requires exclusive access) and for re-deriving
// in-memory state (sequence counters, the coin-range cursor, open
// pending transfers) from the restored height afterward.
func (m *Manager) Recover(forkHeight uint32) (uint32, error) {
	savepoints, err := m.savepoints.List()
	if err != nil {
		return 0, fmt.Errorf("reorg: list savepoints: %w", err)
	}

	var target *kvstore.Savepoint
	for i := len(savepoints) - 1; i >= 0; i-- {
		if savepoints[i].Height <= forkHeight {
			target = &savepoints[i]
			break
		}
	}
	if target == nil {
		return 0, ErrUnrecoverable
	}

	if err := m.savepoints.Restore(*target); err != nil {
		return 0, fmt.Errorf("reorg: restore savepoint at height %d: %w", target.Height, err)
	}
	m.logger.Warn("reorg recovered by savepoint restore", "fork_height", forkHeight, "restored_height", target.Height)
	return target.Height, nil
}

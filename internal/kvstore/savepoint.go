package kvstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/dogeindex/dogeindexer/pkg/logging"
)

// Savepoint is a committed state snapshot recorded on disk, to which the
// store can revert on an unrecoverable chain-tip mismatch (reorg), per
// spec.md §4.10/§9.
type Savepoint struct {
	Height uint32
	ID     string
	Path   string
}

// SavepointManager owns the store's backup files, named
// <dir>/<height>-<uuid>.bak with the height zero-padded to ten digits,
// and enforces the configured
// retention cap, since badger has no native named-savepoint/rollback
// primitive the way sqlite or redb do.
type SavepointManager struct {
	store  *Store
	dir    string
	max    int
	logger *logging.Logger
}

// NewSavepointManager constructs a manager rooted at dir (typically
// "<datadir>/savepoints") retaining at most max savepoint files.
func NewSavepointManager(store *Store, dir string, max int, logger *logging.Logger) (*SavepointManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("kvstore: create savepoint dir: %w", err)
	}
	if logger == nil {
		logger = logging.GetDefault()
	}
	return &SavepointManager{store: store, dir: dir, max: max, logger: logger}, nil
}

// Create takes a full logical snapshot of the store at the given height
// via badger's streaming Backup, then enforces retention by deleting the
// oldest savepoints beyond the configured cap.
func (m *SavepointManager) Create(height uint32) (Savepoint, error) {
	id := uuid.NewString()
	name := fmt.Sprintf("%010d-%s.bak", height, id)
	path := filepath.Join(m.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return Savepoint{}, fmt.Errorf("kvstore: create savepoint file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := m.store.db.Backup(w, 0); err != nil {
		os.Remove(path)
		return Savepoint{}, fmt.Errorf("kvstore: backup: %w", err)
	}
	if err := w.Flush(); err != nil {
		os.Remove(path)
		return Savepoint{}, fmt.Errorf("kvstore: flush savepoint: %w", err)
	}

	sp := Savepoint{Height: height, ID: id, Path: path}
	m.logger.Info("savepoint created", "height", height, "id", id)

	if err := m.enforceRetention(); err != nil {
		m.logger.Warn("savepoint retention cleanup failed", "error", err)
	}
	return sp, nil
}

// List returns all savepoints on disk, oldest first.
func (m *SavepointManager) List() ([]Savepoint, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("kvstore: list savepoints: %w", err)
	}

	var savepoints []Savepoint
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".bak") {
			continue
		}
		sp, ok := parseSavepointName(e.Name())
		if !ok {
			continue
		}
		sp.Path = filepath.Join(m.dir, e.Name())
		savepoints = append(savepoints, sp)
	}
	sort.Slice(savepoints, func(i, j int) bool { return savepoints[i].Height < savepoints[j].Height })
	return savepoints, nil
}

func parseSavepointName(name string) (Savepoint, bool) {
	trimmed := strings.TrimSuffix(name, ".bak")
	parts := strings.SplitN(trimmed, "-", 2)
	if len(parts) != 2 {
		return Savepoint{}, false
	}
	height, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return Savepoint{}, false
	}
	return Savepoint{Height: uint32(height), ID: parts[1]}, true
}

func (m *SavepointManager) enforceRetention() error {
	savepoints, err := m.List()
	if err != nil {
		return err
	}
	excess := len(savepoints) - m.max
	for i := 0; i < excess; i++ {
		if err := os.Remove(savepoints[i].Path); err != nil {
			return err
		}
	}
	return nil
}

// Latest returns the most recent savepoint, if any exist.
func (m *SavepointManager) Latest() (Savepoint, bool, error) {
	savepoints, err := m.List()
	if err != nil {
		return Savepoint{}, false, err
	}
	if len(savepoints) == 0 {
		return Savepoint{}, false, nil
	}
	return savepoints[len(savepoints)-1], true, nil
}

// RestoreFromLatest drops all current state and loads the most recent
// savepoint, for reorg rollback. The caller must have already closed and
// reopened (or otherwise quiesced) the store's writers before calling
// this — Load requires exclusive access to the database.
func (m *SavepointManager) RestoreFromLatest() (Savepoint, error) {
	sp, ok, err := m.Latest()
	if err != nil {
		return Savepoint{}, err
	}
	if !ok {
		return Savepoint{}, fmt.Errorf("kvstore: no savepoint available to restore")
	}
	return sp, m.restore(sp)
}

// Restore drops all current state and loads the given savepoint. The
// caller must have already quiesced the store's writers before calling
// this, same as RestoreFromLatest.
func (m *SavepointManager) Restore(sp Savepoint) error {
	return m.restore(sp)
}

func (m *SavepointManager) restore(sp Savepoint) error {
	f, err := os.Open(sp.Path)
	if err != nil {
		return fmt.Errorf("kvstore: open savepoint %s: %w", sp.Path, err)
	}
	defer f.Close()

	if err := m.store.db.DropAll(); err != nil {
		return fmt.Errorf("kvstore: drop all before restore: %w", err)
	}
	if err := m.store.db.Load(f, 16); err != nil {
		return fmt.Errorf("kvstore: load savepoint %s: %w", sp.Path, err)
	}
	m.logger.Info("restored savepoint", "height", sp.Height, "id", sp.ID)
	return nil
}

// CommitManager batches index mutations into one badger.Txn per commit
// cycle and drives the double-commit discipline of spec.md §9: an empty
// follow-on transaction is committed immediately after the real one so
// badger's managed read-timestamp watermark advances and the LSM
// compactor / value-log GC aren't held back by a long-lived snapshot
// reference. This is the badger-native reading of the original
// LMDB/redb "free pages held back one generation" note — badger has no
// page-reuse mechanism, but an uncommitted watermark has the same
// unbounded-growth failure mode, and the fix is the same shape: commit
// twice.
type CommitManager struct {
	store          *Store
	commitInterval uint32
	lastCommit     uint32
}

// NewCommitManager constructs a manager that flushes every commitInterval
// blocks.
func NewCommitManager(store *Store, commitInterval uint32) *CommitManager {
	return &CommitManager{store: store, commitInterval: commitInterval}
}

// ShouldCommit reports whether the current height crosses a commit
// boundary since the last commit.
func (c *CommitManager) ShouldCommit(height uint32) bool {
	return height-c.lastCommit >= c.commitInterval
}

// MarkCommitted records the height just committed and performs the
// double-commit page-reclamation step.
func (c *CommitManager) MarkCommitted(height uint32) error {
	c.lastCommit = height
	empty := c.store.db.NewTransaction(true)
	defer empty.Discard()
	if err := empty.Commit(); err != nil {
		return fmt.Errorf("kvstore: double-commit after height %d: %w", height, err)
	}
	return nil
}

// WithWriteTxn runs fn inside a single read-write transaction and
// commits it if fn succeeds, matching the teacher's "acquire, mutate,
// commit" scoped-transaction shape from internal/storage/storage.go.
func (s *Store) WithWriteTxn(fn func(txn *badger.Txn) error) error {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// WithReadTxn runs fn inside a read-only transaction.
func (s *Store) WithReadTxn(fn func(txn *badger.Txn) error) error {
	txn := s.db.NewTransaction(false)
	defer txn.Discard()
	return fn(txn)
}

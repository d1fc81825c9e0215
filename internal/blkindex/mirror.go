// Package blkindex reads Dogecoin Core's on-disk block-location database
// and `.dat` block files directly, bypassing RPC for historical sync.
// Grounded on original_source/src/index/updater/blk_reader.rs (same
// on-disk LevelDB format and varint grammar as Bitcoin/Dogecoin Core),
// reimplemented idiomatically with github.com/syndtr/goleveldb in place
// of the Rust rusty_leveldb crate.
package blkindex

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Mirror copies every file (except the lock file) from a node's
// blocks/index/ directory into a process-owned shadow directory, using
// modification-time comparison so immutable sorted-table files are
// copied once and the manifest/WAL files are re-copied on each refresh,
// per spec.md §4.1.
type Mirror struct {
	sourceDir string
	shadowDir string
}

// NewMirror constructs a Mirror reading from sourceDir (typically
// "<node-datadir>/blocks/index") and writing into shadowDir.
func NewMirror(sourceDir, shadowDir string) *Mirror {
	return &Mirror{sourceDir: sourceDir, shadowDir: shadowDir}
}

// Refresh copies every file from the source directory into the shadow
// directory, skipping the lock file, and skipping files whose shadow
// copy is already at least as new. Returns (copied, skipped) counts.
// Refresh errors are non-fatal to the caller: a failed refresh may still
// leave a usable (if stale) shadow directory, or the caller may fall
// through to RPC-only operation.
func (m *Mirror) Refresh() (copied int, skipped int, err error) {
	if err := os.MkdirAll(m.shadowDir, 0o755); err != nil {
		return 0, 0, fmt.Errorf("blkindex: create shadow dir: %w", err)
	}

	entries, err := os.ReadDir(m.sourceDir)
	if err != nil {
		return 0, 0, fmt.Errorf("blkindex: read source dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == "LOCK" {
			continue
		}

		srcPath := filepath.Join(m.sourceDir, entry.Name())
		dstPath := filepath.Join(m.shadowDir, entry.Name())

		srcInfo, err := entry.Info()
		if err != nil {
			return copied, skipped, fmt.Errorf("blkindex: stat %s: %w", srcPath, err)
		}

		if dstInfo, err := os.Stat(dstPath); err == nil {
			if !dstInfo.ModTime().Before(srcInfo.ModTime()) && dstInfo.Size() == srcInfo.Size() {
				skipped++
				continue
			}
		}

		if err := copyFile(srcPath, dstPath, srcInfo.ModTime()); err != nil {
			return copied, skipped, fmt.Errorf("blkindex: copy %s: %w", srcPath, err)
		}
		copied++
	}

	return copied, skipped, nil
}

// ShadowDir returns the directory Refresh writes into, which a Reader
// opens in place of the live (possibly lock-contended) source directory.
func (m *Mirror) ShadowDir() string {
	return m.shadowDir
}

func copyFile(src, dst string, modTime time.Time) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, modTime, modTime)
}

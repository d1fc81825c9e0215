// Package blocksource implements the unified block-yielding source of
// spec.md §4.3: a bounded FIFO queue fed by a single producer goroutine
// that prefers direct on-disk reads via internal/blkindex and falls
// back to internal/rpcclient with exponential backoff. Grounded on the
// teacher's internal/backend block-stream goroutine shape (a single
// producer writing into a buffered channel, stopped by a context).
package blocksource

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/dogeindex/dogeindexer/internal/blkindex"
	"github.com/dogeindex/dogeindexer/internal/rpcclient"
)

// DefaultQueueCapacity is the bounded FIFO's default size, per spec.md §4.3.
const DefaultQueueCapacity = 32

// Block is one yielded unit: the decoded block plus the height it was
// fetched at and which path produced it.
type Block struct {
	Height  uint32
	Decoded *blkindex.Block
	Source  string // "disk" or "rpc"
}

// Source yields blocks in ascending height order starting at StartHeight.
type Source struct {
	reader    *blkindex.Reader
	rpc       *rpcclient.Client
	queue     chan Block
	errc      chan error
	startHeight uint32
	heightLimit uint32 // 0 means unlimited
}

// New constructs a Source. heightLimit of 0 means no upper bound.
func New(reader *blkindex.Reader, rpc *rpcclient.Client, startHeight, heightLimit uint32, queueCapacity int) *Source {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	return &Source{
		reader:      reader,
		rpc:         rpc,
		queue:       make(chan Block, queueCapacity),
		errc:        make(chan error, 1),
		startHeight: startHeight,
		heightLimit: heightLimit,
	}
}

// Blocks returns the channel blocks are delivered on. It is closed when
// the producer stops, either because heightLimit was reached or ctx was
// cancelled; callers should check Err after the channel closes.
func (s *Source) Blocks() <-chan Block {
	return s.queue
}

// Err returns the producer's terminal error, if any, after Blocks has
// been drained and closed. Returns nil on a clean stop.
func (s *Source) Err() error {
	select {
	case err := <-s.errc:
		return err
	default:
		return nil
	}
}

// Run drives the single-producer loop until ctx is cancelled or
// heightLimit is reached, writing to the bounded queue (which blocks the
// producer when full, providing backpressure) and closing it on exit.
func (s *Source) Run(ctx context.Context) {
	defer close(s.queue)

	height := s.startHeight
	for {
		if s.heightLimit != 0 && height > s.heightLimit {
			return
		}

		block, source, err := s.fetch(ctx, height)
		if err != nil {
			s.errc <- err
			return
		}

		select {
		case s.queue <- Block{Height: height, Decoded: block, Source: source}:
		case <-ctx.Done():
			return
		}

		height++
	}
}

// fetch prefers the on-disk mirror; if the mirror doesn't yet have this
// height, it falls back to RPC with exponential retry on transient
// failures.
func (s *Source) fetch(ctx context.Context, height uint32) (*blkindex.Block, string, error) {
	if s.reader != nil && s.reader.Has(height) {
		raw, ok, err := s.reader.ReadRaw(height)
		if err != nil {
			return nil, "", fmt.Errorf("blocksource: disk read height %d: %w", height, err)
		}
		if ok {
			decoded, err := blkindex.DecodeBlock(raw)
			if err != nil {
				return nil, "", fmt.Errorf("blocksource: decode height %d from disk: %w", height, err)
			}
			return decoded, "disk", nil
		}
	}

	var decoded *blkindex.Block
	err := rpcclient.RetryWithBackoff(ctx, func() error {
		hash, err := s.rpc.GetBlockHash(ctx, height)
		if err != nil {
			return err
		}
		hexBlock, err := s.rpc.GetBlockRaw(ctx, hash)
		if err != nil {
			return err
		}
		raw, err := hex.DecodeString(hexBlock)
		if err != nil {
			return fmt.Errorf("blocksource: decode hex height %d: %w", height, err)
		}
		decoded, err = blkindex.DecodeBlock(raw)
		if err != nil {
			return fmt.Errorf("blocksource: decode height %d from rpc: %w", height, err)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return decoded, "rpc", nil
}

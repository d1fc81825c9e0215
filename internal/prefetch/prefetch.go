// Package prefetch implements the input prefetcher of spec.md §4.4: a
// background worker that batches missing-input transaction lookups
// against the upstream RPC so the main indexing loop never stalls on a
// single serial fetch. Grounded on the bounded worker-pool shape in
// other_examples/67cf45e0_n42blockchain-N42__internal-miner-worker.go.go,
// which drives a fixed-size parallel fan-out with
// golang.org/x/sync/errgroup the same way this worker bounds its
// concurrent RPC calls by the configured RPC concurrency limit.
package prefetch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dogeindex/dogeindexer/internal/rpcclient"
)

// DefaultRequestCapacity is the bounded request channel's default size,
// per spec.md §4.4.
const DefaultRequestCapacity = 20_000

// DefaultBatchSize is the default number of outpoints drained per round.
const DefaultBatchSize = 2048

// Request asks the prefetcher to resolve txid's verbose info. Position
// lets the main loop match the response back to its place in an
// ordered sequence of requests (spec.md §4.4's "consume by position").
type Request struct {
	TxID     string
	Position int
}

// Result is a resolved (or failed) lookup, tagged with the requesting
// Request's Position.
type Result struct {
	Position int
	Info     rpcclient.RawTransactionInfo
	Err      error
}

// Worker drains batches of Requests and issues bounded-parallel RPC
// lookups, publishing Results on a channel consumed by position.
type Worker struct {
	rpc         *rpcclient.Client
	concurrency int
	batchSize   int
	requests    chan Request
	results     chan Result
}

// New constructs a Worker. concurrency bounds parallel in-flight RPC
// calls (the configured RPC concurrency limit, default 12); batchSize
// of 0 uses DefaultBatchSize; requestCapacity of 0 uses
// DefaultRequestCapacity.
func New(rpc *rpcclient.Client, concurrency, batchSize, requestCapacity int) *Worker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if requestCapacity <= 0 {
		requestCapacity = DefaultRequestCapacity
	}
	if concurrency <= 0 {
		concurrency = 12
	}
	return &Worker{
		rpc:         rpc,
		concurrency: concurrency,
		batchSize:   batchSize,
		requests:    make(chan Request, requestCapacity),
		results:     make(chan Result, requestCapacity),
	}
}

// Requests returns the channel the main loop submits lookups on.
func (w *Worker) Requests() chan<- Request {
	return w.requests
}

// Results returns the channel resolved lookups are published on, in no
// particular arrival order; callers match by Result.Position.
func (w *Worker) Results() <-chan Result {
	return w.results
}

// Run drains the request channel in batches of up to batchSize,
// resolving each batch with up to concurrency parallel RPC calls, until
// ctx is cancelled or the request channel is closed.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.results)

	batch := make([]Request, 0, w.batchSize)
	for {
		batch = batch[:0]
		select {
		case req, ok := <-w.requests:
			if !ok {
				return
			}
			batch = append(batch, req)
		case <-ctx.Done():
			return
		}

	drain:
		for len(batch) < w.batchSize {
			select {
			case req, ok := <-w.requests:
				if !ok {
					break drain
				}
				batch = append(batch, req)
			default:
				break drain
			}
		}

		w.resolveBatch(ctx, batch)
	}
}

func (w *Worker) resolveBatch(ctx context.Context, batch []Request) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(w.concurrency)

	for _, req := range batch {
		req := req
		group.Go(func() error {
			info, err := w.fetchOne(groupCtx, req.TxID)
			select {
			case w.results <- Result{Position: req.Position, Info: info, Err: err}:
			case <-ctx.Done():
			}
			return nil
		})
	}

	// Errors are delivered per-result via Result.Err, not propagated
	// through the group, so a single failed lookup doesn't cancel its
	// batch-mates.
	_ = group.Wait()
}

func (w *Worker) fetchOne(ctx context.Context, txid string) (rpcclient.RawTransactionInfo, error) {
	var info rpcclient.RawTransactionInfo
	err := rpcclient.RetryWithBackoff(ctx, func() error {
		var err error
		info, err = w.rpc.GetRawTransactionInfo(ctx, txid)
		return err
	})
	if err != nil {
		return rpcclient.RawTransactionInfo{}, fmt.Errorf("prefetch: fetch %s: %w", txid, err)
	}
	return info, nil
}

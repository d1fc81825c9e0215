package rpcclient

import (
	"context"
	"errors"
	"time"
)

// ErrTransient marks a network-level failure (timeout, connection
// refused) that the caller should retry with backoff, per spec.md §7's
// "transient upstream" error kind.
var ErrTransient = errors.New("rpcclient: transient upstream error")

// ErrRPC marks a well-formed JSON-RPC error response from the node
// (e.g. block not found, invalid parameter).
var ErrRPC = errors.New("rpcclient: node returned an error")

// maxBackoff caps the exponential backoff at 120 seconds, per spec.md §4.3.
const maxBackoff = 120 * time.Second

// RetryWithBackoff calls fn repeatedly on transient errors, doubling the
// delay each attempt starting at 1 second and capping at maxBackoff.
// Non-transient errors (ErrRPC, parse errors) are returned immediately
// without retry. If ctx is done while waiting to retry, it returns
// ctx.Err().
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	delay := time.Second
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTransient) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
}

package discovery

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/distributed/ecatmaster/wire"
)

const (
	backoffBase       = 50 * time.Millisecond
	backoffCap        = 500 * time.Millisecond
	backoffMaxRetries = 5
	backoffJitter     = 0.2
)

// withBusyRetry runs fn, retrying with exponential backoff and ±20%
// jitter (base 50ms, cap 500ms, up to 5 attempts) when it fails with
// wire.ErrBusBusy — discovery and cyclic exchange are mutually exclusive,
// so a busy bus is expected to clear shortly. wire.ErrPermission aborts
// immediately (spec.md §4.3).
func withBusyRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < backoffMaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, wire.ErrPermission) {
			return err
		}
		if !errors.Is(err, wire.ErrBusBusy) {
			return err
		}
		lastErr = err

		delay := backoffBase * time.Duration(1<<uint(attempt))
		if delay > backoffCap {
			delay = backoffCap
		}
		jitter := 1 + backoffJitter*(2*rand.Float64()-1)
		delay = time.Duration(float64(delay) * jitter)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

package transport

import (
	"context"
	"time"
)

// Backoff blocks until the next attempt may start.
// It returns ctx.Err() when the context is done first.
type Backoff func(context.Context) error

// StaticBackoff waits for a fixed interval on every call.
func StaticBackoff(interval time.Duration) Backoff {
	return func(ctx context.Context) error {
		return Sleep(ctx, interval)
	}
}

// Sleep waits for d or for ctx to be done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package retry

import (
	"context"
	"time"

	"noctiluca-tools/pkg/types"
)

// Do runs fn up to attempts times, sleeping with exponential backoff between
// transient failures. The delay starts at base and doubles up to max.
// Non-transient errors are returned immediately; transient errors are
// returned once attempts are exhausted.
func Do(ctx context.Context, attempts int, base, max time.Duration, fn func() error) error {
	delay := base
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !types.IsTransient(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > max {
			delay = max
		}
	}
	return err
}

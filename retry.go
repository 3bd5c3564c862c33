package dtlspsk

import (
	"context"
	"fmt"
	"time"
)

// retryWithBackoff executes fn, retrying with exponential backoff (capped
// at 5 minutes) while IsTemporary(err) holds, up to maxRetries retries
// after the first attempt, so maxRetries+1 calls of fn in all (a negative
// value retries indefinitely). It is used only to guard the
// endpoint's resolver call; nothing else in this package retries on its
// own, since record retransmission is a named non-goal.
func retryWithBackoff(ctx context.Context, maxRetries int, initialBackoff time.Duration, fn func() error) error {
	const maxBackoff = 5 * time.Minute

	attempt := 0
	backoff := initialBackoff

	for {
		err := fn()
		if err == nil {
			if attempt > 0 {
				Debug("resolver retry succeeded after %d attempts", attempt)
			}
			return nil
		}

		attempt++

		if !IsTemporary(err) {
			return fmt.Errorf("%w: %v", ErrResolveFailed, err)
		}
		if maxRetries >= 0 && attempt > maxRetries {
			return fmt.Errorf("%w: max retries (%d) exceeded: %v", ErrResolveFailed, maxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: retry cancelled after %d attempts: %v", ErrResolveFailed, attempt, ctx.Err())
		default:
		}

		Debug("resolver retry attempt %d failed: %v (waiting %v)", attempt, err, backoff)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: retry cancelled during backoff: %v", ErrResolveFailed, ctx.Err())
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

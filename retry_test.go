package dtlspsk

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryWithBackoffSucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), 5, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("%w: attempt %d", ErrResolveFailed, attempts)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retryWithBackoff: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRetryWithBackoffGivesUpOnNonTemporaryError(t *testing.T) {
	attempts := 0
	permanent := errors.New("permanent failure")
	err := retryWithBackoff(context.Background(), 5, time.Millisecond, func() error {
		attempts++
		return permanent
	})
	if !errors.Is(err, ErrResolveFailed) {
		t.Fatalf("expected wrapped ErrResolveFailed, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry on non-temporary error)", attempts)
	}
}

func TestRetryWithBackoffRespectsMaxRetries(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), 2, time.Millisecond, func() error {
		attempts++
		return fmt.Errorf("%w: attempt %d", ErrResolveFailed, attempts)
	})
	if !errors.Is(err, ErrResolveFailed) {
		t.Fatalf("expected wrapped ErrResolveFailed, got %v", err)
	}
	if attempts != 3 { // initial attempt + 2 retries
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRetryWithBackoffRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := retryWithBackoff(ctx, 5, time.Millisecond, func() error {
		attempts++
		return fmt.Errorf("%w", ErrResolveFailed)
	})
	if !errors.Is(err, ErrResolveFailed) {
		t.Fatalf("expected wrapped ErrResolveFailed, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (cancelled before any backoff wait completes)", attempts)
	}
}

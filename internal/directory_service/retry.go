package directory_service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/exp/rand"

	"github.com/AnishMulay/capfs/internal/file_service"
)

const (
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = 5 * time.Millisecond

	maxRetryDelay = time.Second
)

type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

// delay doubles per attempt and adds up to the same again in jitter.
func (p retryPolicy) delay(attempt int) time.Duration {
	if p.backoff <= 0 {
		return 0
	}
	d := p.backoff
	for i := 1; i < attempt && d < maxRetryDelay; i++ {
		d *= 2
	}
	d = min(d, maxRetryDelay)
	return d + time.Duration(rand.Int63n(int64(d)+1))
}

// do calls fn until it returns something other than a concurrent
// modification, or attempts run out.
func (p retryPolicy) do(ctx context.Context, onRetry func(attempt int, err error), fn func() error) error {
	attempts := max(p.attempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); !errors.Is(err, file_service.ErrConcurrentModification) {
			return err
		}
		if attempt == attempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		t := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

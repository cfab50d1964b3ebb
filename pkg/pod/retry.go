package pod

import (
	"context"
	"errors"
	"time"

	"github.com/bertrandchenal/lakota/pkg/lakotaerrs"
)

// DefaultRetryAttempts is the number of times a POD_IO error is retried
// before being surfaced to the caller.
const DefaultRetryAttempts = 3

// retryBaseDelay is the initial backoff; it doubles on every attempt.
const retryBaseDelay = 50 * time.Millisecond

// WithRetry runs fn up to DefaultRetryAttempts times, retrying only when fn
// fails with an error wrapping lakotaerrs.PodIO. Any other error, including
// PodNotFound, is returned immediately without retrying.
func WithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := retryBaseDelay
	for attempt := 0; attempt < DefaultRetryAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, lakotaerrs.PodIO) {
			return lastErr
		}
		if attempt == DefaultRetryAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}

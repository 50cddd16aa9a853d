package openrouter

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/url"
	"time"

	"github.com/koopa0/granary/internal/log"
)

// RetryPolicy describes bounded retry with exponential backoff.
// Only errors accepted by Retryable are retried; everything else is
// surfaced immediately. The zero value retries nothing.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Jitter is the fraction of the current backoff added at random
	// to each wait, desynchronizing concurrent clients.
	Jitter float64

	// Retryable classifies errors. Nil means no error is retryable.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the policy used for upstream API calls:
// 3 attempts, 2s initial backoff doubling up to 30s, 20% jitter,
// transient (network/timeout) errors only.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		Jitter:         0.2,
		Retryable:      IsTransient,
	}
}

// Do runs fn under the policy. It returns nil on the first success,
// the original error for non-retryable failures, and the last error
// wrapped with attempt context once attempts are exhausted.
func (p RetryPolicy) Do(ctx context.Context, logger log.Logger, op string, fn func() error) error {
	delay := p.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := delay
		if p.Jitter > 0 {
			wait += time.Duration(rand.Float64() * p.Jitter * float64(delay))
		}
		logger.Warn("retrying after transient error",
			"op", op,
			"attempt", attempt,
			"wait", wait,
			"error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: context canceled during retry: %w", op, ctx.Err())
		case <-time.After(wait):
			delay = min(delay*2, p.MaxBackoff)
		}
	}

	return fmt.Errorf("%s after %d attempts: %w", op, p.MaxAttempts, lastErr)
}

// IsTransient reports whether err is a network or timeout failure
// eligible for automatic retry. Provider-reported errors (rate limits,
// rejected requests) are terminal and excluded.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var rateLimit *RateLimitError
	if errors.As(err, &rateLimit) {
		return false
	}
	var api *APIError
	if errors.As(err, &api) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	return false
}

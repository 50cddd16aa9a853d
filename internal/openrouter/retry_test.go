package openrouter

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/granary/internal/log"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Retryable:      IsTransient,
	}
}

func TestRetryFirstSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	err := fastPolicy().Do(context.Background(), log.NewNop(), "op", func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryNonRetryableReturnsOriginal(t *testing.T) {
	t.Parallel()

	calls := 0
	original := &RateLimitError{RetryAfter: 10}
	err := fastPolicy().Do(context.Background(), log.NewNop(), "op", func() error {
		calls++
		return original
	})

	assert.Equal(t, 1, calls)
	var rateLimit *RateLimitError
	require.ErrorAs(t, err, &rateLimit)
	assert.Equal(t, 10, rateLimit.RetryAfter)
}

func TestRetryEventualSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	err := fastPolicy().Do(context.Background(), log.NewNop(), "op", func() error {
		calls++
		if calls < 3 {
			return &url.Error{Op: "Post", URL: "http://example.test", Err: errors.New("connection refused")}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustion(t *testing.T) {
	t.Parallel()

	calls := 0
	transient := &url.Error{Op: "Post", URL: "http://example.test", Err: errors.New("connection refused")}
	err := fastPolicy().Do(context.Background(), log.NewNop(), "op", func() error {
		calls++
		return transient
	})

	assert.Equal(t, 3, calls)
	require.Error(t, err)
	assert.ErrorContains(t, err, "after 3 attempts")
	var urlErr *url.Error
	assert.ErrorAs(t, err, &urlErr)
}

func TestRetryContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Minute,
		MaxBackoff:     time.Minute,
		Retryable:      IsTransient,
	}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, log.NewNop(), "op", func() error {
			calls++
			return &url.Error{Op: "Post", URL: "http://example.test", Err: errors.New("down")}
		})
	}()

	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not stop after context cancellation")
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "rate limit", err: &RateLimitError{RetryAfter: 30}, want: false},
		{name: "api error", err: &APIError{StatusCode: 500, Body: "boom"}, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "url error", err: &url.Error{Op: "Post", URL: "x", Err: errors.New("refused")}, want: true},
		{name: "generic error", err: errors.New("something else"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

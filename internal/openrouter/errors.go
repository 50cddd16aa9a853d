package openrouter

import "fmt"

// RateLimitError is returned when the provider reports a rate limit
// (HTTP 429). It is never absorbed by the local retry policy; callers
// get it immediately together with the provider's retry-after hint.
type RateLimitError struct {
	// RetryAfter is the provider-suggested wait, in seconds.
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %d seconds", e.RetryAfter)
}

// ConnectionError is returned when the streaming backend cannot be
// reached after exhausting connection retries.
type ConnectionError struct {
	Reason string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to OpenRouter: %s", e.Reason)
}

// EmbeddingError is returned when embedding generation fails for any
// reason other than a rate limit.
type EmbeddingError struct {
	Reason string
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("failed to generate embeddings: %s", e.Reason)
}

// APIError is a non-2xx, non-429 response from the provider.
// It is terminal: the request was delivered and rejected, so the retry
// policy does not apply.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("OpenRouter API error (%d): %s", e.StatusCode, e.Body)
}

// Package openrouter is the HTTP client for the OpenRouter API.
//
// It covers the two upstream calls granary makes: embedding generation
// (single and batch) and streaming chat completion. Transient network
// failures are retried under RetryPolicy; provider-reported rate limits
// surface immediately as *RateLimitError with a retry-after hint.
package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/koopa0/granary/internal/log"
)

// defaultRetryAfter is assumed when a 429 response carries no
// Retry-After header.
const defaultRetryAfter = 30

// maxHistoryMessages bounds how much conversation history is replayed
// into the prompt.
const maxHistoryMessages = 10

// systemPrompt frames the model as a knowledge-base assistant. The
// retrieved context is injected via %s.
const systemPrompt = `You are a helpful AI assistant with access to a knowledge base.
Answer questions based on the provided context. If the context doesn't contain
relevant information, say so and provide a general answer if possible.
Always cite the source documents when using information from the context.

Context from knowledge base:
%s`

// Message is one turn of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config configures the OpenRouter client.
type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string

	// Timeout bounds a single embedding request. The streaming chat
	// call is bounded by its context instead, since a healthy stream
	// can legitimately run for minutes.
	Timeout time.Duration

	// RequestsPerSecond gates outbound calls; 0 means 5 rps.
	RequestsPerSecond float64

	// Retry overrides the retry policy; zero value means DefaultRetryPolicy.
	Retry RetryPolicy
}

// Client calls the OpenRouter API. It is safe for concurrent use.
type Client struct {
	httpClient     *http.Client
	streamClient   *http.Client
	baseURL        string
	apiKey         string
	chatModel      string
	embeddingModel string
	limiter        *rate.Limiter
	retry          RetryPolicy
	logger         log.Logger
}

// New creates a new OpenRouter client.
func New(cfg Config, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = 5
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}

	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		streamClient:   &http.Client{},
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		limiter:        rate.NewLimiter(rate.Limit(rps), 1),
		retry:          retry,
		logger:         logger,
	}
}

// Embed generates an embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embedWithRetry(ctx, text, 1)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request,
// returning one vector per input in the same order. Batching bounds the
// number of round trips during ingestion to one call per document.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return c.embedWithRetry(ctx, texts, len(texts))
}

// embedWithRetry runs one embeddings request under the retry policy.
// input is either a string or a []string; both use the same request shape.
func (c *Client) embedWithRetry(ctx context.Context, input any, want int) ([][]float32, error) {
	var vectors [][]float32
	err := c.retry.Do(ctx, c.logger, "embeddings", func() error {
		v, err := c.embed(ctx, input, want)
		if err != nil {
			return err
		}
		vectors = v
		return nil
	})
	if err != nil {
		var rateLimit *RateLimitError
		if errors.As(err, &rateLimit) {
			return nil, err
		}
		return nil, &EmbeddingError{Reason: err.Error()}
	}
	return vectors, nil
}

// embed performs a single embeddings request attempt.
func (c *Client) embed(ctx context.Context, input any, want int) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	payload := map[string]any{
		"model": c.embeddingModel,
		"input": input,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embeddings request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{RetryAfter: parseRetryAfter(resp)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(out.Data) != want {
		return nil, fmt.Errorf("expected %d embeddings, got %d", want, len(out.Data))
	}

	vectors := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// chatStreamFrame is one decoded SSE data frame from the completions stream.
type chatStreamFrame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// StreamChat opens a streaming chat completion and returns the text
// fragments as a pull-driven sequence. The upstream connection is read
// only as the consumer iterates, and is released as soon as iteration
// stops or ctx is cancelled.
//
// Retry covers connection establishment only. Once a fragment has been
// delivered, a failure terminates the sequence with an error rather than
// re-invoking the call, which would re-deliver the stream from the start
// and duplicate output.
func (c *Client) StreamChat(ctx context.Context, message, ragContext string, history []Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var resp *http.Response
		err := c.retry.Do(ctx, c.logger, "chat stream", func() error {
			r, err := c.openStream(ctx, message, ragContext, history)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		if err != nil {
			var rateLimit *RateLimitError
			var api *APIError
			if errors.As(err, &rateLimit) || errors.As(err, &api) {
				yield("", err)
				return
			}
			yield("", &ConnectionError{Reason: err.Error()})
			return
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}
			if data == "[DONE]" {
				return
			}

			var frame chatStreamFrame
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				// Malformed frames are skipped, not fatal
				continue
			}
			if len(frame.Choices) == 0 {
				continue
			}
			delta := frame.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if !yield(delta, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("reading chat stream: %w", err))
		}
	}
}

// openStream performs a single connection attempt for the chat stream.
// The caller owns resp.Body on success.
func (c *Client) openStream(ctx context.Context, message, ragContext string, history []Message) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{
		Role:    "system",
		Content: fmt.Sprintf(systemPrompt, ragContext),
	})
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	messages = append(messages, history...)
	messages = append(messages, Message{Role: "user", Content: message})

	payload := map[string]any{
		"model":    c.chatModel,
		"messages": messages,
		"stream":   true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp)
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil, &RateLimitError{RetryAfter: retryAfter}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	return resp, nil
}

// setHeaders sets the authentication and content-type headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

// parseRetryAfter reads the Retry-After header as integer seconds,
// falling back to defaultRetryAfter.
func parseRetryAfter(resp *http.Response) int {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return defaultRetryAfter
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds < 0 {
		return defaultRetryAfter
	}
	return seconds
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/koopa0/granary/internal/openrouter"
	"github.com/koopa0/granary/internal/rag"
)

// maxTopK caps the requested retrieval depth.
const maxTopK = 20

// ChatResponder answers a question with retrieved context and a
// streamed completion.
type ChatResponder interface {
	Answer(ctx context.Context, message string, history []openrouter.Message, opts rag.QueryOptions) (*rag.Answer, error)
}

// ChatHandler handles streaming chat requests.
type ChatHandler struct {
	responder ChatResponder
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(responder ChatResponder) *ChatHandler {
	return &ChatHandler{responder: responder}
}

// RegisterRoutes registers the chat endpoint on the mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.handleChat)
}

// ChatRequest is the request body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
	History []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"history"`
	TopK        int      `json:"top_k"`
	MaxDistance *float64 `json:"max_distance"`
}

// handleChat answers a question over SSE. Event order on success:
// one "sources" event, zero or more "content" events, one "done" event.
// Failures before the stream starts are plain JSON errors; failures
// mid-stream become a terminal "error" event.
func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}
	if req.TopK < 0 || req.TopK > maxTopK {
		writeError(w, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("top_k must be in [0, %d]", maxTopK))
		return
	}
	for _, m := range req.History {
		if m.Role != "user" && m.Role != "assistant" {
			writeError(w, http.StatusBadRequest, "invalid_request",
				"history roles must be 'user' or 'assistant'")
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	history := make([]openrouter.Message, len(req.History))
	for i, m := range req.History {
		history[i] = openrouter.Message{Role: m.Role, Content: m.Content}
	}

	answer, err := h.responder.Answer(r.Context(), req.Message, history, rag.QueryOptions{
		TopK:        req.TopK,
		MaxDistance: req.MaxDistance,
	})
	if err != nil {
		writeChatError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sources := answer.Sources
	if sources == nil {
		sources = []rag.Source{}
	}
	writeSSE(w, flusher, "sources", map[string]any{"sources": sources})

	ctx := r.Context()
	for delta, err := range answer.Stream {
		if ctx.Err() != nil {
			// Client went away; stop pulling from upstream
			return
		}
		if err != nil {
			slog.Warn("chat stream failed", "error", err)
			writeSSE(w, flusher, "error", map[string]any{"message": err.Error()})
			return
		}
		writeSSE(w, flusher, "content", map[string]any{"content": delta})
	}

	writeSSE(w, flusher, "done", map[string]any{})
}

// writeSSE writes one named SSE event with a JSON payload and flushes it.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal SSE payload", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

// writeChatError maps pre-stream failures to HTTP statuses.
func writeChatError(w http.ResponseWriter, err error) {
	var rateLimit *openrouter.RateLimitError
	if errors.As(err, &rateLimit) {
		w.Header().Set("Retry-After", strconv.Itoa(rateLimit.RetryAfter))
		writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
		return
	}

	var embedding *openrouter.EmbeddingError
	var connection *openrouter.ConnectionError
	if errors.As(err, &embedding) || errors.As(err, &connection) {
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
		return
	}

	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

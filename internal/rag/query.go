package rag

import (
	"context"
	"iter"

	"github.com/google/uuid"

	"github.com/koopa0/granary/internal/log"
	"github.com/koopa0/granary/internal/openrouter"
	"github.com/koopa0/granary/internal/store"
)

// defaultTopK is the retrieval depth used when neither the configuration
// nor the caller asks for a specific one.
const defaultTopK = 5

// Embedder generates an embedding for a single text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs similarity search over stored chunks.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, topK int, maxDistance *float64) ([]store.Match, error)
}

// ChatStreamer streams a chat completion grounded in ragContext.
type ChatStreamer interface {
	StreamChat(ctx context.Context, message, ragContext string, history []openrouter.Message) iter.Seq2[string, error]
}

// Source identifies one document that contributed context to an answer.
type Source struct {
	DocumentID uuid.UUID `json:"document_id"`
	Name       string    `json:"name"`
}

// Answer is the result of a query: the contributing sources, known
// before generation starts, and the streamed answer text.
type Answer struct {
	Sources []Source
	Stream  iter.Seq2[string, error]
}

// QueryOptions tune retrieval for a single query.
type QueryOptions struct {
	// TopK is the retrieval depth; 0 means the Responder's configured
	// default.
	TopK int

	// MaxDistance, when set, drops matches farther than this L2
	// distance from the query.
	MaxDistance *float64
}

// Responder answers questions using retrieved context.
type Responder struct {
	embedder Embedder
	searcher Searcher
	streamer ChatStreamer
	topK     int
	logger   log.Logger
}

// NewResponder creates a Responder from its pipeline stages. topK is the
// configured retrieval depth used when a query does not override it;
// values <= 0 fall back to defaultTopK.
func NewResponder(embedder Embedder, searcher Searcher, streamer ChatStreamer, topK int, logger log.Logger) *Responder {
	if topK <= 0 {
		topK = defaultTopK
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Responder{
		embedder: embedder,
		searcher: searcher,
		streamer: streamer,
		topK:     topK,
		logger:   logger,
	}
}

// Answer retrieves context for message and opens a streaming completion
// over it. Retrieval runs eagerly so Sources is complete on return; the
// upstream model call happens lazily when the stream is consumed.
//
// history is replayed into the prompt; opts tunes retrieval.
func (r *Responder) Answer(ctx context.Context, message string, history []openrouter.Message, opts QueryOptions) (*Answer, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = r.topK
	}

	embedding, err := r.embedder.Embed(ctx, message)
	if err != nil {
		return nil, err
	}

	matches, err := r.searcher.Search(ctx, embedding, topK, opts.MaxDistance)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("retrieved context",
		"matches", len(matches),
		"top_k", topK)

	return &Answer{
		Sources: distinctSources(matches),
		Stream:  r.streamer.StreamChat(ctx, message, BuildContext(matches), history),
	}, nil
}

// distinctSources collapses matches to one source per document,
// preserving retrieval order.
func distinctSources(matches []store.Match) []Source {
	seen := make(map[uuid.UUID]struct{}, len(matches))
	var sources []Source
	for _, m := range matches {
		if _, ok := seen[m.DocumentID]; ok {
			continue
		}
		seen[m.DocumentID] = struct{}{}
		sources = append(sources, Source{DocumentID: m.DocumentID, Name: m.DocumentName})
	}
	return sources
}

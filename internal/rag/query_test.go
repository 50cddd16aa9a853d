package rag

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/granary/internal/openrouter"
	"github.com/koopa0/granary/internal/store"
)

// mockQueryEmbedder returns a fixed vector for the query.
type mockQueryEmbedder struct {
	vector []float32
	err    error

	gotText string
}

func (m *mockQueryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.gotText = text
	return m.vector, m.err
}

// mockSearcher records search parameters and returns configured matches.
type mockSearcher struct {
	matches []store.Match
	err     error

	gotTopK        int
	gotMaxDistance *float64
}

func (m *mockSearcher) Search(ctx context.Context, embedding []float32, topK int, maxDistance *float64) ([]store.Match, error) {
	m.gotTopK = topK
	m.gotMaxDistance = maxDistance
	return m.matches, m.err
}

// mockStreamer records the grounding context and yields fixed fragments.
type mockStreamer struct {
	fragments []string

	gotMessage string
	gotContext string
	gotHistory []openrouter.Message
}

func (m *mockStreamer) StreamChat(ctx context.Context, message, ragContext string, history []openrouter.Message) iter.Seq2[string, error] {
	m.gotMessage = message
	m.gotContext = ragContext
	m.gotHistory = history
	return func(yield func(string, error) bool) {
		for _, f := range m.fragments {
			if !yield(f, nil) {
				return
			}
		}
	}
}

func TestAnswer(t *testing.T) {
	t.Parallel()

	docA := uuid.New()
	docB := uuid.New()
	matches := []store.Match{
		{DocumentID: docA, DocumentName: "a.pdf", Content: "first", Distance: 0.1},
		{DocumentID: docB, DocumentName: "b.pdf", Content: "second", Distance: 0.2},
		{DocumentID: docA, DocumentName: "a.pdf", Content: "third", Distance: 0.3},
	}

	embedder := &mockQueryEmbedder{vector: []float32{0.5}}
	searcher := &mockSearcher{matches: matches}
	streamer := &mockStreamer{fragments: []string{"Hello", " there"}}
	r := NewResponder(embedder, searcher, streamer, 0, nil)

	history := []openrouter.Message{{Role: "user", Content: "before"}}
	answer, err := r.Answer(t.Context(), "what is this?", history, QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, "what is this?", embedder.gotText)
	assert.Equal(t, defaultTopK, searcher.gotTopK)
	assert.Nil(t, searcher.gotMaxDistance)

	// Sources are distinct per document, in retrieval order
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, Source{DocumentID: docA, Name: "a.pdf"}, answer.Sources[0])
	assert.Equal(t, Source{DocumentID: docB, Name: "b.pdf"}, answer.Sources[1])

	var got []string
	for delta, err := range answer.Stream {
		require.NoError(t, err)
		got = append(got, delta)
	}
	assert.Equal(t, []string{"Hello", " there"}, got)

	assert.Equal(t, "what is this?", streamer.gotMessage)
	assert.Equal(t, BuildContext(matches), streamer.gotContext)
	assert.Equal(t, history, streamer.gotHistory)
}

func TestAnswerOptions(t *testing.T) {
	t.Parallel()

	maxDist := 0.7
	searcher := &mockSearcher{}
	r := NewResponder(&mockQueryEmbedder{vector: []float32{1}}, searcher, &mockStreamer{}, 0, nil)

	_, err := r.Answer(t.Context(), "q", nil, QueryOptions{TopK: 9, MaxDistance: &maxDist})
	require.NoError(t, err)

	assert.Equal(t, 9, searcher.gotTopK)
	require.NotNil(t, searcher.gotMaxDistance)
	assert.Equal(t, maxDist, *searcher.gotMaxDistance)
}

func TestAnswerConfiguredTopK(t *testing.T) {
	t.Parallel()

	searcher := &mockSearcher{}
	r := NewResponder(&mockQueryEmbedder{vector: []float32{1}}, searcher, &mockStreamer{}, 7, nil)

	_, err := r.Answer(t.Context(), "q", nil, QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 7, searcher.gotTopK)

	// A per-query TopK still overrides the configured default.
	_, err = r.Answer(t.Context(), "q", nil, QueryOptions{TopK: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, searcher.gotTopK)
}

func TestAnswerNoMatches(t *testing.T) {
	t.Parallel()

	streamer := &mockStreamer{fragments: []string{"general answer"}}
	r := NewResponder(&mockQueryEmbedder{vector: []float32{1}}, &mockSearcher{}, streamer, 0, nil)

	answer, err := r.Answer(t.Context(), "q", nil, QueryOptions{})
	require.NoError(t, err)

	assert.Empty(t, answer.Sources)
	assert.Equal(t, noContextFallback, streamer.gotContext)
}

func TestAnswerEmbedFailure(t *testing.T) {
	t.Parallel()

	embedErr := errors.New("embedding down")
	r := NewResponder(&mockQueryEmbedder{err: embedErr}, &mockSearcher{}, &mockStreamer{}, 0, nil)

	_, err := r.Answer(t.Context(), "q", nil, QueryOptions{})
	assert.ErrorIs(t, err, embedErr)
}

func TestAnswerSearchFailure(t *testing.T) {
	t.Parallel()

	searchErr := errors.New("db down")
	r := NewResponder(&mockQueryEmbedder{vector: []float32{1}}, &mockSearcher{err: searchErr}, &mockStreamer{}, 0, nil)

	_, err := r.Answer(t.Context(), "q", nil, QueryOptions{})
	assert.ErrorIs(t, err, searchErr)
}

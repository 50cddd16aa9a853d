// Package rag orchestrates the two halves of the pipeline: Ingestor
// turns uploaded documents into stored embedded chunks, and Responder
// turns a user question into a streamed grounded answer.
package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/koopa0/granary/internal/log"
	"github.com/koopa0/granary/internal/store"
)

// TextExtractor extracts plain text from raw document bytes.
type TextExtractor interface {
	Extract(data []byte, filename string) (string, error)
}

// TextChunker splits text into ordered chunks.
type TextChunker interface {
	Split(text string) []string
}

// BatchEmbedder generates one embedding per input text.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkInserter persists a batch of chunks atomically.
type ChunkInserter interface {
	InsertBatch(ctx context.Context, chunks []store.Chunk) error
}

// Ingestor runs the ingestion pipeline: extract, chunk, embed, persist.
type Ingestor struct {
	extractor TextExtractor
	chunker   TextChunker
	embedder  BatchEmbedder
	inserter  ChunkInserter
	logger    log.Logger
}

// NewIngestor creates an Ingestor from its pipeline stages.
func NewIngestor(extractor TextExtractor, chunker TextChunker, embedder BatchEmbedder, inserter ChunkInserter, logger log.Logger) *Ingestor {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Ingestor{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		inserter:  inserter,
		logger:    logger,
	}
}

// Ingest processes one uploaded document end to end and returns the new
// document ID and the number of chunks stored. All embeddings for the
// document are requested in a single batch call, and nothing is
// persisted unless every stage succeeds.
func (ing *Ingestor) Ingest(ctx context.Context, data []byte, filename string) (uuid.UUID, int, error) {
	text, err := ing.extractor.Extract(data, filename)
	if err != nil {
		return uuid.Nil, 0, err
	}
	if text == "" {
		return uuid.Nil, 0, fmt.Errorf("%s: %w", filename, ErrEmptyDocument)
	}

	texts := ing.chunker.Split(text)
	if len(texts) == 0 {
		return uuid.Nil, 0, fmt.Errorf("%s: %w", filename, ErrNoChunksProduced)
	}

	embeddings, err := ing.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return uuid.Nil, 0, err
	}
	if len(embeddings) != len(texts) {
		return uuid.Nil, 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(texts))
	}

	documentID := uuid.New()
	chunks := make([]store.Chunk, len(texts))
	for i, content := range texts {
		chunks[i] = store.Chunk{
			ID:           uuid.New(),
			DocumentID:   documentID,
			DocumentName: filename,
			Content:      content,
			ChunkIndex:   i,
			Embedding:    embeddings[i],
		}
	}

	if err := ing.inserter.InsertBatch(ctx, chunks); err != nil {
		return uuid.Nil, 0, err
	}

	ing.logger.Info("document ingested",
		"document_id", documentID,
		"filename", filename,
		"chunks", len(chunks))
	return documentID, len(chunks), nil
}

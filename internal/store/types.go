// Package store persists document chunks and their embeddings in
// PostgreSQL with pgvector, and answers similarity searches over them.
package store

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingDim is the dimensionality of stored embeddings. It must match
// the vector(N) column in the document_chunks table and the embedding
// model in use.
const EmbeddingDim = 1536

// Chunk is one embedded segment of a document.
type Chunk struct {
	ID           uuid.UUID
	DocumentID   uuid.UUID
	DocumentName string
	Content      string
	ChunkIndex   int
	Embedding    []float32
	CreatedAt    time.Time
}

// Match is a search hit: a chunk plus its L2 distance from the query
// vector. Smaller distance means more similar. Embedding is not loaded
// for matches.
type Match struct {
	ID           uuid.UUID
	DocumentID   uuid.UUID
	DocumentName string
	Content      string
	ChunkIndex   int
	Distance     float64
}

// DocumentInfo summarizes one ingested document.
type DocumentInfo struct {
	ID         uuid.UUID
	Name       string
	CreatedAt  time.Time
	ChunkCount int
}

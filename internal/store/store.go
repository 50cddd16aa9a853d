package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/koopa0/granary/internal/log"
)

// Store provides chunk persistence and similarity search over a pgx
// connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// New creates a Store backed by pool.
func New(pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, logger: logger}
}

// InsertBatch inserts all chunks in a single transaction. Either every
// chunk becomes visible or none does, so a partially ingested document
// can never be observed.
func (s *Store) InsertBatch(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, c := range chunks {
		if len(c.Embedding) != EmbeddingDim {
			return fmt.Errorf("chunk %d of document %s: embedding has %d dimensions, want %d",
				c.ChunkIndex, c.DocumentID, len(c.Embedding), EmbeddingDim)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO document_chunks (id, document_id, document_name, content, chunk_index, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.DocumentID, c.DocumentName, c.Content, c.ChunkIndex, pgvector.NewVector(c.Embedding))
		if err != nil {
			return fmt.Errorf("insert chunk %d of document %s: %w", c.ChunkIndex, c.DocumentID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Debug("inserted chunk batch",
		"document_id", chunks[0].DocumentID,
		"chunks", len(chunks))
	return nil
}

// Search returns the topK chunks nearest to embedding by L2 distance,
// ascending. When maxDistance is non-nil, matches farther than it are
// filtered out after ranking.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int, maxDistance *float64) ([]Match, error) {
	if len(embedding) != EmbeddingDim {
		return nil, fmt.Errorf("query embedding has %d dimensions, want %d", len(embedding), EmbeddingDim)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, document_name, content, chunk_index,
		       embedding <-> $1 AS distance
		FROM document_chunks
		ORDER BY distance
		LIMIT $2`,
		pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.DocumentName, &m.Content, &m.ChunkIndex, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if maxDistance != nil && m.Distance > *maxDistance {
			continue
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}

	return matches, nil
}

// DeleteByDocument removes all chunks of the given document and returns
// how many rows were deleted. Deleting an unknown document is not an
// error; it reports zero.
func (s *Store) DeleteByDocument(ctx context.Context, documentID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return tag.RowsAffected(), nil
}

// ListDocuments returns a summary of every ingested document, newest
// first.
func (s *Store) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT document_id, document_name, MIN(created_at) AS created_at, COUNT(*) AS chunk_count
		FROM document_chunks
		GROUP BY document_id, document_name
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentInfo
	for rows.Next() {
		var d DocumentInfo
		if err := rows.Scan(&d.ID, &d.Name, &d.CreatedAt, &d.ChunkCount); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	return docs, nil
}

// CountDocuments returns the number of distinct ingested documents.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT document_id) FROM document_chunks`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// CountChunks returns the total number of stored chunks.
func (s *Store) CountChunks(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

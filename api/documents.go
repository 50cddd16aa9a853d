package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/koopa0/granary/internal/store"
)

// DocumentStore exposes document management over stored chunks.
type DocumentStore interface {
	ListDocuments(ctx context.Context) ([]store.DocumentInfo, error)
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) (int64, error)
	CountDocuments(ctx context.Context) (int, error)
	CountChunks(ctx context.Context) (int, error)
}

// DocumentsHandler handles document management endpoints.
type DocumentsHandler struct {
	store DocumentStore
}

// NewDocumentsHandler creates a new documents handler.
func NewDocumentsHandler(store DocumentStore) *DocumentsHandler {
	return &DocumentsHandler{store: store}
}

// RegisterRoutes registers the document endpoints on the mux.
func (h *DocumentsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/documents", h.handleList)
	mux.HandleFunc("DELETE /api/documents/{id}", h.handleDelete)
	mux.HandleFunc("GET /api/stats", h.handleStats)
}

// DocumentResponse is one entry in the document listing.
type DocumentResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	ChunkCount int       `json:"chunk_count"`
}

// handleList returns all ingested documents, newest first.
func (h *DocumentsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	out := make([]DocumentResponse, len(docs))
	for i, d := range docs {
		out[i] = DocumentResponse{
			ID:         d.ID.String(),
			Name:       d.Name,
			CreatedAt:  d.CreatedAt,
			ChunkCount: d.ChunkCount,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

// handleDelete removes a document and all its chunks. Unknown IDs are 404.
func (h *DocumentsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	documentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "document id must be a UUID")
		return
	}

	deleted, err := h.store.DeleteByDocument(r.Context(), documentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if deleted == 0 {
		writeError(w, http.StatusNotFound, "not_found", "document not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"document_id":    documentID.String(),
		"deleted_chunks": deleted,
	})
}

// StatsResponse is the payload of GET /api/stats.
type StatsResponse struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

// handleStats returns knowledge base counters.
func (h *DocumentsHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	docCount, err := h.store.CountDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	chunkCount, err := h.store.CountChunks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{Documents: docCount, Chunks: chunkCount})
}

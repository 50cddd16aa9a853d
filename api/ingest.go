package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/koopa0/granary/internal/document"
	"github.com/koopa0/granary/internal/openrouter"
	"github.com/koopa0/granary/internal/rag"
)

// MaxUploadBytes caps the size of an uploaded document.
const MaxUploadBytes = 50 << 20 // 50 MiB

// DocumentIngestor runs the ingestion pipeline for one document.
type DocumentIngestor interface {
	Ingest(ctx context.Context, data []byte, filename string) (uuid.UUID, int, error)
}

// IngestHandler handles document upload requests.
type IngestHandler struct {
	ingestor DocumentIngestor
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(ingestor DocumentIngestor) *IngestHandler {
	return &IngestHandler{ingestor: ingestor}
}

// RegisterRoutes registers the ingest endpoint on the mux.
func (h *IngestHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ingest", h.handleIngest)
}

// IngestResponse is the success payload of POST /api/ingest.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Chunks     int    `json:"chunks"`
}

// handleIngest accepts a multipart upload (field "file"), runs the
// ingestion pipeline, and reports the stored document.
func (h *IngestHandler) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large",
				fmt.Sprintf("upload exceeds %d bytes", MaxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "multipart field 'file' is required")
		return
	}
	defer func() {
		_ = file.Close()
	}()

	filename := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		writeError(w, http.StatusBadRequest, "unsupported_file_type", "only PDF files are supported")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large",
				fmt.Sprintf("upload exceeds %d bytes", MaxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read uploaded file")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "uploaded file is empty")
		return
	}

	documentID, chunks, err := h.ingestor.Ingest(r.Context(), data, filename)
	if err != nil {
		writeIngestError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, IngestResponse{
		DocumentID: documentID.String(),
		Filename:   filename,
		Chunks:     chunks,
	})
}

// writeIngestError maps pipeline failures to HTTP statuses.
func writeIngestError(w http.ResponseWriter, err error) {
	var rateLimit *openrouter.RateLimitError
	if errors.As(err, &rateLimit) {
		w.Header().Set("Retry-After", strconv.Itoa(rateLimit.RetryAfter))
		writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
		return
	}

	var extraction *document.ExtractionError
	if errors.As(err, &extraction) ||
		errors.Is(err, rag.ErrEmptyDocument) ||
		errors.Is(err, rag.ErrNoChunksProduced) {
		writeError(w, http.StatusUnprocessableEntity, "unprocessable_document", err.Error())
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

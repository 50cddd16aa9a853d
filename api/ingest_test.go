package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/granary/internal/document"
	"github.com/koopa0/granary/internal/openrouter"
	"github.com/koopa0/granary/internal/rag"
)

// mockIngestor records uploads and returns a configured result.
type mockIngestor struct {
	documentID uuid.UUID
	chunks     int
	err        error

	gotFilename string
	gotData     []byte
	calls       int
}

func (m *mockIngestor) Ingest(ctx context.Context, data []byte, filename string) (uuid.UUID, int, error) {
	m.calls++
	m.gotData = data
	m.gotFilename = filename
	return m.documentID, m.chunks, m.err
}

func multipartUpload(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func postIngest(t *testing.T, h *IngestHandler, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := multipartUpload(t, field, filename, content)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/ingest", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestIngestSuccess(t *testing.T) {
	t.Parallel()

	docID := uuid.New()
	ingestor := &mockIngestor{documentID: docID, chunks: 7}
	rec := postIngest(t, NewIngestHandler(ingestor), "file", "report.pdf", []byte("%PDF-1.4 content"))

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, docID.String(), resp.DocumentID)
	assert.Equal(t, "report.pdf", resp.Filename)
	assert.Equal(t, 7, resp.Chunks)

	assert.Equal(t, "report.pdf", ingestor.gotFilename)
	assert.Equal(t, []byte("%PDF-1.4 content"), ingestor.gotData)
}

func TestIngestUppercaseExtensionAccepted(t *testing.T) {
	t.Parallel()

	ingestor := &mockIngestor{documentID: uuid.New(), chunks: 1}
	rec := postIngest(t, NewIngestHandler(ingestor), "file", "REPORT.PDF", []byte("x"))

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestIngestStripsPathFromFilename(t *testing.T) {
	t.Parallel()

	ingestor := &mockIngestor{documentID: uuid.New(), chunks: 1}
	rec := postIngest(t, NewIngestHandler(ingestor), "file", "../../etc/report.pdf", []byte("x"))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "report.pdf", ingestor.gotFilename)
}

func TestIngestRejectsNonPDF(t *testing.T) {
	t.Parallel()

	ingestor := &mockIngestor{}
	rec := postIngest(t, NewIngestHandler(ingestor), "file", "notes.txt", []byte("x"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, ingestor.calls)
}

func TestIngestRejectsEmptyFile(t *testing.T) {
	t.Parallel()

	ingestor := &mockIngestor{}
	rec := postIngest(t, NewIngestHandler(ingestor), "file", "report.pdf", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "empty")
	assert.Zero(t, ingestor.calls)
}

func TestIngestRejectsMissingFile(t *testing.T) {
	t.Parallel()

	ingestor := &mockIngestor{}
	rec := postIngest(t, NewIngestHandler(ingestor), "wrong_field", "report.pdf", []byte("x"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, ingestor.calls)
}

func TestIngestErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "corrupt document",
			err:        &document.ExtractionError{Filename: "report.pdf", Reason: "bad xref"},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "empty document",
			err:        rag.ErrEmptyDocument,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "no chunks",
			err:        rag.ErrNoChunksProduced,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "embedding failure",
			err:        &openrouter.EmbeddingError{Reason: "down"},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "connection failure",
			err:        &openrouter.ConnectionError{Reason: "refused"},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "unknown failure",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := postIngest(t, NewIngestHandler(&mockIngestor{err: tt.err}), "file", "report.pdf", []byte("x"))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestIngestRateLimitSetsRetryAfter(t *testing.T) {
	t.Parallel()

	ingestor := &mockIngestor{err: &openrouter.RateLimitError{RetryAfter: 21}}
	rec := postIngest(t, NewIngestHandler(ingestor), "file", "report.pdf", []byte("x"))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "21", rec.Header().Get("Retry-After"))
}

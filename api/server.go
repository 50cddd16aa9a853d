// Package api provides the HTTP REST API for granary.
//
// Endpoints:
//
//	POST   /api/ingest          → upload and ingest a PDF document
//	POST   /api/chat            → ask a question, answer streamed via SSE
//	GET    /api/documents       → list ingested documents
//	DELETE /api/documents/{id}  → remove a document and its chunks
//	GET    /api/stats           → knowledge base counters
//	GET    /health              → liveness probe
//	GET    /ready               → readiness probe (checks the database)
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - ingest.go: document upload endpoint
//   - chat.go: streaming chat endpoint
//   - documents.go: document listing, deletion, and stats
//   - health.go: health check endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/koopa0/granary/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	// Uploads up to the size cap must fit comfortably within it.
	ReadTimeout = 60 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Chat responses stream token by token, so this is generous.
	WriteTimeout = 2 * time.Minute

	// IdleTimeout is the maximum time to wait for the next request on keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for granary's REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	// Handlers
	health    *HealthHandler
	ingest    *IngestHandler
	chat      *ChatHandler
	documents *DocumentsHandler
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(ingestor DocumentIngestor, responder ChatResponder, docs DocumentStore, pinger Pinger, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:       mux,
		logger:    logger,
		health:    NewHealthHandler(pinger),
		ingest:    NewIngestHandler(ingestor),
		chat:      NewChatHandler(responder),
		documents: NewDocumentsHandler(docs),
	}

	s.health.RegisterRoutes(mux)
	s.ingest.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.documents.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

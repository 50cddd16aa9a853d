package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koopa0/granary/api"
	"github.com/koopa0/granary/db"
	"github.com/koopa0/granary/internal/config"
	"github.com/koopa0/granary/internal/document"
	"github.com/koopa0/granary/internal/log"
	"github.com/koopa0/granary/internal/observability"
	"github.com/koopa0/granary/internal/openrouter"
	"github.com/koopa0/granary/internal/rag"
	"github.com/koopa0/granary/internal/store"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", api.DefaultAddr, "listen address")
	rootCmd.AddCommand(serveCmd)
}

// runServe wires configuration, storage, and the pipeline together and
// runs the HTTP server until interrupted.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger()
	slog.SetDefault(logger)
	logger.Info("starting granary", "version", AppVersion, "config", cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:      cfg.TracingEnabled,
		OTLPEndpoint: cfg.OTLPEndpoint,
		ServiceName:  cfg.ServiceName,
		Environment:  cfg.Environment,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := store.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	chunker, err := document.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("creating chunker: %w", err)
	}

	client := openrouter.New(openrouter.Config{
		APIKey:         cfg.OpenRouterAPIKey,
		BaseURL:        cfg.OpenRouterBaseURL,
		ChatModel:      cfg.ChatModel,
		EmbeddingModel: cfg.EmbeddingModel,
	}, logger)

	chunkStore := store.New(pool, logger)
	ingestor := rag.NewIngestor(document.NewExtractor(), chunker, client, chunkStore, logger)
	responder := rag.NewResponder(client, chunkStore, client, cfg.TopK, logger)

	server := api.NewServer(ingestor, responder, chunkStore, pool, logger)
	return server.Run(ctx, flagAddr)
}

// newLogger builds the process logger from the root flags.
func newLogger() log.Logger {
	level := slog.LevelInfo
	switch flagLogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return log.New(log.Config{Level: level, JSON: flagLogJSON})
}

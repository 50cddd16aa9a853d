// Package cmd defines the granary command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	flagLogLevel string
	flagLogJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "granary",
	Short: "Granary - a RAG knowledge base service",
	Long: `Granary ingests PDF documents into a PostgreSQL/pgvector knowledge
base and answers questions over it with streamed, source-attributed
completions via OpenRouter.

Run 'granary serve' to start the HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "emit logs as JSON")
}

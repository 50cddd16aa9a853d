package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koopa0/granary/db"
	"github.com/koopa0/granary/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return db.Migrate(cfg.PostgresURL(), newLogger())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

package cmd

import (
	"context"
	"fmt"
	"time"

	"painscope/internal/storage"

	"github.com/spf13/cobra"
)

// dbCmd groups database subcommands.
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database utilities",
}

// dbPingCmd verifies Postgres connectivity and runs migrations.
var dbPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Connect to Postgres, migrate, and print OK",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		store, err := storage.Open(cfg.Database.DSN)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "OK")
		return nil
	},
}

func init() {
	dbCmd.AddCommand(dbPingCmd)
	rootCmd.AddCommand(dbCmd)
}

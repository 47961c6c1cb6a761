// Forge Migrate — применяет миграции схемы базы данных.
//
// Использование:
//
//	forge-migrate [up|down|status]
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Forge/internal/config"
	"github.com/shaiso/Forge/internal/repo"
	"github.com/shaiso/Forge/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()

	var dsn string
	dsnFn := func() (string, error) {
		if dsn != "" {
			return dsn, nil
		}
		cfg, err := config.Load(os.Getenv("FORGE_CONFIG"))
		if err != nil {
			return "", err
		}
		return cfg.DBURL, nil
	}

	rootCmd := &cobra.Command{
		Use:           "forge-migrate",
		Short:         "Apply Forge database migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Database URL (default: from config)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				url, err := dsnFn()
				if err != nil {
					return err
				}
				return repo.Migrate(cmd.Context(), url, logger)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				url, err := dsnFn()
				if err != nil {
					return err
				}
				return repo.MigrateDown(cmd.Context(), url, logger)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: func(cmd *cobra.Command, _ []string) error {
				url, err := dsnFn()
				if err != nil {
					return err
				}
				return repo.MigrationStatus(cmd.Context(), url)
			},
		},
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

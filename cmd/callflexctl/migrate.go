package main

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"callflex/internal/config"
	"callflex/migrations"
	"callflex/pkg/utils"
)

// Every statement is IF NOT EXISTS, so re-running is safe and no version
// table is kept.
func migrateCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the API's own schema objects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			files, err := migrations.All()
			if err != nil {
				return err
			}
			if dryRun {
				for _, f := range files {
					fmt.Fprintf(cmd.OutOrStdout(), "-- %s\n%s\n", f.Name, f.SQL)
				}
				return nil
			}

			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
			if err != nil {
				return err
			}
			defer db.Close()

			for _, f := range files {
				if _, err := db.ExecContext(ctx, f.SQL); err != nil {
					return fmt.Errorf("apply %s: %w", f.Name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", f.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the SQL without running it")
	return cmd
}

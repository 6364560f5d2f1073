package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/sieve/internal/core/db"
)

var (
	migrateSeed   bool
	migrateStatus bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateSeed, "seed", false, "insert the demo dataset when the database is empty")
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "list migrations and exit")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	database, err := db.Open(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if migrateStatus {
		statuses, err := db.MigrateStatus(ctx, database)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "MIGRATION\tAPPLIED\tAPPLIED AT")
		for _, s := range statuses {
			appliedAt := "-"
			if s.AppliedAt != nil {
				appliedAt = *s.AppliedAt
			}
			fmt.Fprintf(tw, "%s\t%t\t%s\n", s.ID, s.Applied, appliedAt)
		}
		return tw.Flush()
	}

	ran, err := db.MigrateUp(ctx, database)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", "count", len(ran), "migrations", ran)

	if migrateSeed {
		summary, err := db.Seed(ctx, database, time.Now())
		if err != nil {
			return err
		}
		if summary.Skipped {
			logger.Info("seed skipped, database already has data")
		} else {
			logger.Info("seed data inserted",
				"accounts", summary.Accounts,
				"deals", summary.Deals,
				"products", summary.Products,
			)
		}
	}
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/sieve/internal/core/db"
)

var queryFlags requestFlags

var queryCmd = &cobra.Command{
	Use:     "query",
	Short:   "Run a rule tree against the database and print matching rows",
	Example: `  sieve query --db-url sqlite://sieve.db --resource deals --owner alice --file tree.json --limit 20`,
	Args:    cobra.NoArgs,
	RunE:    runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryFlags.register(queryCmd)
	queryCmd.Flags().IntVar(&queryFlags.limit, "limit", 0, "row limit (default and cap: server.max_rows)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	database, err := db.Open(cmd.Context(), cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	dialect, err := db.Dialect(database)
	if err != nil {
		return err
	}
	service, err := newService(cfg, database, dialect, logger)
	if err != nil {
		return err
	}
	ctx, req, err := queryFlags.build(cmd)
	if err != nil {
		return err
	}

	resp, err := service.Query(ctx, req)
	if err != nil {
		return callError(err)
	}
	return printStruct(cmd.OutOrStdout(), resp)
}

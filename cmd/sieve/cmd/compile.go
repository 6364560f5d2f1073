package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/sieve/internal/query"
)

var (
	compileFlags   requestFlags
	compileDialect string
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Render the SQL a rule tree compiles to, without a database",
	Example: `  sieve compile --resource deals --owner alice --file tree.json
  echo '{"condition":"and","children":[]}' | sieve compile --resource deals --owner alice --file - --dialect postgres`,
	Args: cobra.NoArgs,
	RunE: runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)
	compileFlags.register(compileCmd)
	compileCmd.Flags().StringVar(&compileDialect, "dialect", "sqlite", "SQL dialect (sqlite, postgres)")
	compileCmd.Flags().IntVar(&compileFlags.limit, "limit", 0, "row limit (default: server.max_rows)")
}

func runCompile(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	var dialect query.Dialect
	switch compileDialect {
	case "sqlite":
		dialect = query.SQLite
	case "postgres":
		dialect = query.Postgres
	default:
		return fmt.Errorf("unsupported dialect %q (expected sqlite or postgres)", compileDialect)
	}

	service, err := newService(cfg, nil, dialect, logger)
	if err != nil {
		return err
	}
	ctx, req, err := compileFlags.build(cmd)
	if err != nil {
		return err
	}

	resp, err := service.Preview(ctx, req)
	if err != nil {
		return callError(err)
	}
	return printStruct(cmd.OutOrStdout(), resp)
}

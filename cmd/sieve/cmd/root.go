package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/sieve/internal/catalog"
	"github.com/solatis/sieve/internal/core/api"
	"github.com/solatis/sieve/internal/core/auth"
	"github.com/solatis/sieve/internal/core/config"
	"github.com/solatis/sieve/internal/query"
	"github.com/solatis/sieve/internal/rules"
)

// Version is the CLI and server version.
const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:          "sieve",
	Short:        "Sieve dynamic filter rule engine",
	Long:         `Sieve compiles rule-builder filter trees into SQL constraints over a catalog of resources.`,
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads configuration with flag overrides and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbURL != "" {
		cfg.Database.URL = dbURL
	}

	logger, err := config.NewLogger(logLevel, logFormat, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newService wires catalog, compiler and service. database may be nil.
func newService(cfg *config.Config, database *sqlx.DB, dialect query.Dialect, logger *slog.Logger) (*api.FilterService, error) {
	cat, err := catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	loc, err := cfg.Engine.Location()
	if err != nil {
		return nil, err
	}
	compiler := rules.NewCompiler(
		rules.WithLocation(loc),
		rules.WithLimits(cfg.Engine.Limits()),
		rules.WithLogger(logger),
	)
	return api.NewFilterService(database, dialect, cat, compiler, cfg.Server, logger)
}

// requestFlags are shared by compile and query.
type requestFlags struct {
	resource string
	file     string
	owners   string
	operands string
	limit    int
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.resource, "resource", "", "catalog resource name (required)")
	cmd.Flags().StringVar(&f.file, "file", "", "rule tree JSON file, - for stdin (default: no filter)")
	cmd.Flags().StringVar(&f.owners, "owner", "", "comma separated owner IDs the caller may see (required)")
	cmd.Flags().StringVar(&f.operands, "operands", "", "comma separated operand keys the caller may filter on")
	_ = cmd.MarkFlagRequired("resource")
	_ = cmd.MarkFlagRequired("owner")
}

// build turns the flags into a request struct and a principal context,
// parsed exactly as the gRPC interceptor would.
func (f *requestFlags) build(cmd *cobra.Command) (context.Context, *structpb.Struct, error) {
	md := metadata.Pairs(auth.OwnerHeader, f.owners)
	if cmd.Flags().Changed("operands") {
		md.Append(auth.OperandsHeader, f.operands)
	}
	p, err := auth.ParsePrincipal(md)
	if err != nil {
		return nil, nil, err
	}

	fields := map[string]any{"resource": f.resource}
	if f.file != "" {
		tree, err := readTree(cmd.InOrStdin(), f.file)
		if err != nil {
			return nil, nil, err
		}
		fields["filter"] = tree
	}
	if f.limit > 0 {
		fields["limit"] = f.limit
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, nil, err
	}
	return auth.WithPrincipal(cmd.Context(), p), req, nil
}

func readTree(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read rule tree: %w", err)
	}
	return string(data), nil
}

func printStruct(w io.Writer, s *structpb.Struct) error {
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// callError turns a service status error into a plain CLI error.
func callError(err error) error {
	st := status.Convert(err)
	return fmt.Errorf("%s: %s", st.Code(), st.Message())
}

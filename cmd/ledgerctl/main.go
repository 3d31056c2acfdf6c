// Command ledgerctl is the operator tool for wallets, payouts and settings.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/afroboost/Tribeat-v4-sub000/internal/database"
	"github.com/afroboost/Tribeat-v4-sub000/internal/logging"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(viper.New()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate coach wallets, payouts and platform settings",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("db-url", "", "Postgres connection string (env DB_URL)")
	flags.String("jwt-secret", "", "token signing secret (env JWT_SECRET)")
	flags.StringP("output", "o", "json", "output format: json or yaml")
	flags.String("app-env", "production", "environment used for log formatting (env APP_ENV)")

	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, name := range []string{"db-url", "jwt-secret", "output", "app-env"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(balanceCmd(v))
	rootCmd.AddCommand(reconcileCmd(v))
	rootCmd.AddCommand(compensateCmd(v))
	rootCmd.AddCommand(commissionCmd(v))
	rootCmd.AddCommand(payoutAccountCmd(v))
	rootCmd.AddCommand(anomaliesCmd(v))
	rootCmd.AddCommand(tokenCmd(v))
	return rootCmd
}

// env is what a subcommand needs once flags and environment are resolved.
type env struct {
	db     *pgxpool.Pool
	logger *zap.Logger
	out    io.Writer
	format string
}

func (e *env) close() {
	if e.logger != nil {
		_ = e.logger.Sync()
	}
	database.CloseDB()
}

func openEnv(cmd *cobra.Command, v *viper.Viper) (*env, error) {
	format, err := outputFormat(v)
	if err != nil {
		return nil, err
	}
	dbURL := v.GetString("db-url")
	if dbURL == "" {
		return nil, fmt.Errorf("--db-url or DB_URL is required")
	}

	logger, err := logging.New(v.GetString("app-env"))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	if err := database.ConnectDB(dbURL, 4); err != nil {
		database.CloseDB()
		return nil, err
	}
	return &env{db: database.DB, logger: logger, out: cmd.OutOrStdout(), format: format}, nil
}

func outputFormat(v *viper.Viper) (string, error) {
	format := strings.ToLower(strings.TrimSpace(v.GetString("output")))
	switch format {
	case "", "json":
		return "json", nil
	case "yaml", "yml":
		return "yaml", nil
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
}

func render(w io.Writer, format string, value any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(value); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

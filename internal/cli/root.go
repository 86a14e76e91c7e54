// Package cli implements the folio command line.
package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lborres/folio/internal/config"
	"github.com/lborres/folio/internal/logger"
)

var (
	configPath string
	envFile    string
	jsonOutput bool
)

// rootCmd is the base command
var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Search books and keep favorites",
	Long: `folio searches the book catalog and keeps a signed-in user's favorites.

The session is cached on disk (or in redis) so later invocations start
signed in. Favorites and profiles live in memory or in PostgreSQL.

Environment Variables:
  FOLIO_STORE, FOLIO_DATABASE_URL     Store driver and PostgreSQL DSN
  FOLIO_CACHE, FOLIO_CACHE_PATH       Cache driver and file path
  FOLIO_REDIS_ADDR                    Redis address for the redis cache
  FOLIO_BOOKS_API_KEY                 Catalog API key
  LOG_LEVEL, LOG_FORMAT               Logging (debug|info|warn|error, text|json)`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default "+config.DefaultConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before the config")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON instead of human-readable text")
}

// IsJSONOutput returns whether JSON output is requested
func IsJSONOutput() bool {
	return jsonOutput
}

// withApp loads the configuration, opens an app and hands it to run.
func withApp(cmd *cobra.Command, run func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	slog.SetDefault(log)

	ctx := cmd.Context()
	a, err := openApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return run(ctx, a)
}

// Package commands implements the dbal command line.
package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/readingbuddy/dbal/cli/internal/ui"
	"github.com/readingbuddy/dbal/cli/internal/version"
	"github.com/readingbuddy/dbal/internal/config"
	"github.com/readingbuddy/dbal/internal/debug"
	"github.com/readingbuddy/dbal/query/domain"
	"github.com/readingbuddy/dbal/runtime/client"
	"github.com/readingbuddy/dbal/runtime/factory"
)

var rootCmd = &cobra.Command{
	Use:   "dbal",
	Short: "Query Supabase or PostgreSQL through one builder",
	Long: `dbal compiles and runs queries against the configured backend.

The backend is chosen by DB_PROVIDER (supabase or postgres), read from the
environment, .env, .env.local or a .dbal.yaml config file.`,
	Version:       version.Get().Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug.SetJSON(logJSON)
		debug.Init(debugFlag)
	},
}

var (
	debugFlag bool
	logJSON   bool
	configDir string
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().StringVarP(&configDir, "dir", "C", ".", "Directory holding .env, .env.local and .dbal.yaml")
}

// Execute is the main entry point for the CLI
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printErr(err)
	}
	return err
}

// printErr prints err unless it was already rendered as part of the output.
func printErr(err error) {
	var printed errPrinted
	if errors.As(err, &printed) {
		return
	}
	var dbErr *domain.Error
	if errors.As(err, &dbErr) {
		ui.PrintDBError(dbErr)
		return
	}
	ui.PrintError("%v", err)
}

// loadConfig resolves the configuration from --dir. --debug wins over
// DBAL_DEBUG only when set.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadDir(configDir)
	if err != nil {
		return nil, err
	}
	if cfg.Debug && !debugFlag {
		debug.Init(true)
	}
	return cfg, nil
}

// openSelector loads the configuration and prepares the backend.
func openSelector() (*factory.Selector, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	var opts []factory.Option
	if debug.Enabled() {
		opts = append(opts, factory.WithMiddleware(client.LoggingMiddleware()))
	}
	return factory.New(cfg, opts...)
}

// clientFor returns the admin client or a server client acting for token.
func clientFor(s *factory.Selector, admin bool, token string) (client.DatabaseClient, error) {
	if admin {
		return s.Admin()
	}
	return s.Server(token)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

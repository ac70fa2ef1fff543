package commands

import (
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/readingbuddy/dbal/cli/internal/ui"
	"github.com/readingbuddy/dbal/internal/config"
)

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Show the resolved backend configuration",
	Long: `Show which backend DB_PROVIDER selects and the settings it will use.

Passwords and keys are masked unless --show-secrets is given.`,
	Args: cobra.NoArgs,
	RunE: runProvider,
}

var (
	providerSecrets bool
	providerJSON    bool
)

func init() {
	providerCmd.Flags().BoolVar(&providerSecrets, "show-secrets", false, "Print passwords and keys in clear")
	providerCmd.Flags().BoolVar(&providerJSON, "json", false, "Print as JSON")

	rootCmd.AddCommand(providerCmd)
}

var secretKeys = map[string]bool{
	config.KeyPostgresPassword: true,
	config.KeySupabaseAnonKey:  true,
	config.KeySupabaseService:  true,
}

func runProvider(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	env := providerEnv(cfg, providerSecrets)

	if providerJSON {
		return ui.PrintJSON(env)
	}

	if cfg.ConfigFile != "" {
		ui.PrintSuccess("Using %s", cfg.ConfigFile)
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		if k != config.KeyProvider {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := [][2]string{{config.KeyProvider, env[config.KeyProvider]}}
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, env[k]})
	}
	ui.PrintKeyValues(pairs)

	if err := cfg.Validate(); err != nil {
		ui.PrintWarning("%v", err)
	}
	return nil
}

// providerEnv returns the settings of the selected provider with pool
// limits, masking secrets unless reveal is set.
func providerEnv(cfg *config.Config, reveal bool) map[string]string {
	env := cfg.Env()
	if cfg.Provider == config.ProviderPostgres {
		env[config.KeyPoolMaxConns] = strconv.Itoa(cfg.Pool.MaxConns)
		env[config.KeyPoolIdleTimeout] = cfg.Pool.IdleTimeout.String()
		env[config.KeyPoolConnectTimeout] = cfg.Pool.ConnectTimeout.String()
	}
	if !reveal {
		for k, v := range env {
			if secretKeys[k] {
				env[k] = mask(v)
			}
		}
	}
	return env
}

// mask keeps the first four characters of long secrets.
func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return strings.Repeat("*", 8)
	default:
		return s[:4] + strings.Repeat("*", 8)
	}
}

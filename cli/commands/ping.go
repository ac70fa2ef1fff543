package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/readingbuddy/dbal/cli/internal/ui"
	"github.com/readingbuddy/dbal/internal/config"
	"github.com/readingbuddy/dbal/runtime/factory"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the configured backend is reachable",
	Long: `Check connectivity to the configured backend.

On postgres the pool is health checked and the server version verified.
Supabase has no ping endpoint, so --table names a table to read one row
from.`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

var (
	pingTable   string
	pingTimeout time.Duration
)

func init() {
	pingCmd.Flags().StringVar(&pingTable, "table", "", "Table to read one row from (required on supabase)")
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 5*time.Second, "Give up after this long")

	rootCmd.AddCommand(pingCmd)
}

func runPing(cmd *cobra.Command, args []string) error {
	selector, err := openSelector()
	if err != nil {
		return err
	}
	defer selector.Close()

	ctx, cancel := context.WithTimeout(commandContext(cmd), pingTimeout)
	defer cancel()

	if selector.Provider() == config.ProviderPostgres {
		if err := pingPool(ctx, selector); err != nil {
			return err
		}
	} else if pingTable == "" {
		return fmt.Errorf("--table is required to ping the %s provider", selector.Provider())
	}

	if pingTable == "" {
		return nil
	}
	db, err := selector.Server("")
	if err != nil {
		return err
	}
	start := time.Now()
	res := db.From(pingTable).Limit(1).Execute(ctx)
	if res.Error != nil {
		return res.Error
	}
	ui.PrintSuccess("Read %s on %s in %s", pingTable, db.Backend(), time.Since(start).Round(time.Millisecond))
	return nil
}

func pingPool(ctx context.Context, selector *factory.Selector) error {
	p := selector.Pool()
	start := time.Now()
	if err := p.HealthCheck(ctx); err != nil {
		return err
	}
	latency := time.Since(start)

	v, err := p.CheckServerVersion(ctx)
	if err != nil {
		return err
	}

	stats := p.Stats()
	ui.PrintSuccess("PostgreSQL %s reachable in %s", v.Original(), latency.Round(time.Millisecond))
	ui.PrintKeyValues([][2]string{
		{"Max connections", strconv.Itoa(stats.MaxOpenConnections)},
		{"Open", strconv.Itoa(stats.OpenConnections)},
		{"In use", strconv.Itoa(stats.InUse)},
		{"Idle", strconv.Itoa(stats.Idle)},
		{"Wait count", strconv.FormatInt(stats.WaitCount, 10)},
		{"Failed checks", strconv.FormatInt(stats.FailedHealthChecks, 10)},
	})
	return nil
}

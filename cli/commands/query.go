package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/readingbuddy/dbal/cli/internal/ui"
	"github.com/readingbuddy/dbal/cli/internal/watch"
	"github.com/readingbuddy/dbal/query/domain"
)

var queryCmd = &cobra.Command{
	Use:   "query [table]",
	Short: "Run a query on the configured backend",
	Long: `Run a query on the backend selected by DB_PROVIDER and print the result.

Without --admin the query runs as a server client; pass --token to act for a
signed in user on Supabase.`,
	Example: `  dbal query books --where "user_id = 'u-1'" --order updated_at --desc --limit 5
  dbal query books --where "id = 7" --single --json
  dbal query reading_progress --row '{user_id: u-1, book_id: 7, page: 12}' --on-conflict user_id,book_id`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuery,
}

var (
	queryQuery queryFlags
	queryAdmin bool
	queryToken string
	queryJSON  bool
	queryWatch bool
)

func init() {
	queryQuery.register(queryCmd.Flags())
	queryCmd.Flags().BoolVar(&queryAdmin, "admin", false, "Use the admin client (service role key on Supabase)")
	queryCmd.Flags().StringVar(&queryToken, "token", "", "Access token of the user to act for")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Print the {data, error, count} envelope as JSON")
	queryCmd.Flags().BoolVar(&queryWatch, "watch", false, "Rerun when --file changes")

	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	selector, err := openSelector()
	if err != nil {
		return err
	}
	defer selector.Close()

	db, err := clientFor(selector, queryAdmin, queryToken)
	if err != nil {
		return err
	}

	run := func() error {
		q, err := queryQuery.build(cmd.Flags(), args, db)
		if err != nil {
			return err
		}
		return printResult(q.Execute(commandContext(cmd)), queryJSON)
	}

	if !queryWatch {
		return run()
	}
	if queryQuery.file == "" {
		return fmt.Errorf("--watch requires --file")
	}
	if err := readFile(queryQuery.file); err != nil {
		return err
	}
	w, err := watch.NewWatcher(queryQuery.file, watch.DefaultDebounce, func() error {
		if err := run(); err != nil {
			printErr(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	ui.PrintSuccess("Watching %s", queryQuery.file)
	return w.Run(commandContext(cmd))
}

// printResult prints a result envelope. A failed result is returned as an
// error after the envelope is printed in JSON mode.
func printResult(res *domain.Result, asJSON bool) error {
	if asJSON {
		if err := ui.PrintJSON(res); err != nil {
			return err
		}
		if res.Error != nil {
			return errPrinted{res.Error}
		}
		return nil
	}
	if res.Error != nil {
		return res.Error
	}
	switch res.Mode {
	case domain.Single, domain.MaybeSingle:
		if res.Row == nil {
			return ui.PrintRecords(nil)
		}
		return ui.PrintRecords([]domain.Record{res.Row})
	default:
		return ui.PrintRecords(res.Rows)
	}
}

// errPrinted carries an error whose details are already on stdout.
type errPrinted struct{ err error }

func (e errPrinted) Error() string { return e.err.Error() }
func (e errPrinted) Unwrap() error { return e.err }

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/readingbuddy/dbal/cli/internal/ui"
	"github.com/readingbuddy/dbal/cli/internal/watch"
)

var compileCmd = &cobra.Command{
	Use:   "compile [table]",
	Short: "Print the SQL a query compiles to",
	Long: `Compile a query without connecting to a database.

The statement and its bound arguments are printed as they would be sent to
PostgreSQL. With --watch the query file is recompiled on every save.`,
	Example: `  dbal compile books --where "status = 'reading'" --order title --limit 10
  dbal compile books --set status=finished --where "id = 3"
  dbal compile -f queries/recent.yaml --watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCompile,
}

var (
	compileQuery   queryFlags
	compileExplain bool
	compileJSON    bool
	compileWatch   bool
)

func init() {
	compileQuery.register(compileCmd.Flags())
	compileCmd.Flags().BoolVar(&compileExplain, "explain", false, "Describe the query in markdown")
	compileCmd.Flags().BoolVar(&compileJSON, "json", false, "Print the statement as JSON")
	compileCmd.Flags().BoolVar(&compileWatch, "watch", false, "Recompile when --file changes")

	rootCmd.AddCommand(compileCmd)
}

func runCompile(cmd *cobra.Command, args []string) error {
	if !compileWatch {
		return compileOnce(cmd, args)
	}
	if compileQuery.file == "" {
		return fmt.Errorf("--watch requires --file")
	}
	if err := readFile(compileQuery.file); err != nil {
		return err
	}
	w, err := watch.NewWatcher(compileQuery.file, watch.DefaultDebounce, func() error {
		if err := compileOnce(cmd, args); err != nil {
			printErr(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	ui.PrintSuccess("Watching %s", compileQuery.file)
	return w.Run(commandContext(cmd))
}

func compileOnce(cmd *cobra.Command, args []string) error {
	q, err := compileQuery.build(cmd.Flags(), args, nil)
	if err != nil {
		return err
	}
	stmt, err := q.Compile()
	if err != nil {
		return err
	}

	switch {
	case compileJSON:
		return ui.PrintJSON(struct {
			SQL  string `json:"sql"`
			Args []any  `json:"args"`
		}{stmt.SQL, stmt.Args})
	case compileExplain:
		return ui.PrintMarkdown(ui.ExplainMarkdown(q.Definition(), stmt))
	default:
		return ui.PrintStatement(stmt)
	}
}

package commands

import (
	"github.com/spf13/cobra"
)

var rpcCmd = &cobra.Command{
	Use:   "rpc <function> [name=value...]",
	Short: "Call a database function",
	Long: `Call a database function with named arguments.

Values are read as YAML scalars: 42 is a number, true a boolean and
'42' a string.`,
	Example: `  dbal rpc get_reading_streak user_id=u-1
  dbal rpc search_books query="'dune'" max_results=5 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRPC,
}

var (
	rpcAdmin bool
	rpcToken string
	rpcJSON  bool
)

func init() {
	rpcCmd.Flags().BoolVar(&rpcAdmin, "admin", false, "Use the admin client (service role key on Supabase)")
	rpcCmd.Flags().StringVar(&rpcToken, "token", "", "Access token of the user to act for")
	rpcCmd.Flags().BoolVar(&rpcJSON, "json", false, "Print the {data, error, count} envelope as JSON")

	rootCmd.AddCommand(rpcCmd)
}

func runRPC(cmd *cobra.Command, args []string) error {
	fn := args[0]
	row, err := params(args[1:])
	if err != nil {
		return err
	}

	selector, err := openSelector()
	if err != nil {
		return err
	}
	defer selector.Close()

	db, err := clientFor(selector, rpcAdmin, rpcToken)
	if err != nil {
		return err
	}
	return printResult(db.RPC(commandContext(cmd), fn, row), rpcJSON)
}

package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/readingbuddy/dbal/cli/internal/queryfile"
	"github.com/readingbuddy/dbal/internal/config"
	"github.com/readingbuddy/dbal/query/builder"
	"github.com/readingbuddy/dbal/query/domain"
)

// queryFlags describe one query on the command line. Flags that are set
// override the matching fields of --file.
type queryFlags struct {
	file        string
	operation   string
	columns     string
	where       string
	order       string
	desc        bool
	nulls       string
	limit       int
	rng         string
	single      bool
	maybeSingle bool
	set         []string
	rows        []string
	onConflict  []string
	constraint  string
}

func (q *queryFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&q.file, "file", "f", "", "Read the query from a YAML file")
	fs.StringVar(&q.operation, "op", "", "Operation: select, insert, update, delete or upsert (inferred when omitted)")
	fs.StringVarP(&q.columns, "select", "s", "", "Column projection, e.g. \"id, title\"")
	fs.StringVarP(&q.where, "where", "w", "", "Filter expression, e.g. \"status = 'reading' AND pages > 100\"")
	fs.StringVarP(&q.order, "order", "o", "", "Order by column")
	fs.BoolVar(&q.desc, "desc", false, "Order descending")
	fs.StringVar(&q.nulls, "nulls", "", "Place NULLs first or last")
	fs.IntVarP(&q.limit, "limit", "l", 0, "Maximum number of rows")
	fs.StringVar(&q.rng, "range", "", "Inclusive row window FROM:TO")
	fs.BoolVar(&q.single, "single", false, "Expect exactly one row")
	fs.BoolVar(&q.maybeSingle, "maybe-single", false, "Expect zero or one row")
	fs.StringArrayVar(&q.set, "set", nil, "Column assignment for update, column=value (repeatable)")
	fs.StringArrayVar(&q.rows, "row", nil, "Row to insert as a JSON or YAML object (repeatable)")
	fs.StringSliceVar(&q.onConflict, "on-conflict", nil, "Upsert conflict columns")
	fs.StringVar(&q.constraint, "on-constraint", "", "Upsert conflict constraint name")
}

// queryFile merges --file and the flags that were set into one definition.
func (q *queryFlags) queryFile(fs *pflag.FlagSet, args []string) (*queryfile.File, error) {
	f := &queryfile.File{}
	if q.file != "" {
		loaded, err := queryfile.Load(config.AppFs, q.file)
		if err != nil {
			return nil, err
		}
		f = loaded
	}
	if len(args) > 0 {
		f.Table = args[0]
	}
	if f.Table == "" {
		return nil, fmt.Errorf("a table argument or --file is required")
	}

	if fs.Changed("op") {
		f.Operation = q.operation
	}
	if fs.Changed("select") {
		f.Select = q.columns
	}
	if fs.Changed("where") {
		f.Where = q.where
	}
	if fs.Changed("order") {
		f.Order = &queryfile.Order{Column: q.order, Descending: q.desc, Nulls: q.nulls}
	} else if f.Order != nil {
		if fs.Changed("desc") {
			f.Order.Descending = q.desc
		}
		if fs.Changed("nulls") {
			f.Order.Nulls = q.nulls
		}
	}
	if fs.Changed("limit") {
		limit := q.limit
		f.Limit = &limit
	}
	if fs.Changed("range") {
		r, err := parseRange(q.rng)
		if err != nil {
			return nil, err
		}
		f.Range = r
	}
	switch {
	case q.single && q.maybeSingle:
		return nil, fmt.Errorf("--single and --maybe-single are mutually exclusive")
	case q.single:
		f.Mode = string(domain.Single)
	case q.maybeSingle:
		f.Mode = string(domain.MaybeSingle)
	}

	if len(q.rows) > 0 {
		f.Rows = make([]yaml.Node, 0, len(q.rows))
		for i, raw := range q.rows {
			var doc yaml.Node
			if err := yaml.Unmarshal([]byte(raw), &doc); err != nil || len(doc.Content) != 1 {
				return nil, fmt.Errorf("--row %d: expected an object", i+1)
			}
			f.Rows = append(f.Rows, *doc.Content[0])
		}
	}
	if len(q.set) > 0 {
		set, err := assignments(q.set)
		if err != nil {
			return nil, err
		}
		f.Set = set
	}
	if len(q.onConflict) > 0 || q.constraint != "" {
		f.Conflict = &queryfile.Conflict{Columns: q.onConflict, Constraint: q.constraint}
	}
	return f, nil
}

// build returns the query builder for the command line, bound to runner.
func (q *queryFlags) build(fs *pflag.FlagSet, args []string, runner builder.Runner) (*builder.QueryBuilder, error) {
	f, err := q.queryFile(fs, args)
	if err != nil {
		return nil, err
	}
	return f.Builder(runner)
}

func parseRange(s string) (*queryfile.Range, error) {
	from, to, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("--range must be FROM:TO, got %q", s)
	}
	f, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return nil, fmt.Errorf("--range: invalid start %q", from)
	}
	t, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil {
		return nil, fmt.Errorf("--range: invalid end %q", to)
	}
	return &queryfile.Range{From: f, To: t}, nil
}

// assignments turns column=value pairs into a YAML mapping. Values are
// read as YAML scalars so that 42 is a number and true a boolean; quote
// them to keep a string.
func assignments(pairs []string) (yaml.Node, error) {
	m := yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return yaml.Node{}, fmt.Errorf("expected column=value, got %q", pair)
		}
		m.Content = append(m.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: strings.TrimSpace(key)},
			valueNode(value),
		)
	}
	return m, nil
}

func valueNode(s string) *yaml.Node {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err == nil && len(doc.Content) == 1 {
		return doc.Content[0]
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

// params decodes column=value pairs into a row, in argument order.
func params(pairs []string) (domain.Row, error) {
	m, err := assignments(pairs)
	if err != nil {
		return domain.Row{}, err
	}
	var row domain.Row
	for i := 0; i+1 < len(m.Content); i += 2 {
		var v any
		if err := m.Content[i+1].Decode(&v); err != nil {
			return domain.Row{}, fmt.Errorf("%s: %w", m.Content[i].Value, err)
		}
		row = row.Set(m.Content[i].Value, v)
	}
	return row, row.Err()
}

// readFile is used by --watch to fail fast on an unreadable path.
func readFile(path string) error {
	_, err := afero.ReadFile(config.AppFs, path)
	return err
}

// Package queryfile loads query definitions written in YAML:
//
//	table: books
//	select: id, title
//	where: status = 'reading' AND pages > 100
//	order: {column: title, descending: true, nulls: last}
//	range: {from: 0, to: 9}
//	mode: single
//
// Mutations carry their payload under rows (insert, upsert) or set
// (update). Column order inside each row is kept as written.
package queryfile

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/readingbuddy/dbal/cli/internal/where"
	"github.com/readingbuddy/dbal/query/builder"
	"github.com/readingbuddy/dbal/query/domain"
)

// File is one query definition.
type File struct {
	Table     string      `yaml:"table"`
	Operation string      `yaml:"operation"`
	Select    string      `yaml:"select"`
	Where     string      `yaml:"where"`
	Order     *Order      `yaml:"order"`
	Limit     *int        `yaml:"limit"`
	Range     *Range      `yaml:"range"`
	Mode      string      `yaml:"mode"`
	Rows      []yaml.Node `yaml:"rows"`
	Set       yaml.Node   `yaml:"set"`
	Conflict  *Conflict   `yaml:"on_conflict"`
}

// Order is the ordering clause.
type Order struct {
	Column     string `yaml:"column"`
	Descending bool   `yaml:"descending"`
	// Nulls is "first", "last" or empty.
	Nulls string `yaml:"nulls"`
}

// Range is an inclusive row window.
type Range struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

// Conflict is the upsert target: columns or a constraint name.
type Conflict struct {
	Columns    []string `yaml:"columns"`
	Constraint string   `yaml:"constraint"`
}

// Load reads and parses path from fs.
func Load(fs afero.Fs, path string) (*File, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes a single query definition.
func Parse(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("query file is empty")
		}
		return nil, fmt.Errorf("failed to parse query file: %w", err)
	}
	if f.Table == "" {
		return nil, fmt.Errorf("query file: table is required")
	}
	return &f, nil
}

// Builder turns the definition into a query builder bound to runner.
func (f *File) Builder(runner builder.Runner) (*builder.QueryBuilder, error) {
	q := builder.NewQueryBuilder(f.Table, runner)

	op := strings.ToLower(f.Operation)
	if op == "" {
		op = string(domain.Select)
		if len(f.Rows) > 0 {
			op = string(domain.Insert)
			if f.Conflict != nil {
				op = string(domain.Upsert)
			}
		} else if f.Set.Kind != 0 {
			op = string(domain.Update)
		}
	}

	switch domain.Operation(op) {
	case domain.Select:
		if f.Select != "" {
			q = q.Select(f.Select)
		}
	case domain.Insert, domain.Upsert:
		rows := make([]domain.Row, 0, len(f.Rows))
		for i := range f.Rows {
			row, err := nodeRow(&f.Rows[i])
			if err != nil {
				return nil, fmt.Errorf("rows[%d]: %w", i, err)
			}
			rows = append(rows, row)
		}
		if domain.Operation(op) == domain.Insert {
			q = q.Insert(rows...)
			break
		}
		var target domain.ConflictTarget
		if f.Conflict != nil {
			target = domain.ConflictTarget{Columns: f.Conflict.Columns, Constraint: f.Conflict.Constraint}
		}
		q = q.Upsert(target, rows...)
	case domain.Update:
		row, err := nodeRow(&f.Set)
		if err != nil {
			return nil, fmt.Errorf("set: %w", err)
		}
		q = q.Update(row)
	case domain.Delete:
		q = q.Delete()
	default:
		return nil, fmt.Errorf("unknown operation %q", f.Operation)
	}

	expr, err := where.Parse(f.Where)
	if err != nil {
		return nil, err
	}
	if q, err = expr.Apply(q); err != nil {
		return nil, err
	}

	if f.Order != nil {
		var opts []builder.OrderOption
		if f.Order.Descending {
			opts = append(opts, builder.Desc())
		}
		switch strings.ToLower(f.Order.Nulls) {
		case "first":
			opts = append(opts, builder.NullsFirst())
		case "last":
			opts = append(opts, builder.NullsLast())
		case "":
		default:
			return nil, fmt.Errorf("order.nulls must be first or last, got %q", f.Order.Nulls)
		}
		q = q.Order(f.Order.Column, opts...)
	}
	if f.Limit != nil {
		q = q.Limit(*f.Limit)
	}
	if f.Range != nil {
		q = q.Range(f.Range.From, f.Range.To)
	}

	switch strings.ToLower(f.Mode) {
	case "", string(domain.Multi):
	case strings.ToLower(string(domain.Single)):
		q = q.Single()
	case strings.ToLower(string(domain.MaybeSingle)), "maybe_single":
		q = q.MaybeSingle()
	default:
		return nil, fmt.Errorf("unknown mode %q", f.Mode)
	}

	return q, nil
}

// nodeRow converts a YAML mapping into a Row, keeping key order. Nested
// mappings and sequences become JSON values.
func nodeRow(n *yaml.Node) (domain.Row, error) {
	if n.Kind != yaml.MappingNode {
		return domain.Row{}, fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	var row domain.Row
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], n.Content[i+1]
		var v any
		if err := value.Decode(&v); err != nil {
			return domain.Row{}, fmt.Errorf("line %d: %w", value.Line, err)
		}
		row = row.Set(key.Value, v)
	}
	return row, row.Err()
}

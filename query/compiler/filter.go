package compiler

import (
	"fmt"
	"strings"

	"github.com/readingbuddy/dbal/query/domain"
)

// Clause is one compiled filter: a SQL fragment, the arguments it binds and
// the next free placeholder index.
type Clause struct {
	SQL  string
	Args []any
	Next int
}

var comparisonOps = map[domain.Operator]string{
	domain.Eq:    "=",
	domain.Neq:   "!=",
	domain.Gt:    ">",
	domain.Gte:   ">=",
	domain.Lt:    "<",
	domain.Lte:   "<=",
	domain.Like:  "LIKE",
	domain.ILike: "ILIKE",
}

// CompileFilter compiles a single filter whose first placeholder is $next.
func CompileFilter(f domain.Filter, next int) (Clause, error) {
	if err := domain.CheckIdentifier("column", f.Column); err != nil {
		return Clause{}, err
	}
	argIndex := next

	if op, ok := comparisonOps[f.Operator]; ok {
		sql := fmt.Sprintf("%s %s %s", f.Column, op, placeholder(&argIndex))
		return Clause{SQL: sql, Args: []any{f.Value.Arg()}, Next: argIndex}, nil
	}

	switch f.Operator {
	case domain.Is:
		// NULL cannot be bound as a parameter.
		if f.Value.IsNull() {
			return Clause{SQL: f.Column + " IS NULL", Next: argIndex}, nil
		}
		sql := fmt.Sprintf("%s IS %s", f.Column, placeholder(&argIndex))
		return Clause{SQL: sql, Args: []any{f.Value.Arg()}, Next: argIndex}, nil

	case domain.In:
		if len(f.Values) == 0 {
			return Clause{}, domain.NewCompileError(fmt.Sprintf("in filter on %s needs at least one value", f.Column))
		}
		placeholders := make([]string, len(f.Values))
		args := make([]any, len(f.Values))
		for i, v := range f.Values {
			placeholders[i] = placeholder(&argIndex)
			args[i] = v.Arg()
		}
		sql := fmt.Sprintf("%s IN (%s)", f.Column, strings.Join(placeholders, ", "))
		return Clause{SQL: sql, Args: args, Next: argIndex}, nil

	case domain.Contains:
		doc, err := f.Value.MarshalJSON()
		if err != nil {
			return Clause{}, domain.NewCompileError(fmt.Sprintf("contains filter on %s: %v", f.Column, err))
		}
		sql := fmt.Sprintf("%s @> %s", f.Column, placeholder(&argIndex))
		return Clause{SQL: sql, Args: []any{string(doc)}, Next: argIndex}, nil
	}

	return Clause{}, domain.NewCompileError(fmt.Sprintf("unsupported filter operator %q", f.Operator))
}

// compileWhere ANDs the filters in order. It returns an empty string when
// there are no filters.
func compileWhere(filters []domain.Filter, argIndex *int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	clauses := make([]string, 0, len(filters))
	var args []any
	for _, f := range filters {
		c, err := CompileFilter(f, *argIndex)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, c.SQL)
		args = append(args, c.Args...)
		*argIndex = c.Next
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// placeholder returns $n for the current index and advances it.
func placeholder(argIndex *int) string {
	defer func() { *argIndex++ }()
	return fmt.Sprintf("$%d", *argIndex)
}

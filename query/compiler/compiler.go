// Package compiler translates query definitions into parameterized
// PostgreSQL statements.
//
// Identifiers (tables, columns, conflict targets, function names) are
// interpolated after validation; every value, including LIMIT and OFFSET,
// is bound as a positional $n parameter. Placeholders are numbered left to
// right from $1: data values, then filter values, then limit and range.
package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/readingbuddy/dbal/query/domain"
)

// SQLCompiler compiles definitions. It holds no state and is safe for
// concurrent use.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQL compiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile compiles def with a zero-value SQLCompiler.
func Compile(def domain.Definition) (domain.Statement, error) {
	return NewSQLCompiler().Compile(def)
}

// Compile produces the statement for def. It never mutates def and returns
// identical output when called twice on the same definition.
func (c *SQLCompiler) Compile(def domain.Definition) (domain.Statement, error) {
	if def.Err != nil {
		return domain.Statement{}, domain.NewCompileError(def.Err.Error())
	}
	if err := domain.CheckIdentifier("table", def.Table); err != nil {
		return domain.Statement{}, err
	}
	if def.Operation == "" {
		def.Operation = domain.Select
	}
	if def.Operation != domain.Select && (def.Limit != nil || def.Range != nil || def.Order != nil) {
		return domain.Statement{}, domain.NewCompileError(
			fmt.Sprintf("order, limit and range only apply to select, not %s", def.Operation))
	}

	switch def.Operation {
	case domain.Select:
		return c.compileSelect(def)
	case domain.Insert:
		return c.compileInsert(def)
	case domain.Update:
		return c.compileUpdate(def)
	case domain.Delete:
		return c.compileDelete(def)
	case domain.Upsert:
		return c.compileUpsert(def)
	default:
		return domain.Statement{}, domain.NewCompileError(fmt.Sprintf("unsupported operation %q", def.Operation))
	}
}

var projectionPattern = regexp.MustCompile(`^[A-Za-z0-9_*.,()"\s]+$`)

// compileSelect compiles a SELECT statement.
func (c *SQLCompiler) compileSelect(def domain.Definition) (domain.Statement, error) {
	var sb strings.Builder
	var args []any
	argIndex := 1

	columns := strings.TrimSpace(def.Columns)
	if columns == "" {
		columns = "*"
	}
	if !projectionPattern.MatchString(columns) {
		return domain.Statement{}, domain.NewCompileError(fmt.Sprintf("invalid column list %q", columns))
	}

	sb.WriteString("SELECT ")
	sb.WriteString(columns)
	sb.WriteString(" FROM ")
	sb.WriteString(def.Table)

	where, whereArgs, err := compileWhere(def.Filters, &argIndex)
	if err != nil {
		return domain.Statement{}, err
	}
	sb.WriteString(where)
	args = append(args, whereArgs...)

	if def.Order != nil {
		if err := domain.CheckIdentifier("order column", def.Order.Column); err != nil {
			return domain.Statement{}, err
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(def.Order.Column)
		if def.Order.Ascending {
			sb.WriteString(" ASC")
		} else {
			sb.WriteString(" DESC")
		}
		if def.Order.NullsFirst != nil {
			if *def.Order.NullsFirst {
				sb.WriteString(" NULLS FIRST")
			} else {
				sb.WriteString(" NULLS LAST")
			}
		}
	}

	if def.Limit != nil && def.Range != nil {
		return domain.Statement{}, domain.NewCompileError("limit and range cannot both be set")
	}

	if def.Limit != nil {
		if *def.Limit < 0 {
			return domain.Statement{}, domain.NewCompileError(fmt.Sprintf("limit must not be negative, got %d", *def.Limit))
		}
		sb.WriteString(" LIMIT ")
		sb.WriteString(placeholder(&argIndex))
		args = append(args, *def.Limit)
	}

	if def.Range != nil {
		r := *def.Range
		if r.From < 0 || r.To < r.From {
			return domain.Statement{}, domain.NewCompileError(fmt.Sprintf("invalid range %d..%d", r.From, r.To))
		}
		sb.WriteString(" LIMIT ")
		sb.WriteString(placeholder(&argIndex))
		sb.WriteString(" OFFSET ")
		sb.WriteString(placeholder(&argIndex))
		args = append(args, r.To-r.From+1, r.From)
	}

	return domain.Statement{SQL: sb.String(), Args: args}, nil
}

// compileDelete compiles a DELETE statement. Without filters every row of
// the table is deleted; that is the caller's explicit intent and is not
// guarded here.
func (c *SQLCompiler) compileDelete(def domain.Definition) (domain.Statement, error) {
	argIndex := 1
	where, args, err := compileWhere(def.Filters, &argIndex)
	if err != nil {
		return domain.Statement{}, err
	}
	sql := "DELETE FROM " + def.Table + where + " RETURNING *"
	return domain.Statement{SQL: sql, Args: args}, nil
}

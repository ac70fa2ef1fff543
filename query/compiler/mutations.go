package compiler

import (
	"fmt"
	"strings"

	"github.com/readingbuddy/dbal/query/domain"
)

// compileInsert compiles a multi-row INSERT ... RETURNING *.
func (c *SQLCompiler) compileInsert(def domain.Definition) (domain.Statement, error) {
	argIndex := 1
	head, args, err := insertHead(def, &argIndex)
	if err != nil {
		return domain.Statement{}, err
	}
	return domain.Statement{SQL: head + " RETURNING *", Args: args}, nil
}

// compileUpdate compiles UPDATE ... SET ... [WHERE ...] RETURNING *. Without
// filters the update applies to every row of the table.
func (c *SQLCompiler) compileUpdate(def domain.Definition) (domain.Statement, error) {
	if len(def.Rows) != 1 {
		return domain.Statement{}, domain.NewCompileError(
			fmt.Sprintf("update takes exactly one row of data, got %d", len(def.Rows)))
	}
	row := def.Rows[0]
	if row.Err() != nil {
		return domain.Statement{}, domain.NewCompileError(row.Err().Error())
	}
	if row.Len() == 0 {
		return domain.Statement{}, domain.NewCompileError("update data has no columns")
	}

	argIndex := 1
	var args []any
	sets := make([]string, 0, row.Len())
	for _, f := range row.Fields() {
		if err := domain.CheckIdentifier("column", f.Column); err != nil {
			return domain.Statement{}, err
		}
		sets = append(sets, fmt.Sprintf("%s = %s", f.Column, placeholder(&argIndex)))
		args = append(args, f.Value.Arg())
	}

	where, whereArgs, err := compileWhere(def.Filters, &argIndex)
	if err != nil {
		return domain.Statement{}, err
	}
	args = append(args, whereArgs...)

	sql := fmt.Sprintf("UPDATE %s SET %s%s RETURNING *", def.Table, strings.Join(sets, ", "), where)
	return domain.Statement{SQL: sql, Args: args}, nil
}

// insertHead builds "INSERT INTO t (cols) VALUES (...), (...)" shared by
// insert and upsert. Values are bound row-major in the first row's column
// order.
func insertHead(def domain.Definition, argIndex *int) (string, []any, error) {
	columns, err := payloadColumns(def)
	if err != nil {
		return "", nil, err
	}

	args := make([]any, 0, len(columns)*len(def.Rows))
	tuples := make([]string, len(def.Rows))
	for i, row := range def.Rows {
		placeholders := make([]string, len(columns))
		for j, col := range columns {
			v, _ := row.Get(col)
			placeholders[j] = placeholder(argIndex)
			args = append(args, v.Arg())
		}
		tuples[i] = "(" + strings.Join(placeholders, ", ") + ")"
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		def.Table, strings.Join(columns, ", "), strings.Join(tuples, ", "))
	return sql, args, nil
}

// payloadColumns validates an insert/upsert payload and returns the column
// list fixed by its first row.
func payloadColumns(def domain.Definition) ([]string, error) {
	if len(def.Rows) == 0 {
		return nil, domain.NewCompileError(fmt.Sprintf("%s requires at least one row of data", def.Operation))
	}
	first := def.Rows[0]
	for i, row := range def.Rows {
		if row.Err() != nil {
			return nil, domain.NewCompileError(fmt.Sprintf("row %d: %v", i, row.Err()))
		}
		if !row.SameColumns(first) {
			return nil, domain.NewCompileError(fmt.Sprintf(
				"row %d has columns [%s], want [%s]", i,
				strings.Join(row.Columns(), ", "), strings.Join(first.Columns(), ", ")))
		}
	}
	if first.Len() == 0 {
		return nil, domain.NewCompileError(fmt.Sprintf("%s data has no columns", def.Operation))
	}
	columns := first.Columns()
	for _, col := range columns {
		if err := domain.CheckIdentifier("column", col); err != nil {
			return nil, err
		}
	}
	return columns, nil
}

package compiler

import (
	"fmt"
	"strings"

	"github.com/readingbuddy/dbal/query/domain"
)

// compileUpsert compiles INSERT ... ON CONFLICT (target) DO UPDATE SET
// col = EXCLUDED.col, ... RETURNING *. PostgreSQL requires a conflict
// target for DO UPDATE, so a definition without one is rejected rather
// than guessing a unique key.
func (c *SQLCompiler) compileUpsert(def domain.Definition) (domain.Statement, error) {
	target, err := conflictClause(def.Conflict)
	if err != nil {
		return domain.Statement{}, err
	}

	argIndex := 1
	head, args, err := insertHead(def, &argIndex)
	if err != nil {
		return domain.Statement{}, err
	}

	columns := def.Rows[0].Columns()
	updates := make([]string, len(columns))
	for i, col := range columns {
		updates[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
	}

	sql := fmt.Sprintf("%s ON CONFLICT %s DO UPDATE SET %s RETURNING *", head, target, strings.Join(updates, ", "))
	return domain.Statement{SQL: sql, Args: args}, nil
}

func conflictClause(t domain.ConflictTarget) (string, error) {
	if t.IsZero() {
		return "", domain.NewCompileError("upsert requires a conflict target (columns or constraint)")
	}
	if t.Constraint != "" {
		if len(t.Columns) > 0 {
			return "", domain.NewCompileError("upsert conflict target takes columns or a constraint, not both")
		}
		if err := domain.CheckIdentifier("constraint", t.Constraint); err != nil {
			return "", err
		}
		return "ON CONSTRAINT " + t.Constraint, nil
	}
	for _, col := range t.Columns {
		if err := domain.CheckIdentifier("conflict column", col); err != nil {
			return "", err
		}
	}
	return "(" + strings.Join(t.Columns, ", ") + ")", nil
}

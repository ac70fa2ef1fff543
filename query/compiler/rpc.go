package compiler

import (
	"fmt"
	"strings"

	"github.com/readingbuddy/dbal/query/domain"
)

// CompileRPC compiles a call to a set-returning or scalar database function
// using named argument notation, so parameters bind by name in the order
// the caller supplied them:
//
//	SELECT * FROM get_reading_streak(p_user_id => $1, p_days => $2)
func CompileRPC(name string, params domain.Row) (domain.Statement, error) {
	if err := domain.CheckIdentifier("function", name); err != nil {
		return domain.Statement{}, err
	}
	if params.Err() != nil {
		return domain.Statement{}, domain.NewCompileError(fmt.Sprintf("rpc %s params: %v", name, params.Err()))
	}

	argIndex := 1
	named := make([]string, 0, params.Len())
	args := make([]any, 0, params.Len())
	for _, f := range params.Fields() {
		if err := domain.CheckIdentifier("argument", f.Column); err != nil {
			return domain.Statement{}, err
		}
		named = append(named, fmt.Sprintf("%s => %s", f.Column, placeholder(&argIndex)))
		args = append(args, f.Value.Arg())
	}

	sql := fmt.Sprintf("SELECT * FROM %s(%s)", name, strings.Join(named, ", "))
	return domain.Statement{SQL: sql, Args: args}, nil
}

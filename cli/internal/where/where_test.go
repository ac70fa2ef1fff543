package where

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readingbuddy/dbal/query/builder"
)

func compile(t *testing.T, expr string) (string, []any) {
	t.Helper()
	e, err := Parse(expr)
	require.NoError(t, err)
	q, err := e.Apply(builder.NewQueryBuilder("books", nil))
	require.NoError(t, err)
	stmt, err := q.Compile()
	require.NoError(t, err)
	return stmt.SQL, stmt.Args
}

func TestParse_Apply(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "comparisons",
			expr:     "id = 5 and rating >= 3.5 AND status != 'abandoned'",
			wantSQL:  "SELECT * FROM books WHERE id = $1 AND rating >= $2 AND status != $3",
			wantArgs: []any{int64(5), 3.5, "abandoned"},
		},
		{
			name:     "angle neq and negative",
			expr:     "pages <> -1 AND pages < 900 AND pages <= 800 AND pages > 10",
			wantSQL:  "SELECT * FROM books WHERE pages != $1 AND pages < $2 AND pages <= $3 AND pages > $4",
			wantArgs: []any{int64(-1), int64(900), int64(800), int64(10)},
		},
		{
			name:    "is null",
			expr:    "finished_at IS NULL",
			wantSQL: "SELECT * FROM books WHERE finished_at IS NULL",
		},
		{
			name:     "is bool",
			expr:     "is_public is true",
			wantSQL:  "SELECT * FROM books WHERE is_public IS $1",
			wantArgs: []any{true},
		},
		{
			name:     "in list",
			expr:     `author IN ('Le Guin', "Dick", 'O''Brien')`,
			wantSQL:  "SELECT * FROM books WHERE author IN ($1, $2, $3)",
			wantArgs: []any{"Le Guin", "Dick", "O'Brien"},
		},
		{
			name:     "like and ilike",
			expr:     "title LIKE 'The%' AND author ilike '%tolkien%'",
			wantSQL:  "SELECT * FROM books WHERE title LIKE $1 AND author ILIKE $2",
			wantArgs: []any{"The%", "%tolkien%"},
		},
		{
			name:     "contains json",
			expr:     `tags CONTAINS '["classic"]'`,
			wantSQL:  "SELECT * FROM books WHERE tags @> $1",
			wantArgs: []any{`["classic"]`},
		},
		{
			name:     "qualified column",
			expr:     "books.id = 1",
			wantSQL:  "SELECT * FROM books WHERE books.id = $1",
			wantArgs: []any{int64(1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := compile(t, tt.expr)
			assert.Equal(t, tt.wantSQL, sql)
			if tt.wantArgs == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.wantArgs, args)
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	e, err := Parse("   ")
	require.NoError(t, err)
	assert.Empty(t, e.Conditions)
}

func TestParse_Errors(t *testing.T) {
	for _, expr := range []string{
		"id ==",
		"= 5",
		"id = 5 OR id = 6",
		"id BETWEEN 1 AND 2",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := Parse(expr)
			assert.Error(t, err)
		})
	}
}

func TestApply_Errors(t *testing.T) {
	for _, expr := range []string{
		"id IS 5",
		"title LIKE 5",
	} {
		t.Run(expr, func(t *testing.T) {
			e, err := Parse(expr)
			require.NoError(t, err)
			_, err = e.Apply(builder.NewQueryBuilder("books", nil))
			assert.Error(t, err)
		})
	}
}

func TestApply_EmptyInFailsAtCompile(t *testing.T) {
	e, err := Parse("id IN ()")
	require.NoError(t, err)
	q, err := e.Apply(builder.NewQueryBuilder("books", nil))
	require.NoError(t, err)
	_, err = q.Compile()
	assert.Error(t, err)
}

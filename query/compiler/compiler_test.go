package compiler_test

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"testing"

	"github.com/readingbuddy/dbal/query/compiler"
	"github.com/readingbuddy/dbal/query/domain"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(stmt domain.Statement) []byte {
	var buf bytes.Buffer
	buf.WriteString(stmt.SQL)
	buf.WriteByte('\n')
	for i, a := range stmt.Args {
		fmt.Fprintf(&buf, "$%d %T %v\n", i+1, a, a)
	}
	return buf.Bytes()
}

func mustJSON(t *testing.T, v any) domain.Value {
	t.Helper()
	val, err := domain.JSON(v)
	require.NoError(t, err)
	return val
}

func intPtr(i int) *int { return &i }

func boolPtr(b bool) *bool { return &b }

func TestCompile_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	selectDef := domain.NewDefinition("books")
	selectDef.Columns = "id, title"
	selectDef.Filters = []domain.Filter{
		{Column: "status", Operator: domain.Eq, Value: domain.String("published")},
		{Column: "pages", Operator: domain.Gte, Value: domain.Int(100)},
		{Column: "genre", Operator: domain.In, Values: []domain.Value{domain.String("fantasy"), domain.String("sci-fi")}},
	}
	selectDef.Order = &domain.Order{Column: "created_at", Ascending: false, NullsFirst: boolPtr(false)}
	selectDef.Range = &domain.Range{From: 0, To: 9}

	insertDef := domain.NewDefinition("books")
	insertDef.Operation = domain.Insert
	insertDef.Rows = []domain.Row{
		domain.NewRow("title", "Dune", "pages", 412, "published_at", nil),
		domain.NewRow("pages", 310, "published_at", nil, "title", "The Hobbit"),
	}

	upsertDef := domain.NewDefinition("reading_progress")
	upsertDef.Operation = domain.Upsert
	upsertDef.Rows = []domain.Row{domain.NewRow("user_id", "u-1", "book_id", "b-1", "page", 42)}
	upsertDef.Conflict = domain.OnConflict("user_id", "book_id")

	updateDef := domain.NewDefinition("books")
	updateDef.Operation = domain.Update
	updateDef.Rows = []domain.Row{domain.NewRow("status", "archived", "rating", 4.5)}
	updateDef.Filters = []domain.Filter{
		{Column: "id", Operator: domain.Eq, Value: domain.Int(7)},
		{Column: "deleted_at", Operator: domain.Is, Value: domain.Null()},
	}

	deleteDef := domain.NewDefinition("books")
	deleteDef.Operation = domain.Delete
	deleteDef.Filters = []domain.Filter{
		{Column: "metadata", Operator: domain.Contains, Value: mustJSON(t, map[string]any{"genre": "fantasy"})},
		{Column: "title", Operator: domain.ILike, Value: domain.String("%ring%")},
	}

	tests := []struct {
		name string
		def  domain.Definition
	}{
		{"select_filters_order_range", selectDef},
		{"insert_multi_row", insertDef},
		{"upsert_on_conflict", upsertDef},
		{"update_with_filters", updateDef},
		{"delete_contains", deleteDef},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := compiler.Compile(tt.def)
			require.NoError(t, err)
			g.Assert(t, tt.name, render(stmt))
		})
	}

	t.Run("rpc_named_args", func(t *testing.T) {
		stmt, err := compiler.CompileRPC("get_reading_streak", domain.NewRow("p_user_id", "u-1", "p_days", 30))
		require.NoError(t, err)
		g.Assert(t, "rpc_named_args", render(stmt))
	})
}

func TestCompileFilter(t *testing.T) {
	tests := []struct {
		name     string
		filter   domain.Filter
		next     int
		wantSQL  string
		wantArgs []any
		wantNext int
	}{
		{
			name:     "eq",
			filter:   domain.Filter{Column: "id", Operator: domain.Eq, Value: domain.Int(1)},
			next:     1,
			wantSQL:  "id = $1",
			wantArgs: []any{int64(1)},
			wantNext: 2,
		},
		{
			name:     "neq uses bang equals",
			filter:   domain.Filter{Column: "status", Operator: domain.Neq, Value: domain.String("draft")},
			next:     3,
			wantSQL:  "status != $3",
			wantArgs: []any{"draft"},
			wantNext: 4,
		},
		{
			name:     "lt",
			filter:   domain.Filter{Column: "pages", Operator: domain.Lt, Value: domain.Int(50)},
			next:     1,
			wantSQL:  "pages < $1",
			wantArgs: []any{int64(50)},
			wantNext: 2,
		},
		{
			name:     "like",
			filter:   domain.Filter{Column: "title", Operator: domain.Like, Value: domain.String("The%")},
			next:     1,
			wantSQL:  "title LIKE $1",
			wantArgs: []any{"The%"},
			wantNext: 2,
		},
		{
			name:     "is null binds nothing",
			filter:   domain.Filter{Column: "deleted_at", Operator: domain.Is, Value: domain.Null()},
			next:     5,
			wantSQL:  "deleted_at IS NULL",
			wantArgs: nil,
			wantNext: 5,
		},
		{
			name:     "is with a value binds it",
			filter:   domain.Filter{Column: "finished", Operator: domain.Is, Value: domain.Bool(true)},
			next:     1,
			wantSQL:  "finished IS $1",
			wantArgs: []any{true},
			wantNext: 2,
		},
		{
			name: "in expands placeholders",
			filter: domain.Filter{Column: "id", Operator: domain.In, Values: []domain.Value{
				domain.Int(1), domain.Int(2), domain.Int(3),
			}},
			next:     2,
			wantSQL:  "id IN ($2, $3, $4)",
			wantArgs: []any{int64(1), int64(2), int64(3)},
			wantNext: 5,
		},
		{
			name:     "contains serializes json",
			filter:   domain.Filter{Column: "tags", Operator: domain.Contains, Value: domain.RawJSON([]byte(`["a"]`))},
			next:     1,
			wantSQL:  "tags @> $1",
			wantArgs: []any{`["a"]`},
			wantNext: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := compiler.CompileFilter(tt.filter, tt.next)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, c.SQL)
			assert.Equal(t, tt.wantArgs, c.Args)
			assert.Equal(t, tt.wantNext, c.Next)
		})
	}
}

func TestCompileFilter_Errors(t *testing.T) {
	tests := []struct {
		name   string
		filter domain.Filter
	}{
		{"empty in", domain.Filter{Column: "id", Operator: domain.In}},
		{"unknown operator", domain.Filter{Column: "id", Operator: "between", Value: domain.Int(1)}},
		{"bad column", domain.Filter{Column: "id; drop table books", Operator: domain.Eq, Value: domain.Int(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compiler.CompileFilter(tt.filter, 1)
			require.Error(t, err)
			assert.True(t, domain.IsCompile(err))
		})
	}
}

func TestCompile_Select(t *testing.T) {
	t.Run("defaults to star", func(t *testing.T) {
		def := domain.NewDefinition("books")
		def.Columns = "  "
		stmt, err := compiler.Compile(def)
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM books", stmt.SQL)
		assert.Empty(t, stmt.Args)
	})

	t.Run("limit is bound", func(t *testing.T) {
		def := domain.NewDefinition("books")
		def.Filters = []domain.Filter{{Column: "author_id", Operator: domain.Eq, Value: domain.String("a1")}}
		def.Limit = intPtr(3)
		stmt, err := compiler.Compile(def)
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM books WHERE author_id = $1 LIMIT $2", stmt.SQL)
		assert.Equal(t, []any{"a1", 3}, stmt.Args)
	})

	t.Run("range converts to limit and offset", func(t *testing.T) {
		def := domain.NewDefinition("books")
		def.Range = &domain.Range{From: 10, To: 19}
		stmt, err := compiler.Compile(def)
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM books LIMIT $1 OFFSET $2", stmt.SQL)
		assert.Equal(t, []any{10, 10}, stmt.Args)
	})

	t.Run("ascending with nulls first", func(t *testing.T) {
		def := domain.NewDefinition("books")
		def.Order = &domain.Order{Column: "title", Ascending: true, NullsFirst: boolPtr(true)}
		stmt, err := compiler.Compile(def)
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM books ORDER BY title ASC NULLS FIRST", stmt.SQL)
	})

	t.Run("schema qualified table", func(t *testing.T) {
		stmt, err := compiler.Compile(domain.NewDefinition("public.books"))
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM public.books", stmt.SQL)
	})

	t.Run("empty operation is select", func(t *testing.T) {
		def := domain.Definition{Table: "books"}
		stmt, err := compiler.Compile(def)
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM books", stmt.SQL)
	})
}

func TestCompile_UnconditionedMutations(t *testing.T) {
	del := domain.NewDefinition("sessions")
	del.Operation = domain.Delete
	stmt, err := compiler.Compile(del)
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM sessions RETURNING *", stmt.SQL)
	assert.Empty(t, stmt.Args)

	upd := domain.NewDefinition("books")
	upd.Operation = domain.Update
	upd.Rows = []domain.Row{domain.NewRow("featured", false)}
	stmt, err = compiler.Compile(upd)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE books SET featured = $1 RETURNING *", stmt.SQL)
	assert.Equal(t, []any{false}, stmt.Args)
}

func TestCompile_UpsertOnConstraint(t *testing.T) {
	def := domain.NewDefinition("books")
	def.Operation = domain.Upsert
	def.Rows = []domain.Row{domain.NewRow("isbn", "978-0441013593", "title", "Dune")}
	def.Conflict = domain.OnConstraint("books_isbn_key")

	stmt, err := compiler.Compile(def)
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO books (isbn, title) VALUES ($1, $2) ON CONFLICT ON CONSTRAINT books_isbn_key DO UPDATE SET isbn = EXCLUDED.isbn, title = EXCLUDED.title RETURNING *",
		stmt.SQL)
}

func TestCompile_Errors(t *testing.T) {
	withOp := func(op domain.Operation, mutate func(*domain.Definition)) domain.Definition {
		def := domain.NewDefinition("books")
		def.Operation = op
		if mutate != nil {
			mutate(&def)
		}
		return def
	}

	tests := []struct {
		name string
		def  domain.Definition
	}{
		{"invalid table", domain.NewDefinition("books; drop table users")},
		{"empty table", domain.NewDefinition("")},
		{"accumulated error", withOp(domain.Select, func(d *domain.Definition) { d.Err = fmt.Errorf("bad value") })},
		{"injected projection", withOp(domain.Select, func(d *domain.Definition) { d.Columns = "id; delete from books" })},
		{"negative limit", withOp(domain.Select, func(d *domain.Definition) { d.Limit = intPtr(-1) })},
		{"inverted range", withOp(domain.Select, func(d *domain.Definition) { d.Range = &domain.Range{From: 5, To: 2} })},
		{"negative range", withOp(domain.Select, func(d *domain.Definition) { d.Range = &domain.Range{From: -1, To: 2} })},
		{"limit and range", withOp(domain.Select, func(d *domain.Definition) {
			d.Limit = intPtr(1)
			d.Range = &domain.Range{From: 0, To: 1}
		})},
		{"bad order column", withOp(domain.Select, func(d *domain.Definition) {
			d.Order = &domain.Order{Column: "title desc", Ascending: true}
		})},
		{"limit on delete", withOp(domain.Delete, func(d *domain.Definition) { d.Limit = intPtr(1) })},
		{"insert without rows", withOp(domain.Insert, nil)},
		{"insert with empty row", withOp(domain.Insert, func(d *domain.Definition) { d.Rows = []domain.Row{{}} })},
		{"insert with mismatched rows", withOp(domain.Insert, func(d *domain.Definition) {
			d.Rows = []domain.Row{domain.NewRow("title", "a"), domain.NewRow("name", "b")}
		})},
		{"insert with bad column", withOp(domain.Insert, func(d *domain.Definition) {
			d.Rows = []domain.Row{domain.NewRow("ti tle", "a")}
		})},
		{"insert with row error", withOp(domain.Insert, func(d *domain.Definition) {
			d.Rows = []domain.Row{domain.NewRow("title")}
		})},
		{"update without rows", withOp(domain.Update, nil)},
		{"update with two rows", withOp(domain.Update, func(d *domain.Definition) {
			d.Rows = []domain.Row{domain.NewRow("a", 1), domain.NewRow("a", 2)}
		})},
		{"upsert without target", withOp(domain.Upsert, func(d *domain.Definition) {
			d.Rows = []domain.Row{domain.NewRow("id", 1)}
		})},
		{"upsert with both targets", withOp(domain.Upsert, func(d *domain.Definition) {
			d.Rows = []domain.Row{domain.NewRow("id", 1)}
			d.Conflict = domain.ConflictTarget{Columns: []string{"id"}, Constraint: "books_pkey"}
		})},
		{"unknown operation", withOp("truncate", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compiler.Compile(tt.def)
			require.Error(t, err)
			assert.True(t, domain.IsCompile(err), "got %v", err)
		})
	}
}

func TestCompile_RPCErrors(t *testing.T) {
	_, err := compiler.CompileRPC("fn(); drop", domain.Row{})
	assert.True(t, domain.IsCompile(err))

	_, err = compiler.CompileRPC("fn", domain.NewRow("bad arg", 1))
	assert.True(t, domain.IsCompile(err))

	stmt, err := compiler.CompileRPC("refresh_stats", domain.Row{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM refresh_stats()", stmt.SQL)
	assert.Empty(t, stmt.Args)
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// Every compiled statement numbers its placeholders 1..n in order of
// appearance with exactly n arguments.
func TestCompile_PlaceholdersAreContiguous(t *testing.T) {
	defs := []domain.Definition{}
	for _, op := range []domain.Operation{domain.Select, domain.Update, domain.Delete} {
		def := domain.NewDefinition("books")
		def.Operation = op
		def.Filters = []domain.Filter{
			{Column: "a", Operator: domain.Eq, Value: domain.Int(1)},
			{Column: "b", Operator: domain.Is, Value: domain.Null()},
			{Column: "c", Operator: domain.In, Values: []domain.Value{domain.Int(1), domain.Int(2)}},
			{Column: "d", Operator: domain.Contains, Value: domain.RawJSON([]byte(`{}`))},
		}
		if op == domain.Update {
			def.Rows = []domain.Row{domain.NewRow("x", 1, "y", "z")}
		}
		if op == domain.Select {
			def.Range = &domain.Range{From: 2, To: 4}
		}
		defs = append(defs, def)
	}

	for _, def := range defs {
		t.Run(string(def.Operation), func(t *testing.T) {
			stmt, err := compiler.Compile(def)
			require.NoError(t, err)

			matches := placeholderRe.FindAllStringSubmatch(stmt.SQL, -1)
			require.Len(t, stmt.Args, len(matches))
			for i, m := range matches {
				n, err := strconv.Atoi(m[1])
				require.NoError(t, err)
				assert.Equal(t, i+1, n)
			}
		})
	}
}

func TestCompile_Deterministic(t *testing.T) {
	def := domain.NewDefinition("books")
	def.Filters = []domain.Filter{{Column: "id", Operator: domain.In, Values: []domain.Value{domain.Int(1)}}}
	def.Limit = intPtr(2)

	first, err := compiler.Compile(def)
	require.NoError(t, err)
	second, err := compiler.Compile(def)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// Package builder implements the immutable fluent query builder shared by
// both backends.
//
// Every method returns a new *QueryBuilder holding a copy of the
// definition, so a partially built query can be stored and extended in
// several directions without interference:
//
//	base := db.From("books").Select("id, title").Eq("status", "reading")
//	recent := base.Order("updated_at", builder.Desc()).Limit(5)
//	one := base.Eq("id", 7).Single()
package builder

import (
	"context"

	"github.com/readingbuddy/dbal/query/compiler"
	"github.com/readingbuddy/dbal/query/domain"
)

// Runner executes a finished definition on a backend and shapes the
// result. The direct pipeline and the hosted adapter both implement it.
type Runner interface {
	Run(ctx context.Context, def domain.Definition) *domain.Result
}

// QueryBuilder accumulates a domain.Definition.
type QueryBuilder struct {
	def    domain.Definition
	runner Runner
}

// NewQueryBuilder creates a builder for table that executes on runner.
// Without an explicit operation the query is select * in multi-row mode.
func NewQueryBuilder(table string, runner Runner) *QueryBuilder {
	return &QueryBuilder{
		def:    domain.NewDefinition(table),
		runner: runner,
	}
}

// with returns a copy of b with fn applied to a cloned definition.
func (b *QueryBuilder) with(fn func(def *domain.Definition)) *QueryBuilder {
	def := b.def.Clone()
	fn(&def)
	return &QueryBuilder{def: def, runner: b.runner}
}

// fail records the first accumulation error. Later errors are dropped.
func fail(def *domain.Definition, err error) {
	if def.Err == nil {
		def.Err = err
	}
}

// Select sets the operation to select with the given projection. An empty
// projection means *.
func (b *QueryBuilder) Select(columns string) *QueryBuilder {
	return b.with(func(def *domain.Definition) {
		def.Operation = domain.Select
		if columns == "" {
			columns = "*"
		}
		def.Columns = columns
	})
}

// Insert sets the operation to insert. The first row's columns fix the
// column list; every row must carry the same columns.
func (b *QueryBuilder) Insert(rows ...domain.Row) *QueryBuilder {
	return b.with(func(def *domain.Definition) {
		def.Operation = domain.Insert
		def.Rows = append([]domain.Row(nil), rows...)
	})
}

// Update sets the operation to update with a single data row. Without
// filters the update applies to every row of the table.
func (b *QueryBuilder) Update(row domain.Row) *QueryBuilder {
	return b.with(func(def *domain.Definition) {
		def.Operation = domain.Update
		def.Rows = []domain.Row{row}
	})
}

// Delete sets the operation to delete. Without filters every row of the
// table is deleted.
func (b *QueryBuilder) Delete() *QueryBuilder {
	return b.with(func(def *domain.Definition) {
		def.Operation = domain.Delete
		def.Rows = nil
	})
}

// Upsert sets the operation to insert-or-update against target.
func (b *QueryBuilder) Upsert(target domain.ConflictTarget, rows ...domain.Row) *QueryBuilder {
	return b.with(func(def *domain.Definition) {
		def.Operation = domain.Upsert
		def.Rows = append([]domain.Row(nil), rows...)
		def.Conflict = domain.ConflictTarget{
			Columns:    append([]string(nil), target.Columns...),
			Constraint: target.Constraint,
		}
	})
}

// Single expects exactly one row; zero rows is a NoRowsError.
func (b *QueryBuilder) Single() *QueryBuilder {
	return b.with(func(def *domain.Definition) { def.Mode = domain.Single })
}

// MaybeSingle expects zero or one row.
func (b *QueryBuilder) MaybeSingle() *QueryBuilder {
	return b.with(func(def *domain.Definition) { def.Mode = domain.MaybeSingle })
}

// Limit caps the number of rows. It replaces an earlier Range.
func (b *QueryBuilder) Limit(n int) *QueryBuilder {
	return b.with(func(def *domain.Definition) {
		def.Limit = &n
		def.Range = nil
	})
}

// Range selects the inclusive zero-based window [from, to]. It replaces an
// earlier Limit.
func (b *QueryBuilder) Range(from, to int) *QueryBuilder {
	return b.with(func(def *domain.Definition) {
		def.Range = &domain.Range{From: from, To: to}
		def.Limit = nil
	})
}

// Definition returns a copy of the accumulated definition.
func (b *QueryBuilder) Definition() domain.Definition {
	return b.def.Clone()
}

// Compile returns the SQL the direct backend would run. It never touches a
// connection.
func (b *QueryBuilder) Compile() (domain.Statement, error) {
	return compiler.Compile(b.def)
}

// Execute runs the query and returns the envelope. Failures are reported
// in Result.Error, never as a panic.
func (b *QueryBuilder) Execute(ctx context.Context) *domain.Result {
	if b.runner == nil {
		return domain.Failed(b.def.Mode, domain.NewConnectionError("query builder has no backend", nil))
	}
	return b.runner.Run(ctx, b.def.Clone())
}

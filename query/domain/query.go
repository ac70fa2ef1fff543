// Package domain contains the query definition model shared by the builder,
// the compiler, the executor and both backends.
package domain

import (
	"fmt"
	"regexp"
)

// Definition is the accumulated description of one query before compilation.
// It is a value: the builder copies it on every call and the compiler only
// reads it.
type Definition struct {
	Table     string
	Operation Operation
	Columns   string
	Rows      []Row
	Filters   []Filter
	Order     *Order
	Limit     *int
	Range     *Range
	Conflict  ConflictTarget
	Mode      ResultMode

	// Err holds the first error raised while accumulating the definition
	// (for example a Go value that has no SQL representation). It is
	// reported as a CompileError before any round trip.
	Err error
}

// NewDefinition returns the default definition for a table: select * in
// multi-row mode.
func NewDefinition(table string) Definition {
	return Definition{
		Table:     table,
		Operation: Select,
		Columns:   "*",
		Mode:      Multi,
	}
}

// Clone returns a deep copy whose slices and pointers can be modified
// without affecting d.
func (d Definition) Clone() Definition {
	out := d
	if d.Rows != nil {
		out.Rows = make([]Row, len(d.Rows))
		for i, r := range d.Rows {
			out.Rows[i] = r.clone()
		}
	}
	if d.Filters != nil {
		out.Filters = make([]Filter, len(d.Filters))
		copy(out.Filters, d.Filters)
	}
	if d.Order != nil {
		o := *d.Order
		out.Order = &o
	}
	if d.Limit != nil {
		l := *d.Limit
		out.Limit = &l
	}
	if d.Range != nil {
		r := *d.Range
		out.Range = &r
	}
	if d.Conflict.Columns != nil {
		out.Conflict.Columns = append([]string(nil), d.Conflict.Columns...)
	}
	return out
}

// Operation is the statement kind a definition compiles to.
type Operation string

const (
	// Select reads rows.
	Select Operation = "select"
	// Insert adds one or more rows.
	Insert Operation = "insert"
	// Update modifies the rows matched by the filters.
	Update Operation = "update"
	// Delete removes the rows matched by the filters.
	Delete Operation = "delete"
	// Upsert inserts rows and updates them on conflict.
	Upsert Operation = "upsert"
)

// Operator is a filter comparison operator.
type Operator string

const (
	Eq       Operator = "eq"
	Neq      Operator = "neq"
	Gt       Operator = "gt"
	Gte      Operator = "gte"
	Lt       Operator = "lt"
	Lte      Operator = "lte"
	Like     Operator = "like"
	ILike    Operator = "ilike"
	Is       Operator = "is"
	In       Operator = "in"
	Contains Operator = "contains"
)

// Valid reports whether op is one of the supported operators.
func (op Operator) Valid() bool {
	switch op {
	case Eq, Neq, Gt, Gte, Lt, Lte, Like, ILike, Is, In, Contains:
		return true
	}
	return false
}

// Filter is one (column, operator, value) triple. In filters use Values;
// every other operator uses Value.
type Filter struct {
	Column   string
	Operator Operator
	Value    Value
	Values   []Value
}

// Order describes the ORDER BY clause.
type Order struct {
	Column    string
	Ascending bool
	// NullsFirst is nil when the statement should not mention NULLS at all.
	NullsFirst *bool
}

// Range is an inclusive, zero-based row window.
type Range struct {
	From int
	To   int
}

// ConflictTarget names the unique index an upsert resolves against, either
// as a column list or as a named constraint.
type ConflictTarget struct {
	Columns    []string
	Constraint string
}

// IsZero reports whether no target was configured.
func (c ConflictTarget) IsZero() bool {
	return len(c.Columns) == 0 && c.Constraint == ""
}

// OnConflict returns a conflict target over the given columns.
func OnConflict(columns ...string) ConflictTarget {
	return ConflictTarget{Columns: columns}
}

// OnConstraint returns a conflict target referencing a named constraint.
func OnConstraint(name string) ConflictTarget {
	return ConflictTarget{Constraint: name}
}

// ResultMode controls how the raw row set is shaped.
type ResultMode string

const (
	// Multi returns every row plus a count.
	Multi ResultMode = "multi"
	// Single expects exactly one row; zero rows is an error.
	Single ResultMode = "single"
	// MaybeSingle expects zero or one row.
	MaybeSingle ResultMode = "maybeSingle"
)

// Statement is a compiled, parameterized SQL statement.
type Statement struct {
	SQL  string
	Args []any
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidIdentifier reports whether name is a plain or schema-qualified SQL
// identifier. Identifiers are interpolated, never bound.
func ValidIdentifier(name string) bool {
	return identPattern.MatchString(name)
}

// CheckIdentifier returns a CompileError when name is not a valid identifier.
func CheckIdentifier(what, name string) error {
	if !ValidIdentifier(name) {
		return NewCompileError(fmt.Sprintf("invalid %s identifier %q", what, name))
	}
	return nil
}

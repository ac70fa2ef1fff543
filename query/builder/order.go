package builder

import "github.com/readingbuddy/dbal/query/domain"

// OrderOption adjusts an Order call.
type OrderOption func(o *domain.Order)

// Asc sorts ascending. This is the default.
func Asc() OrderOption {
	return func(o *domain.Order) { o.Ascending = true }
}

// Desc sorts descending.
func Desc() OrderOption {
	return func(o *domain.Order) { o.Ascending = false }
}

// NullsFirst places NULLs before other values.
func NullsFirst() OrderOption {
	return func(o *domain.Order) {
		v := true
		o.NullsFirst = &v
	}
}

// NullsLast places NULLs after other values.
func NullsLast() OrderOption {
	return func(o *domain.Order) {
		v := false
		o.NullsFirst = &v
	}
}

// Order sets the sort column. A later call replaces an earlier one.
func (b *QueryBuilder) Order(column string, opts ...OrderOption) *QueryBuilder {
	return b.with(func(def *domain.Definition) {
		o := domain.Order{Column: column, Ascending: true}
		for _, opt := range opts {
			opt(&o)
		}
		def.Order = &o
	})
}

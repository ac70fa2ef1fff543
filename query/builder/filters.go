package builder

import (
	"fmt"

	"github.com/readingbuddy/dbal/query/domain"
)

// Filters are ANDed in the order they are added.

// Eq adds column = value.
func (b *QueryBuilder) Eq(column string, value any) *QueryBuilder {
	return b.filter(column, domain.Eq, value)
}

// Neq adds column != value.
func (b *QueryBuilder) Neq(column string, value any) *QueryBuilder {
	return b.filter(column, domain.Neq, value)
}

// Gt adds column > value.
func (b *QueryBuilder) Gt(column string, value any) *QueryBuilder {
	return b.filter(column, domain.Gt, value)
}

// Gte adds column >= value.
func (b *QueryBuilder) Gte(column string, value any) *QueryBuilder {
	return b.filter(column, domain.Gte, value)
}

// Lt adds column < value.
func (b *QueryBuilder) Lt(column string, value any) *QueryBuilder {
	return b.filter(column, domain.Lt, value)
}

// Lte adds column <= value.
func (b *QueryBuilder) Lte(column string, value any) *QueryBuilder {
	return b.filter(column, domain.Lte, value)
}

// Like adds a case sensitive pattern match.
func (b *QueryBuilder) Like(column, pattern string) *QueryBuilder {
	return b.filter(column, domain.Like, pattern)
}

// ILike adds a case insensitive pattern match.
func (b *QueryBuilder) ILike(column, pattern string) *QueryBuilder {
	return b.filter(column, domain.ILike, pattern)
}

// Is adds column IS value; pass nil for IS NULL.
func (b *QueryBuilder) Is(column string, value any) *QueryBuilder {
	return b.filter(column, domain.Is, value)
}

// In adds column IN (values...). An empty list fails at compile time.
func (b *QueryBuilder) In(column string, values ...any) *QueryBuilder {
	return b.with(func(def *domain.Definition) {
		vals := make([]domain.Value, 0, len(values))
		for _, v := range values {
			val, err := domain.ValueOf(v)
			if err != nil {
				fail(def, fmt.Errorf("in filter on %s: %w", column, err))
				return
			}
			vals = append(vals, val)
		}
		def.Filters = append(def.Filters, domain.Filter{Column: column, Operator: domain.In, Values: vals})
	})
}

// Contains adds column @> value. The value is serialized to JSON.
func (b *QueryBuilder) Contains(column string, value any) *QueryBuilder {
	return b.with(func(def *domain.Definition) {
		val, err := domain.ValueOf(value)
		if err == nil && val.Kind() != domain.KindJSON {
			val, err = domain.JSON(val.Interface())
		}
		if err != nil {
			fail(def, fmt.Errorf("contains filter on %s: %w", column, err))
			return
		}
		def.Filters = append(def.Filters, domain.Filter{Column: column, Operator: domain.Contains, Value: val})
	})
}

func (b *QueryBuilder) filter(column string, op domain.Operator, value any) *QueryBuilder {
	return b.with(func(def *domain.Definition) {
		val, err := domain.ValueOf(value)
		if err != nil {
			fail(def, fmt.Errorf("%s filter on %s: %w", op, column, err))
			return
		}
		def.Filters = append(def.Filters, domain.Filter{Column: column, Operator: op, Value: val})
	})
}

// Package where parses the filter expressions accepted by --where, such as
//
//	status = 'reading' AND pages >= 100 AND finished_at IS NULL
//
// and applies them to a query builder.
package where

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/readingbuddy/dbal/query/builder"
)

var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `(?i:\b(?:AND|IS|IN|ILIKE|LIKE|CONTAINS|NULL|TRUE|FALSE)\b)`},
	{Name: "String", Pattern: `'(?:''|[^'])*'|"(?:\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `-?\d+(?:\.\d+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Operator", Pattern: `!=|<>|>=|<=|=|<|>`},
	{Name: "Punct", Pattern: `[(),.]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// Expression is a conjunction of conditions.
type Expression struct {
	Conditions []*Condition `@@ ( "AND" @@ )*`
}

// Condition is one column test.
type Condition struct {
	Pos     lexer.Position
	Column  string   `@Ident ( @"." @Ident )?`
	Compare *Compare `( @@`
	Is      *Literal `| "IS" @@`
	In      *InList  `| "IN" @@`
	Match   *Match   `| @@ )`
}

// Compare is a binary comparison.
type Compare struct {
	Op    string   `@Operator`
	Value *Literal `@@`
}

// InList is a parenthesized value list. An empty list parses so that the
// builder can reject it with its own error.
type InList struct {
	Values []*Literal `"(" ( @@ ( "," @@ )* )? ")"`
}

// Match is a pattern or containment test.
type Match struct {
	Op    string   `@( "ILIKE" | "LIKE" | "CONTAINS" )`
	Value *Literal `@@`
}

// Literal is a constant.
type Literal struct {
	Null   bool    `  @"NULL"`
	Bool   *string `| @( "TRUE" | "FALSE" )`
	Number *string `| @Number`
	String *string `| @String`
}

var parser = participle.MustBuild[Expression](
	participle.Lexer(filterLexer),
	participle.Elide("Whitespace"),
	participle.CaseInsensitive("Keyword"),
	participle.UseLookahead(2),
)

// Parse parses a filter expression.
func Parse(input string) (*Expression, error) {
	if strings.TrimSpace(input) == "" {
		return &Expression{}, nil
	}
	expr, err := parser.ParseString("where", input)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	return expr, nil
}

// Apply adds every condition to q as a filter, in order.
func (e *Expression) Apply(q *builder.QueryBuilder) (*builder.QueryBuilder, error) {
	for _, c := range e.Conditions {
		var err error
		if q, err = c.apply(q); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func (c *Condition) apply(q *builder.QueryBuilder) (*builder.QueryBuilder, error) {
	switch {
	case c.Compare != nil:
		v, err := c.Compare.Value.Value()
		if err != nil {
			return nil, err
		}
		switch c.Compare.Op {
		case "=":
			return q.Eq(c.Column, v), nil
		case "!=", "<>":
			return q.Neq(c.Column, v), nil
		case ">":
			return q.Gt(c.Column, v), nil
		case ">=":
			return q.Gte(c.Column, v), nil
		case "<":
			return q.Lt(c.Column, v), nil
		case "<=":
			return q.Lte(c.Column, v), nil
		}
		return nil, fmt.Errorf("%s: unknown operator %q", c.Pos, c.Compare.Op)

	case c.Is != nil:
		if c.Is.Number != nil || c.Is.String != nil {
			return nil, fmt.Errorf("%s: IS expects NULL, TRUE or FALSE", c.Pos)
		}
		v, err := c.Is.Value()
		if err != nil {
			return nil, err
		}
		return q.Is(c.Column, v), nil

	case c.In != nil:
		values := make([]any, 0, len(c.In.Values))
		for _, lit := range c.In.Values {
			v, err := lit.Value()
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return q.In(c.Column, values...), nil

	case c.Match != nil:
		v, err := c.Match.Value.Value()
		if err != nil {
			return nil, err
		}
		switch strings.ToUpper(c.Match.Op) {
		case "LIKE", "ILIKE":
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%s: %s expects a string pattern", c.Pos, strings.ToUpper(c.Match.Op))
			}
			if strings.EqualFold(c.Match.Op, "ILIKE") {
				return q.ILike(c.Column, s), nil
			}
			return q.Like(c.Column, s), nil
		default:
			// A string holding JSON is contained as the decoded value.
			if s, ok := v.(string); ok {
				var decoded any
				if json.Unmarshal([]byte(s), &decoded) == nil {
					v = decoded
				}
			}
			return q.Contains(c.Column, v), nil
		}
	}
	return nil, fmt.Errorf("%s: empty condition on %s", c.Pos, c.Column)
}

// Value converts the literal into a Go value: nil, bool, int64, float64
// or string.
func (l *Literal) Value() (any, error) {
	switch {
	case l.Null:
		return nil, nil
	case l.Bool != nil:
		return strings.EqualFold(*l.Bool, "true"), nil
	case l.Number != nil:
		if !strings.Contains(*l.Number, ".") {
			return strconv.ParseInt(*l.Number, 10, 64)
		}
		return strconv.ParseFloat(*l.Number, 64)
	case l.String != nil:
		return unquote(*l.String)
	}
	return nil, fmt.Errorf("empty literal")
}

// unquote accepts SQL style single quotes ('' escapes a quote) and Go
// style double quotes.
func unquote(s string) (string, error) {
	if strings.HasPrefix(s, "'") {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'"), nil
	}
	return strconv.Unquote(s)
}

package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Value is a tagged union of the values a row or filter can carry. The zero
// Value is SQL NULL.
type Value struct {
	kind Kind
	str  string
	i    int64
	f    float64
	b    bool
	t    time.Time
	raw  json.RawMessage
}

// Null returns the null sentinel.
func Null() Value { return Value{} }

// String returns a text value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Time returns a timestamp value.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

// RawJSON wraps an already serialized JSON document.
func RawJSON(b []byte) Value {
	return Value{kind: KindJSON, raw: append(json.RawMessage(nil), b...)}
}

// JSON serializes v and returns it as a JSON value.
func JSON(v any) (Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Value{}, fmt.Errorf("encode json value: %w", err)
	}
	return Value{kind: KindJSON, raw: b}, nil
}

// ValueOf converts a Go value into a Value. Maps, slices, arrays and
// structs become JSON; nil and nil pointers become Null.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case []byte:
		return String(string(x)), nil
	case json.RawMessage:
		return RawJSON(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return fromUint(uint64(x))
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		return fromUint(x)
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case time.Time:
		return Time(x), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		return ValueOf(rv.Elem().Interface())
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null(), nil
		}
		return JSON(v)
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fromUint(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	}
	return Value{}, fmt.Errorf("unsupported value type %T", v)
}

func fromUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Value{}, fmt.Errorf("integer %d overflows int64", u)
	}
	return Int(int64(u)), nil
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null sentinel.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Arg returns the value in the form handed to database/sql drivers. JSON is
// passed as its text so that both jsonb parameters and text columns accept it.
func (v Value) Arg() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindTime:
		return v.t
	case KindJSON:
		return string(v.raw)
	default:
		return nil
	}
}

// Interface returns the plain Go value; JSON is decoded into any.
func (v Value) Interface() any {
	if v.kind == KindJSON {
		var out any
		if err := json.Unmarshal(v.raw, &out); err != nil {
			return string(v.raw)
		}
		return out
	}
	return v.Arg()
}

// Text renders the value as a literal the hosted REST API understands in
// query strings.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	case KindJSON:
		return string(v.raw)
	}
	return ""
}

// String implements fmt.Stringer for logs.
func (v Value) String() string {
	if v.kind == KindString {
		return strconv.Quote(v.str)
	}
	return v.Text()
}

// Equal reports whether two values hold the same variant and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindTime:
		return v.t.Equal(o.t)
	case KindJSON:
		return bytes.Equal(v.raw, o.raw)
	}
	return v.Arg() == o.Arg()
}

// MarshalJSON encodes the value as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindJSON:
		return v.raw, nil
	case KindTime:
		return json.Marshal(v.t)
	}
	return json.Marshal(v.Arg())
}

// Field is one column/value pair of a Row.
type Field struct {
	Column string
	Value  Value
}

// Row is an ordered column to value mapping. Column order is preserved
// because the first row of a payload fixes the INSERT column list. Row
// values are immutable: Set returns a new Row.
type Row struct {
	fields []Field
	err    error
}

// NewRow builds a row from alternating column/value arguments:
//
//	domain.NewRow("title", "Dune", "pages", 412)
func NewRow(pairs ...any) Row {
	var r Row
	if len(pairs)%2 != 0 {
		r.err = fmt.Errorf("row needs column/value pairs, got %d arguments", len(pairs))
		return r
	}
	for i := 0; i < len(pairs); i += 2 {
		col, ok := pairs[i].(string)
		if !ok {
			r.err = fmt.Errorf("row column at position %d is %T, want string", i, pairs[i])
			return r
		}
		r = r.Set(col, pairs[i+1])
	}
	return r
}

// RowFromMap builds a row from a map. Go maps have no order, so columns
// are sorted by name to keep compiled statements deterministic.
func RowFromMap(m map[string]any) Row {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var r Row
	for _, k := range keys {
		r = r.Set(k, m[k])
	}
	return r
}

// Set returns a copy of r with column set to value. An existing column
// keeps its position.
func (r Row) Set(column string, value any) Row {
	out := r.clone()
	if out.err != nil {
		return out
	}
	v, err := ValueOf(value)
	if err != nil {
		out.err = fmt.Errorf("column %s: %w", column, err)
		return out
	}
	for i := range out.fields {
		if out.fields[i].Column == column {
			out.fields[i].Value = v
			return out
		}
	}
	out.fields = append(out.fields, Field{Column: column, Value: v})
	return out
}

func (r Row) clone() Row {
	out := Row{err: r.err}
	if r.fields != nil {
		out.fields = make([]Field, len(r.fields))
		copy(out.fields, r.fields)
	}
	return out
}

// Err returns the first conversion error recorded while building the row.
func (r Row) Err() error { return r.err }

// Len returns the number of columns.
func (r Row) Len() int { return len(r.fields) }

// Fields returns the column/value pairs in order.
func (r Row) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Columns returns the column names in order.
func (r Row) Columns() []string {
	cols := make([]string, len(r.fields))
	for i, f := range r.fields {
		cols[i] = f.Column
	}
	return cols
}

// Get returns the value stored for column.
func (r Row) Get(column string) (Value, bool) {
	for _, f := range r.fields {
		if f.Column == column {
			return f.Value, true
		}
	}
	return Value{}, false
}

// SameColumns reports whether r and o have the same set of columns,
// regardless of order.
func (r Row) SameColumns(o Row) bool {
	if len(r.fields) != len(o.fields) {
		return false
	}
	for _, f := range r.fields {
		if _, ok := o.Get(f.Column); !ok {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the row as a JSON object with columns in order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Column)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

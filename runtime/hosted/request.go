package hosted

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/readingbuddy/dbal/query/domain"
)

// restRequest is one PostgREST call derived from a definition.
type restRequest struct {
	method string
	path   string
	query  url.Values
	prefer []string
	body   []byte
}

// describe renders the request for logs and middleware events.
func (r restRequest) describe() string {
	if len(r.query) == 0 {
		return r.method + " " + r.path
	}
	return r.method + " " + r.path + "?" + r.query.Encode()
}

// newRestRequest translates def into a PostgREST request. def must already
// have passed compilation, so only hosted specific limits are checked here.
func newRestRequest(def domain.Definition) (restRequest, error) {
	req := restRequest{
		path:  "/rest/v1/" + def.Table,
		query: url.Values{},
	}

	for _, f := range def.Filters {
		value, err := filterValue(f)
		if err != nil {
			return restRequest{}, err
		}
		req.query.Add(f.Column, value)
	}

	op := def.Operation
	if op == "" {
		op = domain.Select
	}

	switch op {
	case domain.Select:
		req.method = http.MethodGet
		req.query.Set("select", compactColumns(def.Columns))
		if def.Order != nil {
			req.query.Set("order", orderValue(*def.Order))
		}
		if def.Limit != nil {
			req.query.Set("limit", strconv.Itoa(*def.Limit))
		}
		if def.Range != nil {
			req.query.Set("offset", strconv.Itoa(def.Range.From))
			req.query.Set("limit", strconv.Itoa(def.Range.To-def.Range.From+1))
		}

	case domain.Insert:
		req.method = http.MethodPost
		req.prefer = []string{"return=representation"}
		body, err := rowsBody(def.Rows)
		if err != nil {
			return restRequest{}, err
		}
		req.body = body
		req.query.Set("columns", strings.Join(def.Rows[0].Columns(), ","))

	case domain.Upsert:
		if def.Conflict.Constraint != "" {
			return restRequest{}, domain.NewUnsupportedError("upsert on a named constraint", "supabase")
		}
		req.method = http.MethodPost
		req.prefer = []string{"return=representation", "resolution=merge-duplicates"}
		body, err := rowsBody(def.Rows)
		if err != nil {
			return restRequest{}, err
		}
		req.body = body
		req.query.Set("columns", strings.Join(def.Rows[0].Columns(), ","))
		req.query.Set("on_conflict", strings.Join(def.Conflict.Columns, ","))

	case domain.Update:
		req.method = http.MethodPatch
		req.prefer = []string{"return=representation"}
		body, err := json.Marshal(def.Rows[0])
		if err != nil {
			return restRequest{}, domain.NewCompileError(fmt.Sprintf("update payload: %v", err))
		}
		req.body = body

	case domain.Delete:
		req.method = http.MethodDelete
		req.prefer = []string{"return=representation"}

	default:
		return restRequest{}, domain.NewCompileError(fmt.Sprintf("unsupported operation %q", op))
	}

	return req, nil
}

// newRPCRequest builds POST /rest/v1/rpc/<fn> with params as a JSON object.
func newRPCRequest(fn string, params domain.Row) (restRequest, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return restRequest{}, domain.NewCompileError(fmt.Sprintf("rpc %s params: %v", fn, err))
	}
	return restRequest{
		method: http.MethodPost,
		path:   "/rest/v1/rpc/" + fn,
		query:  url.Values{},
		body:   body,
	}, nil
}

func rowsBody(rows []domain.Row) ([]byte, error) {
	body, err := json.Marshal(rows)
	if err != nil {
		return nil, domain.NewCompileError(fmt.Sprintf("payload: %v", err))
	}
	return body, nil
}

// filterValue renders the "op.value" half of a PostgREST filter.
func filterValue(f domain.Filter) (string, error) {
	switch f.Operator {
	case domain.Eq, domain.Neq, domain.Gt, domain.Gte, domain.Lt, domain.Lte, domain.Like, domain.ILike:
		return string(f.Operator) + "." + f.Value.Text(), nil
	case domain.Is:
		return "is." + f.Value.Text(), nil
	case domain.In:
		items := make([]string, len(f.Values))
		for i, v := range f.Values {
			items[i] = listItem(v.Text())
		}
		return "in.(" + strings.Join(items, ",") + ")", nil
	case domain.Contains:
		return "cs." + containsLiteral(f.Value), nil
	}
	return "", domain.NewCompileError(fmt.Sprintf("unsupported filter operator %q", f.Operator))
}

// listItem quotes s when it holds characters reserved by PostgREST lists.
func listItem(s string) string {
	if strings.ContainsAny(s, `,()" `) {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}

// containsLiteral renders arrays in Postgres array syntax and everything
// else as JSON, matching what PostgREST expects for cs.
func containsLiteral(v domain.Value) string {
	var arr []any
	raw := v.Text()
	if err := json.Unmarshal([]byte(raw), &arr); err != nil {
		return raw
	}
	items := make([]string, len(arr))
	for i, item := range arr {
		switch x := item.(type) {
		case string:
			items[i] = listItem(x)
		default:
			b, _ := json.Marshal(x)
			items[i] = string(b)
		}
	}
	return "{" + strings.Join(items, ",") + "}"
}

func orderValue(o domain.Order) string {
	var b strings.Builder
	b.WriteString(o.Column)
	if o.Ascending {
		b.WriteString(".asc")
	} else {
		b.WriteString(".desc")
	}
	if o.NullsFirst != nil {
		if *o.NullsFirst {
			b.WriteString(".nullsfirst")
		} else {
			b.WriteString(".nullslast")
		}
	}
	return b.String()
}

// compactColumns strips whitespace outside double quotes from a projection.
func compactColumns(columns string) string {
	if columns == "" {
		return "*"
	}
	var b bytes.Buffer
	quoted := false
	for _, r := range columns {
		switch {
		case r == '"':
			quoted = !quoted
			b.WriteRune(r)
		case !quoted && (r == ' ' || r == '\t' || r == '\n' || r == '\r'):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

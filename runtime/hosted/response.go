package hosted

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/readingbuddy/dbal/query/domain"
)

// connectionCodes are PostgREST codes raised when it cannot reach or
// borrow a connection to the database.
var connectionCodes = map[string]bool{
	"PGRST000": true,
	"PGRST001": true,
	"PGRST002": true,
	"PGRST003": true,
}

// apiError is the error body returned by PostgREST.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// decodeError converts a non-2xx response body into a *domain.Error.
func decodeError(status int, body []byte) *domain.Error {
	var ae apiError
	if err := json.Unmarshal(body, &ae); err != nil || ae.Message == "" {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(status)
		}
		ae = apiError{Message: msg}
	}

	kind := domain.DriverError
	switch {
	case connectionCodes[ae.Code]:
		kind = domain.ConnectionError
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		kind = domain.ConnectionError
	}

	return &domain.Error{
		Kind:    kind,
		Message: ae.Message,
		Code:    ae.Code,
		Details: ae.Details,
		Hint:    ae.Hint,
		Cause:   fmt.Errorf("http status %d", status),
	}
}

// decodeRecords reads a response body into records. An array of objects is
// the usual shape; a single object becomes one record and a bare scalar
// (scalar functions) becomes one record keyed by fallback, the column name
// a direct SELECT * FROM fn() would produce.
func decodeRecords(body []byte, fallback string) ([]domain.Record, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return []domain.Record{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	switch p := payload.(type) {
	case []any:
		records := make([]domain.Record, 0, len(p))
		for _, item := range p {
			obj, ok := item.(map[string]any)
			if !ok {
				records = append(records, domain.Record{fallback: normalize(item)})
				continue
			}
			records = append(records, toRecord(obj))
		}
		return records, nil
	case map[string]any:
		return []domain.Record{toRecord(p)}, nil
	case nil:
		return []domain.Record{}, nil
	default:
		return []domain.Record{{fallback: normalize(p)}}, nil
	}
}

func toRecord(obj map[string]any) domain.Record {
	rec := make(domain.Record, len(obj))
	for k, v := range obj {
		rec[k] = normalize(v)
	}
	return rec
}

// normalize turns a top level json.Number into int64 when integral and
// float64 otherwise, the scalar types the direct backend scans. Nested JSON
// decodes numbers as float64 on both backends.
func normalize(v any) any {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	return nested(v)
}

func nested(v any) any {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case []any:
		for i := range x {
			x[i] = nested(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = nested(x[k])
		}
		return x
	}
	return v
}

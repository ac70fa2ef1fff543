// Package mapper shapes raw row sets into result envelopes and decodes
// envelopes into Go structs.
package mapper

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/readingbuddy/dbal/query/domain"
)

// DefaultTag is the struct tag that names a field's column.
const DefaultTag = "db"

// ResultMapper maps database results to envelopes and Go structs.
type ResultMapper struct {
	tag string
}

// NewResultMapper creates a new result mapper using the db struct tag.
func NewResultMapper() *ResultMapper {
	return &ResultMapper{tag: DefaultTag}
}

// Shape builds the envelope for a finished statement. It never panics and
// never returns nil.
//
//	multi        Rows = rows (never nil), Count = len(rows)
//	single       Row = rows[0]; no rows is a NoRowsError
//	maybeSingle  Row = rows[0], or nil with no error
func (m *ResultMapper) Shape(mode domain.ResultMode, rows []domain.Record, err error) *domain.Result {
	if mode == "" {
		mode = domain.Multi
	}
	if err != nil {
		return domain.Failed(mode, err)
	}

	switch mode {
	case domain.Single:
		if len(rows) == 0 {
			return &domain.Result{Mode: mode, Error: domain.NewNoRowsError()}
		}
		return &domain.Result{Mode: mode, Row: rows[0]}

	case domain.MaybeSingle:
		if len(rows) == 0 {
			return &domain.Result{Mode: mode}
		}
		return &domain.Result{Mode: mode, Row: rows[0]}

	default:
		if rows == nil {
			rows = []domain.Record{}
		}
		count := len(rows)
		return &domain.Result{Mode: domain.Multi, Rows: rows, Count: &count}
	}
}

// Decode copies the envelope's data into dest: a pointer to a slice in
// multi mode, a pointer to a struct or map in the single modes. A failed
// envelope returns its error; an empty maybeSingle leaves dest untouched.
func (m *ResultMapper) Decode(res *domain.Result, dest any) error {
	if res == nil {
		return fmt.Errorf("decode: nil result")
	}
	if err := res.Err(); err != nil {
		return err
	}

	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("decode: dest must be a non-nil pointer, got %T", dest)
	}

	var input any
	switch res.Mode {
	case domain.Single, domain.MaybeSingle:
		if res.Row == nil {
			return nil
		}
		input = map[string]any(res.Row)
	default:
		maps := make([]map[string]any, len(res.Rows))
		for i, r := range res.Rows {
			maps[i] = r
		}
		input = maps
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          m.tag,
		Result:           dest,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// DecodeRows decodes a multi-row envelope into a slice of T.
func DecodeRows[T any](res *domain.Result) ([]T, error) {
	out := make([]T, 0)
	if err := NewResultMapper().Decode(res, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeRow decodes a single or maybeSingle envelope. It returns nil, nil
// when maybeSingle found nothing.
func DecodeRow[T any](res *domain.Result) (*T, error) {
	if res != nil && res.Error == nil && res.Row == nil {
		return nil, nil
	}
	var out T
	if err := NewResultMapper().Decode(res, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

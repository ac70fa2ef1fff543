// Package executor runs compiled statements on the shared pool.
package executor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/readingbuddy/dbal/internal/debug"
	"github.com/readingbuddy/dbal/internal/telemetry"
	"github.com/readingbuddy/dbal/query/domain"
)

// Acquirer hands out pooled connections. *pool.Pool implements it.
type Acquirer interface {
	Acquire(ctx context.Context) (*sql.Conn, error)
}

// Meta identifies a statement for logs and telemetry.
type Meta struct {
	Table     string
	Operation string
}

// QueryExecutor executes statements, one round trip each, outside any
// transaction.
type QueryExecutor struct {
	pool      Acquirer
	telemetry telemetry.Telemetry
}

// Option configures a QueryExecutor.
type Option func(*QueryExecutor)

// WithTelemetry records every statement on t.
func WithTelemetry(t telemetry.Telemetry) Option {
	return func(e *QueryExecutor) {
		if t != nil {
			e.telemetry = t
		}
	}
}

// NewQueryExecutor creates a new query executor.
func NewQueryExecutor(pool Acquirer, opts ...Option) *QueryExecutor {
	e := &QueryExecutor{
		pool:      pool,
		telemetry: telemetry.NewNoopTelemetry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs stmt and returns every row it produced. Errors are always
// *domain.Error values; driver types never escape.
func (e *QueryExecutor) Execute(ctx context.Context, stmt domain.Statement, meta Meta) ([]domain.Record, error) {
	queryID := newQueryID()
	log := debug.With("query_id", queryID, "table", meta.Table, "operation", meta.Operation)
	log.Debug("executing statement", "sql", stmt.SQL, "args", stmt.Args)

	start := time.Now()
	rows, err := e.run(ctx, stmt)
	elapsed := time.Since(start)

	e.telemetry.RecordQuery(ctx, telemetry.QueryInfo{
		QueryID:   queryID,
		Table:     meta.Table,
		Operation: meta.Operation,
		Duration:  elapsed,
		Success:   err == nil,
		Rows:      len(rows),
	})

	if err != nil {
		derr := Normalize(err)
		e.telemetry.RecordError(ctx, telemetry.ErrorInfo{
			QueryID:   queryID,
			Table:     meta.Table,
			Operation: meta.Operation,
			Kind:      string(derr.Kind),
			Err:       derr,
		})
		log.Error("statement failed", "kind", derr.Kind, "code", derr.Code, "error", derr.Message, "duration", elapsed)
		return nil, derr
	}

	log.Debug("statement done", "rows", len(rows), "duration", elapsed)
	return rows, nil
}

func (e *QueryExecutor) run(ctx context.Context, stmt domain.Statement) ([]domain.Record, error) {
	if e.pool == nil {
		return nil, domain.NewConnectionError("database pool not initialized", nil)
	}

	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// scanRecords reads every row into a Record keyed by column name. Text
// arrives as []byte from most drivers and is converted to string; json and
// jsonb columns are decoded.
func scanRecords(rows *sql.Rows) ([]domain.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	records := make([]domain.Record, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		record := make(domain.Record, len(columns))
		for i, col := range columns {
			record[col] = convert(values[i], types[i].DatabaseTypeName())
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func convert(val any, dbType string) any {
	var b []byte
	switch v := val.(type) {
	case []byte:
		b = v
	case string:
		// pgx hands json back as text.
		b = []byte(v)
	default:
		return val
	}
	switch strings.ToUpper(dbType) {
	case "JSON", "JSONB":
		var doc any
		if err := json.Unmarshal(b, &doc); err == nil {
			return doc
		}
	}
	if s, ok := val.(string); ok {
		return s
	}
	return string(b)
}

func newQueryID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

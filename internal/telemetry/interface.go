// Package telemetry records per-statement query metrics.
package telemetry

import (
	"context"
	"time"
)

// Telemetry defines the telemetry adapter interface.
type Telemetry interface {
	// RecordQuery records a statement execution.
	RecordQuery(ctx context.Context, info QueryInfo)

	// RecordError records a failed statement.
	RecordError(ctx context.Context, info ErrorInfo)

	// Snapshot returns the aggregated counters.
	Snapshot() Snapshot
}

// QueryInfo contains information about one executed statement.
type QueryInfo struct {
	// QueryID correlates the record with log lines.
	QueryID string

	// Table is the table or function the statement targets.
	Table string

	// Operation is select, insert, update, delete, upsert or rpc.
	Operation string

	// Duration is how long the round trip took.
	Duration time.Duration

	// Success indicates if the statement succeeded.
	Success bool

	// Rows is the number of rows returned.
	Rows int
}

// ErrorInfo contains information about a failed statement.
type ErrorInfo struct {
	QueryID   string
	Table     string
	Operation string
	// Kind is the normalized error kind.
	Kind string
	Err  error
}

// Snapshot is a point in time copy of the collected counters, keyed by
// "table.operation".
type Snapshot struct {
	Queries   map[string]int64
	Failures  map[string]int64
	Durations map[string]time.Duration
	ErrorKind map[string]int64
}

// Config holds telemetry configuration.
type Config struct {
	// Type is the telemetry type (noop, memory).
	Type string
}

package telemetry

import "context"

// NoopTelemetry is a no-op implementation of the Telemetry interface.
type NoopTelemetry struct{}

// NewNoopTelemetry creates a new no-op telemetry adapter.
func NewNoopTelemetry() *NoopTelemetry {
	return &NoopTelemetry{}
}

// RecordQuery does nothing.
func (n *NoopTelemetry) RecordQuery(ctx context.Context, info QueryInfo) {}

// RecordError does nothing.
func (n *NoopTelemetry) RecordError(ctx context.Context, info ErrorInfo) {}

// Snapshot returns empty counters.
func (n *NoopTelemetry) Snapshot() Snapshot {
	return Snapshot{}
}

// Ensure NoopTelemetry implements Telemetry interface.
var _ Telemetry = (*NoopTelemetry)(nil)

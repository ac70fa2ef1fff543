package telemetry

import (
	"context"
	"sync"
	"time"
)

// Collector keeps counters in memory. It is safe for concurrent use.
type Collector struct {
	mu        sync.Mutex
	queries   map[string]int64
	failures  map[string]int64
	durations map[string]time.Duration
	errorKind map[string]int64
}

// NewCollector creates an empty in-memory collector.
func NewCollector() *Collector {
	return &Collector{
		queries:   make(map[string]int64),
		failures:  make(map[string]int64),
		durations: make(map[string]time.Duration),
		errorKind: make(map[string]int64),
	}
}

func key(table, operation string) string {
	return table + "." + operation
}

// RecordQuery counts the statement and accumulates its duration.
func (c *Collector) RecordQuery(ctx context.Context, info QueryInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(info.Table, info.Operation)
	c.queries[k]++
	c.durations[k] += info.Duration
	if !info.Success {
		c.failures[k]++
	}
}

// RecordError counts the failure by error kind.
func (c *Collector) RecordError(ctx context.Context, info ErrorInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.errorKind[info.Kind]++
}

// Snapshot copies the current counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Queries:   make(map[string]int64, len(c.queries)),
		Failures:  make(map[string]int64, len(c.failures)),
		Durations: make(map[string]time.Duration, len(c.durations)),
		ErrorKind: make(map[string]int64, len(c.errorKind)),
	}
	for k, v := range c.queries {
		s.Queries[k] = v
	}
	for k, v := range c.failures {
		s.Failures[k] = v
	}
	for k, v := range c.durations {
		s.Durations[k] = v
	}
	for k, v := range c.errorKind {
		s.ErrorKind[k] = v
	}
	return s
}

var _ Telemetry = (*Collector)(nil)

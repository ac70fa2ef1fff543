// Package pool provides the shared database connection pool.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-version"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/readingbuddy/dbal/internal/debug"
	"github.com/readingbuddy/dbal/query/domain"
)

// Driver names registered with database/sql.
const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

// MinServerVersion is the oldest server that supports ON CONFLICT.
var MinServerVersion = version.Must(version.NewVersion("9.5"))

// Config holds connection pool configuration. It is fixed once the pool is
// created.
type Config struct {
	// Driver is the database/sql driver name.
	Driver string
	// DSN is the driver specific data source name.
	DSN string
	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int
	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int
	// ConnMaxIdleTime closes connections idle for longer (0 = never).
	ConnMaxIdleTime time.Duration
	// ConnMaxLifetime is the maximum lifetime of a connection (0 = unlimited).
	ConnMaxLifetime time.Duration
	// AcquireTimeout bounds how long a statement waits for a connection.
	AcquireTimeout time.Duration
	// HealthCheckInterval is how often to ping the server (0 = disabled).
	HealthCheckInterval time.Duration
}

// DefaultConfig returns the pool settings used by the dashboard: 20
// connections, 30s idle timeout, 2s acquisition timeout.
func DefaultConfig() Config {
	return Config{
		Driver:              DriverPQ,
		MaxOpenConns:        20,
		MaxIdleConns:        20,
		ConnMaxIdleTime:     30 * time.Second,
		AcquireTimeout:      2 * time.Second,
		HealthCheckInterval: time.Minute,
	}
}

// Pool manages database connections with lifecycle management.
type Pool struct {
	db     *sql.DB
	config Config

	mu              sync.RWMutex
	failedChecks    int64
	lastHealthCheck time.Time
	acquireTimeouts int64

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens a pool. No connection is made until the first statement.
func New(config Config) (*Pool, error) {
	if config.Driver == "" {
		config.Driver = DriverPQ
	}
	db, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		db:     db,
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}

	if config.HealthCheckInterval > 0 {
		pool.wg.Add(1)
		go pool.healthCheckLoop()
	}

	debug.Debug("pool opened",
		"driver", config.Driver,
		"max_open", config.MaxOpenConns,
		"idle_timeout", config.ConnMaxIdleTime,
		"acquire_timeout", config.AcquireTimeout)

	return pool, nil
}

// DB returns the underlying *sql.DB.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Config returns the configuration the pool was created with.
func (p *Pool) Config() Config {
	return p.config
}

// Acquire checks a connection out of the pool, waiting at most
// AcquireTimeout. The caller must Close the connection to return it.
// Timeouts and dial failures are reported as ConnectionErrors.
func (p *Pool) Acquire(ctx context.Context) (*sql.Conn, error) {
	acquireCtx := ctx
	if p.config.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.config.AcquireTimeout)
		defer cancel()
	}

	conn, err := p.db.Conn(acquireCtx)
	if err == nil {
		return conn, nil
	}

	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		p.mu.Lock()
		p.acquireTimeouts++
		p.mu.Unlock()
		return nil, domain.NewConnectionError(
			fmt.Sprintf("timed out acquiring a connection after %s", p.config.AcquireTimeout), err)
	}
	return nil, domain.NewConnectionError("failed to acquire a connection: "+err.Error(), err)
}

// ServerVersion reports the server version from SHOW server_version.
func (p *Pool) ServerVersion(ctx context.Context) (*version.Version, error) {
	var raw string
	if err := p.db.QueryRowContext(ctx, "SHOW server_version").Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to read server version: %w", err)
	}
	return ParseServerVersion(raw)
}

// CheckServerVersion fails when the server is older than MinServerVersion.
func (p *Pool) CheckServerVersion(ctx context.Context) (*version.Version, error) {
	v, err := p.ServerVersion(ctx)
	if err != nil {
		return nil, err
	}
	if v.LessThan(MinServerVersion) {
		return v, fmt.Errorf("server version %s is older than %s", v, MinServerVersion)
	}
	return v, nil
}

// ParseServerVersion parses strings such as "16.2 (Debian 16.2-1.pgdg120+2)"
// or "9.6.24".
func ParseServerVersion(raw string) (*version.Version, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty server version")
	}
	v, err := version.NewVersion(fields[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse server version %q: %w", raw, err)
	}
	return v, nil
}

// Stats returns current pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	dbStats := p.db.Stats()

	return PoolStats{
		MaxOpenConnections: p.config.MaxOpenConns,
		OpenConnections:    dbStats.OpenConnections,
		InUse:              dbStats.InUse,
		Idle:               dbStats.Idle,
		WaitCount:          dbStats.WaitCount,
		WaitDuration:       dbStats.WaitDuration,
		MaxIdleTimeClosed:  dbStats.MaxIdleTimeClosed,
		AcquireTimeouts:    p.acquireTimeouts,
		FailedHealthChecks: p.failedChecks,
		LastHealthCheck:    p.lastHealthCheck,
	}
}

// PoolStats represents pool statistics.
type PoolStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
	MaxIdleTimeClosed  int64
	AcquireTimeouts    int64
	FailedHealthChecks int64
	LastHealthCheck    time.Time
}

// HealthCheck pings the server.
func (p *Pool) HealthCheck(ctx context.Context) error {
	p.mu.Lock()
	p.lastHealthCheck = time.Now()
	p.mu.Unlock()

	if err := p.db.PingContext(ctx); err != nil {
		p.mu.Lock()
		p.failedChecks++
		p.mu.Unlock()
		return fmt.Errorf("health check failed: %w", err)
	}

	return nil
}

// healthCheckLoop runs periodic health checks.
func (p *Pool) healthCheckLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
			if err := p.HealthCheck(ctx); err != nil {
				debug.Warn("pool health check failed", "error", err)
			}
			cancel()
		}
	}
}

// Close closes the pool and waits for background routines to finish.
func (p *Pool) Close() error {
	p.cancel()
	p.wg.Wait()
	return p.db.Close()
}

// Package factory selects the backend once per process and hands out
// database clients for the admin, server and browser contexts.
package factory

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/readingbuddy/dbal/internal/config"
	"github.com/readingbuddy/dbal/internal/debug"
	"github.com/readingbuddy/dbal/internal/pool"
	"github.com/readingbuddy/dbal/internal/telemetry"
	"github.com/readingbuddy/dbal/query/executor"
	"github.com/readingbuddy/dbal/runtime/client"
	"github.com/readingbuddy/dbal/runtime/hosted"
)

// ErrBrowserUnsupported is returned by Browser on the postgres backend.
var ErrBrowserUnsupported = errors.New("PostgreSQL client cannot be used in the browser. Use Supabase or implement an API layer")

// ErrServiceKeyMissing is returned by Admin on the hosted backend when no
// service role key is configured.
var ErrServiceKeyMissing = fmt.Errorf("%s is required for the admin client", config.KeySupabaseService)

// Selector owns the backend choice and the resources shared by every
// client it creates: the connection pool on the postgres backend and the
// HTTP client on the hosted one.
type Selector struct {
	cfg         *config.Config
	telemetry   telemetry.Telemetry
	httpClient  *http.Client
	middlewares []client.Middleware

	mu     sync.Mutex
	pool   *pool.Pool
	closed bool
}

// Option configures a Selector.
type Option func(*Selector)

// WithPool supplies an existing pool instead of opening one from the
// configuration. The selector takes ownership and closes it.
func WithPool(p *pool.Pool) Option {
	return func(s *Selector) {
		s.pool = p
	}
}

// WithHTTPClient sets the HTTP client used by hosted clients.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Selector) {
		s.httpClient = hc
	}
}

// WithMiddleware adds middlewares to every client.
func WithMiddleware(m ...client.Middleware) Option {
	return func(s *Selector) {
		s.middlewares = append(s.middlewares, m...)
	}
}

// WithTelemetry overrides the telemetry adapter named in the configuration.
func WithTelemetry(t telemetry.Telemetry) Option {
	return func(s *Selector) {
		s.telemetry = t
	}
}

// New validates cfg and prepares the backend it selects. On the postgres
// backend the pool is opened here, once; no connection is made until the
// first statement.
func New(cfg *config.Config, opts ...Option) (*Selector, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Selector{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}

	if s.telemetry == nil {
		t, err := telemetry.NewTelemetry(&telemetry.Config{Type: cfg.Telemetry})
		if err != nil {
			return nil, err
		}
		s.telemetry = t
	}

	if cfg.Provider == config.ProviderPostgres && s.pool == nil {
		p, err := pool.New(cfg.PoolConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to open pool: %w", err)
		}
		s.pool = p
	}

	debug.Info("Database backend selected", "provider", cfg.Provider)
	return s, nil
}

// Provider reports the selected backend kind.
func (s *Selector) Provider() config.Provider {
	return s.cfg.Provider
}

// Admin returns a client with elevated privileges. On the postgres backend
// it is the same as a server client; permissions live in the application.
func (s *Selector) Admin() (client.DatabaseClient, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if s.cfg.Provider == config.ProviderPostgres {
		return s.postgres(), nil
	}
	if s.cfg.Supabase.ServiceRoleKey == "" {
		return nil, ErrServiceKeyMissing
	}
	return s.hosted(s.cfg.Supabase.ServiceRoleKey, ""), nil
}

// Server returns a request scoped client acting for the user that owns
// accessToken. An empty token gives an anonymous client. The direct
// backend ignores the token.
func (s *Selector) Server(accessToken string) (client.DatabaseClient, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if s.cfg.Provider == config.ProviderPostgres {
		return s.postgres(), nil
	}
	return s.hosted(s.cfg.Supabase.AnonKey, accessToken), nil
}

// Browser returns an anonymous client for untrusted callers. The postgres
// backend refuses: its credentials must never leave the server.
func (s *Selector) Browser() (client.DatabaseClient, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if s.cfg.Provider == config.ProviderPostgres {
		return nil, ErrBrowserUnsupported
	}
	return s.hosted(s.cfg.Supabase.AnonKey, ""), nil
}

func (s *Selector) postgres() *client.PostgresClient {
	exec := executor.NewQueryExecutor(s.pool, executor.WithTelemetry(s.telemetry))
	return client.NewPostgresClient(s.pool,
		client.WithExecutor(exec),
		client.WithMiddleware(s.middlewares...),
	)
}

func (s *Selector) hosted(apiKey, accessToken string) *hosted.Client {
	opts := []hosted.Option{
		hosted.WithTelemetry(s.telemetry),
		hosted.WithMiddleware(s.middlewares...),
		hosted.WithHTTPClient(s.httpClient),
	}
	if accessToken != "" {
		opts = append(opts, hosted.WithAccessToken(accessToken))
	}
	return hosted.New(s.cfg.Supabase.URL, apiKey, opts...)
}

func (s *Selector) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("selector is closed")
	}
	return nil
}

// Pool returns the shared pool, or nil on the hosted backend.
func (s *Selector) Pool() *pool.Pool {
	return s.pool
}

// Telemetry returns the adapter every client records on.
func (s *Selector) Telemetry() telemetry.Telemetry {
	return s.telemetry
}

// Close releases the pool. Clients handed out earlier stop working.
func (s *Selector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.pool != nil {
		return s.pool.Close()
	}
	return nil
}

// Package hosted implements the database client on top of a hosted
// Supabase project: PostgREST for queries and GoTrue for sessions.
package hosted

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/readingbuddy/dbal/internal/debug"
	"github.com/readingbuddy/dbal/internal/telemetry"
	"github.com/readingbuddy/dbal/query/builder"
	"github.com/readingbuddy/dbal/query/compiler"
	"github.com/readingbuddy/dbal/query/domain"
	"github.com/readingbuddy/dbal/query/mapper"
	"github.com/readingbuddy/dbal/runtime/client"
)

// DefaultTimeout bounds every HTTP round trip unless the caller's context
// is shorter.
const DefaultTimeout = 10 * time.Second

// maxBodySize caps how much of a response body is read.
const maxBodySize = 32 << 20

// Client talks to PostgREST and GoTrue. Builders and results behave exactly
// as on the direct backend; definitions are validated by the same compiler
// before any request is sent.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	mapper      *mapper.ResultMapper
	telemetry   telemetry.Telemetry
	middlewares []client.Middleware

	mu          sync.RWMutex
	accessToken string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAccessToken makes requests on behalf of a signed in user. Without
// it the API key is sent as the bearer token.
func WithAccessToken(token string) Option {
	return func(c *Client) {
		c.accessToken = token
	}
}

// WithTelemetry records every request on t.
func WithTelemetry(t telemetry.Telemetry) Option {
	return func(c *Client) {
		if t != nil {
			c.telemetry = t
		}
	}
}

// WithMiddleware appends middlewares to the request chain.
func WithMiddleware(m ...client.Middleware) Option {
	return func(c *Client) {
		c.middlewares = append(c.middlewares, m...)
	}
}

// New creates a client for the project at baseURL using apiKey (the anon
// or the service role key).
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		mapper:     mapper.NewResultMapper(),
		telemetry:  telemetry.NewNoopTelemetry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// From starts a query on table.
func (c *Client) From(table string) *builder.QueryBuilder {
	return builder.NewQueryBuilder(table, c)
}

// Run validates def, sends it and shapes the returned rows.
func (c *Client) Run(ctx context.Context, def domain.Definition) *domain.Result {
	if _, err := compiler.Compile(def); err != nil {
		return c.mapper.Shape(def.Mode, nil, err)
	}
	req, err := newRestRequest(def)
	if err != nil {
		return c.mapper.Shape(def.Mode, nil, err)
	}

	op := def.Operation
	if op == "" {
		op = domain.Select
	}
	rows, err := c.execute(ctx, req, def.Table, string(op), def.Table)
	return c.mapper.Shape(def.Mode, rows, err)
}

// RPC calls fn through /rest/v1/rpc. A scalar result becomes one row keyed
// by the function name.
func (c *Client) RPC(ctx context.Context, fn string, params domain.Row) *domain.Result {
	if _, err := compiler.CompileRPC(fn, params); err != nil {
		return c.mapper.Shape(domain.Multi, nil, err)
	}
	req, err := newRPCRequest(fn, params)
	if err != nil {
		return c.mapper.Shape(domain.Multi, nil, err)
	}
	rows, err := c.execute(ctx, req, fn, "rpc", fn)
	return c.mapper.Shape(domain.Multi, rows, err)
}

func (c *Client) execute(ctx context.Context, req restRequest, table, operation, fallback string) ([]domain.Record, error) {
	var rows []domain.Record
	event := &client.QueryEvent{Table: table, Operation: operation, SQL: req.describe()}
	err := client.Chain(ctx, c.middlewares, event, func() error {
		var err error
		rows, err = c.roundTrip(ctx, req, table, operation, fallback)
		return err
	})
	return rows, err
}

func (c *Client) roundTrip(ctx context.Context, req restRequest, table, operation, fallback string) ([]domain.Record, error) {
	queryID := newQueryID()
	log := debug.With("query_id", queryID, "table", table, "operation", operation)
	log.Debug("sending request", "request", req.describe())

	start := time.Now()
	rows, err := c.send(ctx, req, fallback)
	elapsed := time.Since(start)

	c.telemetry.RecordQuery(ctx, telemetry.QueryInfo{
		QueryID:   queryID,
		Table:     table,
		Operation: operation,
		Duration:  elapsed,
		Success:   err == nil,
		Rows:      len(rows),
	})

	if err != nil {
		derr := domain.AsError(err)
		c.telemetry.RecordError(ctx, telemetry.ErrorInfo{
			QueryID:   queryID,
			Table:     table,
			Operation: operation,
			Kind:      string(derr.Kind),
			Err:       derr,
		})
		log.Error("request failed", "kind", derr.Kind, "code", derr.Code, "error", derr.Message, "duration", elapsed)
		return nil, derr
	}

	log.Debug("request done", "rows", len(rows), "duration", elapsed)
	return rows, nil
}

func (c *Client) send(ctx context.Context, r restRequest, fallback string) ([]domain.Record, error) {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, domain.NewConnectionError(fmt.Sprintf("invalid request: %v", err), err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(r.prefer) > 0 {
		req.Header.Set("Prefer", strings.Join(r.prefer, ","))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewConnectionError(err.Error(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, domain.NewConnectionError(fmt.Sprintf("failed to read response: %v", err), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp.StatusCode, data)
	}
	return decodeRecords(data, fallback)
}

// setHeaders adds the API key and bearer token.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	req.Header.Set("X-Client-Info", "dbal-go")
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.accessToken != "" {
		return c.accessToken
	}
	return c.apiKey
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *Client) clearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
}

// Auth returns the GoTrue session client.
func (c *Client) Auth() client.AuthClient {
	return &authClient{c: c}
}

// Backend reports "supabase".
func (c *Client) Backend() string {
	return client.BackendHosted
}

func newQueryID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

var (
	_ client.DatabaseClient = (*Client)(nil)
	_ builder.Runner        = (*Client)(nil)
)

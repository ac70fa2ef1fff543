package client

import (
	"context"

	"github.com/readingbuddy/dbal/internal/pool"
	"github.com/readingbuddy/dbal/query/builder"
	"github.com/readingbuddy/dbal/query/compiler"
	"github.com/readingbuddy/dbal/query/domain"
	"github.com/readingbuddy/dbal/query/executor"
	"github.com/readingbuddy/dbal/query/mapper"
)

// PostgresClient runs queries on a directly connected PostgreSQL server:
// builder, compiler, executor and result shaper in one pipeline.
type PostgresClient struct {
	pool        *pool.Pool
	exec        *executor.QueryExecutor
	mapper      *mapper.ResultMapper
	middlewares []Middleware
}

// Option configures a PostgresClient.
type Option func(*PostgresClient)

// WithMiddleware appends middlewares to the statement chain.
func WithMiddleware(m ...Middleware) Option {
	return func(c *PostgresClient) {
		c.middlewares = append(c.middlewares, m...)
	}
}

// WithExecutor replaces the default executor.
func WithExecutor(e *executor.QueryExecutor) Option {
	return func(c *PostgresClient) {
		c.exec = e
	}
}

// NewPostgresClient creates a client on the shared pool p. The pool is not
// owned by the client; closing it is the caller's job.
func NewPostgresClient(p *pool.Pool, opts ...Option) *PostgresClient {
	c := &PostgresClient{
		pool:   p,
		mapper: mapper.NewResultMapper(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.exec == nil {
		var acq executor.Acquirer
		if p != nil {
			acq = p
		}
		c.exec = executor.NewQueryExecutor(acq)
	}
	return c
}

// From starts a query on table.
func (c *PostgresClient) From(table string) *builder.QueryBuilder {
	return builder.NewQueryBuilder(table, c)
}

// Run compiles def, executes it and shapes the rows. Compile errors are
// returned without touching the pool.
func (c *PostgresClient) Run(ctx context.Context, def domain.Definition) *domain.Result {
	stmt, err := compiler.Compile(def)
	if err != nil {
		return c.mapper.Shape(def.Mode, nil, err)
	}
	rows, err := c.execute(ctx, stmt, def.Table, string(def.Operation))
	return c.mapper.Shape(def.Mode, rows, err)
}

// RPC calls fn with named parameters.
func (c *PostgresClient) RPC(ctx context.Context, fn string, params domain.Row) *domain.Result {
	stmt, err := compiler.CompileRPC(fn, params)
	if err != nil {
		return c.mapper.Shape(domain.Multi, nil, err)
	}
	rows, err := c.execute(ctx, stmt, fn, "rpc")
	return c.mapper.Shape(domain.Multi, rows, err)
}

func (c *PostgresClient) execute(ctx context.Context, stmt domain.Statement, table, operation string) ([]domain.Record, error) {
	var rows []domain.Record
	event := &QueryEvent{Table: table, Operation: operation, SQL: stmt.SQL, Args: stmt.Args}
	err := Chain(ctx, c.middlewares, event, func() error {
		var err error
		rows, err = c.exec.Execute(ctx, stmt, executor.Meta{Table: table, Operation: operation})
		return err
	})
	return rows, err
}

// Auth returns an auth client whose every call is unsupported.
func (c *PostgresClient) Auth() AuthClient {
	return unsupportedAuth{backend: BackendPostgres}
}

// Backend reports "postgres".
func (c *PostgresClient) Backend() string {
	return BackendPostgres
}

// Pool returns the shared pool.
func (c *PostgresClient) Pool() *pool.Pool {
	return c.pool
}

var (
	_ DatabaseClient = (*PostgresClient)(nil)
	_ builder.Runner = (*PostgresClient)(nil)
)

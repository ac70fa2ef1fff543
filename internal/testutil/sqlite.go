// Package testutil provides an in-memory SQLite pool for end-to-end tests.
// SQLite accepts $n placeholders, RETURNING, ON CONFLICT ... DO UPDATE and
// NULLS FIRST/LAST, which covers every statement the compiler emits except
// ILIKE and @>.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/readingbuddy/dbal/internal/pool"
)

// BooksSchema is the fixture schema shared by the end-to-end tests.
const BooksSchema = `
CREATE TABLE books (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	author TEXT,
	pages INTEGER,
	rating REAL,
	status TEXT NOT NULL DEFAULT 'reading',
	finished_at TEXT
);
CREATE TABLE reading_progress (
	user_id TEXT NOT NULL,
	book_id INTEGER NOT NULL,
	page INTEGER NOT NULL,
	PRIMARY KEY (user_id, book_id)
);
`

var dbSeq atomic.Int64

// SQLiteConfig returns a pool configuration for a fresh named in-memory
// database. A single connection keeps the database alive between
// statements.
func SQLiteConfig() pool.Config {
	return pool.Config{
		Driver:         "sqlite3",
		DSN:            fmt.Sprintf("file:dbal_test_%d?mode=memory&cache=shared", dbSeq.Add(1)),
		MaxOpenConns:   1,
		MaxIdleConns:   1,
		AcquireTimeout: 2 * time.Second,
	}
}

// NewSQLitePool opens an in-memory pool, applies the schema statements and
// closes the pool when the test ends.
func NewSQLitePool(t testing.TB, schema ...string) *pool.Pool {
	t.Helper()

	p, err := pool.New(SQLiteConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	for _, stmt := range schema {
		_, err := p.DB().ExecContext(context.Background(), stmt)
		require.NoError(t, err)
	}
	return p
}

// Package client defines the backend-neutral database client and its
// direct PostgreSQL implementation.
package client

import (
	"context"
	"time"

	"github.com/readingbuddy/dbal/query/builder"
	"github.com/readingbuddy/dbal/query/domain"
)

// Backend names reported by DatabaseClient.Backend.
const (
	BackendPostgres = "postgres"
	BackendHosted   = "supabase"
)

// DatabaseClient is the surface application code is written against. Both
// backends implement it with identical builder semantics.
type DatabaseClient interface {
	builder.Runner

	// From starts a query on table.
	From(table string) *builder.QueryBuilder

	// RPC calls a database function with named parameters. The rows it
	// returns are shaped in multi mode.
	RPC(ctx context.Context, fn string, params domain.Row) *domain.Result

	// Auth returns the authentication client for this backend.
	Auth() AuthClient

	// Backend reports which backend serves the client.
	Backend() string
}

// AuthClient is the session surface of the hosted backend. The direct
// backend reports UnsupportedOperationError for every call.
type AuthClient interface {
	GetUser(ctx context.Context) (*User, error)
	GetSession(ctx context.Context) (*Session, error)
	SignOut(ctx context.Context) error
}

// User is an authenticated user.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Session is the token pair of a signed in user.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         *User     `json:"user"`
}

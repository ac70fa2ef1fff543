package client

import (
	"context"

	"github.com/readingbuddy/dbal/query/domain"
)

// unsupportedAuth is the auth client of a backend without an auth service.
type unsupportedAuth struct {
	backend string
}

func (a unsupportedAuth) GetUser(ctx context.Context) (*User, error) {
	return nil, domain.NewUnsupportedError("getUser", a.backend)
}

func (a unsupportedAuth) GetSession(ctx context.Context) (*Session, error) {
	return nil, domain.NewUnsupportedError("getSession", a.backend)
}

func (a unsupportedAuth) SignOut(ctx context.Context) error {
	return domain.NewUnsupportedError("signOut", a.backend)
}

package hosted

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/readingbuddy/dbal/query/domain"
	"github.com/readingbuddy/dbal/runtime/client"
)

// ErrSessionMissing is returned by auth calls made without an access token.
var ErrSessionMissing = errors.New("hosted: auth session missing")

type authClient struct {
	c *Client
}

// GetUser asks GoTrue for the user owning the access token.
func (a *authClient) GetUser(ctx context.Context) (*client.User, error) {
	token := a.c.token()
	if token == "" {
		return nil, ErrSessionMissing
	}

	data, err := a.call(ctx, http.MethodGet, "/auth/v1/user", token)
	if err != nil {
		return nil, err
	}

	var user client.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &user, nil
}

// GetSession returns the current session from the access token alone; the
// token is decoded, not verified, and no request is made.
func (a *authClient) GetSession(ctx context.Context) (*client.Session, error) {
	token := a.c.token()
	if token == "" {
		return nil, nil
	}

	claims, err := parseClaims(token)
	if err != nil {
		return nil, err
	}

	session := &client.Session{
		AccessToken: token,
		TokenType:   "bearer",
		User: &client.User{
			ID:    claims.Subject,
			Email: claims.Email,
			Role:  claims.Role,
		},
	}
	if claims.ExpiresAt > 0 {
		session.ExpiresAt = time.Unix(claims.ExpiresAt, 0).UTC()
	}
	return session, nil
}

// SignOut revokes the session and forgets the access token. Later queries
// fall back to the API key.
func (a *authClient) SignOut(ctx context.Context) error {
	token := a.c.token()
	if token == "" {
		return nil
	}
	if _, err := a.call(ctx, http.MethodPost, "/auth/v1/logout", token); err != nil {
		return err
	}
	a.c.clearToken()
	return nil
}

func (a *authClient) call(ctx context.Context, method, path, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.c.baseURL+path, nil)
	if err != nil {
		return nil, domain.NewConnectionError(fmt.Sprintf("invalid request: %v", err), err)
	}
	req.Header.Set("apikey", a.c.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := a.c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewConnectionError(err.Error(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, domain.NewConnectionError(fmt.Sprintf("failed to read response: %v", err), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAuthError(resp.StatusCode, data)
	}
	return data, nil
}

// authError covers both GoTrue error body layouts.
type authError struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func decodeAuthError(status int, body []byte) *domain.Error {
	var ae authError
	_ = json.Unmarshal(body, &ae)

	msg := firstNonEmpty(ae.Msg, ae.Message, ae.ErrorDescription, ae.Error, http.StatusText(status))
	code := firstNonEmpty(ae.ErrorCode, ae.Error)

	kind := domain.DriverError
	if status >= http.StatusBadGateway {
		kind = domain.ConnectionError
	}
	return &domain.Error{Kind: kind, Message: msg, Code: code, Cause: fmt.Errorf("http status %d", status)}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type claims struct {
	Subject   string `json:"sub"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	ExpiresAt int64  `json:"exp"`
}

// parseClaims decodes the payload segment of a JWT.
func parseClaims(token string) (claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return claims{}, fmt.Errorf("malformed access token: want 3 segments, got %d", len(parts))
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return claims{}, fmt.Errorf("malformed access token payload: %w", err)
	}
	var c claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return claims{}, fmt.Errorf("malformed access token claims: %w", err)
	}
	return c, nil
}

package executor

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/readingbuddy/dbal/query/domain"
)

// connectionCodes are SQLSTATEs outside class 08 that still mean the
// server could not serve the connection.
var connectionCodes = map[string]bool{
	"53300": true, // too_many_connections
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

// Normalize maps any error from the driver or pool into a *domain.Error,
// copying SQLSTATE, detail and hint when the driver reports them.
func Normalize(err error) *domain.Error {
	if err == nil {
		return nil
	}

	var derr *domain.Error
	if errors.As(err, &derr) {
		return derr
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fromServer(string(pqErr.Code), pqErr.Message, pqErr.Detail, pqErr.Hint, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fromServer(pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, err)
	}

	if isConnectionFailure(err) {
		return domain.NewConnectionError(err.Error(), err)
	}

	return &domain.Error{Kind: domain.DriverError, Message: err.Error(), Cause: err}
}

func fromServer(code, message, detail, hint string, cause error) *domain.Error {
	kind := domain.DriverError
	if strings.HasPrefix(code, "08") || connectionCodes[code] {
		kind = domain.ConnectionError
	}
	return &domain.Error{
		Kind:    kind,
		Message: message,
		Code:    code,
		Details: detail,
		Hint:    hint,
		Cause:   cause,
	}
}

func isConnectionFailure(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}

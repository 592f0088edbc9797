// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"time"

	"github.com/lib/pq"

	"github.com/waypoint-sql/waypoint/pkg/wperr"
)

// SSLMode selects the TLS negotiation behavior for a connection.
type SSLMode string

const (
	SSLDisable SSLMode = "disable"
	SSLPrefer  SSLMode = "prefer"
	SSLRequire SSLMode = "require"
)

// permanentErrorCodes are SQLSTATEs that will never succeed on retry,
// so a connection attempt that fails with one of these is not retried.
var permanentErrorCodes = map[pq.ErrorCode]bool{
	"28P01": true, // invalid_password
	"28000": true, // invalid_authorization_specification
}

func isPermanentError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return permanentErrorCodes[pqErr.Code]
	}
	return false
}

// ConnectOptions controls how Connect establishes and configures a
// connection.
type ConnectOptions struct {
	SSLMode           SSLMode
	ConnectRetries    int
	ConnectTimeoutSec int
	StatementTimeoutSec int
}

// Connect opens a connection to connString, applying the requested TLS
// mode and retrying on transient failure with exponential backoff and
// jitter: each retry after the first waits min(2^attempt, 30) seconds
// plus a uniform random 0-999ms. Authentication failures (SQLSTATE
// 28P01, 28000) are never retried. On success, if a statement timeout
// is configured, it is applied to the session.
func Connect(ctx context.Context, connString string, opts ConnectOptions) (*sql.DB, error) {
	dsn, err := withSSLMode(connString, opts.SSLMode)
	if err != nil {
		return nil, wperr.Wrap(wperr.Config, err, "invalid connection string: %s", err)
	}

	var lastErr error
	for attempt := 0; attempt <= opts.ConnectRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
		}

		conn, err := connectOnce(ctx, dsn, opts.ConnectTimeoutSec)
		if err == nil {
			if opts.StatementTimeoutSec > 0 {
				timeoutSQL := fmt.Sprintf("SET statement_timeout = '%ds'", opts.StatementTimeoutSec)
				if _, err := conn.ExecContext(ctx, timeoutSQL); err != nil {
					conn.Close()
					return nil, wperr.Wrap(wperr.Database, err, "failed to set statement_timeout: %s", err)
				}
			}
			return conn, nil
		}

		if isPermanentError(err) {
			return nil, wperr.Wrap(wperr.Database, err, "%s", err)
		}
		lastErr = err
	}

	return nil, wperr.Wrap(wperr.Database, lastErr, "failed to connect after %d attempts: %s", opts.ConnectRetries+1, lastErr)
}

func connectOnce(ctx context.Context, dsn string, connectTimeoutSec int) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx := ctx
	var cancel context.CancelFunc
	if connectTimeoutSec > 0 {
		pingCtx, cancel = context.WithTimeout(ctx, time.Duration(connectTimeoutSec)*time.Second)
		defer cancel()
	}

	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

// withSSLMode sets or overwrites the sslmode query parameter on a
// postgres connection URL.
func withSSLMode(connString string, mode SSLMode) (string, error) {
	if mode == "" {
		return connString, nil
	}

	u, err := url.Parse(connString)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("sslmode", string(mode))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func backoffDelay(attempt int) time.Duration {
	base := int64(1) << uint(attempt)
	if base > 30 {
		base = 30
	}
	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond // #nosec G404
	return time.Duration(base)*time.Second + jitter
}

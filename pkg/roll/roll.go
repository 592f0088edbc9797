// SPDX-License-Identifier: Apache-2.0

// Package roll implements Waypoint's core migration operations:
// migrate, info, validate, repair, baseline, and clean. A *Roll binds
// a single database connection to a single configuration and exposes
// one method per operation.
package roll

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/waypoint-sql/waypoint/internal/config"
	"github.com/waypoint-sql/waypoint/pkg/db"
	"github.com/waypoint-sql/waypoint/pkg/state"
)

// Roll orchestrates migration operations against a single database
// connection, scoped to a single schema history table.
type Roll struct {
	conn   db.DB
	cfg    *config.Config
	state  *state.State
	runID  string
	onWarn func(string)
}

// New opens a connection per cfg (applying the configured SSL mode,
// connect retry policy, and statement timeout) and returns a Roll
// bound to it. onWarn, if non-nil, receives human-readable warnings
// that do not abort the operation in progress (missing migration
// locations, advisory-lock release failures, and the like).
func New(ctx context.Context, cfg *config.Config, onWarn func(string)) (*Roll, error) {
	connString, err := cfg.ConnectionString()
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.Connect(ctx, connString, db.ConnectOptions{
		SSLMode:             cfg.Database.SSLMode,
		ConnectRetries:      cfg.Database.ConnectRetries,
		ConnectTimeoutSec:   cfg.Database.ConnectTimeoutSec,
		StatementTimeoutSec: cfg.Database.StatementTimeoutSec,
	})
	if err != nil {
		return nil, err
	}

	conn := &db.RDB{
		DB: sqlDB,
		OnRollbackError: func(err error) {
			if onWarn != nil {
				onWarn(fmt.Sprintf("rollback failed: %s", err))
			}
		},
	}

	st, err := state.New(conn, cfg.Migrations.Schema, cfg.Migrations.Table)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Roll{
		conn:   conn,
		cfg:    cfg,
		state:  st,
		runID:  uuid.NewString(),
		onWarn: onWarn,
	}, nil
}

// Close releases the underlying database connection.
func (r *Roll) Close() error {
	return r.conn.Close()
}

// RunID is a per-instance correlation identifier, suitable for
// attaching to structured log lines emitted by a caller across a
// single operation.
func (r *Roll) RunID() string {
	return r.runID
}

func (r *Roll) warn(format string, args ...any) {
	if r.onWarn != nil {
		r.onWarn(fmt.Sprintf(format, args...))
	}
}

// withLock acquires the advisory lock scoped to the history table,
// runs f, and releases the lock on every exit path — success or
// error. A release failure is reported via warn and never masks the
// error f returned.
func (r *Roll) withLock(ctx context.Context, f func() error) error {
	if err := db.AcquireAdvisoryLock(ctx, r.conn, r.cfg.Migrations.Table); err != nil {
		return err
	}

	result := f()

	if err := db.ReleaseAdvisoryLock(ctx, r.conn, r.cfg.Migrations.Table); err != nil {
		r.warn("failed to release advisory lock: %s", err)
	}

	return result
}

func (r *Roll) currentUserAndDatabase(ctx context.Context) (user, database string) {
	user, database = "unknown", "unknown"
	if rows, err := r.conn.QueryContext(ctx, "SELECT current_user"); err == nil {
		_ = db.ScanFirstValue(rows, &user)
		rows.Close()
	}
	if rows, err := r.conn.QueryContext(ctx, "SELECT current_database()"); err == nil {
		_ = db.ScanFirstValue(rows, &database)
		rows.Close()
	}
	return user, database
}

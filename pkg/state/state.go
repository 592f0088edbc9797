// SPDX-License-Identifier: Apache-2.0

// Package state manages the schema history table that records which
// migrations have been applied.
package state

import (
	"context"
	"fmt"
	"time"

	"github.com/waypoint-sql/waypoint/pkg/db"
)

// Applied is a row of the schema history table.
type Applied struct {
	InstalledRank int32
	Version       *string
	Description   string
	MigrationType string
	Script        string
	Checksum      *int32
	InstalledBy   string
	InstalledOn   time.Time
	ExecutionTime int32
	Success       bool
}

// State wraps a connection scoped to a single schema/history-table
// pair.
type State struct {
	conn   db.DB
	Schema string
	Table  string
}

// New validates the schema and table names and returns a State bound
// to them. It does not itself open a connection; conn is provided by
// the caller so that it can be shared with other components (migration
// and hook execution, the lock manager).
func New(conn db.DB, schema, table string) (*State, error) {
	if err := db.ValidateIdentifier(schema); err != nil {
		return nil, fmt.Errorf("invalid schema name: %w", err)
	}
	if err := db.ValidateIdentifier(table); err != nil {
		return nil, fmt.Errorf("invalid table name: %w", err)
	}
	return &State{conn: conn, Schema: schema, Table: table}, nil
}

func (s *State) qualifiedTable() string {
	return db.QuoteIdentifier(s.Schema) + "." + db.QuoteIdentifier(s.Table)
}

// EnsureTable creates the history table and its indexes if they do not
// already exist.
func (s *State) EnsureTable(ctx context.Context) error {
	fq := s.qualifiedTable()
	idxName := db.QuoteIdentifier(s.Table + "_s_idx")
	verIdxName := db.QuoteIdentifier(s.Table + "_v_idx")

	sqlText := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    installed_rank INTEGER PRIMARY KEY,
    version        VARCHAR(50),
    description    VARCHAR(200) NOT NULL,
    type           VARCHAR(20) NOT NULL,
    script         VARCHAR(1000) NOT NULL,
    checksum       INTEGER,
    installed_by   VARCHAR(100) NOT NULL,
    installed_on   TIMESTAMPTZ NOT NULL DEFAULT now(),
    execution_time INTEGER NOT NULL,
    success        BOOLEAN NOT NULL
);

CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (success);
CREATE INDEX IF NOT EXISTS %[3]s ON %[1]s (version);
`, fq, idxName, verIdxName)

	if _, err := s.conn.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("failed to create history table: %w", err)
	}
	return nil
}

// TableExists reports whether the history table has been created.
func (s *State) TableExists(ctx context.Context) (bool, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`, s.Schema, s.Table)
	if err != nil {
		return false, fmt.Errorf("failed to check history table existence: %w", err)
	}
	defer rows.Close()

	var exists bool
	if err := db.ScanFirstValue(rows, &exists); err != nil {
		return false, fmt.Errorf("failed to check history table existence: %w", err)
	}
	return exists, nil
}

// HasEntries reports whether the history table contains any rows.
func (s *State) HasEntries(ctx context.Context) (bool, error) {
	sqlText := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s)", s.qualifiedTable())
	rows, err := s.conn.QueryContext(ctx, sqlText)
	if err != nil {
		return false, fmt.Errorf("failed to check history table entries: %w", err)
	}
	defer rows.Close()

	var exists bool
	if err := db.ScanFirstValue(rows, &exists); err != nil {
		return false, fmt.Errorf("failed to check history table entries: %w", err)
	}
	return exists, nil
}

// LoadAllOrderedByRank returns every row in the history table, ordered
// by installed_rank ascending.
func (s *State) LoadAllOrderedByRank(ctx context.Context) ([]Applied, error) {
	sqlText := fmt.Sprintf(`
		SELECT installed_rank, version, description, type, script, checksum,
		       installed_by, installed_on, execution_time, success
		FROM %s ORDER BY installed_rank`, s.qualifiedTable())

	rows, err := s.conn.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("failed to load history rows: %w", err)
	}
	defer rows.Close()

	var out []Applied
	for rows.Next() {
		var a Applied
		if err := rows.Scan(&a.InstalledRank, &a.Version, &a.Description, &a.MigrationType,
			&a.Script, &a.Checksum, &a.InstalledBy, &a.InstalledOn, &a.ExecutionTime, &a.Success); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// InsertParams carries the fields of a new history row. InstalledRank
// is assigned atomically by the database, never by the caller.
type InsertParams struct {
	Version       *string
	Description   string
	MigrationType string
	Script        string
	Checksum      *int32
	InstalledBy   string
	ExecutionTime int32
	Success       bool
}

// Insert records a new row, computing installed_rank atomically inside
// the INSERT statement itself: two concurrent inserts can never
// observe the same MAX(installed_rank), because the lock manager (see
// pkg/db) serializes all writers.
func (s *State) Insert(ctx context.Context, p InsertParams) error {
	fq := s.qualifiedTable()
	sqlText := fmt.Sprintf(`
		INSERT INTO %[1]s
		(installed_rank, version, description, type, script, checksum, installed_by, execution_time, success)
		VALUES (
			(SELECT COALESCE(MAX(installed_rank), 0) + 1 FROM %[1]s),
			$1, $2, $3, $4, $5, $6, $7, $8
		)`, fq)

	_, err := s.conn.ExecContext(ctx, sqlText,
		p.Version, p.Description, p.MigrationType, p.Script, p.Checksum, p.InstalledBy, p.ExecutionTime, p.Success)
	if err != nil {
		return fmt.Errorf("failed to insert history row: %w", err)
	}
	return nil
}

// DeleteFailed removes every row with success = false and returns the
// number of rows removed.
func (s *State) DeleteFailed(ctx context.Context) (int64, error) {
	sqlText := fmt.Sprintf("DELETE FROM %s WHERE success = FALSE", s.qualifiedTable())
	res, err := s.conn.ExecContext(ctx, sqlText)
	if err != nil {
		return 0, fmt.Errorf("failed to delete failed history rows: %w", err)
	}
	return res.RowsAffected()
}

// UpdateVersionChecksum updates the stored checksum for the versioned
// row matching version.
func (s *State) UpdateVersionChecksum(ctx context.Context, version string, newChecksum int32) error {
	sqlText := fmt.Sprintf("UPDATE %s SET checksum = $1 WHERE version = $2", s.qualifiedTable())
	_, err := s.conn.ExecContext(ctx, sqlText, newChecksum, version)
	if err != nil {
		return fmt.Errorf("failed to update checksum for version %s: %w", version, err)
	}
	return nil
}

// UpdateRepeatableChecksum updates the stored checksum for the
// repeatable row matching script (version IS NULL).
func (s *State) UpdateRepeatableChecksum(ctx context.Context, script string, newChecksum int32) error {
	sqlText := fmt.Sprintf("UPDATE %s SET checksum = $1 WHERE script = $2 AND version IS NULL", s.qualifiedTable())
	_, err := s.conn.ExecContext(ctx, sqlText, newChecksum, script)
	if err != nil {
		return fmt.Errorf("failed to update checksum for repeatable %s: %w", script, err)
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0

package roll_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-sql/waypoint/internal/config"
	"github.com/waypoint-sql/waypoint/pkg/roll"
	"github.com/waypoint-sql/waypoint/pkg/state"
	"github.com/waypoint-sql/waypoint/pkg/testutils"
	"github.com/waypoint-sql/waypoint/pkg/wperr"
)

func TestMain(m *testing.M) {
	testutils.SharedTestMain(m)
}

func writeMigration(t *testing.T, dir, name, sqlText string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(sqlText), 0o600))
}

func newRollWithLocations(t *testing.T, dir string, fn func(r *roll.Roll, db *sql.DB)) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Migrations.Locations = []string{dir}
	testutils.WithRollInSchemaAndConnectionToContainer(t, "public", cfg, fn)
}

func TestMigrateAppliesVersionedMigrationsInOrder(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeMigration(t, dir, "V1__create_widgets.sql", "CREATE TABLE widgets (id serial primary key);")
	writeMigration(t, dir, "V2__add_name.sql", "ALTER TABLE widgets ADD COLUMN name text;")

	newRollWithLocations(t, dir, func(r *roll.Roll, db *sql.DB) {
		ctx := context.Background()

		report, err := r.Migrate(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, report.MigrationsApplied)

		var colCount int
		err = db.QueryRowContext(ctx, `
			SELECT count(*) FROM information_schema.columns
			WHERE table_schema = 'public' AND table_name = 'widgets'`).Scan(&colCount)
		require.NoError(t, err)
		assert.Equal(t, 2, colCount)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeMigration(t, dir, "V1__create_widgets.sql", "CREATE TABLE widgets (id serial primary key);")

	newRollWithLocations(t, dir, func(r *roll.Roll, db *sql.DB) {
		ctx := context.Background()

		_, err := r.Migrate(ctx, nil)
		require.NoError(t, err)

		report, err := r.Migrate(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, report.MigrationsApplied)
	})
}

func TestMigrateReappliesRepeatableOnChecksumChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeMigration(t, dir, "R__views.sql", "CREATE OR REPLACE VIEW v1 AS SELECT 1;")

	newRollWithLocations(t, dir, func(r *roll.Roll, db *sql.DB) {
		ctx := context.Background()

		report, err := r.Migrate(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, report.MigrationsApplied)

		report, err = r.Migrate(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, report.MigrationsApplied)

		writeMigration(t, dir, "R__views.sql", "CREATE OR REPLACE VIEW v1 AS SELECT 2;")

		report, err = r.Migrate(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, report.MigrationsApplied)
	})
}

func TestMigrateStopsAtTargetVersion(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeMigration(t, dir, "V1__one.sql", "CREATE TABLE t1 (id int);")
	writeMigration(t, dir, "V2__two.sql", "CREATE TABLE t2 (id int);")
	writeMigration(t, dir, "V3__three.sql", "CREATE TABLE t3 (id int);")

	newRollWithLocations(t, dir, func(r *roll.Roll, db *sql.DB) {
		ctx := context.Background()

		target := "2"
		report, err := r.Migrate(ctx, &target)
		require.NoError(t, err)
		assert.Equal(t, 2, report.MigrationsApplied)

		var exists bool
		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 't3')`).Scan(&exists)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestMigrateRejectsOutOfOrderByDefault(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeMigration(t, dir, "V2__two.sql", "CREATE TABLE t2 (id int);")

	newRollWithLocations(t, dir, func(r *roll.Roll, db *sql.DB) {
		ctx := context.Background()

		_, err := r.Migrate(ctx, nil)
		require.NoError(t, err)

		writeMigration(t, dir, "V1__one.sql", "CREATE TABLE t1 (id int);")

		_, err = r.Migrate(ctx, nil)
		require.Error(t, err)

		var wpErr *wperr.Error
		require.True(t, wperr.AsError(err, &wpErr))
		assert.Equal(t, wperr.OutOfOrder, wpErr.Kind)
	})
}

func TestBaselineSkipsEarlierVersions(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeMigration(t, dir, "V1__one.sql", "CREATE TABLE t1 (id int);")
	writeMigration(t, dir, "V2__two.sql", "CREATE TABLE t2 (id int);")

	newRollWithLocations(t, dir, func(r *roll.Roll, db *sql.DB) {
		ctx := context.Background()

		require.NoError(t, r.Baseline(ctx, "1", ""))

		report, err := r.Migrate(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, report.MigrationsApplied)
		assert.Equal(t, "V2__two.sql", report.Details[0].Script)
	})
}

func TestBaselineFailsWhenHistoryNotEmpty(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeMigration(t, dir, "V1__one.sql", "CREATE TABLE t1 (id int);")

	newRollWithLocations(t, dir, func(r *roll.Roll, db *sql.DB) {
		ctx := context.Background()

		_, err := r.Migrate(ctx, nil)
		require.NoError(t, err)

		err = r.Baseline(ctx, "2", "")
		require.Error(t, err)

		var wpErr *wperr.Error
		require.True(t, wperr.AsError(err, &wpErr))
		assert.Equal(t, wperr.BaselineExists, wpErr.Kind)
	})
}

func TestValidateDetectsChecksumMismatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeMigration(t, dir, "V1__one.sql", "CREATE TABLE t1 (id int);")

	newRollWithLocations(t, dir, func(r *roll.Roll, db *sql.DB) {
		ctx := context.Background()

		_, err := r.Migrate(ctx, nil)
		require.NoError(t, err)

		writeMigration(t, dir, "V1__one.sql", "CREATE TABLE t1 (id int, extra int);")

		report, err := r.Validate(ctx)
		require.Error(t, err)
		require.NotNil(t, report)
		assert.False(t, report.Valid)
		assert.Len(t, report.Issues, 1)

		var wpErr *wperr.Error
		require.True(t, wperr.AsError(err, &wpErr))
		assert.Equal(t, wperr.ValidationFailed, wpErr.Kind)
	})
}

func TestValidateWithNoHistoryTableIsValid(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	newRollWithLocations(t, dir, func(r *roll.Roll, db *sql.DB) {
		ctx := context.Background()

		_, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS waypoint_schema_history")
		require.NoError(t, err)

		report, err := r.Validate(ctx)
		require.NoError(t, err)
		assert.True(t, report.Valid)
		assert.NotEmpty(t, report.Warnings)
	})
}

func TestRepairUpdatesChecksum(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeMigration(t, dir, "V1__one.sql", "CREATE TABLE t1 (id int);")

	newRollWithLocations(t, dir, func(r *roll.Roll, db *sql.DB) {
		ctx := context.Background()

		_, err := r.Migrate(ctx, nil)
		require.NoError(t, err)

		writeMigration(t, dir, "V1__one.sql", "CREATE TABLE t1 (id int, extra int);")

		report, err := r.Repair(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.ChecksumsUpdated)

		validateReport, err := r.Validate(ctx)
		require.NoError(t, err)
		assert.True(t, validateReport.Valid)
	})
}

func TestInfoReportsPendingForAllFilesWithoutHistoryTable(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeMigration(t, dir, "V1__one.sql", "CREATE TABLE t1 (id int);")

	newRollWithLocations(t, dir, func(r *roll.Roll, db *sql.DB) {
		ctx := context.Background()

		_, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS waypoint_schema_history")
		require.NoError(t, err)

		infos, err := r.Info(ctx)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, state.Pending, infos[0].State)
	})
}

func TestCleanDropsTablesWhenEnabled(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeMigration(t, dir, "V1__one.sql", "CREATE TABLE t1 (id int);")

	cfg := config.Defaults()
	cfg.Migrations.Locations = []string{dir}
	cfg.Migrations.CleanEnabled = true

	testutils.WithRollInSchemaAndConnectionToContainer(t, "public", cfg, func(r *roll.Roll, db *sql.DB) {
		ctx := context.Background()

		_, err := r.Migrate(ctx, nil)
		require.NoError(t, err)

		dropped, err := r.Clean(ctx, false)
		require.NoError(t, err)
		assert.NotEmpty(t, dropped)

		var exists bool
		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 't1')`).Scan(&exists)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestCleanRejectedWhenDisabled(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	newRollWithLocations(t, dir, func(r *roll.Roll, db *sql.DB) {
		ctx := context.Background()

		_, err := r.Clean(ctx, false)
		require.Error(t, err)

		var wpErr *wperr.Error
		require.True(t, wperr.AsError(err, &wpErr))
		assert.Equal(t, wperr.CleanDisabled, wpErr.Kind)
	})
}

// SPDX-License-Identifier: Apache-2.0

package migration_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-sql/waypoint/pkg/migration"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestScanOrdersVersionedBeforeRepeatable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "R__Z_view.sql", "CREATE VIEW z AS SELECT 1;")
	writeFile(t, dir, "V2__Add_column.sql", "ALTER TABLE t ADD COLUMN x INT;")
	writeFile(t, dir, "V1__Create_table.sql", "CREATE TABLE t(id INT);")
	writeFile(t, dir, "R__A_view.sql", "CREATE VIEW a AS SELECT 1;")

	migs, err := migration.Scan([]string{dir}, nil)
	require.NoError(t, err)
	require.Len(t, migs, 4)

	assert.Equal(t, migration.Versioned, migs[0].Kind)
	assert.Equal(t, "1", migs[0].Version.String())
	assert.Equal(t, migration.Versioned, migs[1].Kind)
	assert.Equal(t, "2", migs[1].Version.String())
	assert.Equal(t, migration.Repeatable, migs[2].Kind)
	assert.Equal(t, "A view", migs[2].Description)
	assert.Equal(t, migration.Repeatable, migs[3].Kind)
	assert.Equal(t, "Z view", migs[3].Description)
}

func TestScanSkipsHookFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "beforeMigrate.sql", "SELECT 1;")
	writeFile(t, dir, "V1__Create_table.sql", "CREATE TABLE t(id INT);")

	migs, err := migration.Scan([]string{dir}, nil)
	require.NoError(t, err)
	require.Len(t, migs, 1)
	assert.Equal(t, "V1__Create_table.sql", migs[0].Script)
}

func TestScanRejectsMalformedVersionedFilename(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "V1_missing_separator.sql", "SELECT 1;")

	_, err := migration.Scan([]string{dir}, nil)
	assert.Error(t, err)
}

func TestScanWarnsOnMissingLocation(t *testing.T) {
	t.Parallel()

	var warnings []string
	migs, err := migration.Scan([]string{"/nonexistent/location"}, func(msg string) {
		warnings = append(warnings, msg)
	})
	require.NoError(t, err)
	assert.Empty(t, migs)
	assert.Len(t, warnings, 1)
}

func TestScanComputesChecksum(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "V1__Create_table.sql", "CREATE TABLE t(id INT);\n")

	migs, err := migration.Scan([]string{dir}, nil)
	require.NoError(t, err)
	require.Len(t, migs, 1)
	assert.NotZero(t, migs[0].Checksum)
}

func TestScanDottedVersion(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "V1.2.3__Add_column.sql", "ALTER TABLE t ADD COLUMN x INT;")

	migs, err := migration.Scan([]string{dir}, nil)
	require.NoError(t, err)
	require.Len(t, migs, 1)
	assert.Equal(t, "Add column", migs[0].Description)
}

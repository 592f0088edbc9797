// SPDX-License-Identifier: Apache-2.0

package state_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-sql/waypoint/pkg/state"
	"github.com/waypoint-sql/waypoint/pkg/testutils"
)

func TestMain(m *testing.M) {
	testutils.SharedTestMain(m)
}

func TestEnsureTableIsIdempotent(t *testing.T) {
	t.Parallel()

	testutils.WithStateAndConnectionToContainer(t, func(st *state.State, conn *sql.DB) {
		ctx := context.Background()

		exists, err := st.TableExists(ctx)
		require.NoError(t, err)
		assert.True(t, exists)

		require.NoError(t, st.EnsureTable(ctx))

		exists, err = st.TableExists(ctx)
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestTableExistsBeforeInit(t *testing.T) {
	t.Parallel()

	testutils.WithUninitializedState(t, func(st *state.State) {
		exists, err := st.TableExists(context.Background())
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestInsertAssignsSequentialRanks(t *testing.T) {
	t.Parallel()

	testutils.WithStateAndConnectionToContainer(t, func(st *state.State, conn *sql.DB) {
		ctx := context.Background()

		v1 := "1"
		require.NoError(t, st.Insert(ctx, state.InsertParams{
			Version: &v1, Description: "first", MigrationType: "SQL",
			Script: "V1__first.sql", Checksum: int32Ptr(1), InstalledBy: "waypoint",
			ExecutionTime: 10, Success: true,
		}))

		v2 := "2"
		require.NoError(t, st.Insert(ctx, state.InsertParams{
			Version: &v2, Description: "second", MigrationType: "SQL",
			Script: "V2__second.sql", Checksum: int32Ptr(2), InstalledBy: "waypoint",
			ExecutionTime: 20, Success: true,
		}))

		rows, err := st.LoadAllOrderedByRank(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, int32(1), rows[0].InstalledRank)
		assert.Equal(t, int32(2), rows[1].InstalledRank)
		assert.Equal(t, "1", *rows[0].Version)
		assert.Equal(t, "2", *rows[1].Version)
	})
}

func TestDeleteFailedRemovesOnlyFailedRows(t *testing.T) {
	t.Parallel()

	testutils.WithStateAndConnectionToContainer(t, func(st *state.State, conn *sql.DB) {
		ctx := context.Background()

		v1 := "1"
		require.NoError(t, st.Insert(ctx, state.InsertParams{
			Version: &v1, Description: "ok", MigrationType: "SQL",
			Script: "V1__ok.sql", Checksum: int32Ptr(1), InstalledBy: "waypoint",
			ExecutionTime: 10, Success: true,
		}))

		v2 := "2"
		require.NoError(t, st.Insert(ctx, state.InsertParams{
			Version: &v2, Description: "bad", MigrationType: "SQL",
			Script: "V2__bad.sql", Checksum: int32Ptr(2), InstalledBy: "waypoint",
			ExecutionTime: 0, Success: false,
		}))

		removed, err := st.DeleteFailed(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		rows, err := st.LoadAllOrderedByRank(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "1", *rows[0].Version)
	})
}

func TestUpdateVersionChecksum(t *testing.T) {
	t.Parallel()

	testutils.WithStateAndConnectionToContainer(t, func(st *state.State, conn *sql.DB) {
		ctx := context.Background()

		v1 := "1"
		require.NoError(t, st.Insert(ctx, state.InsertParams{
			Version: &v1, Description: "first", MigrationType: "SQL",
			Script: "V1__first.sql", Checksum: int32Ptr(1), InstalledBy: "waypoint",
			ExecutionTime: 10, Success: true,
		}))

		require.NoError(t, st.UpdateVersionChecksum(ctx, "1", 99))

		rows, err := st.LoadAllOrderedByRank(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int32(99), *rows[0].Checksum)
	})
}

func TestHasEntries(t *testing.T) {
	t.Parallel()

	testutils.WithStateAndConnectionToContainer(t, func(st *state.State, conn *sql.DB) {
		ctx := context.Background()

		has, err := st.HasEntries(ctx)
		require.NoError(t, err)
		assert.False(t, has)

		v1 := "1"
		require.NoError(t, st.Insert(ctx, state.InsertParams{
			Version: &v1, Description: "first", MigrationType: "SQL",
			Script: "V1__first.sql", Checksum: int32Ptr(1), InstalledBy: "waypoint",
			ExecutionTime: 10, Success: true,
		}))

		has, err = st.HasEntries(ctx)
		require.NoError(t, err)
		assert.True(t, has)
	})
}

func int32Ptr(v int32) *int32 { return &v }

// SPDX-License-Identifier: Apache-2.0

package roll

import (
	"context"

	"github.com/waypoint-sql/waypoint/pkg/state"
	"github.com/waypoint-sql/waypoint/pkg/wperr"
)

const defaultBaselineDescription = "<< Waypoint Baseline >>"

// Baseline marks a database that already has a schema as being at a
// given version, without running any migration files. It fails if the
// history table already has any entries. An empty version or
// description falls back to the configured baseline version and the
// default baseline description, respectively. It runs under the
// advisory lock.
func (r *Roll) Baseline(ctx context.Context, baselineVersion, description string) error {
	return r.withLock(ctx, func() error {
		return r.runBaseline(ctx, baselineVersion, description)
	})
}

func (r *Roll) runBaseline(ctx context.Context, baselineVersion, description string) error {
	if baselineVersion == "" {
		baselineVersion = r.cfg.Migrations.BaselineVersion
	}
	if description == "" {
		description = defaultBaselineDescription
	}

	if err := r.state.EnsureTable(ctx); err != nil {
		return err
	}

	hasEntries, err := r.state.HasEntries(ctx)
	if err != nil {
		return err
	}
	if hasEntries {
		return wperr.New(wperr.BaselineExists, "history table already has entries; baseline can only be applied to an empty history")
	}

	installedBy := r.cfg.Migrations.InstalledBy
	if installedBy == "" {
		installedBy = "waypoint"
	}

	v := baselineVersion
	return r.state.Insert(ctx, state.InsertParams{
		Version:       &v,
		Description:   description,
		MigrationType: "BASELINE",
		Script:        defaultBaselineDescription,
		Checksum:      nil,
		InstalledBy:   installedBy,
		ExecutionTime: 0,
		Success:       true,
	})
}

// SPDX-License-Identifier: Apache-2.0

package roll

import (
	"context"
	"fmt"

	"github.com/waypoint-sql/waypoint/pkg/migration"
)

// RepairReport summarizes the corrective actions a Repair call took.
type RepairReport struct {
	FailedRemoved    int64
	ChecksumsUpdated int
	Details          []string
}

// Repair deletes failed history rows and updates the stored checksum
// of any applied migration whose on-disk checksum has since changed.
// It never re-applies SQL. It runs under the advisory lock.
func (r *Roll) Repair(ctx context.Context) (*RepairReport, error) {
	var report *RepairReport
	err := r.withLock(ctx, func() error {
		rep, err := r.runRepair(ctx)
		report = rep
		return err
	})
	return report, err
}

func (r *Roll) runRepair(ctx context.Context) (*RepairReport, error) {
	if err := r.state.EnsureTable(ctx); err != nil {
		return nil, err
	}

	removed, err := r.state.DeleteFailed(ctx)
	if err != nil {
		return nil, err
	}

	report := &RepairReport{FailedRemoved: removed}

	applied, err := r.state.LoadAllOrderedByRank(ctx)
	if err != nil {
		return report, err
	}

	resolved, err := migration.Scan(r.cfg.Migrations.Locations, r.warnFn())
	if err != nil {
		return report, err
	}

	byVersion := make(map[string]migration.Resolved)
	byScript := make(map[string]migration.Resolved)
	for _, m := range resolved {
		if m.Kind == migration.Versioned {
			byVersion[m.Version.Raw] = m
		} else {
			byScript[m.Script] = m
		}
	}

	for _, a := range applied {
		if !a.Success || a.MigrationType == "BASELINE" {
			continue
		}

		if a.Version != nil {
			m, ok := byVersion[*a.Version]
			if !ok || a.Checksum == nil || *a.Checksum == m.Checksum {
				continue
			}
			if err := r.state.UpdateVersionChecksum(ctx, *a.Version, m.Checksum); err != nil {
				return report, err
			}
			report.ChecksumsUpdated++
			report.Details = append(report.Details, fmt.Sprintf("Updated checksum for version %s (%d -> %d)", *a.Version, *a.Checksum, m.Checksum))
			continue
		}

		m, ok := byScript[a.Script]
		if !ok || a.Checksum == nil || *a.Checksum == m.Checksum {
			continue
		}
		if err := r.state.UpdateRepeatableChecksum(ctx, a.Script, m.Checksum); err != nil {
			return report, err
		}
		report.ChecksumsUpdated++
		report.Details = append(report.Details, fmt.Sprintf("Updated checksum for repeatable '%s' (%d -> %d)", a.Script, *a.Checksum, m.Checksum))
	}

	return report, nil
}

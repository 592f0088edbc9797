// SPDX-License-Identifier: Apache-2.0

package roll

import (
	"context"
	"strings"

	"github.com/waypoint-sql/waypoint/pkg/migration"
	"github.com/waypoint-sql/waypoint/pkg/wperr"
)

// ValidateReport summarizes the outcome of a Validate call. Valid is
// false whenever any Issues were found; Warnings never affect Valid.
type ValidateReport struct {
	Valid    bool
	Issues   []string
	Warnings []string
}

// Validate compares every successfully applied, non-baseline history
// row against the migration files currently on disk: a versioned
// migration whose checksum no longer matches is an issue; an applied
// migration whose file has since been removed is only a warning; a
// repeatable migration whose checksum has changed is not reported at
// all. If the history table does not exist yet, validation trivially
// succeeds.
func (r *Roll) Validate(ctx context.Context) (*ValidateReport, error) {
	return r.runValidate(ctx)
}

func (r *Roll) runValidate(ctx context.Context) (*ValidateReport, error) {
	exists, err := r.state.TableExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &ValidateReport{
			Valid:    true,
			Warnings: []string{"No history table found — nothing to validate."},
		}, nil
	}

	applied, err := r.state.LoadAllOrderedByRank(ctx)
	if err != nil {
		return nil, err
	}

	resolved, err := migration.Scan(r.cfg.Migrations.Locations, r.warnFn())
	if err != nil {
		return nil, err
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

	report := &ValidateReport{Valid: true}

	for _, a := range applied {
		if !a.Success || a.MigrationType == "BASELINE" {
			continue
		}

		if a.Version != nil {
			m, ok := byVersion[*a.Version]
			if !ok {
				report.Warnings = append(report.Warnings, "Migration file not found for applied version "+*a.Version)
				continue
			}
			if a.Checksum != nil && *a.Checksum != m.Checksum {
				report.Issues = append(report.Issues, "Checksum mismatch for version "+*a.Version+" ("+a.Script+")")
			}
			continue
		}

		if _, ok := byScript[a.Script]; !ok {
			report.Warnings = append(report.Warnings, "Migration file not found for applied repeatable "+a.Script)
		}
	}

	if len(report.Issues) > 0 {
		report.Valid = false
		return report, wperr.New(wperr.ValidationFailed, "%s", strings.Join(report.Issues, "\n"))
	}

	return report, nil
}

// SPDX-License-Identifier: Apache-2.0

package roll

import (
	"context"
	"errors"

	"github.com/waypoint-sql/waypoint/pkg/db"
	"github.com/waypoint-sql/waypoint/pkg/hooks"
	"github.com/waypoint-sql/waypoint/pkg/migration"
	"github.com/waypoint-sql/waypoint/pkg/placeholder"
	"github.com/waypoint-sql/waypoint/pkg/state"
	"github.com/waypoint-sql/waypoint/pkg/version"
	"github.com/waypoint-sql/waypoint/pkg/wperr"
)

// MigrateDetail describes one migration applied during a Migrate
// call.
type MigrateDetail struct {
	Version         *string
	Description     string
	Script          string
	ExecutionTimeMs int32
}

// MigrateReport summarizes a completed Migrate call.
type MigrateReport struct {
	MigrationsApplied int
	TotalTimeMs       int32
	Details           []MigrateDetail
	HooksExecuted     int
	HooksTimeMs       int32
}

// Migrate applies every outstanding versioned migration up to
// targetVersion (or all of them, if targetVersion is nil), then
// re-applies any repeatable migration whose checksum has changed. The
// whole pass runs under the advisory lock (§4.7 of the design): lock
// acquisition, history-table creation, optional pre-migrate
// validation, hook phases, and the apply loop itself.
func (r *Roll) Migrate(ctx context.Context, targetVersion *string) (*MigrateReport, error) {
	var report *MigrateReport
	err := r.withLock(ctx, func() error {
		rep, err := r.runMigrate(ctx, targetVersion)
		report = rep
		return err
	})
	return report, err
}

func (r *Roll) runMigrate(ctx context.Context, targetVersion *string) (*MigrateReport, error) {
	if err := r.state.EnsureTable(ctx); err != nil {
		return nil, err
	}

	if r.cfg.Migrations.ValidateOnMigrate {
		if _, err := r.runValidate(ctx); err != nil {
			var wpErr *wperr.Error
			if errors.As(err, &wpErr) && wpErr.Kind == wperr.ValidationFailed {
				return nil, err
			}
			// any other error (e.g. missing table, already handled by
			// EnsureTable above) is treated as "nothing to validate"
		}
	}

	resolved, err := migration.Scan(r.cfg.Migrations.Locations, r.warnFn())
	if err != nil {
		return nil, err
	}

	allHooks, err := r.resolveHooks()
	if err != nil {
		return nil, err
	}

	applied, err := r.state.LoadAllOrderedByRank(ctx)
	if err != nil {
		return nil, err
	}

	dbUser, dbName := r.currentUserAndDatabase(ctx)
	installedBy := r.cfg.Migrations.InstalledBy
	if installedBy == "" {
		installedBy = dbUser
	}

	var target *version.Version
	if targetVersion != nil {
		v, err := version.Parse(*targetVersion)
		if err != nil {
			return nil, wperr.Wrap(wperr.MigrationParse, err, "invalid target version %q: %s", *targetVersion, err)
		}
		target = &v
	}

	baselineVersion, highestApplied := baselineAndHighest(applied)

	appliedVersions := make(map[string]bool)
	appliedScripts := make(map[string]*state.Applied)
	for i := range applied {
		a := &applied[i]
		if !a.Success {
			continue
		}
		if a.Version != nil {
			appliedVersions[*a.Version] = true
		} else {
			appliedScripts[a.Script] = a
		}
	}

	report := &MigrateReport{}

	placeholdersFor := func(filename string) map[string]string {
		return placeholder.Builtins(r.cfg.Placeholders, r.cfg.Migrations.Schema, dbUser, dbName, filename)
	}

	count, ms, err := r.runHooks(ctx, allHooks, hooks.BeforeMigrate, placeholdersFor("beforeMigrate"))
	report.HooksExecuted += count
	report.HooksTimeMs += ms
	if err != nil {
		return report, err
	}

	for _, m := range resolved {
		if m.Kind != migration.Versioned {
			continue
		}

		if appliedVersions[m.Version.Raw] {
			continue
		}

		if baselineVersion != nil && m.Version.Compare(*baselineVersion) <= 0 {
			continue
		}

		if target != nil && m.Version.Compare(*target) > 0 {
			break
		}

		if !r.cfg.Migrations.OutOfOrder && highestApplied != nil && m.Version.Compare(*highestApplied) < 0 {
			return report, wperr.New(wperr.OutOfOrder, "migration version %s is out of order (highest applied is %s)", m.Version.Raw, highestApplied.Raw)
		}

		eachPlaceholders := placeholdersFor(m.Script)
		c, hm, err := r.runHooks(ctx, allHooks, hooks.BeforeEachMigrate, eachPlaceholders)
		report.HooksExecuted += c
		report.HooksTimeMs += hm
		if err != nil {
			return report, err
		}

		execMs, err := r.applyMigration(ctx, m, installedBy)
		if err != nil {
			return report, err
		}

		c, hm, err = r.runHooks(ctx, allHooks, hooks.AfterEachMigrate, eachPlaceholders)
		report.HooksExecuted += c
		report.HooksTimeMs += hm
		if err != nil {
			return report, err
		}

		v := m.Version.Raw
		report.MigrationsApplied++
		report.TotalTimeMs += execMs
		report.Details = append(report.Details, MigrateDetail{
			Version:         &v,
			Description:     m.Description,
			Script:          m.Script,
			ExecutionTimeMs: execMs,
		})
	}

	for _, m := range resolved {
		if m.Kind != migration.Repeatable {
			continue
		}

		if a, ok := appliedScripts[m.Script]; ok && a.Checksum != nil && *a.Checksum == m.Checksum {
			continue
		}

		eachPlaceholders := placeholdersFor(m.Script)
		c, hm, err := r.runHooks(ctx, allHooks, hooks.BeforeEachMigrate, eachPlaceholders)
		report.HooksExecuted += c
		report.HooksTimeMs += hm
		if err != nil {
			return report, err
		}

		execMs, err := r.applyMigration(ctx, m, installedBy)
		if err != nil {
			return report, err
		}

		c, hm, err = r.runHooks(ctx, allHooks, hooks.AfterEachMigrate, eachPlaceholders)
		report.HooksExecuted += c
		report.HooksTimeMs += hm
		if err != nil {
			return report, err
		}

		report.MigrationsApplied++
		report.TotalTimeMs += execMs
		report.Details = append(report.Details, MigrateDetail{
			Description:     m.Description,
			Script:          m.Script,
			ExecutionTimeMs: execMs,
		})
	}

	count, ms, err = r.runHooks(ctx, allHooks, hooks.AfterMigrate, placeholdersFor("afterMigrate"))
	report.HooksExecuted += count
	report.HooksTimeMs += ms
	if err != nil {
		return report, err
	}

	return report, nil
}

// applyMigration replaces placeholders in m's SQL, executes it
// transactionally, and records the outcome in the history table. A
// failed execution is still recorded (best effort — a failure to
// record is only warned about) so that a retried migrate run can see
// it, then surfaced as a MigrationFailed error.
func (r *Roll) applyMigration(ctx context.Context, m migration.Resolved, installedBy string) (int32, error) {
	dbUser, dbName := r.currentUserAndDatabase(ctx)
	placeholders := placeholder.Builtins(r.cfg.Placeholders, r.cfg.Migrations.Schema, dbUser, dbName, m.Script)

	sqlText, err := placeholder.Replace(m.SQL, placeholders)
	if err != nil {
		return 0, err
	}

	var version *string
	if m.Kind == migration.Versioned {
		v := m.Version.Raw
		version = &v
	}
	checksum := m.Checksum

	execMs, execErr := db.ExecuteInTransaction(ctx, r.conn, sqlText)

	if execErr == nil {
		if err := r.state.Insert(ctx, state.InsertParams{
			Version:       version,
			Description:   m.Description,
			MigrationType: m.Kind.TypeName(),
			Script:        m.Script,
			Checksum:      &checksum,
			InstalledBy:   installedBy,
			ExecutionTime: execMs,
			Success:       true,
		}); err != nil {
			return execMs, err
		}
		return execMs, nil
	}

	if err := r.state.Insert(ctx, state.InsertParams{
		Version:       version,
		Description:   m.Description,
		MigrationType: m.Kind.TypeName(),
		Script:        m.Script,
		Checksum:      &checksum,
		InstalledBy:   installedBy,
		ExecutionTime: 0,
		Success:       false,
	}); err != nil {
		r.warn("failed to record migration failure for %q: %s", m.Script, err)
	}

	return 0, wperr.Wrap(wperr.MigrationFailed, execErr, "migration %q failed: %s", m.Script, execErr)
}

func (r *Roll) warnFn() func(string) {
	return func(msg string) { r.warn("%s", msg) }
}

// baselineAndHighest computes the baseline version (the version of the
// single BASELINE row, if any) and the highest successfully applied
// versioned migration, from a set of history rows.
func baselineAndHighest(applied []state.Applied) (baseline, highest *version.Version) {
	for _, a := range applied {
		if a.MigrationType == "BASELINE" && a.Version != nil {
			if v, err := version.Parse(*a.Version); err == nil {
				baseline = &v
			}
		}
		if a.Success && a.Version != nil {
			if v, err := version.Parse(*a.Version); err == nil {
				if highest == nil || v.Compare(*highest) > 0 {
					highest = &v
				}
			}
		}
	}
	return baseline, highest
}

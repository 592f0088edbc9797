// SPDX-License-Identifier: Apache-2.0

package roll

import (
	"context"

	"github.com/waypoint-sql/waypoint/pkg/db"
	"github.com/waypoint-sql/waypoint/pkg/hooks"
	"github.com/waypoint-sql/waypoint/pkg/placeholder"
	"github.com/waypoint-sql/waypoint/pkg/wperr"
)

// resolveHooks merges hooks discovered under the configured migration
// locations with explicit hook paths declared in configuration, the
// latter appended after the former for each phase.
func (r *Roll) resolveHooks() ([]hooks.Resolved, error) {
	discovered, err := hooks.Scan(r.cfg.Migrations.Locations)
	if err != nil {
		return nil, err
	}

	configHooks, err := hooks.ConfigHooks(
		r.cfg.Hooks.BeforeMigrate,
		r.cfg.Hooks.AfterMigrate,
		r.cfg.Hooks.BeforeEachMigrate,
		r.cfg.Hooks.AfterEachMigrate,
	)
	if err != nil {
		return nil, err
	}

	return append(discovered, configHooks...), nil
}

// runHooks executes every hook of the given phase, in order, inside
// its own transaction, substituting placeholders built for filename.
// It returns the number of hooks run and their total execution time in
// milliseconds. The first hook failure aborts the remaining hooks in
// the phase and is returned as a HookFailed error.
func (r *Roll) runHooks(ctx context.Context, all []hooks.Resolved, phase hooks.Phase, placeholders map[string]string) (int, int32, error) {
	var count int
	var totalMs int32

	for _, h := range all {
		if h.Phase != phase {
			continue
		}

		sqlText, err := placeholder.Replace(h.SQL, placeholders)
		if err != nil {
			return count, totalMs, err
		}

		ms, err := db.ExecuteInTransaction(ctx, r.conn, sqlText)
		if err != nil {
			return count, totalMs, wperr.Wrap(wperr.HookFailed, err, "hook %q (phase %s) failed: %s", h.ScriptName, phase, err)
		}

		count++
		totalMs += ms
	}

	return count, totalMs, nil
}

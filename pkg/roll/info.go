// SPDX-License-Identifier: Apache-2.0

package roll

import (
	"context"

	"github.com/waypoint-sql/waypoint/pkg/migration"
	"github.com/waypoint-sql/waypoint/pkg/state"
)

// Info reports the derived state of every migration file against the
// history table. When the history table does not exist yet, every
// resolved migration is reported as Pending, since nothing has ever
// been recorded as applied.
func (r *Roll) Info(ctx context.Context) ([]state.Info, error) {
	resolved, err := migration.Scan(r.cfg.Migrations.Locations, r.warnFn())
	if err != nil {
		return nil, err
	}

	exists, err := r.state.TableExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return state.Classify(nil, resolved), nil
	}

	applied, err := r.state.LoadAllOrderedByRank(ctx)
	if err != nil {
		return nil, err
	}

	return state.Classify(applied, resolved), nil
}

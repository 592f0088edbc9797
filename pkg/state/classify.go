// SPDX-License-Identifier: Apache-2.0

package state

import (
	"sort"
	"time"

	"github.com/waypoint-sql/waypoint/pkg/migration"
	"github.com/waypoint-sql/waypoint/pkg/version"
)

// MigrationState is the derived status of a single migration, computed
// by joining the resolved on-disk files against the applied history
// rows. It is never persisted.
type MigrationState int

const (
	Pending MigrationState = iota
	Applied
	Failed
	Missing
	Outdated
	OutOfOrder
	BelowBaseline
	Ignored
	Baseline
)

func (s MigrationState) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Applied:
		return "Applied"
	case Failed:
		return "Failed"
	case Missing:
		return "Missing"
	case Outdated:
		return "Outdated"
	case OutOfOrder:
		return "Out of Order"
	case BelowBaseline:
		return "Below Baseline"
	case Ignored:
		return "Ignored"
	case Baseline:
		return "Baseline"
	default:
		return "Unknown"
	}
}

// Info is the combined, read-only view of a migration produced by
// Classify: the resolved file (if any) merged with its history row (if
// any), plus the derived MigrationState.
type Info struct {
	Version       *string
	Description   string
	MigrationType string
	Script        string
	State         MigrationState
	InstalledOn   *time.Time
	ExecutionTime *int32
	Checksum      *int32
}

// Classify joins applied history rows against resolved on-disk
// migrations and assigns each a MigrationState, per the nine-state
// decision table: every applied row is classified first (Baseline,
// Failed, Applied, Missing or Outdated), then every resolved migration
// with no corresponding applied row is emitted as a pending entry
// (BelowBaseline, OutOfOrder, or Pending). It is a pure function: it
// performs no I/O and mutates neither input.
func Classify(applied []Applied, resolved []migration.Resolved) []Info {
	resolvedByVersion := make(map[string]migration.Resolved)
	resolvedByScript := make(map[string]migration.Resolved)
	for _, m := range resolved {
		if m.Kind == migration.Versioned {
			resolvedByVersion[m.Version.Raw] = m
		} else {
			resolvedByScript[m.Script] = m
		}
	}

	var baselineVersion *version.Version
	var highestApplied *version.Version
	for _, a := range applied {
		if a.MigrationType == "BASELINE" && a.Version != nil {
			if v, err := version.Parse(*a.Version); err == nil {
				baselineVersion = &v
			}
		}
		if a.Success && a.Version != nil {
			if v, err := version.Parse(*a.Version); err == nil {
				if highestApplied == nil || v.Compare(*highestApplied) > 0 {
					highestApplied = &v
				}
			}
		}
	}

	seenVersions := make(map[string]bool)
	seenScripts := make(map[string]bool)

	var infos []Info
	for _, a := range applied {
		a := a
		var st MigrationState
		switch {
		case a.MigrationType == "BASELINE":
			st = Baseline
		case !a.Success:
			st = Failed
		case a.Version != nil:
			if _, ok := resolvedByVersion[*a.Version]; ok {
				st = Applied
			} else {
				st = Missing
			}
		default:
			if r, ok := resolvedByScript[a.Script]; ok {
				if a.Checksum == nil || *a.Checksum != r.Checksum {
					st = Outdated
				} else {
					st = Applied
				}
			} else {
				st = Missing
			}
		}

		if a.Version != nil {
			seenVersions[*a.Version] = true
		} else {
			seenScripts[a.Script] = true
		}

		installedOn := a.InstalledOn
		execTime := a.ExecutionTime
		infos = append(infos, Info{
			Version:       a.Version,
			Description:   a.Description,
			MigrationType: a.MigrationType,
			Script:        a.Script,
			State:         st,
			InstalledOn:   &installedOn,
			ExecutionTime: &execTime,
			Checksum:      a.Checksum,
		})
	}

	for _, m := range resolved {
		m := m
		if m.Kind == migration.Versioned {
			if seenVersions[m.Version.Raw] {
				continue
			}

			st := Pending
			switch {
			case baselineVersion != nil && m.Version.Compare(*baselineVersion) <= 0:
				st = BelowBaseline
			case highestApplied != nil && m.Version.Compare(*highestApplied) < 0:
				st = OutOfOrder
			}

			v := m.Version.Raw
			checksum := m.Checksum
			infos = append(infos, Info{
				Version:       &v,
				Description:   m.Description,
				MigrationType: m.Kind.TypeName(),
				Script:        m.Script,
				State:         st,
				Checksum:      &checksum,
			})
		} else {
			if seenScripts[m.Script] {
				continue
			}

			checksum := m.Checksum
			infos = append(infos, Info{
				Description:   m.Description,
				MigrationType: m.Kind.TypeName(),
				Script:        m.Script,
				State:         Pending,
				Checksum:      &checksum,
			})
		}
	}

	sortInfos(infos)
	return infos
}

func sortInfos(infos []Info) {
	versionOf := func(i Info) (version.Version, bool) {
		if i.Version == nil {
			return version.Version{}, false
		}
		v, err := version.Parse(*i.Version)
		if err != nil {
			return version.Version{}, false
		}
		return v, true
	}

	sort.SliceStable(infos, func(i, j int) bool {
		av, aok := versionOf(infos[i])
		bv, bok := versionOf(infos[j])
		switch {
		case aok && bok:
			return av.Compare(bv) < 0
		case aok && !bok:
			return true
		case !aok && bok:
			return false
		default:
			return infos[i].Description < infos[j].Description
		}
	})
}

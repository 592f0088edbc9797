// SPDX-License-Identifier: Apache-2.0

package output

import (
	"encoding/json"
	"time"

	"github.com/oapi-codegen/nullable"

	"github.com/waypoint-sql/waypoint/pkg/roll"
	"github.com/waypoint-sql/waypoint/pkg/state"
)

// infoJSON is the --json wire shape of a single state.Info. Version,
// Checksum, and InstalledOn are genuinely optional (absent for a
// pending migration) rather than merely zero-valued, so they round
// trip through nullable.Nullable rather than a plain pointer: a
// consumer parsing the JSON can tell "not yet installed" apart from
// "installed with a zero checksum".
type infoJSON struct {
	Version       nullable.Nullable[string]    `json:"version"`
	Description   string                       `json:"description"`
	MigrationType string                       `json:"migrationType"`
	Script        string                       `json:"script"`
	State         string                       `json:"state"`
	InstalledOn   nullable.Nullable[time.Time] `json:"installedOn"`
	ExecutionTime nullable.Nullable[int32]     `json:"executionTimeMs"`
	Checksum      nullable.Nullable[int32]     `json:"checksum"`
}

func toInfoJSON(i state.Info) infoJSON {
	out := infoJSON{
		Description:   i.Description,
		MigrationType: i.MigrationType,
		Script:        i.Script,
		State:         i.State.String(),
		Version:       nullable.NewNullNullable[string](),
		InstalledOn:   nullable.NewNullNullable[time.Time](),
		ExecutionTime: nullable.NewNullNullable[int32](),
		Checksum:      nullable.NewNullNullable[int32](),
	}
	if i.Version != nil {
		out.Version = nullable.NewNullableWithValue(*i.Version)
	}
	if i.InstalledOn != nil {
		out.InstalledOn = nullable.NewNullableWithValue(*i.InstalledOn)
	}
	if i.ExecutionTime != nil {
		out.ExecutionTime = nullable.NewNullableWithValue(*i.ExecutionTime)
	}
	if i.Checksum != nil {
		out.Checksum = nullable.NewNullableWithValue(*i.Checksum)
	}
	return out
}

// MarshalInfoJSON renders an Info result as indented JSON.
func MarshalInfoJSON(infos []state.Info) ([]byte, error) {
	out := make([]infoJSON, len(infos))
	for i, info := range infos {
		out[i] = toInfoJSON(info)
	}
	return json.MarshalIndent(out, "", "  ")
}

type migrateDetailJSON struct {
	Version         nullable.Nullable[string] `json:"version"`
	Description     string                    `json:"description"`
	Script          string                    `json:"script"`
	ExecutionTimeMs int32                     `json:"executionTimeMs"`
}

type migrateReportJSON struct {
	MigrationsApplied int                 `json:"migrationsApplied"`
	TotalTimeMs       int32               `json:"totalTimeMs"`
	Details           []migrateDetailJSON `json:"details"`
	HooksExecuted     int                 `json:"hooksExecuted"`
	HooksTimeMs       int32               `json:"hooksTimeMs"`
}

// MarshalMigrateReportJSON renders a MigrateReport as indented JSON.
func MarshalMigrateReportJSON(report *roll.MigrateReport) ([]byte, error) {
	out := migrateReportJSON{
		MigrationsApplied: report.MigrationsApplied,
		TotalTimeMs:       report.TotalTimeMs,
		HooksExecuted:     report.HooksExecuted,
		HooksTimeMs:       report.HooksTimeMs,
	}
	for _, d := range report.Details {
		dj := migrateDetailJSON{
			Description:     d.Description,
			Script:          d.Script,
			ExecutionTimeMs: d.ExecutionTimeMs,
			Version:         nullable.NewNullNullable[string](),
		}
		if d.Version != nil {
			dj.Version = nullable.NewNullableWithValue(*d.Version)
		}
		out.Details = append(out.Details, dj)
	}
	return json.MarshalIndent(out, "", "  ")
}

type validateReportJSON struct {
	Valid    bool     `json:"valid"`
	Issues   []string `json:"issues"`
	Warnings []string `json:"warnings"`
}

// MarshalValidateReportJSON renders a ValidateReport as indented JSON.
func MarshalValidateReportJSON(report *roll.ValidateReport) ([]byte, error) {
	return json.MarshalIndent(validateReportJSON{
		Valid:    report.Valid,
		Issues:   report.Issues,
		Warnings: report.Warnings,
	}, "", "  ")
}

type repairReportJSON struct {
	FailedRemoved    int64    `json:"failedRemoved"`
	ChecksumsUpdated int      `json:"checksumsUpdated"`
	Details          []string `json:"details"`
}

// MarshalRepairReportJSON renders a RepairReport as indented JSON.
func MarshalRepairReportJSON(report *roll.RepairReport) ([]byte, error) {
	return json.MarshalIndent(repairReportJSON{
		FailedRemoved:    report.FailedRemoved,
		ChecksumsUpdated: report.ChecksumsUpdated,
		Details:          report.Details,
	}, "", "  ")
}

// MarshalCleanResultJSON renders the list of objects a clean pass
// dropped as indented JSON.
func MarshalCleanResultJSON(dropped []string) ([]byte, error) {
	return json.MarshalIndent(struct {
		Dropped []string `json:"dropped"`
	}{Dropped: dropped}, "", "  ")
}

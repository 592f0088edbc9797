// SPDX-License-Identifier: Apache-2.0

package output

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/waypoint-sql/waypoint/pkg/roll"
)

// PrintMigrateSummary prints a one-line-per-migration summary of a
// completed migrate pass, followed by a totals line.
func PrintMigrateSummary(report *roll.MigrateReport) {
	if report.MigrationsApplied == 0 {
		pterm.Success.Println("No migrations to apply; database is up to date.")
		return
	}

	for _, d := range report.Details {
		label := d.Script
		if d.Version != nil {
			label = fmt.Sprintf("%s (%s)", *d.Version, d.Script)
		}
		pterm.Success.Printfln("Applied %s in %dms", label, d.ExecutionTimeMs)
	}

	pterm.Success.Printfln("Applied %d migration(s) in %dms (%d hook(s) in %dms)",
		report.MigrationsApplied, report.TotalTimeMs, report.HooksExecuted, report.HooksTimeMs)
}

// PrintValidateResult prints validation issues and warnings, then a
// pass/fail line.
func PrintValidateResult(report *roll.ValidateReport) {
	for _, w := range report.Warnings {
		pterm.Warning.Println(w)
	}
	for _, issue := range report.Issues {
		pterm.Error.Println(issue)
	}
	if report.Valid {
		pterm.Success.Println("Validation passed.")
	} else {
		pterm.Error.Printfln("Validation failed with %d issue(s).", len(report.Issues))
	}
}

// PrintRepairResult prints the rows removed and checksums updated by a
// repair pass.
func PrintRepairResult(report *roll.RepairReport) {
	for _, d := range report.Details {
		pterm.Info.Println(d)
	}
	pterm.Success.Printfln("Removed %d failed row(s), updated %d checksum(s).",
		report.FailedRemoved, report.ChecksumsUpdated)
}

// PrintCleanResult lists every object a clean pass dropped.
func PrintCleanResult(dropped []string) {
	if len(dropped) == 0 {
		pterm.Success.Println("Nothing to clean.")
		return
	}
	for _, d := range dropped {
		pterm.Warning.Println("Dropped " + d)
	}
	pterm.Success.Printfln("Dropped %d object(s).", len(dropped))
}

// PrintBaselineResult confirms a baseline was created.
func PrintBaselineResult(version, description string) {
	pterm.Success.Printfln("Baseline %q (%s) created.", version, description)
}

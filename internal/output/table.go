// SPDX-License-Identifier: Apache-2.0

package output

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/waypoint-sql/waypoint/pkg/state"
)

// PrintInfoTable renders the result of an Info call as a colored
// table, one row per migration, ordered the same way Classify
// returned them.
func PrintInfoTable(infos []state.Info) error {
	data := pterm.TableData{
		{"Version", "Description", "Type", "Installed On", "State"},
	}

	for _, i := range infos {
		version := "-"
		if i.Version != nil {
			version = *i.Version
		}
		installedOn := "-"
		if i.InstalledOn != nil {
			installedOn = i.InstalledOn.Format("2006-01-02 15:04:05")
		}
		data = append(data, []string{version, i.Description, i.MigrationType, installedOn, formatState(i.State)})
	}

	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func formatState(s state.MigrationState) string {
	text := s.String()
	switch s {
	case state.Pending:
		return pterm.FgYellow.Sprint(text)
	case state.Applied:
		return pterm.FgGreen.Sprint(text)
	case state.Failed:
		return pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint(text)
	case state.Missing:
		return pterm.FgRed.Sprint(text)
	case state.Outdated:
		return pterm.FgCyan.Sprint(text)
	case state.OutOfOrder:
		return pterm.FgYellow.Sprint(text)
	case state.BelowBaseline, state.Ignored:
		return pterm.FgGray.Sprint(text)
	case state.Baseline:
		return pterm.FgLightBlue.Sprint(text)
	default:
		return text
	}
}

// PendingOnly filters infos down to the migrations a migrate run would
// actually apply, for --dry-run rendering.
func PendingOnly(infos []state.Info) []state.Info {
	var out []state.Info
	for _, i := range infos {
		if i.State == state.Pending || i.State == state.Outdated {
			out = append(out, i)
		}
	}
	return out
}

// PrintDryRun lists the migrations a migrate run would apply, without
// running them.
func PrintDryRun(infos []state.Info) {
	pending := PendingOnly(infos)
	if len(pending) == 0 {
		fmt.Println("No migrations to apply.")
		return
	}
	for _, i := range pending {
		label := i.Script
		if i.Version != nil {
			label = fmt.Sprintf("%s (%s)", *i.Version, i.Script)
		}
		fmt.Printf("-> %s — %s\n", label, i.Description)
	}
}

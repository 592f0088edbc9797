// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/waypoint-sql/waypoint/cmd/flags"
	"github.com/waypoint-sql/waypoint/internal/output"
	"github.com/waypoint-sql/waypoint/pkg/roll"
)

func migrateCmd() *cobra.Command {
	var target string
	var dryRun bool

	c := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations to the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			r, _, err := newRoll(ctx, cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			if dryRun {
				return runMigrateDryRun(cmd, r)
			}

			var targetVersion *string
			if target != "" {
				targetVersion = &target
			}

			report, err := r.Migrate(ctx, targetVersion)
			if report != nil {
				printMigrateReport(cmd, report)
			}
			return err
		},
	}

	c.Flags().StringVar(&target, "target", "", "Migrate only up to and including this version")
	c.Flags().BoolVar(&dryRun, "dry-run", false, "List the migrations that would be applied without applying them")

	return c
}

func runMigrateDryRun(cmd *cobra.Command, r *roll.Roll) error {
	infos, err := r.Info(cmd.Context())
	if err != nil {
		return err
	}

	pending := output.PendingOnly(infos)
	if flags.JSON(cmd) {
		data, err := output.MarshalInfoJSON(pending)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	output.PrintDryRun(infos)
	return nil
}

func printMigrateReport(cmd *cobra.Command, report *roll.MigrateReport) {
	if flags.JSON(cmd) {
		data, err := output.MarshalMigrateReportJSON(report)
		if err != nil {
			fmt.Println(err)
			return
		}
		fmt.Println(string(data))
		return
	}
	output.PrintMigrateSummary(report)
}

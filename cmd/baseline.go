// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/waypoint-sql/waypoint/internal/output"
)

func baselineCmd() *cobra.Command {
	var version, description string

	c := &cobra.Command{
		Use:   "baseline",
		Short: "Mark an existing database schema as a starting point for migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			r, cfg, err := newRoll(ctx, cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			v := version
			if v == "" {
				v = cfg.Migrations.BaselineVersion
			}

			if err := r.Baseline(ctx, version, description); err != nil {
				return err
			}

			output.PrintBaselineResult(v, description)
			return nil
		},
	}

	c.Flags().StringVar(&version, "baseline-version", "", "Version to record as the baseline (defaults to the configured baseline version)")
	c.Flags().StringVar(&description, "baseline-description", "", "Description to record for the baseline (defaults to '<< Waypoint Baseline >>')")

	return c
}

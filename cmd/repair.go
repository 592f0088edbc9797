// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/waypoint-sql/waypoint/cmd/flags"
	"github.com/waypoint-sql/waypoint/internal/output"
)

func repairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Remove failed migration rows and refresh stored checksums",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			r, _, err := newRoll(ctx, cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			report, err := r.Repair(ctx)
			if err != nil {
				return err
			}

			if flags.JSON(cmd) {
				data, err := output.MarshalRepairReportJSON(report)
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			output.PrintRepairResult(report)
			return nil
		},
	}
}

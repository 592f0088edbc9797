// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/waypoint-sql/waypoint/cmd/flags"
	"github.com/waypoint-sql/waypoint/internal/output"
)

func cleanCmd() *cobra.Command {
	var allowClean bool

	c := &cobra.Command{
		Use:   "clean",
		Short: "Drop every object in the configured schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			r, _, err := newRoll(ctx, cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			dropped, err := r.Clean(ctx, allowClean)
			if err != nil {
				return err
			}

			if flags.JSON(cmd) {
				data, err := output.MarshalCleanResultJSON(dropped)
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			output.PrintCleanResult(dropped)
			return nil
		},
	}

	c.Flags().BoolVar(&allowClean, "allow-clean", false, "Permit clean even when migrations.clean_enabled is false")

	return c
}

// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/waypoint-sql/waypoint/cmd/flags"
	"github.com/waypoint-sql/waypoint/internal/output"
)

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the state of every migration against the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			r, _, err := newRoll(ctx, cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			infos, err := r.Info(ctx)
			if err != nil {
				return err
			}

			if flags.JSON(cmd) {
				data, err := output.MarshalInfoJSON(infos)
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			return output.PrintInfoTable(infos)
		},
	}
}

// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/waypoint-sql/waypoint/cmd/flags"
	"github.com/waypoint-sql/waypoint/internal/output"
	"github.com/waypoint-sql/waypoint/pkg/wperr"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check applied migrations against the files on disk",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			r, _, err := newRoll(ctx, cmd)
			if err != nil {
				return err
			}
			defer r.Close()

			report, err := r.Validate(ctx)
			if report == nil {
				return err
			}

			if flags.JSON(cmd) {
				data, jsonErr := output.MarshalValidateReportJSON(report)
				if jsonErr != nil {
					return jsonErr
				}
				fmt.Println(string(data))
			} else {
				output.PrintValidateResult(report)
			}

			var wpErr *wperr.Error
			if errors.As(err, &wpErr) && wpErr.Kind == wperr.ValidationFailed {
				return err
			}
			return nil
		},
	}
}

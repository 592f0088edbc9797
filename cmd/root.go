// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"

	"github.com/waypoint-sql/waypoint/cmd/flags"
	"github.com/waypoint-sql/waypoint/internal/config"
	"github.com/waypoint-sql/waypoint/internal/output"
	"github.com/waypoint-sql/waypoint/pkg/roll"
	"github.com/waypoint-sql/waypoint/pkg/wperr"
)

// Version is the Waypoint version, set at build time via -ldflags.
var Version = "development"

var rootCmd = &cobra.Command{
	Use:          "waypoint",
	Short:        "A Flyway-compatible PostgreSQL schema migration tool",
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	flags.Register(rootCmd)

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(infoCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(repairCmd())
	rootCmd.AddCommand(baselineCmd())
	rootCmd.AddCommand(cleanCmd())
}

// loadConfig resolves configuration from every layer for cmd's
// invocation.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(flags.ConfigPath(cmd), flags.Overrides(cmd))
}

// newLogger returns the output.Logger appropriate for cmd's --quiet/
// --verbose flags. Verbose is accepted for parity with the flag
// surface; Waypoint's structured logger does not currently have a
// separate debug tier to switch to.
func newLogger(cmd *cobra.Command) output.Logger {
	if flags.Quiet(cmd) {
		return output.NewNoopLogger()
	}
	return output.NewLogger()
}

// newRoll builds a *roll.Roll from cmd's resolved configuration,
// warning through cmd's logger.
func newRoll(ctx context.Context, cmd *cobra.Command) (*roll.Roll, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	logger := newLogger(cmd)
	checkMinToolVersion(cfg, logger)

	r, err := roll.New(ctx, cfg, func(msg string) { logger.Warn(msg) })
	if err != nil {
		return nil, nil, err
	}
	return r, cfg, nil
}

// checkMinToolVersion warns (never fails) when the running binary is
// older than migrations.min_tool_version. Skipped for unreleased
// builds and malformed version strings on either side.
func checkMinToolVersion(cfg *config.Config, logger output.Logger) {
	required := cfg.Migrations.MinToolVersion
	if required == "" || Version == "development" {
		return
	}

	current, want := canonicalSemver(Version), canonicalSemver(required)
	if !semver.IsValid(current) || !semver.IsValid(want) {
		return
	}

	if semver.Compare(current, want) < 0 {
		logger.Warn(fmt.Sprintf("waypoint %s is older than the configured min_tool_version %s", Version, required))
	}
}

func canonicalSemver(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// Execute runs the root command and returns the process exit code
// that should be passed to os.Exit.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		return wperr.ExitCode(err)
	}
	return 0
}

// printError writes a one-line error summary plus, for a handful of
// common failure kinds, a one-line hint about how to resolve it.
func printError(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)

	var wpErr *wperr.Error
	if !wperr.AsError(err, &wpErr) {
		return
	}

	switch wpErr.Kind {
	case wperr.Config:
		fmt.Fprintln(os.Stderr, "hint: check your waypoint.toml, WAYPOINT_* environment variables, and command-line flags")
	case wperr.Database:
		fmt.Fprintln(os.Stderr, "hint: check that the database is reachable and the configured credentials are correct")
	case wperr.CleanDisabled:
		fmt.Fprintln(os.Stderr, "hint: pass --allow-clean or set migrations.clean_enabled = true to permit clean")
	case wperr.ChecksumMismatch:
		fmt.Fprintln(os.Stderr, "hint: run 'waypoint repair' to accept the on-disk checksum, or restore the original file")
	case wperr.OutOfOrder:
		fmt.Fprintln(os.Stderr, "hint: pass --out-of-order or set migrations.out_of_order = true to allow this")
	}
}

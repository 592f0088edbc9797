// SPDX-License-Identifier: Apache-2.0

// Package flags registers Waypoint's global command-line flags.
// Viper is not used for this layer: flag/env/config precedence is
// resolved explicitly by Overrides (flags) and internal/config's
// applyEnv (WAYPOINT_* variables), since the env layer also has to
// support the dynamic WAYPOINT_PLACEHOLDER_<KEY> key set that
// viper.AutomaticEnv has no way to bind ahead of time. Viper itself is
// still used, for TOML file parsing, in internal/config.
package flags

import (
	"github.com/spf13/cobra"

	"github.com/waypoint-sql/waypoint/internal/config"
)

// Register adds Waypoint's global, persistent flags to cmd.
func Register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("config", "c", "", "Path to a waypoint.toml configuration file")
	cmd.PersistentFlags().String("url", "", "Database connection URL")
	cmd.PersistentFlags().String("schema", "", "Postgres schema the history table and migrations apply to")
	cmd.PersistentFlags().String("table", "", "Name of the schema history table")
	cmd.PersistentFlags().StringSlice("locations", nil, "Comma-separated migration file locations")
	cmd.PersistentFlags().Int("connect-retries", -1, "Number of times to retry the initial database connection")
	cmd.PersistentFlags().String("ssl-mode", "", "Database SSL mode: disable, prefer, or require")
	cmd.PersistentFlags().Int("connect-timeout", -1, "Connection timeout in seconds")
	cmd.PersistentFlags().Int("statement-timeout", -1, "Statement timeout in seconds (0 disables)")
	cmd.PersistentFlags().Bool("out-of-order", false, "Allow applying versioned migrations out of order")
	cmd.PersistentFlags().Bool("no-out-of-order", false, "Reject out-of-order versioned migrations (default)")
	cmd.PersistentFlags().Bool("validate-on-migrate", false, "Validate before migrating (default)")
	cmd.PersistentFlags().Bool("no-validate-on-migrate", false, "Skip validation before migrating")
	cmd.PersistentFlags().Bool("json", false, "Emit machine-readable JSON instead of colored text")
	cmd.PersistentFlags().Bool("quiet", false, "Suppress informational log output")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Emit debug-level log output")
}

// Overrides reads every registered flag off cmd and returns the
// config.Overrides layer they represent; a flag left at its zero value
// and never explicitly set by the user is omitted so the TOML/env/
// default layers beneath it are left alone.
func Overrides(cmd *cobra.Command) config.Overrides {
	var o config.Overrides

	if v, err := cmd.Flags().GetString("url"); err == nil && cmd.Flags().Changed("url") {
		o.URL = &v
	}
	if v, err := cmd.Flags().GetString("schema"); err == nil && cmd.Flags().Changed("schema") {
		o.Schema = &v
	}
	if v, err := cmd.Flags().GetString("table"); err == nil && cmd.Flags().Changed("table") {
		o.Table = &v
	}
	if v, err := cmd.Flags().GetStringSlice("locations"); err == nil && cmd.Flags().Changed("locations") {
		o.Locations = v
	}
	if v, err := cmd.Flags().GetInt("connect-retries"); err == nil && v >= 0 {
		o.ConnectRetries = &v
	}
	if v, err := cmd.Flags().GetString("ssl-mode"); err == nil && v != "" {
		o.SSLMode = &v
	}
	if v, err := cmd.Flags().GetInt("connect-timeout"); err == nil && v >= 0 {
		o.ConnectTimeoutSec = &v
	}
	if v, err := cmd.Flags().GetInt("statement-timeout"); err == nil && v >= 0 {
		o.StatementTimeout = &v
	}

	outOfOrder, _ := cmd.Flags().GetBool("out-of-order")
	noOutOfOrder, _ := cmd.Flags().GetBool("no-out-of-order")
	switch {
	case outOfOrder:
		v := true
		o.OutOfOrder = &v
	case noOutOfOrder:
		v := false
		o.OutOfOrder = &v
	}

	validate, _ := cmd.Flags().GetBool("validate-on-migrate")
	noValidate, _ := cmd.Flags().GetBool("no-validate-on-migrate")
	switch {
	case validate:
		v := true
		o.ValidateOnMigrate = &v
	case noValidate:
		v := false
		o.ValidateOnMigrate = &v
	}

	return o
}

// ConfigPath returns the --config flag's value.
func ConfigPath(cmd *cobra.Command) string {
	v, _ := cmd.Flags().GetString("config")
	return v
}

// JSON reports whether --json was set.
func JSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

// Quiet reports whether --quiet was set.
func Quiet(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("quiet")
	return v
}

// Verbose reports whether --verbose was set.
func Verbose(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("verbose")
	return v
}

// SPDX-License-Identifier: Apache-2.0

// Package config loads Waypoint's layered configuration: built-in
// defaults, overlaid by a TOML file, overlaid by environment
// variables, overlaid by CLI flags (highest priority wins).
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/waypoint-sql/waypoint/pkg/db"
	"github.com/waypoint-sql/waypoint/pkg/wperr"
)

// Database holds the connection parameters. The individual host/port/
// user/password/database fields are used only when URL is empty.
type Database struct {
	URL                 string
	Host                string
	Port                int
	User                string
	Password            string
	Database            string
	ConnectRetries      int
	SSLMode             db.SSLMode
	ConnectTimeoutSec   int
	StatementTimeoutSec int
}

// Migrations holds the behavior knobs that control how a migrate pass
// discovers and applies files.
type Migrations struct {
	Locations         []string
	Table             string
	Schema            string
	OutOfOrder        bool
	ValidateOnMigrate bool
	CleanEnabled      bool
	BaselineVersion   string
	InstalledBy       string
	MinToolVersion    string
}

// Hooks holds explicit, config-declared hook script paths, layered on
// top of (appended after) any hooks discovered under Migrations.Locations.
type Hooks struct {
	BeforeMigrate     []string
	AfterMigrate      []string
	BeforeEachMigrate []string
	AfterEachMigrate  []string
}

// Config is Waypoint's fully-resolved, layered configuration.
type Config struct {
	Database     Database
	Migrations   Migrations
	Hooks        Hooks
	Placeholders map[string]string
}

// Overrides carries the highest-priority layer: flags parsed directly
// from the command line. A nil pointer field means "not specified on
// the command line", leaving the env/TOML/default value in place.
type Overrides struct {
	URL               *string
	Schema            *string
	Table             *string
	Locations         []string
	OutOfOrder        *bool
	ValidateOnMigrate *bool
	BaselineVersion   *string
	ConnectRetries    *int
	SSLMode           *string
	ConnectTimeoutSec *int
	StatementTimeout  *int
}

// Defaults returns Waypoint's built-in configuration, before any TOML,
// env, or CLI layer is applied.
func Defaults() Config {
	return Config{
		Database: Database{
			ConnectRetries:      0,
			SSLMode:             db.SSLPrefer,
			ConnectTimeoutSec:   30,
			StatementTimeoutSec: 0,
		},
		Migrations: Migrations{
			Locations:         []string{"db/migrations"},
			Table:             "waypoint_schema_history",
			Schema:            "public",
			OutOfOrder:        false,
			ValidateOnMigrate: true,
			CleanEnabled:      false,
			BaselineVersion:   "1",
		},
		Placeholders: map[string]string{},
	}
}

type tomlDocument struct {
	Database struct {
		URL                string `mapstructure:"url"`
		Host               string `mapstructure:"host"`
		Port               int    `mapstructure:"port"`
		User               string `mapstructure:"user"`
		Password           string `mapstructure:"password"`
		Database           string `mapstructure:"database"`
		ConnectRetries     int    `mapstructure:"connect_retries"`
		SSLMode            string `mapstructure:"ssl_mode"`
		ConnectTimeout     int    `mapstructure:"connect_timeout"`
		StatementTimeout   int    `mapstructure:"statement_timeout"`
	} `mapstructure:"database"`
	Migrations struct {
		Locations         []string `mapstructure:"locations"`
		Table             string   `mapstructure:"table"`
		Schema            string   `mapstructure:"schema"`
		OutOfOrder        bool     `mapstructure:"out_of_order"`
		ValidateOnMigrate bool     `mapstructure:"validate_on_migrate"`
		CleanEnabled      bool     `mapstructure:"clean_enabled"`
		BaselineVersion   string   `mapstructure:"baseline_version"`
		InstalledBy       string   `mapstructure:"installed_by"`
		MinToolVersion    string   `mapstructure:"min_tool_version"`
	} `mapstructure:"migrations"`
	Hooks struct {
		BeforeMigrate     []string `mapstructure:"before_migrate"`
		AfterMigrate      []string `mapstructure:"after_migrate"`
		BeforeEachMigrate []string `mapstructure:"before_each_migrate"`
		AfterEachMigrate  []string `mapstructure:"after_each_migrate"`
	} `mapstructure:"hooks"`
	Placeholders map[string]string `mapstructure:"placeholders"`
}

// Load resolves Config from, in ascending priority: built-in defaults,
// the TOML file at configPath (or "waypoint.toml" if configPath is
// empty and that file exists), WAYPOINT_* environment variables, and
// finally overrides. It validates the resulting schema and table
// identifiers and caps ConnectRetries at 20.
func Load(configPath string, overrides Overrides) (*Config, error) {
	cfg := Defaults()

	if err := applyTOML(&cfg, configPath); err != nil {
		return nil, err
	}
	applyEnv(&cfg)
	applyOverrides(&cfg, overrides)

	cfg.Migrations.Locations = normalizeLocations(cfg.Migrations.Locations)

	if err := db.ValidateIdentifier(cfg.Migrations.Schema); err != nil {
		return nil, wperr.Wrap(wperr.Config, err, "invalid schema name: %s", err)
	}
	if err := db.ValidateIdentifier(cfg.Migrations.Table); err != nil {
		return nil, wperr.Wrap(wperr.Config, err, "invalid table name: %s", err)
	}

	if cfg.Database.ConnectRetries > 20 {
		cfg.Database.ConnectRetries = 20
	}

	return &cfg, nil
}

func applyTOML(cfg *Config, configPath string) error {
	explicit := configPath != ""
	path := configPath
	if path == "" {
		path = "waypoint.toml"
	}

	if _, err := os.Stat(path); err != nil {
		if explicit {
			return wperr.New(wperr.Config, "config file %q not found", path)
		}
		return nil
	}

	warnInsecurePermissions(path)

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return wperr.Wrap(wperr.Config, err, "failed to parse config file %q: %s", path, err)
	}

	var doc tomlDocument
	if err := v.Unmarshal(&doc); err != nil {
		return wperr.Wrap(wperr.Config, err, "failed to parse config file %q: %s", path, err)
	}

	if doc.Database.URL != "" {
		cfg.Database.URL = doc.Database.URL
	}
	if doc.Database.Host != "" {
		cfg.Database.Host = doc.Database.Host
	}
	if doc.Database.Port != 0 {
		cfg.Database.Port = doc.Database.Port
	}
	if doc.Database.User != "" {
		cfg.Database.User = doc.Database.User
	}
	if doc.Database.Password != "" {
		cfg.Database.Password = doc.Database.Password
	}
	if doc.Database.Database != "" {
		cfg.Database.Database = doc.Database.Database
	}
	if v.IsSet("database.connect_retries") {
		cfg.Database.ConnectRetries = doc.Database.ConnectRetries
	}
	if doc.Database.SSLMode != "" {
		if mode, err := parseSSLMode(doc.Database.SSLMode); err == nil {
			cfg.Database.SSLMode = mode
		}
	}
	if v.IsSet("database.connect_timeout") {
		cfg.Database.ConnectTimeoutSec = doc.Database.ConnectTimeout
	}
	if v.IsSet("database.statement_timeout") {
		cfg.Database.StatementTimeoutSec = doc.Database.StatementTimeout
	}

	if v.IsSet("migrations.locations") {
		cfg.Migrations.Locations = doc.Migrations.Locations
	}
	if doc.Migrations.Table != "" {
		cfg.Migrations.Table = doc.Migrations.Table
	}
	if doc.Migrations.Schema != "" {
		cfg.Migrations.Schema = doc.Migrations.Schema
	}
	if v.IsSet("migrations.out_of_order") {
		cfg.Migrations.OutOfOrder = doc.Migrations.OutOfOrder
	}
	if v.IsSet("migrations.validate_on_migrate") {
		cfg.Migrations.ValidateOnMigrate = doc.Migrations.ValidateOnMigrate
	}
	if v.IsSet("migrations.clean_enabled") {
		cfg.Migrations.CleanEnabled = doc.Migrations.CleanEnabled
	}
	if doc.Migrations.BaselineVersion != "" {
		cfg.Migrations.BaselineVersion = doc.Migrations.BaselineVersion
	}
	if doc.Migrations.InstalledBy != "" {
		cfg.Migrations.InstalledBy = doc.Migrations.InstalledBy
	}
	if doc.Migrations.MinToolVersion != "" {
		cfg.Migrations.MinToolVersion = doc.Migrations.MinToolVersion
	}

	if v.IsSet("hooks.before_migrate") {
		cfg.Hooks.BeforeMigrate = doc.Hooks.BeforeMigrate
	}
	if v.IsSet("hooks.after_migrate") {
		cfg.Hooks.AfterMigrate = doc.Hooks.AfterMigrate
	}
	if v.IsSet("hooks.before_each_migrate") {
		cfg.Hooks.BeforeEachMigrate = doc.Hooks.BeforeEachMigrate
	}
	if v.IsSet("hooks.after_each_migrate") {
		cfg.Hooks.AfterEachMigrate = doc.Hooks.AfterEachMigrate
	}

	for k, val := range doc.Placeholders {
		cfg.Placeholders[k] = val
	}

	return nil
}

// warnInsecurePermissions logs (to stderr) when a config file on a
// Unix system is readable or writable by anyone but its owner, since
// it may contain database credentials.
func warnInsecurePermissions(path string) {
	if runtime.GOOS == "windows" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0o077 != 0 {
		fmt.Fprintf(os.Stderr, "WARNING: config file %q has overly permissive permissions (%o); consider chmod 600\n", path, info.Mode().Perm())
	}
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("WAYPOINT_DATABASE_URL"); ok {
		cfg.Database.URL = v
	}
	if v, ok := os.LookupEnv("WAYPOINT_DATABASE_HOST"); ok {
		cfg.Database.Host = v
	}
	if v, ok := os.LookupEnv("WAYPOINT_DATABASE_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = n
		}
	}
	if v, ok := os.LookupEnv("WAYPOINT_DATABASE_USER"); ok {
		cfg.Database.User = v
	}
	if v, ok := os.LookupEnv("WAYPOINT_DATABASE_PASSWORD"); ok {
		cfg.Database.Password = v
	}
	if v, ok := os.LookupEnv("WAYPOINT_DATABASE_NAME"); ok {
		cfg.Database.Database = v
	}
	if v, ok := os.LookupEnv("WAYPOINT_CONNECT_RETRIES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.ConnectRetries = n
		}
	}
	if v, ok := os.LookupEnv("WAYPOINT_SSL_MODE"); ok {
		if mode, err := parseSSLMode(v); err == nil {
			cfg.Database.SSLMode = mode
		}
	}
	if v, ok := os.LookupEnv("WAYPOINT_CONNECT_TIMEOUT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.ConnectTimeoutSec = n
		}
	}
	if v, ok := os.LookupEnv("WAYPOINT_STATEMENT_TIMEOUT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.StatementTimeoutSec = n
		}
	}
	if v, ok := os.LookupEnv("WAYPOINT_MIGRATIONS_LOCATIONS"); ok {
		parts := strings.Split(v, ",")
		locs := make([]string, 0, len(parts))
		for _, p := range parts {
			locs = append(locs, strings.TrimSpace(p))
		}
		cfg.Migrations.Locations = locs
	}
	if v, ok := os.LookupEnv("WAYPOINT_MIGRATIONS_TABLE"); ok {
		cfg.Migrations.Table = v
	}
	if v, ok := os.LookupEnv("WAYPOINT_MIGRATIONS_SCHEMA"); ok {
		cfg.Migrations.Schema = v
	}

	const placeholderPrefix = "WAYPOINT_PLACEHOLDER_"
	for _, kv := range os.Environ() {
		k, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, placeholderPrefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(k, placeholderPrefix))
		cfg.Placeholders[key] = val
	}
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.URL != nil {
		cfg.Database.URL = *o.URL
	}
	if o.Schema != nil {
		cfg.Migrations.Schema = *o.Schema
	}
	if o.Table != nil {
		cfg.Migrations.Table = *o.Table
	}
	if o.Locations != nil {
		cfg.Migrations.Locations = o.Locations
	}
	if o.OutOfOrder != nil {
		cfg.Migrations.OutOfOrder = *o.OutOfOrder
	}
	if o.ValidateOnMigrate != nil {
		cfg.Migrations.ValidateOnMigrate = *o.ValidateOnMigrate
	}
	if o.BaselineVersion != nil {
		cfg.Migrations.BaselineVersion = *o.BaselineVersion
	}
	if o.ConnectRetries != nil {
		cfg.Database.ConnectRetries = *o.ConnectRetries
	}
	if o.SSLMode != nil {
		if mode, err := parseSSLMode(*o.SSLMode); err == nil {
			cfg.Database.SSLMode = mode
		}
	}
	if o.ConnectTimeoutSec != nil {
		cfg.Database.ConnectTimeoutSec = *o.ConnectTimeoutSec
	}
	if o.StatementTimeout != nil {
		cfg.Database.StatementTimeoutSec = *o.StatementTimeout
	}
}

func parseSSLMode(s string) (db.SSLMode, error) {
	switch strings.ToLower(s) {
	case "disable", "disabled":
		return db.SSLDisable, nil
	case "prefer":
		return db.SSLPrefer, nil
	case "require", "required":
		return db.SSLRequire, nil
	default:
		return "", wperr.New(wperr.Config, "invalid SSL mode %q; use 'disable', 'prefer', or 'require'", s)
	}
}

// ConnectionString builds a connection string from the resolved
// config: Database.URL, JDBC-normalized, if set; otherwise assembled
// from the individual host/port/user/database/password fields.
func (c *Config) ConnectionString() (string, error) {
	if c.Database.URL != "" {
		return NormalizeJDBCURL(c.Database.URL), nil
	}

	host := c.Database.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Database.Port
	if port == 0 {
		port = 5432
	}
	if c.Database.User == "" {
		return "", wperr.New(wperr.Config, "database user is required")
	}
	if c.Database.Database == "" {
		return "", wperr.New(wperr.Config, "database name is required")
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s", host, port, c.Database.User, c.Database.Database)
	if c.Database.Password != "" {
		dsn += " password=" + c.Database.Password
	}
	return dsn, nil
}

// NormalizeJDBCURL strips a leading "jdbc:" prefix and folds "user"
// and "password" query parameters (matched case-insensitively) into
// the URL's authority, leaving any other query parameters untouched.
func NormalizeJDBCURL(raw string) string {
	url := strings.TrimPrefix(raw, "jdbc:")

	base, query, hasQuery := strings.Cut(url, "?")
	if !hasQuery {
		return url
	}

	var user, password string
	haveUser, havePassword := false, false
	var otherParams []string

	for _, param := range strings.Split(query, "&") {
		key, value, ok := strings.Cut(param, "=")
		if !ok {
			otherParams = append(otherParams, param)
			continue
		}
		switch strings.ToLower(key) {
		case "user":
			user, haveUser = value, true
		case "password":
			password, havePassword = value, true
		default:
			otherParams = append(otherParams, param)
		}
	}

	if haveUser || havePassword {
		scheme := ""
		var rest string
		switch {
		case strings.HasPrefix(base, "postgresql://"):
			scheme, rest = "postgresql", strings.TrimPrefix(base, "postgresql://")
		case strings.HasPrefix(base, "postgres://"):
			scheme, rest = "postgres", strings.TrimPrefix(base, "postgres://")
		}

		if scheme != "" {
			var auth string
			switch {
			case haveUser && havePassword:
				auth = user + ":" + password + "@"
			case haveUser:
				auth = user + "@"
			case havePassword:
				auth = ":" + password + "@"
			}

			result := scheme + "://" + auth + rest
			if len(otherParams) > 0 {
				result += "?" + strings.Join(otherParams, "&")
			}
			return result
		}
	}

	if len(otherParams) == 0 {
		return base
	}
	return base + "?" + strings.Join(otherParams, "&")
}

// NormalizeLocation strips a Flyway-style "filesystem:" prefix from a
// single migration location.
func NormalizeLocation(location string) string {
	return strings.TrimPrefix(location, "filesystem:")
}

func normalizeLocations(locations []string) []string {
	out := make([]string, len(locations))
	for i, l := range locations {
		out[i] = NormalizeLocation(l)
	}
	return out
}

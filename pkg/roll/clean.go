// SPDX-License-Identifier: Apache-2.0

package roll

import (
	"context"
	"fmt"

	"github.com/waypoint-sql/waypoint/pkg/db"
	"github.com/waypoint-sql/waypoint/pkg/wperr"
)

// Clean drops every object in the configured schema: materialized
// views, views, tables, sequences, functions/procedures/aggregates,
// and custom enum/composite types, in that order so that dependents
// are gone before their dependencies. It is gated behind
// Migrations.CleanEnabled unless allowClean is set, since it is
// destructive and irreversible. The drops run under the advisory lock.
func (r *Roll) Clean(ctx context.Context, allowClean bool) ([]string, error) {
	if !r.cfg.Migrations.CleanEnabled && !allowClean {
		return nil, wperr.New(wperr.CleanDisabled, "clean is disabled; set migrations.clean_enabled or pass --allow-clean")
	}

	var dropped []string
	err := r.withLock(ctx, func() error {
		d, err := r.runClean(ctx)
		dropped = d
		return err
	})
	return dropped, err
}

func (r *Roll) runClean(ctx context.Context) ([]string, error) {
	schema := r.cfg.Migrations.Schema
	var dropped []string

	matviews, err := r.queryNames(ctx, `SELECT matviewname FROM pg_matviews WHERE schemaname = $1`, schema)
	if err != nil {
		return dropped, err
	}
	for _, name := range matviews {
		if err := r.dropObject(ctx, "MATERIALIZED VIEW", schema, name); err != nil {
			return dropped, err
		}
		dropped = append(dropped, fmt.Sprintf("Materialized view: %s.%s", schema, name))
	}

	views, err := r.queryNames(ctx, `SELECT table_name FROM information_schema.views WHERE table_schema = $1`, schema)
	if err != nil {
		return dropped, err
	}
	for _, name := range views {
		if err := r.dropObject(ctx, "VIEW", schema, name); err != nil {
			return dropped, err
		}
		dropped = append(dropped, fmt.Sprintf("View: %s.%s", schema, name))
	}

	tables, err := r.queryNames(ctx, `SELECT tablename FROM pg_tables WHERE schemaname = $1`, schema)
	if err != nil {
		return dropped, err
	}
	for _, name := range tables {
		if err := r.dropObject(ctx, "TABLE", schema, name); err != nil {
			return dropped, err
		}
		dropped = append(dropped, fmt.Sprintf("Table: %s.%s", schema, name))
	}

	sequences, err := r.queryNames(ctx, `SELECT sequence_name FROM information_schema.sequences WHERE sequence_schema = $1`, schema)
	if err != nil {
		return dropped, err
	}
	for _, name := range sequences {
		if err := r.dropObject(ctx, "SEQUENCE", schema, name); err != nil {
			return dropped, err
		}
		dropped = append(dropped, fmt.Sprintf("Sequence: %s.%s", schema, name))
	}

	routines, err := r.queryRoutines(ctx, schema)
	if err != nil {
		return dropped, err
	}
	for _, rt := range routines {
		label, kind := rt.label, rt.kind
		sqlText := fmt.Sprintf("DROP %s IF EXISTS %s.%s(%s) CASCADE",
			kind, db.QuoteIdentifier(schema), db.QuoteIdentifier(rt.name), rt.argTypes)
		if _, err := r.conn.ExecContext(ctx, sqlText); err != nil {
			return dropped, wperr.Wrap(wperr.Database, err, "failed to drop %s: %s", label, err)
		}
		dropped = append(dropped, label)
	}

	types, err := r.queryNames(ctx, `
		SELECT typname FROM pg_type t
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = $1 AND t.typtype IN ('e', 'c') AND t.typname NOT LIKE '\_%'`, schema)
	if err != nil {
		return dropped, err
	}
	for _, name := range types {
		if err := r.dropObject(ctx, "TYPE", schema, name); err != nil {
			return dropped, err
		}
		dropped = append(dropped, fmt.Sprintf("Type: %s.%s", schema, name))
	}

	return dropped, nil
}

func (r *Roll) dropObject(ctx context.Context, kind, schema, name string) error {
	sqlText := fmt.Sprintf("DROP %s IF EXISTS %s.%s CASCADE", kind, db.QuoteIdentifier(schema), db.QuoteIdentifier(name))
	if _, err := r.conn.ExecContext(ctx, sqlText); err != nil {
		return wperr.Wrap(wperr.Database, err, "failed to drop %s %s.%s: %s", kind, schema, name, err)
	}
	return nil
}

func (r *Roll) queryNames(ctx context.Context, query, schema string) ([]string, error) {
	rows, err := r.conn.QueryContext(ctx, query, schema)
	if err != nil {
		return nil, wperr.Wrap(wperr.Database, err, "failed to list objects to clean: %s", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, wperr.Wrap(wperr.Database, err, "failed to scan object name: %s", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

type routine struct {
	name     string
	argTypes string
	kind     string
	label    string
}

// queryRoutines enumerates functions, procedures, and aggregates
// owned by schema. Aggregates and procedures have no meaningful
// "RETURNS" clause and cannot be dropped with "DROP FUNCTION", so the
// drop statement's keyword is chosen per pg_proc.prokind rather than
// reconstructing a single DROP FUNCTION identity argument list for
// every routine kind.
func (r *Roll) queryRoutines(ctx context.Context, schema string) ([]routine, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT p.proname, pg_get_function_identity_arguments(p.oid), p.prokind
		FROM pg_proc p
		JOIN pg_namespace n ON n.oid = p.pronamespace
		WHERE n.nspname = $1`, schema)
	if err != nil {
		return nil, wperr.Wrap(wperr.Database, err, "failed to list routines to clean: %s", err)
	}
	defer rows.Close()

	var out []routine
	for rows.Next() {
		var name, argTypes, prokind string
		if err := rows.Scan(&name, &argTypes, &prokind); err != nil {
			return nil, wperr.Wrap(wperr.Database, err, "failed to scan routine: %s", err)
		}

		var kind, kindLabel string
		switch prokind {
		case "p":
			kind, kindLabel = "PROCEDURE", "Procedure"
		case "a":
			kind, kindLabel = "AGGREGATE", "Aggregate"
		default:
			kind, kindLabel = "FUNCTION", "Function"
		}

		out = append(out, routine{
			name:     name,
			argTypes: argTypes,
			kind:     kind,
			label:    fmt.Sprintf("%s: %s.%s(%s)", kindLabel, schema, name, argTypes),
		})
	}
	return out, rows.Err()
}

// SPDX-License-Identifier: Apache-2.0

// Package hooks discovers and runs SQL callback scripts that run
// before or after a migrate pass, or before or after each individual
// migration.
package hooks

import (
	"os"
	"sort"
	"strings"

	"github.com/waypoint-sql/waypoint/pkg/wperr"
)

// Phase identifies one of the four points in a migrate pass at which
// hooks may run.
type Phase int

const (
	BeforeMigrate Phase = iota
	AfterMigrate
	BeforeEachMigrate
	AfterEachMigrate
)

func (p Phase) String() string {
	switch p {
	case BeforeMigrate:
		return "beforeMigrate"
	case AfterMigrate:
		return "afterMigrate"
	case BeforeEachMigrate:
		return "beforeEachMigrate"
	case AfterEachMigrate:
		return "afterEachMigrate"
	default:
		return "unknown"
	}
}

// prefixes lists the recognized hook filename prefixes in a fixed
// order; the longer "EachMigrate" prefixes are checked first so that
// e.g. "beforeEachMigrate.sql" is never mistaken for a "before"-prefixed
// file (it isn't, since the prefixes are distinct strings, but keeping
// the longer prefixes first mirrors the order the grammar is usually
// described in).
var prefixes = []struct {
	prefix string
	phase  Phase
}{
	{"beforeEachMigrate", BeforeEachMigrate},
	{"afterEachMigrate", AfterEachMigrate},
	{"beforeMigrate", BeforeMigrate},
	{"afterMigrate", AfterMigrate},
}

// Resolved is a hook script discovered on disk or loaded from
// configuration.
type Resolved struct {
	Phase      Phase
	ScriptName string
	SQL        string
}

// IsHookFile reports whether filename names a hook callback rather
// than a migration: it must end in .sql and be either exactly
// "<phase>.sql" or "<phase>__<suffix>.sql" for one of the four phases.
func IsHookFile(filename string) bool {
	if !strings.HasSuffix(filename, ".sql") {
		return false
	}
	for _, p := range prefixes {
		if !strings.HasPrefix(filename, p.prefix) {
			continue
		}
		rest := filename[len(p.prefix) : len(filename)-len(".sql")]
		if rest == "" || strings.HasPrefix(rest, "__") {
			return true
		}
	}
	return false
}

// Scan finds hook files in each location. A location that does not
// exist is silently skipped. Within a location, files are considered
// in alphabetical order; the final result is sorted by phase, then by
// script name, so that e.g. "beforeMigrate.sql" always runs before
// "beforeMigrate__B.sql" regardless of which location either was found
// in.
func Scan(locations []string) ([]Resolved, error) {
	var out []Resolved

	for _, loc := range locations {
		entries, err := os.ReadDir(loc)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, wperr.Wrap(wperr.IO, err, "failed to read hook location %q: %s", loc, err)
		}

		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)

		for _, name := range names {
			if !strings.HasSuffix(name, ".sql") {
				continue
			}
			for _, p := range prefixes {
				if !strings.HasPrefix(name, p.prefix) {
					continue
				}
				rest := name[len(p.prefix) : len(name)-len(".sql")]
				if rest != "" && !strings.HasPrefix(rest, "__") {
					continue
				}

				content, err := os.ReadFile(loc + string(os.PathSeparator) + name)
				if err != nil {
					return nil, wperr.Wrap(wperr.IO, err, "failed to read hook file %q: %s", name, err)
				}
				out = append(out, Resolved{
					Phase:      p.phase,
					ScriptName: name,
					SQL:        string(content),
				})
				break
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Phase != out[j].Phase {
			return out[i].Phase.String() < out[j].Phase.String()
		}
		return out[i].ScriptName < out[j].ScriptName
	})

	return out, nil
}

// ConfigHooks loads hook SQL from explicit file paths specified in
// configuration, in the order given, for each phase in turn
// (beforeMigrate, afterMigrate, beforeEachMigrate, afterEachMigrate).
// These are appended after any discovered hooks for the same phase.
func ConfigHooks(beforeMigrate, afterMigrate, beforeEachMigrate, afterEachMigrate []string) ([]Resolved, error) {
	var out []Resolved

	sections := []struct {
		phase Phase
		paths []string
	}{
		{BeforeMigrate, beforeMigrate},
		{AfterMigrate, afterMigrate},
		{BeforeEachMigrate, beforeEachMigrate},
		{AfterEachMigrate, afterEachMigrate},
	}

	for _, section := range sections {
		for _, path := range section.paths {
			content, err := os.ReadFile(path)
			if err != nil {
				return nil, wperr.Wrap(wperr.IO, err, "failed to read hook file %q: %s", path, err)
			}
			scriptName := path
			if idx := strings.LastIndexByte(path, os.PathSeparator); idx >= 0 {
				scriptName = path[idx+1:]
			}
			out = append(out, Resolved{
				Phase:      section.phase,
				ScriptName: scriptName,
				SQL:        string(content),
			})
		}
	}

	return out, nil
}

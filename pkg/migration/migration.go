// SPDX-License-Identifier: Apache-2.0

// Package migration resolves migration files from a set of directory
// locations into ordered, checksummed ResolvedMigration values.
package migration

import (
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/waypoint-sql/waypoint/pkg/checksum"
	"github.com/waypoint-sql/waypoint/pkg/hooks"
	"github.com/waypoint-sql/waypoint/pkg/version"
	"github.com/waypoint-sql/waypoint/pkg/wperr"
)

// Kind distinguishes versioned (forward-only, run-once) migrations
// from repeatable ones (re-applied whenever their checksum changes).
type Kind int

const (
	Versioned Kind = iota
	Repeatable
)

// TypeName returns the value stored in the history table's `type`
// column for this kind.
func (k Kind) TypeName() string {
	switch k {
	case Versioned:
		return "SQL"
	case Repeatable:
		return "SQL_REPEATABLE"
	default:
		return "SQL"
	}
}

// Resolved is a migration file discovered on disk, together with its
// parsed identity and computed checksum.
type Resolved struct {
	Kind        Kind
	Version     *version.Version // non-nil iff Kind == Versioned
	Description string
	Script      string
	Checksum    int32
	SQL         string
}

var (
	versionedRE  = regexp.MustCompile(`^V([\d._]+)__(.+)$`)
	repeatableRE = regexp.MustCompile(`^R__(.+)$`)
)

// parseFilename parses the stem of a migration filename (without the
// .sql suffix) into its kind, version (if any), and description.
func parseFilename(stem string) (Kind, *version.Version, string, error) {
	if m := versionedRE.FindStringSubmatch(stem); m != nil {
		v, err := version.Parse(m[1])
		if err != nil {
			return 0, nil, "", wperr.Wrap(wperr.MigrationParse, err, "invalid version in filename %q: %s", stem, err)
		}
		return Versioned, &v, strings.ReplaceAll(m[2], "_", " "), nil
	}
	if m := repeatableRE.FindStringSubmatch(stem); m != nil {
		return Repeatable, nil, strings.ReplaceAll(m[1], "_", " "), nil
	}
	return 0, nil, "", wperr.New(wperr.MigrationParse,
		"filename %q does not match the V{version}__{description} or R__{description} grammar", stem)
}

// Scan walks each location (non-recursively) for migration files,
// parses and checksums each one, and returns them sorted: versioned
// migrations first by version ascending, then repeatable migrations by
// description ascending. A location that does not exist is skipped
// with a warning, not an error; warn is called with a human-readable
// message for each such location. A file that looks like a migration
// (starts with V or R and ends in .sql) but does not match the naming
// grammar is a hard error.
func Scan(locations []string, warn func(string)) ([]Resolved, error) {
	var out []Resolved

	for _, loc := range locations {
		entries, err := os.ReadDir(loc)
		if err != nil {
			if os.IsNotExist(err) {
				if warn != nil {
					warn(fmt.Sprintf("migration location %q does not exist, skipping", loc))
				}
				continue
			}
			return nil, wperr.Wrap(wperr.IO, err, "failed to read migration location %q: %s", loc, err)
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
			if hooks.IsHookFile(name) {
				continue
			}
			if !strings.HasPrefix(name, "V") && !strings.HasPrefix(name, "R") {
				continue
			}

			stem := strings.TrimSuffix(name, ".sql")
			kind, v, desc, err := parseFilename(stem)
			if err != nil {
				return nil, wperr.Wrap(wperr.MigrationParse, err, "%s: %s", name, err)
			}

			content, err := fs.ReadFile(os.DirFS(loc), name)
			if err != nil {
				return nil, wperr.Wrap(wperr.IO, err, "failed to read migration file %q: %s", name, err)
			}

			out = append(out, Resolved{
				Kind:        kind,
				Version:     v,
				Description: desc,
				Script:      name,
				Checksum:    checksum.Calculate(string(content)),
				SQL:         string(content),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return a.Kind == Versioned
		}
		if a.Kind == Versioned {
			return a.Version.Compare(*b.Version) < 0
		}
		return a.Description < b.Description
	})

	return out, nil
}

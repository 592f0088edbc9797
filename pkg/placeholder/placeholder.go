// SPDX-License-Identifier: Apache-2.0

// Package placeholder substitutes ${key} references in migration SQL
// with configured or built-in values.
package placeholder

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/waypoint-sql/waypoint/pkg/wperr"
)

var placeholderRE = regexp.MustCompile(`\$\{([^}]+)\}`)

// Replace substitutes every ${key} occurrence in sql with the matching
// value from placeholders. Lookup is case-insensitive: a placeholder
// named "Schema" in the map satisfies ${schema} in the SQL text.
// Replacement is literal, with no escaping of the substituted value.
func Replace(sql string, placeholders map[string]string) (string, error) {
	lower := make(map[string]string, len(placeholders))
	for k, v := range placeholders {
		lower[strings.ToLower(k)] = v
	}

	available := make([]string, 0, len(placeholders))
	for k := range placeholders {
		available = append(available, k)
	}
	sort.Strings(available)

	var b strings.Builder
	lastEnd := 0

	for _, loc := range placeholderRE.FindAllStringSubmatchIndex(sql, -1) {
		matchStart, matchEnd := loc[0], loc[1]
		keyStart, keyEnd := loc[2], loc[3]
		key := sql[keyStart:keyEnd]

		value, ok := lower[strings.ToLower(key)]
		if !ok {
			availableText := "(none)"
			if len(available) > 0 {
				availableText = strings.Join(available, ", ")
			}
			return "", wperr.New(wperr.PlaceholderNotFound,
				"placeholder ${%s} has no value; available placeholders: %s", key, availableText)
		}

		b.WriteString(sql[lastEnd:matchStart])
		b.WriteString(value)
		lastEnd = matchEnd
	}
	b.WriteString(sql[lastEnd:])

	return b.String(), nil
}

// Builtins returns the five built-in placeholder keys, layered on top
// of (overriding any same-named key already in) userPlaceholders.
func Builtins(userPlaceholders map[string]string, schema, user, database, filename string) map[string]string {
	out := make(map[string]string, len(userPlaceholders)+5)
	for k, v := range userPlaceholders {
		out[k] = v
	}

	out["waypoint:schema"] = schema
	out["waypoint:user"] = user
	out["waypoint:database"] = database
	out["waypoint:timestamp"] = time.Now().UTC().Format("2006-01-02 15:04:05")
	out["waypoint:filename"] = filename

	return out
}

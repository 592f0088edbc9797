// SPDX-License-Identifier: Apache-2.0

package db

import (
	"github.com/lib/pq"

	"github.com/waypoint-sql/waypoint/pkg/wperr"
)

// QuoteIdentifier double-quotes a SQL identifier, doubling any
// embedded double-quote, so it can be safely interpolated into
// generated SQL.
func QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

// ValidateIdentifier rejects identifiers that are empty or contain
// characters outside [A-Za-z0-9_]. It is applied to schema and table
// names before they are interpolated into SQL, as defense in depth
// alongside quoting.
func ValidateIdentifier(name string) error {
	if name == "" {
		return wperr.New(wperr.Config, "identifier cannot be empty")
	}
	for _, r := range name {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isAlnum && r != '_' {
			return wperr.New(wperr.Config, "identifier %q contains invalid characters; only [A-Za-z0-9_] are allowed", name)
		}
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0

// Package version parses and orders the dotted/underscore-separated
// version strings used in versioned migration filenames.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed migration version, such as "1.2.3" or "1_1".
// Segments are compared numerically, and a version with fewer segments
// than another is treated as though its missing segments were zero, so
// "1.2" and "1.2.0" compare as equal.
type Version struct {
	Segments []uint64
	Raw      string
}

// Parse splits raw on '.' and '_' and parses each segment as an
// unsigned integer. It returns an error if raw is empty or if any
// segment is not a valid non-negative integer.
func Parse(raw string) (Version, error) {
	if raw == "" {
		return Version{}, fmt.Errorf("version string cannot be empty")
	}

	parts := strings.Split(strings.ReplaceAll(raw, "_", "."), ".")

	segments := make([]uint64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("version %q has invalid segment %q: %w", raw, p, err)
		}
		segments[i] = n
	}

	return Version{Segments: segments, Raw: raw}, nil
}

// Compare returns -1, 0, or 1 depending on whether v sorts before,
// equal to, or after other. Missing trailing segments are treated as
// zero.
func (v Version) Compare(other Version) int {
	n := len(v.Segments)
	if len(other.Segments) > n {
		n = len(other.Segments)
	}

	for i := 0; i < n; i++ {
		var a, b uint64
		if i < len(v.Segments) {
			a = v.Segments[i]
		}
		if i < len(other.Segments) {
			b = other.Segments[i]
		}
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}

	return 0
}

// String returns the original, unparsed version text.
func (v Version) String() string {
	return v.Raw
}

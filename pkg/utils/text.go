// Package utils provides shared helpers for text, vector math and logging.
package utils

import "unicode/utf8"

// Truncate shortens s to at most maxRunes runes and appends "..." when
// anything was cut. It never splits a multi-byte character. A maxRunes of
// zero or less returns s unchanged.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i] + "..."
		}
		n++
	}
	return s
}

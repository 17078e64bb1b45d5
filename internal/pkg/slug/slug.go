// Package slug derives URL/object-key-safe identifiers from user-supplied
// gallery names.
package slug

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Of lowercases s, collapses runs of non-alphanumeric characters to a
// single hyphen, and trims leading/trailing hyphens. An input that reduces
// to nothing becomes "gallery".
func Of(s string) string {
	lower := strings.ToLower(s)
	replaced := nonAlnum.ReplaceAllString(lower, "-")
	trimmed := strings.Trim(replaced, "-")
	if trimmed == "" {
		return "gallery"
	}
	return trimmed
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package entity

import (
	"regexp"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonSlugRe    = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizePerson turns a display name into the identifier used for the
// person's directory: whitespace runs become "_" and path separators are
// replaced. "Alice  Smith" and "Alice Smith" map to the same identifier.
// Leading dots become "_" so an identifier never names "." or ".." or a
// hidden directory.
func NormalizePerson(name string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("/", "_", `\`, "_").Replace(name)
	name = whitespaceRe.ReplaceAllString(name, "_")
	trimmed := strings.TrimLeft(name, ".")
	return strings.Repeat("_", len(name)-len(trimmed)) + trimmed
}

// Slugify lowercases s and collapses every run of non-alphanumerics to "-".
func Slugify(s string) string {
	s = nonSlugRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	return strings.Trim(s, "-")
}

// TruncateDate keeps the day part of an ISO timestamp.
func TruncateDate(date string) string {
	date = strings.TrimSpace(date)
	if len(date) > 10 {
		return date[:10]
	}
	return date
}

package textutil

import (
	"regexp"
	"strings"
)

var slugStripPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts free text into a URL-safe slug: lowercased, non-alphanumeric
// runs collapsed to single hyphens, trimmed of leading and trailing hyphens.
func Slugify(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	slug := slugStripPattern.ReplaceAllString(lowered, "-")
	return strings.Trim(slug, "-")
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

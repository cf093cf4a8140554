package fusion

import (
	"regexp"
	"strings"
)

// UnknownPersonKey is the sentinel grouping key used when an
// attribution can't be normalized into anything useful.
const UnknownPersonKey = "unknown"

var (
	personKeyPattern = regexp.MustCompile(`[^a-z0-9]+`)
	slugPattern      = regexp.MustCompile(`[^a-z0-9-]`)
)

// NormalizePersonKey derives the deterministic grouping key for a
// quote attribution: trimmed, lowercased, with every run of
// non-alphanumeric characters collapsed to a single hyphen and
// leading/trailing hyphens stripped.
//
// Inputs that are empty, whitespace, or normalize to nothing (e.g.
// punctuation only) return [UnknownPersonKey]. The function is pure
// and total, so callers can re-derive a stored key from the person
// name at lookup time without reading it back.
func NormalizePersonKey(person string) string {
	if strings.TrimSpace(person) == "" {
		return UnknownPersonKey
	}

	normalized := strings.ToLower(strings.TrimSpace(person))
	normalized = personKeyPattern.ReplaceAllString(normalized, "-")
	normalized = strings.Trim(normalized, "-")

	if normalized == "" {
		return UnknownPersonKey
	}
	return normalized
}

// slugify converts a realm or character name into the lowercase slug
// form the Blizzard profile API expects ("Area 52" -> "area-52").
func slugify(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, " ", "-")
	return slugPattern.ReplaceAllString(normalized, "")
}

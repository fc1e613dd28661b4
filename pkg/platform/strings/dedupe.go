// Package strings holds small list helpers for env-sourced settings.
package strings

import "strings"

// DedupeAndTrim trims every value and drops blanks and repeats, keeping
// first-seen order. A nil or empty input is returned as is.
func DedupeAndTrim(values []string) []string {
	return dedupeBy(values, strings.TrimSpace)
}

// DedupeFold is DedupeAndTrim with case-insensitive matching. The first
// spelling of each value wins.
func DedupeFold(values []string) []string {
	return dedupeBy(values, func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	})
}

func dedupeBy(values []string, key func(string) string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]bool, len(values))
	out := values[:0:0]
	for _, v := range values {
		k := key(v)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, strings.TrimSpace(v))
	}
	return out
}

// Package naming canonicalizes partition keys into run-store-safe run names.
// The (parent run, normalized name) pair is the dedup key for child runs, so
// two spellings of the same partition must normalize identically.
package naming

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Separator joins the components of a normalized partition name.
const Separator = "/"

// Normalize canonicalizes a partition key: unicode NFC, any mix of forward
// and backward slashes collapsed to single separators, empty and trailing
// components dropped. Component order is preserved.
func Normalize(key string) string {
	return strings.Join(components(key), Separator)
}

// Subname joins a partition key with a suffix fragment, partition first.
// Empty fragments are dropped, so Subname("a/b", "") == "a/b" and
// Subname("a", "model") == "a/model".
func Subname(partition, suffix string) string {
	parts := append(components(partition), components(suffix)...)
	return strings.Join(parts, Separator)
}

func components(key string) []string {
	key = norm.NFC.String(key)
	key = strings.ReplaceAll(key, "\\", Separator)

	var parts []string
	for _, part := range strings.Split(key, Separator) {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

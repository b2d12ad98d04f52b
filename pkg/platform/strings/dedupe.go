// Package strings holds small string-slice helpers shared by configuration
// parsing. Import aliased (conventionally strutil) to avoid shadowing the
// standard library.
package strings

import "strings"

// DedupeAndTrim trims every element and drops empties and duplicates,
// preserving first-seen order. Comma-split env lists pass through it so
// "a, b,,a" configures exactly {a, b}.
func DedupeAndTrim(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0:0]
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

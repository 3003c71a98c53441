// Package strings holds small string-slice helpers shared across the project.
package strings

import (
	"strings"
)

// DedupeAndTrim trims whitespace from every element, drops blanks, and keeps
// the first occurrence of each remaining value in its original position. Used
// to normalize comma-separated lists from the environment, such as Kafka
// broker addresses.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
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

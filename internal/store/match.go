package store

import "strings"

// ContainsFold reports whether substr occurs in s ignoring case. The match is
// literal: no wildcard or pattern characters.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Package id contains helpers for resource ids.
package id

import (
	"fmt"
	"regexp"
)

const unique = "unique()"

var customIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,35}$`)

// Unique returns the placeholder asking the server to generate the id.
func Unique() string {
	return unique
}

// IsUnique reports whether s asks the server to generate the id.
func IsUnique(s string) bool {
	return s == unique
}

// Custom validates a caller chosen id: at most 36 chars of a-z, A-Z, 0-9, period,
// hyphen and underscore, not starting with a special char.
func Custom(s string) (string, error) {
	if !customIDPattern.MatchString(s) {
		return "", fmt.Errorf("invalid id %q", s)
	}
	return s, nil
}

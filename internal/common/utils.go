package common

import "strings"

// HasAnyFold reports whether values contains any of the targets, compared case-insensitively.
func HasAnyFold(values []string, targets ...string) bool {
	for _, v := range values {
		for _, t := range targets {
			if strings.EqualFold(v, t) {
				return true
			}
		}
	}
	return false
}

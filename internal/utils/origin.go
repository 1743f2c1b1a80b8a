package utils

import "strings"

// OriginAllowed reports whether a browser Origin header is one of allowed.
// Requests without an Origin come from non-browser clients and pass.
func OriginAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimRight(a, "/"), origin) {
			return true
		}
	}
	return false
}

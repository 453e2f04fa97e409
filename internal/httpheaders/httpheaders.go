// Package httpheaders normalises header maps configured for HTTP-reached engines.
// Header names compare case-insensitively and ignore surrounding spaces.
package httpheaders

import (
	"slices"
	"strings"
)

// WithDefaults returns a new map holding configured on top of defaults.
// Configured entries win regardless of casing. Neither input is modified.
func WithDefaults(configured, defaults map[string]string) map[string]string {
	out := make(map[string]string, len(configured)+len(defaults))
	names := make(map[string]string, len(out))

	layer := func(src map[string]string) {
		for _, key := range sortedKeys(src) {
			name := strings.TrimSpace(key)
			if name == "" {
				continue
			}
			folded := fold(name)
			if prev, ok := names[folded]; ok {
				delete(out, prev)
			}
			names[folded] = name
			out[name] = src[key]
		}
	}
	layer(defaults)
	layer(configured)
	return out
}

// FirstDuplicate returns the first header name (in sorted order) that appears
// more than once when compared case-insensitively.
func FirstDuplicate(headers map[string]string) (string, bool) {
	seen := make(map[string]bool, len(headers))
	for _, key := range sortedKeys(headers) {
		folded := fold(key)
		if seen[folded] {
			return strings.TrimSpace(key), true
		}
		seen[folded] = true
	}
	return "", false
}

func fold(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// sortedKeys orders keys by folded name, then by exact spelling, so
// collisions resolve the same way on every run.
func sortedKeys(src map[string]string) []string {
	keys := make([]string, 0, len(src))
	for key := range src {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if c := strings.Compare(fold(a), fold(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return keys
}

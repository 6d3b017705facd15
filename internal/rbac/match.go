package rbac

import "strings"

const wildcardSuffix = ".*"

// Category returns the part of key before the first dot.
func Category(key string) string {
	if i := strings.IndexByte(key, '.'); i >= 0 {
		return key[:i]
	}
	return key
}

func IsWildcard(key string) bool {
	return strings.HasSuffix(key, wildcardSuffix)
}

func WildcardFor(category string) string {
	return category + wildcardSuffix
}

// Satisfies reports whether any required key is covered by the granted set.
//
// Wildcards work in both directions: a granted "user.*" covers a required "user.view"
// and the bare "user", and a required "user.*" is met by a granted "user.view".
// A wildcard never reaches past its own prefix, so "user.*" says nothing about "product.view".
func Satisfies(required, granted []string) bool {
	for _, r := range required {
		for _, g := range granted {
			if covers(r, g) {
				return true
			}
		}
	}
	return false
}

func covers(required, granted string) bool {
	if required == "" || granted == "" {
		return false
	}
	if required == granted {
		return true
	}
	if IsWildcard(required) && underPrefix(granted, strings.TrimSuffix(required, wildcardSuffix)) {
		return true
	}
	if IsWildcard(granted) && underPrefix(required, strings.TrimSuffix(granted, wildcardSuffix)) {
		return true
	}
	return false
}

func underPrefix(key, prefix string) bool {
	return key == prefix || strings.HasPrefix(key, prefix+".")
}

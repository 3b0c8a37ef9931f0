package auth

import (
	"crypto/subtle"
	"sort"
)

// Keys maps an admin name to that admin's shared secret. It is built once at
// startup and only read afterwards.
type Keys map[string]string

// Authenticate reports whether value matches one of the configured secrets
// and, if so, whose. It never matches when no key is configured or value is
// empty.
func (k Keys) Authenticate(value string) (string, bool) {
	if value == "" {
		return "", false
	}
	// Check every key so the time taken does not depend on which one matched.
	matched := ""
	for _, name := range k.names() {
		secret := k[name]
		if secret == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(value), []byte(secret)) == 1 && matched == "" {
			matched = name
		}
	}
	return matched, matched != ""
}

func (k Keys) names() []string {
	names := make([]string, 0, len(k))
	for name := range k {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

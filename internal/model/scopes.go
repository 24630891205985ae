package model

import "strings"

// Scope names understood by the API surface
const (
	ScopeRead = "read"
	ScopeSign = "sign"
)

// Scopes is the set of capability strings a token grants
type Scopes []string

// ParseScopes parses a comma-joined scope string as stored in the
// database. Blank fragments are dropped, so "" parses to the empty set
// rather than a set containing the empty scope.
func ParseScopes(s string) Scopes {
	parts := strings.Split(s, ",")
	scopes := make(Scopes, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !scopes.Has(p) {
			scopes = append(scopes, p)
		}
	}
	return scopes
}

// Has reports whether the set contains the given scope.
func (s Scopes) Has(scope string) bool {
	for _, v := range s {
		if v == scope {
			return true
		}
	}
	return false
}

// HasAll reports whether required is a subset of s.
func (s Scopes) HasAll(required Scopes) bool {
	for _, r := range required {
		if !s.Has(r) {
			return false
		}
	}
	return true
}

// String returns the comma-joined form used for storage.
func (s Scopes) String() string {
	return strings.Join(s, ",")
}

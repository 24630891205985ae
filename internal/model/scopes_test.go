package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseScopes(t *testing.T) {
	assert.Equal(t, Scopes{"read"}, ParseScopes("read"))
	assert.Equal(t, Scopes{"read", "sign"}, ParseScopes("read,sign"))
	assert.Equal(t, Scopes{"read", "sign"}, ParseScopes(" read , sign "))
	assert.Equal(t, Scopes{"read"}, ParseScopes("read,,read,"))
}

func TestParseScopesEmptyIsEmptySet(t *testing.T) {
	scopes := ParseScopes("")
	assert.NotNil(t, scopes)
	assert.Empty(t, scopes)

	// A blank-only string is also the empty set, not a set with "".
	assert.Empty(t, ParseScopes(" , ,"))
}

func TestScopesSubset(t *testing.T) {
	granted := Scopes{"read", "sign"}

	assert.True(t, granted.HasAll(Scopes{"read"}))
	assert.True(t, granted.HasAll(Scopes{"read", "sign"}))
	assert.True(t, granted.HasAll(nil))
	assert.False(t, granted.HasAll(Scopes{"write"}))
	assert.False(t, Scopes{}.HasAll(Scopes{"read"}))
}

func TestScopesString(t *testing.T) {
	assert.Equal(t, "read,sign", Scopes{"read", "sign"}.String())
	assert.Equal(t, "", Scopes{}.String())
}

func TestAccessTokenUsable(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	assert.True(t, (&AccessToken{}).Usable(now))
	assert.True(t, (&AccessToken{ExpiresAt: &future}).Usable(now))
	assert.False(t, (&AccessToken{Revoked: true}).Usable(now))
	assert.False(t, (&AccessToken{ExpiresAt: &past}).Usable(now))
	assert.False(t, (&AccessToken{ExpiresAt: &now}).Usable(now))
}

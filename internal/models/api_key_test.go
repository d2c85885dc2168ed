package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopes_ValueAndScan(t *testing.T) {
	v, err := Scopes{ScopeRead, ScopeWrite}.Value()
	require.NoError(t, err)
	assert.Equal(t, "read,write", v)

	var s Scopes
	require.NoError(t, s.Scan([]byte("read, delete,")))
	assert.Equal(t, Scopes{ScopeRead, ScopeDelete}, s)

	require.NoError(t, s.Scan(nil))
	assert.Empty(t, s)

	assert.Error(t, s.Scan(42))
}

func TestScopes_AdminAllowsEverything(t *testing.T) {
	assert.True(t, Scopes{ScopeAdmin}.Allows(ScopeDelete))
	assert.True(t, Scopes{ScopeRead}.Allows(ScopeRead))
	assert.False(t, Scopes{ScopeRead}.Allows(ScopeWrite))
}

func TestAPIKey_StatusAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.Equal(t, APIKeyActive, (&APIKey{}).StatusAt(now))
	assert.Equal(t, APIKeyActive, (&APIKey{ExpiresAt: &future}).StatusAt(now))
	assert.Equal(t, APIKeyExpired, (&APIKey{ExpiresAt: &past}).StatusAt(now))
	assert.Equal(t, APIKeyExpired, (&APIKey{ExpiresAt: &now}).StatusAt(now))
	assert.Equal(t, APIKeyRevoked, (&APIKey{ExpiresAt: &past, RevokedAt: &past}).StatusAt(now))
}

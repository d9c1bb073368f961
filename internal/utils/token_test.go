package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionIDIsOpaqueAndUnique(t *testing.T) {
	a, err := NewSessionID()
	require.NoError(t, err)
	b, err := NewSessionID()
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestTransportTokenRoundTrip(t *testing.T) {
	exp := time.Now().UTC().Add(time.Hour)
	tok, err := NewTransportToken("secret", "sess-1", "ana", "user", exp)
	require.NoError(t, err)
	assert.Equal(t, exp.Unix(), tok.Exp.Unix())

	claims, err := ParseTransportToken("secret", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "ana", claims.Alias)
	assert.Equal(t, "user", claims.Role)
}

func TestParseTransportTokenRejectsWrongSecret(t *testing.T) {
	tok, err := NewTransportToken("secret", "sess-1", "ana", "user", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = ParseTransportToken("other", tok.Token)
	assert.ErrorIs(t, err, ErrBadToken)
}

func TestParseTransportTokenRejectsExpired(t *testing.T) {
	// The token's exp mirrors the session's expires_at; a token for an
	// already-expired session never validates.
	tok, err := NewTransportToken("secret", "sess-1", "ana", "user", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = ParseTransportToken("secret", tok.Token)
	assert.ErrorIs(t, err, ErrBadToken)
}

func TestParseTransportTokenRejectsGarbage(t *testing.T) {
	_, err := ParseTransportToken("secret", "not-a-jwt")
	assert.ErrorIs(t, err, ErrBadToken)
}

func TestVerifyAdminKey(t *testing.T) {
	hash, err := HashAdminKey("llave-maestra", 4)
	require.NoError(t, err)

	assert.True(t, VerifyAdminKey(hash, "llave-maestra"))
	assert.False(t, VerifyAdminKey(hash, "wrong"))
	// Empty hash means admin minting is disabled outright.
	assert.False(t, VerifyAdminKey("", "llave-maestra"))
}

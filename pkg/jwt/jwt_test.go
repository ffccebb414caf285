package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator() *Generator {
	return NewGenerator(TokenConfig{
		Secret:               "test-secret",
		Issuer:               "dealgrid-test",
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: 24 * time.Hour,
	})
}

func TestGenerateAccessToken_RoundTrip(t *testing.T) {
	g := newTestGenerator()

	token, expiresAt, err := g.GenerateAccessToken("user-1", "sess-1", SessionContext{
		TenantID:       "tenant-1",
		RelationshipID: "rel-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := g.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "tenant-1", claims.TenantID)
	assert.Equal(t, "rel-1", claims.RelationshipID)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.True(t, claims.HasRelationship())
}

func TestGenerateAccessToken_NoRelationship(t *testing.T) {
	g := newTestGenerator()

	token, _, err := g.GenerateAccessToken("user-1", "sess-1", SessionContext{TenantID: "tenant-1"})
	require.NoError(t, err)

	claims, err := g.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.False(t, claims.HasRelationship())
}

func TestGenerateAccessToken_Errors(t *testing.T) {
	g := newTestGenerator()

	_, _, err := g.GenerateAccessToken("", "sess-1", SessionContext{TenantID: "tenant-1"})
	assert.ErrorIs(t, err, ErrEmptyUserID)

	_, _, err = g.GenerateAccessToken("user-1", "sess-1", SessionContext{})
	assert.ErrorIs(t, err, ErrEmptyTenantID)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	g := newTestGenerator()

	token, _, err := g.GenerateAccessToken("user-1", "sess-1", SessionContext{TenantID: "tenant-1"})
	require.NoError(t, err)

	_, err = ValidateToken(token, "other-secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Expired(t *testing.T) {
	g := NewGenerator(TokenConfig{
		Secret:              "test-secret",
		Issuer:              "dealgrid-test",
		AccessTokenDuration: -1 * time.Minute,
	})

	token, _, err := g.GenerateAccessToken("user-1", "sess-1", SessionContext{TenantID: "tenant-1"})
	require.NoError(t, err)

	_, err = g.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateRefreshToken_TypeMismatch(t *testing.T) {
	g := newTestGenerator()

	access, _, err := g.GenerateAccessToken("user-1", "sess-1", SessionContext{TenantID: "tenant-1"})
	require.NoError(t, err)

	_, err = g.ValidateRefreshToken(access)
	assert.ErrorIs(t, err, ErrInvalidTokenType)
}

func TestGenerateTokenPair(t *testing.T) {
	g := newTestGenerator()

	pair, err := g.GenerateTokenPair("user-1", "sess-1", SessionContext{TenantID: "tenant-1"})
	require.NoError(t, err)

	accessClaims, err := g.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", accessClaims.TenantID)

	refreshClaims, err := g.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Empty(t, refreshClaims.TenantID)
	assert.NotEmpty(t, refreshClaims.ID)
}

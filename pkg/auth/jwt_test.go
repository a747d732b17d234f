package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_GenerateAndParse(t *testing.T) {
	svc, err := NewJWTService("test-secret-key", 1, "account-api")
	require.NoError(t, err)

	token, err := svc.GenerateToken(42, "user@example.com", "user")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, "account-api", claims.Issuer)
}

func TestJWTService_ParseToken_WrongKey(t *testing.T) {
	svc1, err := NewJWTService("key-one", 1, "account-api")
	require.NoError(t, err)
	svc2, err := NewJWTService("key-two", 1, "account-api")
	require.NoError(t, err)

	token, err := svc1.GenerateToken(1, "user@example.com", "user")
	require.NoError(t, err)

	_, err = svc2.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_ParseToken_Garbage(t *testing.T) {
	svc, err := NewJWTService("test-secret-key", 1, "account-api")
	require.NoError(t, err)

	_, err = svc.ParseToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewJWTService_RequiresSecret(t *testing.T) {
	_, err := NewJWTService("", 1, "account-api")
	assert.Error(t, err)
}

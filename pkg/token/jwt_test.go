package token

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyToken(t *testing.T) {
	m := NewJWTManager("test-secret", 1, 7)

	tokenString, err := m.GenerateToken(42, "alice", "user")
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := m.VerifyToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "user", claims.Role)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt.Time))
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	tokenString, err := NewJWTManager("secret-a", 1, 7).GenerateToken(1, "alice", "user")
	require.NoError(t, err)

	_, err = NewJWTManager("secret-b", 1, 7).VerifyToken(tokenString)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	m := NewJWTManager("test-secret", 1, 7)
	_, err := m.VerifyToken("not.a.jwt")
	assert.Error(t, err)
}

// refresh token 与 access token 使用同一密钥，可被同一 manager 校验。
func TestGenerateRefreshToken(t *testing.T) {
	m := NewJWTManager("test-secret", 1, 7)

	tokenString, err := m.GenerateRefreshToken(7, "bob", "admin")
	require.NoError(t, err)

	claims, err := m.VerifyToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.Username)
	assert.Equal(t, "admin", claims.Role)
}

func TestGenerateRandomString(t *testing.T) {
	a := GenerateRandomString(16)
	b := GenerateRandomString(16)

	assert.Len(t, a, 32) // 16 字节熵 -> 32 个十六进制字符
	assert.NotEqual(t, a, b)
	_, err := hex.DecodeString(a)
	assert.NoError(t, err)
}

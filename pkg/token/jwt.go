// Package token 负责 JWT 的签发与校验。
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTManager 持有签名密钥与两类 token 的有效期。
type JWTManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// CustomClaims 是写入 token 的业务声明，嵌入标准声明以携带过期时间等字段。
type CustomClaims struct {
	UserID   uint   `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// NewJWTManager 创建一个 JWTManager。
// access token 的有效期按小时配置，refresh token 按天配置。
func NewJWTManager(secret string, accessTokenExpireHours, refreshTokenExpireDays int) *JWTManager {
	return &JWTManager{
		secret:     []byte(secret),
		accessTTL:  time.Duration(accessTokenExpireHours) * time.Hour,
		refreshTTL: time.Duration(refreshTokenExpireDays) * 24 * time.Hour,
	}
}

// GenerateToken 为用户签发一个 access token。
func (m *JWTManager) GenerateToken(userID uint, username, role string) (string, error) {
	return m.sign(userID, username, role, m.accessTTL)
}

// GenerateRefreshToken 为用户签发一个 refresh token，有效期更长。
func (m *JWTManager) GenerateRefreshToken(userID uint, username, role string) (string, error) {
	return m.sign(userID, username, role, m.refreshTTL)
}

// sign 用 HS256 签发携带业务声明的 token。
func (m *JWTManager) sign(userID uint, username, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// VerifyToken 校验 token 字符串并返回其中的声明。
// 签名不匹配、已过期或签名算法不是 HMAC 时返回错误。
func (m *JWTManager) VerifyToken(tokenString string) (*CustomClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*CustomClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// GenerateRandomString 生成 length 字节熵的十六进制随机串。
func GenerateRandomString(length int) string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		// 随机源不可用时退化为时间戳串
		return fmt.Sprintf("fallback%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

// internal/auth/token.go
//
// Package auth 負責將 HTTP 的 bearer token 轉換成不透明的請求者身分。
// token 為 HS256 簽章的 JWT，身分放在標準的 sub claim；帳本核心只看到這個字串。
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken 代表請求未帶 Authorization header 或格式不符。
	ErrMissingToken = errors.New("missing authorization token")

	// ErrInvalidToken 代表簽章、有效期限或 claim 驗證失敗。
	ErrInvalidToken = errors.New("invalid token")
)

// Issue 以 secret 簽發 subject 的 token；ttl <= 0 時不設到期時間。
func Issue(secret, subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse 驗證 token 並回傳 sub claim。只接受 HS256。
func Parse(secret, token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// FromHeader 取出 Authorization header 中的 token。
// 接受 "Bearer <jwt>"，以及舊客戶端使用的 "Token <jwt>"。
func FromHeader(h string) (string, error) {
	h = strings.TrimSpace(h)
	for _, prefix := range []string{"Bearer ", "Token "} {
		if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
			if tok := strings.TrimSpace(h[len(prefix):]); tok != "" {
				return tok, nil
			}
		}
	}
	return "", ErrMissingToken
}

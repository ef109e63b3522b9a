package token

import (
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 端角色
const (
	RoleController = "controller" // 手机遥控端
	RoleEditor     = "editor"     // 浏览器编辑端
)

type Claims struct {
	SessionID string `json:"sid"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

func getSecret() []byte {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret"
	}
	return []byte(secret)
}

// SignSessionToken 给某个端签发会话令牌
func SignSessionToken(sessionID, role string, ttl time.Duration) (string, time.Time, error) {
	expires := time.Now().Add(ttl)
	claims := &Claims{
		SessionID: sessionID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(getSecret())
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ParseToken 解析并校验令牌
func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return getSecret(), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}

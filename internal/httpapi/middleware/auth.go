package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sessionRelay/internal/token"
)

// AuthMiddleware 从 Authorization 或 ?token= 提取会话令牌，
// 校验后把 sessionId / role 写进 gin.Context。
// websocket 客户端经常没法带 header，所以 query 参数也收。
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if raw != "" {
			raw = strings.TrimPrefix(raw, "Bearer ")
		} else {
			raw = c.Query("token")
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "TOKEN_MISSING"})
			return
		}

		claims, err := token.ParseToken(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "TOKEN_INVALID"})
			return
		}

		c.Set("sessionId", claims.SessionID)
		c.Set("role", claims.Role)
		c.Next()
	}
}

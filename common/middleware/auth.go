package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

// ParseAdminToken validates an HS256 token signed with secret and returns its claims.
// The token must carry role=admin.
func ParseAdminToken(tokenStr string, secret []byte) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil, fmt.Errorf("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if role, _ := claims["role"].(string); role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	return claims, nil
}

// AdminAuth guards admin routes with a bearer token. An empty secret disables the check.
func AdminAuth(secret string) gin.HandlerFunc {
	key := []byte(strings.TrimSpace(secret))
	return func(c *gin.Context) {
		if len(key) == 0 {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		tokenStr := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || tokenStr == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
			return
		}

		claims, err := ParseAdminToken(tokenStr, key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "details": err.Error()})
			return
		}
		if sub, ok := claims["sub"].(string); ok {
			c.Set("admin_subject", sub)
		}
		c.Next()
	}
}

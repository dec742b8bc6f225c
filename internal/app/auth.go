package app

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// SubjectKey holds the authenticated caller in the gin context.
const SubjectKey = "subject"

// AuthMiddleware accepts an HMAC-signed JWT or one of the static bearer tokens.
func AuthMiddleware(staticTokens []string, jwtSecret string) gin.HandlerFunc {
	tokens := make([][]byte, 0, len(staticTokens))
	for _, t := range staticTokens {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, []byte(t))
		}
	}
	secret := []byte(strings.TrimSpace(jwtSecret))

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		tokenStr := parts[1]

		// JWT path
		if len(secret) > 0 {
			token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenMalformed
				}
				return secret, nil
			}, jwt.WithLeeway(5*time.Second))
			if err == nil {
				if sub, err := token.Claims.GetSubject(); err == nil && sub != "" {
					c.Set(SubjectKey, sub)
				}
				c.Next()
				return
			}
		}

		// static tokens
		if matchStaticToken(tokens, tokenStr) {
			c.Set(SubjectKey, "static")
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	}
}

// matchStaticToken compares candidate against every configured token in
// constant time and does not stop at the first match.
func matchStaticToken(tokens [][]byte, candidate string) bool {
	got := []byte(candidate)
	match := 0
	for _, t := range tokens {
		match |= subtle.ConstantTimeCompare(got, t)
	}
	return match == 1
}

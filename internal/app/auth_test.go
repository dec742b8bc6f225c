package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	const secret = "s3cret"

	r := gin.New()
	r.Use(AuthMiddleware([]string{"alpha", " beta "}, secret))
	r.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(SubjectKey))
	})

	future := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name    string
		header  string
		want    int
		subject string
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic alpha", http.StatusUnauthorized, ""},
		{"static token", "Bearer alpha", http.StatusOK, "static"},
		{"trimmed static token", "bearer beta", http.StatusOK, "static"},
		{"unknown token", "Bearer gamma", http.StatusUnauthorized, ""},
		{"prefix of static token", "Bearer alph", http.StatusUnauthorized, ""},
		{"static token with suffix", "Bearer alphabet", http.StatusUnauthorized, ""},
		{"valid jwt", "Bearer " + signed(t, secret, jwt.MapClaims{"sub": "reception", "exp": future}), http.StatusOK, "reception"},
		{"jwt wrong secret", "Bearer " + signed(t, "other", jwt.MapClaims{"sub": "x", "exp": future}), http.StatusUnauthorized, ""},
		{"expired jwt", "Bearer " + signed(t, secret, jwt.MapClaims{"sub": "x", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, tt.subject, w.Body.String())
			}
		})
	}
}

func TestMatchStaticToken(t *testing.T) {
	tokens := [][]byte{[]byte("alpha"), []byte("beta")}

	assert.True(t, matchStaticToken(tokens, "alpha"))
	assert.True(t, matchStaticToken(tokens, "beta"))
	assert.False(t, matchStaticToken(tokens, "alp"))
	assert.False(t, matchStaticToken(tokens, "ALPHA"))
	assert.False(t, matchStaticToken(tokens, ""))
	assert.False(t, matchStaticToken(nil, "alpha"))
}

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"clinic-scheduler/internal/app"
	"clinic-scheduler/internal/availability"
	"clinic-scheduler/internal/config"
	"clinic-scheduler/internal/store"
)

func newTestRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx := context.Background()
	st, err := store.NewSQLite(ctx, ":memory:", time.UTC)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.Migrate(ctx))

	clock := availability.FixedClock(time.Date(2025, 9, 15, 8, 0, 0, 0, time.UTC))
	a := app.New(st, availability.NewEngine(st, clock, nil), nil)
	a.Clock = clock
	a.Location = time.UTC
	return NewRouter(a, cfg, zap.NewNop())
}

func get(r *gin.Engine, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, vv := range header {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_DevelopmentWithoutAuth(t *testing.T) {
	r := newTestRouter(t, &config.Config{Env: "development", CORSOrigins: []string{"http://localhost:3000"}})

	w := get(r, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	w = get(r, "/api/availability?specializationId=1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = get(r, "/query?specializationId=1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_AuthEnabled(t *testing.T) {
	r := newTestRouter(t, &config.Config{Env: "staging", StaticTokens: []string{"tok"}})

	w := get(r, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(r, "/api/specializations", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(r, "/query?specializationId=1", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(r, "/api/specializations", http.Header{"Authorization": {"Bearer tok"}})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_SeedRouteOnlyWhenAllowed(t *testing.T) {
	r := newTestRouter(t, &config.Config{Env: "development"})

	req := httptest.NewRequest(http.MethodPost, "/api/seed", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_CORS(t *testing.T) {
	r := newTestRouter(t, &config.Config{Env: "development", CORSOrigins: []string{"http://localhost:3000"}})

	w := get(r, "/healthz", http.Header{"Origin": {"http://localhost:3000"}})
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	w = get(r, "/healthz", http.Header{"Origin": {"http://evil.example"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequestID_Propagates(t *testing.T) {
	r := newTestRouter(t, &config.Config{Env: "development"})

	w := get(r, "/healthz", http.Header{requestIDHeader: {"abc-123"}})
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))

	w = get(r, "/healthz", http.Header{"x-request-id": {"lower-456"}})
	assert.Equal(t, "lower-456", w.Header().Get(requestIDHeader))
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(1, 2, zap.NewNop()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for range 3 {
		codes = append(codes, get(r, "/", nil).Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "10.0.0.9:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, other)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(0, 0, zap.NewNop()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for range 10 {
		assert.Equal(t, http.StatusNoContent, get(r, "/", nil).Code)
	}
}

func TestCorsConfig_Wildcard(t *testing.T) {
	c := corsConfig([]string{"*"})
	assert.True(t, c.AllowAllOrigins)
	assert.False(t, c.AllowCredentials)
	assert.Nil(t, c.AllowOrigins)
}

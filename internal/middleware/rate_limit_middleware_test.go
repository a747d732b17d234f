package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRateLimitedRouter(t *testing.T, cfg RateLimitConfig) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	limiter := NewRateLimiter(client)
	router := gin.New()
	router.POST("/api/auth/login", limiter.Limit(cfg), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router, mr
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	router, _ := setupRateLimitedRouter(t, RateLimitConfig{MaxRequests: 3, Window: time.Minute, KeyPrefix: "rl:test"})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, "запрос %d должен пройти", i+1)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	router, _ := setupRateLimitedRouter(t, RateLimitConfig{MaxRequests: 2, Window: time.Minute, KeyPrefix: "rl:test"})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limited")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimiter_WindowExpires(t *testing.T) {
	router, mr := setupRateLimitedRouter(t, RateLimitConfig{MaxRequests: 1, Window: time.Minute, KeyPrefix: "rl:test"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	// По истечении окна счётчик сбрасывается
	mr.FastForward(time.Minute + time.Second)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter_FailOpenOnRedisError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	limiter := NewRateLimiter(client)
	router := gin.New()
	router.POST("/api/auth/login", limiter.Limit(DefaultAuthRateLimitConfig()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// Redis недоступен, запрос всё равно проходит
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

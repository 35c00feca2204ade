package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/internal/apperrors"
)

func limitedRouter(rl *RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(ErrorHandler(zap.NewNop()), rl.Middleware())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return router
}

func TestRateLimiter_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rl := NewRateLimiter(client, RateLimitConfig{Window: time.Hour, Limit: 2, KeyPrefix: "test"}, zap.NewNop())
	router := limitedRouter(rl)

	w := serve(t, router, http.MethodGet, "/ping")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	w = serve(t, router, http.MethodGet, "/ping")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = serve(t, router, http.MethodGet, "/ping")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	resp := decodeError(t, w)
	assert.Equal(t, apperrors.CodeTooManyRequests, resp.Code)
	assert.Contains(t, resp.Metadata, "retry_after")

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "test:192.0.2.1:")
	assert.Greater(t, mr.TTL(keys[0]), time.Duration(0))
}

func TestRateLimiter_Local(t *testing.T) {
	rl := NewRateLimiter(nil, RateLimitConfig{Window: time.Hour, Limit: 3}, zap.NewNop())
	router := limitedRouter(rl)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(t, router, http.MethodGet, "/ping").Code)
	}
	w := serve(t, router, http.MethodGet, "/ping")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimiter_FallsBackWhenRedisFails(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	rl := NewRateLimiter(client, RateLimitConfig{Window: time.Hour, Limit: 1}, zap.NewNop())
	router := limitedRouter(rl)

	assert.Equal(t, http.StatusOK, serve(t, router, http.MethodGet, "/ping").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(t, router, http.MethodGet, "/ping").Code)
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(nil, RateLimitConfig{}, zap.NewNop())
	assert.Equal(t, time.Minute, rl.config.Window)
	assert.Equal(t, 60, rl.config.Limit)
	assert.Equal(t, "rate_limit:api", rl.config.KeyPrefix)
}

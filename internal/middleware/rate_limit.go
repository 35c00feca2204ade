package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pageza/mealsense/backend/internal/apperrors"
)

// localLimiterCapacity bounds the number of clients tracked in process
const localLimiterCapacity = 10000

// RateLimitConfig defines configuration for rate limiting
type RateLimitConfig struct {
	// Window is the time window for rate limiting
	Window time.Duration
	// Limit is the maximum number of requests allowed in the window
	Limit int
	// Key prefix for Redis keys
	KeyPrefix string
}

// RateLimiter enforces a fixed window per client IP in redis. Without redis,
// or when redis fails, a token bucket per client is kept in process instead.
type RateLimiter struct {
	redis  *redis.Client
	local  *lru.Cache[string, *rate.Limiter]
	config RateLimitConfig
	logger *zap.Logger
}

// NewRateLimiter creates a new rate limiter instance; redisClient may be nil
func NewRateLimiter(redisClient *redis.Client, config RateLimitConfig, log *zap.Logger) *RateLimiter {
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.Limit <= 0 {
		config.Limit = 60
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "rate_limit:api"
	}
	local, _ := lru.New[string, *rate.Limiter](localLimiterCapacity)
	return &RateLimiter{
		redis:  redisClient,
		local:  local,
		config: config,
		logger: log,
	}
}

// Middleware returns a Gin middleware that enforces rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		client := c.ClientIP()

		if rl.redis != nil {
			allowed, remaining, resetTime, err := rl.IsAllowed(c.Request.Context(), client)
			if err == nil {
				c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.Limit))
				c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
				c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))
				if !allowed {
					rl.reject(c, time.Until(resetTime))
					return
				}
				c.Next()
				return
			}
			rl.logger.Warn("Rate limit check failed, using local limiter", zap.Error(err))
		}

		if !rl.localLimiter(client).Allow() {
			rl.reject(c, rl.config.Window/time.Duration(rl.config.Limit))
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) reject(c *gin.Context, retryAfter time.Duration) {
	seconds := int(retryAfter.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
	_ = c.Error(apperrors.New(
		apperrors.CodeTooManyRequests,
		"rate limit exceeded",
		fmt.Sprintf("limit of %d requests per %v", rl.config.Limit, rl.config.Window),
	).WithMetadata("retry_after", seconds))
	c.Abort()
}

func (rl *RateLimiter) localLimiter(client string) *rate.Limiter {
	if limiter, ok := rl.local.Get(client); ok {
		return limiter
	}
	every := rate.Every(rl.config.Window / time.Duration(rl.config.Limit))
	limiter := rate.NewLimiter(every, rl.config.Limit)
	rl.local.Add(client, limiter)
	return limiter
}

// IsAllowed counts a request from client in the current window
// Returns: allowed, remaining requests, reset time, error
func (rl *RateLimiter) IsAllowed(ctx context.Context, client string) (bool, int, time.Time, error) {
	windowStart := time.Now().Truncate(rl.config.Window)
	key := fmt.Sprintf("%s:%s:%d", rl.config.KeyPrefix, client, windowStart.Unix())

	// Use Redis pipeline for atomic operations
	pipe := rl.redis.Pipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, err
	}

	count := int(incrCmd.Val())
	remaining := rl.config.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= rl.config.Limit, remaining, windowStart.Add(rl.config.Window), nil
}

package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/cache"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/config"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/logging"
)

// RateLimiter enforces a per-client, per-route request budget through the shared cache
type RateLimiter struct {
	cache             *cache.Cache
	requestsPerMinute int64
	enabled           bool
	log               *logrus.Entry
}

// NewRateLimiter creates a new rate limiter with the given limit
func NewRateLimiter(c *cache.Cache, requestsPerMinute int, enabled bool) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 10
	}
	return &RateLimiter{
		cache:             c,
		requestsPerMinute: int64(requestsPerMinute),
		enabled:           enabled && c != nil,
		log:               logging.ForComponent("ratelimit"),
	}
}

// NewFromConfig creates a rate limiter from configuration
func NewFromConfig(c *cache.Cache, cfg config.RateLimitConfig) *RateLimiter {
	return NewRateLimiter(c, cfg.RequestsPerMinute, cfg.Enabled)
}

// Key identifies the counter for a client on a route
func Key(clientIP, route string) string {
	return route + ":" + clientIP
}

// AllowRequest counts one request from clientIP on route
func (rl *RateLimiter) AllowRequest(c *gin.Context, route string) cache.RateLimitResult {
	if !rl.enabled {
		return cache.RateLimitResult{Allowed: true, Limit: rl.requestsPerMinute, Remaining: rl.requestsPerMinute}
	}
	return rl.cache.CheckRateLimit(c.Request.Context(), Key(c.ClientIP(), route), rl.requestsPerMinute, time.Minute)
}

// Middleware rejects requests over the budget with 429
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.enabled {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		result := rl.AllowRequest(c, route)

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retryAfter := int(time.Until(result.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			rl.log.WithFields(logrus.Fields{
				"client_ip": c.ClientIP(),
				"route":     route,
				"count":     result.Count,
				"degraded":  result.Degraded,
			}).Warn("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":    false,
				"error":      "rate limit exceeded",
				"rate_limit": result,
			})
			return
		}
		c.Next()
	}
}

package middleware

import (
	"context"
	"net/http"
	"strconv"

	"bsn-realtime/internal/redis"
	"bsn-realtime/internal/transport/httpdto"
	bsn_errors "bsn-realtime/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// QueryLimiter is implemented by redis.RateLimiter.
type QueryLimiter interface {
	AllowPresenceQuery(ctx context.Context, clientIP string) (*redis.RateLimitResult, error)
}

// PresenceRateLimitMiddleware throttles presence queries per client IP. A
// limiter outage lets the request through.
func PresenceRateLimitMiddleware(limiter QueryLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := limiter.AllowPresenceQuery(c.Request.Context(), c.ClientIP())
		if err != nil {
			zap.L().Warn("presence rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, httpdto.Failure("rate limit exceeded", bsn_errors.CodeRateLimited))
			return
		}

		c.Next()
	}
}

// setRateLimitHeaders sets standard rate limit response headers
func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}

package ratelimit

import (
	"math"
	"net/http"
	"strconv"

	"ava-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Middleware enforces the global per-client throttle before anything else
// looks at the request. Over-limit callers get 429; limiter store failures
// fail open so a broken Redis cannot take the whole edge down.
//
// Runs before token verification: abusive traffic never reaches the verifier.
func Middleware(l Limiter, max int) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.FromGin(c).Warn("rate limiter unavailable, admitting request", "err", err)
			c.Next()
			return
		}

		c.Header("RateLimit-Limit", strconv.Itoa(max))
		c.Header("RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			retry := int(math.Ceil(d.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too Many Requests",
				"message": "Rate limit exceeded. Please try again later.",
				"code":    "RATE_LIMIT_EXCEEDED",
			})
			return
		}
		c.Next()
	}
}

package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pixelframe/playerhub/internal/metrics"
	"github.com/pixelframe/playerhub/internal/ratelimit"
)

// IPRateLimit applies rule per client IP. Counter store failures let the
// request through.
func IPRateLimit(limiter *ratelimit.Limiter, rule ratelimit.Rule) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := limiter.Allow(c.Request.Context(), rule, c.ClientIP())
		if err != nil {
			slog.Error("Rate limit check failed", "rule", rule.Name, "client_ip", c.ClientIP(), "error", err)
			c.Next()
			return
		}
		if !d.Allowed {
			metrics.RateLimited.WithLabelValues(rule.Name).Inc()
			secs := int(math.Ceil(d.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": secs,
			})
			return
		}
		c.Next()
	}
}

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/ratelimit"
	"github.com/aman-churiwal/api-marketplace/internal/response"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// BurstLimit throttles unauthenticated endpoints per client IP. It fails
// open when the limiter backend is unreachable.
func BurstLimit(limiter ratelimit.Limiter, scope string, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := limiter.Take(c.Request.Context(), scope+":"+c.ClientIP())
		if err != nil {
			logger.Warn().Err(err).Str("scope", scope).Msg("burst limiter unavailable")
			c.Next()
			return
		}

		if !decision.Allowed {
			logger.Debug().Str("scope", scope).Str("client_ip", c.ClientIP()).Msg("burst limit reached")
			c.Header("Retry-After", strconv.Itoa(decision.RetryAfter(time.Now())))
			response.Error(c, http.StatusTooManyRequests, "Too many requests, slow down")
			return
		}

		c.Next()
	}
}

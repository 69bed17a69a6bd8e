package response

import (
	"context"
	"net/http"

	"github.com/aman-churiwal/api-marketplace/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RemainingField is the envelope field carrying the caller's quota after a
// metered request.
const RemainingField = "remaining_limit"

type remainingKey struct{}

// WithRemaining records the caller's remaining quota on the request context
// so every later writer (handlers, proxy, recovery) can report it.
func WithRemaining(ctx context.Context, remaining int) context.Context {
	return context.WithValue(ctx, remainingKey{}, remaining)
}

func RemainingFromContext(ctx context.Context) (int, bool) {
	remaining, ok := ctx.Value(remainingKey{}).(int)
	return remaining, ok
}

// SetRemaining attaches the remaining quota to the gin request.
func SetRemaining(c *gin.Context, remaining int) {
	c.Request = c.Request.WithContext(WithRemaining(c.Request.Context(), remaining))
}

func withRemaining(c *gin.Context, body gin.H) gin.H {
	if remaining, ok := RemainingFromContext(c.Request.Context()); ok {
		body[RemainingField] = remaining
	}
	return body
}

// Success writes {status:true, code, data}.
func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, withRemaining(c, gin.H{
		"status": true,
		"code":   status,
		"data":   data,
	}))
}

// Error writes {status:false, code, message} and aborts the chain.
func Error(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, withRemaining(c, gin.H{
		"status":  false,
		"code":    status,
		"message": message,
	}))
}

// Fail maps err onto the envelope. Unexpected errors are logged and hidden
// behind a generic 500.
func Fail(c *gin.Context, logger zerolog.Logger, err error) {
	status, message := service.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error().
			Err(err).
			Str("request_id", c.GetString("request_id")).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
	}
	Error(c, status, message)
}

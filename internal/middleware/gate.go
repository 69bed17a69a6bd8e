package middleware

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/response"
	"github.com/aman-churiwal/api-marketplace/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	APIKeyHeader     = "X-API-Key"
	APIKeyQueryParam = "apikey"
)

// Gate is the authorize-and-consume step run before every metered route.
type Gate interface {
	AuthorizeAndConsume(ctx context.Context, rawKey string) (*service.Admission, error)
}

type LastUsedRecorder interface {
	UpdateLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Extracts the API key from the header, falling back to the query string.
func apiKeyFrom(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader(APIKeyHeader)); key != "" {
		return key
	}
	return strings.TrimSpace(c.Query(APIKeyQueryParam))
}

// MeteredAccess admits a request only when the gate does, and reports the
// caller's remaining quota on every outcome.
func MeteredAccess(gate Gate, lastUsed LastUsedRecorder, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		admission, err := gate.AuthorizeAndConsume(c.Request.Context(), apiKeyFrom(c))
		if err != nil {
			var gateErr *service.GateError
			if errors.As(err, &gateErr) {
				response.SetRemaining(c, gateErr.Remaining)
				c.Header("X-RateLimit-Remaining", strconv.Itoa(gateErr.Remaining))
				if gateErr.Limit > 0 {
					c.Header("X-RateLimit-Limit", strconv.Itoa(gateErr.Limit))
				}
				response.Error(c, gateErr.Status, gateErr.Message)
				return
			}

			response.SetRemaining(c, 0)
			response.Fail(c, logger, err)
			return
		}

		remaining := admission.Remaining()
		response.SetRemaining(c, remaining)
		c.Header("X-RateLimit-Limit", strconv.Itoa(admission.EffectiveLimit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		c.Set("admission", admission)
		c.Set("api_key", admission.APIKey)
		c.Set("api_key_id", admission.APIKey.ID)
		c.Set("user", admission.User)
		c.Set("user_id", admission.User.ID)

		if lastUsed != nil {
			keyID := admission.APIKey.ID
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := lastUsed.UpdateLastUsed(ctx, keyID, time.Now()); err != nil {
					logger.Warn().Err(err).Str("api_key_id", keyID.String()).Msg("failed to update key last_used_at")
				}
			}()
		}

		c.Next()
	}
}

// CurrentAdmission returns the admission stored by MeteredAccess.
func CurrentAdmission(c *gin.Context) *service.Admission {
	if v, ok := c.Get("admission"); ok {
		if admission, ok := v.(*service.Admission); ok {
			return admission
		}
	}
	return nil
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/response"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sessions validates tokens and reloads the session user.
type Sessions interface {
	ValidateToken(tokenString string) (jwt.MapClaims, error)
	SessionUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Validates JWT token and requires authentication. The ban state is checked
// on every request, so a ban takes effect before the token expires.
func RequireAuth(sessions Sessions, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Extract token from Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Error(c, http.StatusUnauthorized, "Authorization header required")
			return
		}

		// Check Bearer prefix
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Error(c, http.StatusUnauthorized, "Invalid authorization header format. Use: Bearer <token>")
			return
		}

		claims, err := sessions.ValidateToken(parts[1])
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		rawID, _ := claims["user_id"].(string)
		userID, err := uuid.Parse(rawID)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		user, err := sessions.SessionUser(c.Request.Context(), userID)
		if err != nil {
			response.Fail(c, logger, err)
			return
		}

		// Store user info in context
		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Set("email", user.Email)
		c.Set("role", user.Role)

		c.Next()
	}
}

// RequireRole must run after RequireAuth. The role comes from the reloaded
// user, not the token, so demotions apply immediately.
func RequireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || user.Role != role {
			response.Error(c, http.StatusForbidden, "Insufficient permissions")
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user or nil.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get("user"); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

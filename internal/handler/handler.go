package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/middleware"
	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/response"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// bindJSON decodes the body and answers 400 with the first validation
// failure. It reports whether the handler should continue.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, http.StatusBadRequest, bindingMessage(err))
		return false
	}
	return true
}

func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			return fmt.Sprintf("%s is required", field)
		case "email":
			return fmt.Sprintf("%s must be a valid email", field)
		case "min", "gte":
			return fmt.Sprintf("%s must be at least %s", field, fe.Param())
		case "max", "lte":
			return fmt.Sprintf("%s must be at most %s", field, fe.Param())
		case "gt":
			return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
		case "plan":
			return fmt.Sprintf("%s must be one of FREE, PAID, RESELLER", field)
		case "invoice_status":
			return fmt.Sprintf("%s must be one of UNPAID, PAID, EXPIRED, CANCELED", field)
		case "sub_status":
			return fmt.Sprintf("%s must be one of ACTIVE, EXPIRED, CANCELED", field)
		case "key_status":
			return fmt.Sprintf("%s must be ACTIVE or REVOKED", field)
		default:
			return fmt.Sprintf("%s is invalid", field)
		}
	}
	return "Invalid request body"
}

// uuidParam parses a path parameter, answering 400 when it is not a UUID.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Error(c, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

// Parses limit/offset with the given default and maximum page size
func pagination(c *gin.Context, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= maxLimit {
			limit = l
		}
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	return limit, offset
}

// Parses 'from' and 'to' query parameters as RFC3339 or unix seconds.
// The range defaults to the 24 hours before now.
func parseTimeRange(c *gin.Context, now time.Time) (time.Time, time.Time, error) {
	to := now
	from := to.Add(-24 * time.Hour)

	if fromStr := c.Query("from"); fromStr != "" {
		parsed, err := parseTime(fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from: %w", err)
		}
		from = parsed
	}

	if toStr := c.Query("to"); toStr != "" {
		parsed, err := parseTime(toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to: %w", err)
		}
		to = parsed
	}

	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to must not be before from")
	}

	return from, to, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	timestamp, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, errors.New("expected RFC3339, YYYY-MM-DD or unix seconds")
	}
	return time.Unix(timestamp, 0).UTC(), nil
}

// actor returns the authenticated user. Routes using it sit behind RequireAuth.
func actor(c *gin.Context) *models.User {
	user := middleware.CurrentUser(c)
	if user == nil {
		panic("handler: route is missing RequireAuth")
	}
	return user
}

package handler

import (
	"net/http"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/middleware"
	"github.com/aman-churiwal/api-marketplace/internal/response"
	"github.com/aman-churiwal/api-marketplace/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// UsageHandler reports quota and usage to key owners.
type UsageHandler struct {
	usage     *service.UsageService
	analytics *service.AnalyticsService
	now       func() time.Time
	logger    zerolog.Logger
}

func NewUsageHandler(usage *service.UsageService, analytics *service.AnalyticsService, now func() time.Time, logger zerolog.Logger) *UsageHandler {
	return &UsageHandler{usage: usage, analytics: analytics, now: now, logger: logger}
}

// Handles GET /me/quota for a signed-in user
func (h *UsageHandler) Quota(c *gin.Context) {
	report, err := h.usage.Quota(c.Request.Context(), actor(c).ID)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}

// Handles GET /v1/me/quota. The call itself is metered, so the reported
// remaining limit already includes it.
func (h *UsageHandler) MeteredQuota(c *gin.Context) {
	admission := middleware.CurrentAdmission(c)
	if admission == nil {
		response.Error(c, http.StatusUnauthorized, "API key is required")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"plan":            admission.User.Plan,
		"api_key_id":      admission.APIKey.ID,
		"key_prefix":      admission.APIKey.KeyPrefix,
		"daily_limit":     admission.APIKey.DailyLimit,
		"referral_bonus":  admission.User.ReferralBonusDaily,
		"effective_limit": admission.EffectiveLimit,
		"used":            admission.Used,
	})
}

// Handles GET /me/keys/:id/usage?from=&to= (dates, inclusive)
func (h *UsageHandler) History(c *gin.Context) {
	keyID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	now := h.now()
	from, to := now.AddDate(0, 0, -6), now
	if raw := c.Query("from"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "invalid from: "+err.Error())
			return
		}
		from = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "invalid to: "+err.Error())
			return
		}
		to = t
	}

	history, err := h.usage.History(c.Request.Context(), actor(c).ID, keyID, from, to)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, history)
}

// Handles GET /me/logs
func (h *UsageHandler) Logs(c *gin.Context) {
	from, to, err := parseTimeRange(c, h.now())
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset := pagination(c, 50, 500)

	logs, err := h.analytics.GetUserLogs(c.Request.Context(), actor(c).ID, from, to, limit, offset)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"logs":   logs,
		"limit":  limit,
		"offset": offset,
	})
}

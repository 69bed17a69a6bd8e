package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/response"
	"github.com/aman-churiwal/api-marketplace/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AnalyticsHandler serves request-log analytics under /admin/analytics.
type AnalyticsHandler struct {
	service *service.AnalyticsService
	now     func() time.Time
	logger  zerolog.Logger
}

func NewAnalyticsHandler(service *service.AnalyticsService, now func() time.Time, logger zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{service: service, now: now, logger: logger}
}

// Handles GET /admin/analytics
func (h *AnalyticsHandler) GetSummary(c *gin.Context) {
	from, to, err := parseTimeRange(c, h.now())
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.service.GetSummary(c.Request.Context(), from, to)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, summary)
}

// Handles GET /admin/analytics/timeseries
func (h *AnalyticsHandler) GetTimeSeries(c *gin.Context) {
	from, to, err := parseTimeRange(c, h.now())
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	series, err := h.service.GetTimeSeriesData(c.Request.Context(), from, to)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, series)
}

// Handles GET /admin/analytics/keys/:id
func (h *AnalyticsHandler) GetAPIKeyStats(c *gin.Context) {
	apiKeyID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	from, to, err := parseTimeRange(c, h.now())
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.service.GetAPIKeyStats(c.Request.Context(), apiKeyID, from, to)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, stats)
}

// Handles GET /admin/logs
func (h *AnalyticsHandler) GetLogs(c *gin.Context) {
	from, to, err := parseTimeRange(c, h.now())
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	limit, offset := pagination(c, 100, 1000)

	// Optional status code filter
	var statusCode *int
	if statusStr := c.Query("status"); statusStr != "" {
		s, err := strconv.Atoi(statusStr)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "Invalid status")
			return
		}
		statusCode = &s
	}

	logs, err := h.service.GetLogs(c.Request.Context(), from, to, statusCode, limit, offset)
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

package service

import (
	"context"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/repository"
	"github.com/google/uuid"
)

const topEndpointLimit = 10

// AnalyticsService reads the asynchronous request log. It never influences
// admission; the quota ledger is the source of truth for usage.
type AnalyticsService struct {
	logs *repository.RequestLogRepository
	now  func() time.Time
}

func NewAnalyticsService(logs *repository.RequestLogRepository, now func() time.Time) *AnalyticsService {
	return &AnalyticsService{logs: logs, now: now}
}

type AnalyticsSummary struct {
	TotalRequests   int64                      `json:"total_requests"`
	AvgResponseTime float64                    `json:"avg_response_time_ms"`
	P50ResponseTime int                        `json:"p50_response_time_ms"`
	P95ResponseTime int                        `json:"p95_response_time_ms"`
	P99ResponseTime int                        `json:"p99_response_time_ms"`
	ErrorRate       float64                    `json:"error_rate"`
	SuccessRate     float64                    `json:"success_rate"`
	ClientErrorRate float64                    `json:"client_error_rate"`
	ServerErrorRate float64                    `json:"server_error_rate"`
	RateLimited     int64                      `json:"rate_limited"`
	TopEndpoints    []repository.EndpointCount `json:"top_endpoints"`
}

// GetSummary aggregates every request in [from, to].
func (s *AnalyticsService) GetSummary(ctx context.Context, from, to time.Time) (*AnalyticsSummary, error) {
	return s.summarize(ctx, repository.RequestLogFilter{From: from, To: to})
}

// GetAPIKeyStats aggregates the requests made with one key.
func (s *AnalyticsService) GetAPIKeyStats(ctx context.Context, apiKeyID uuid.UUID, from, to time.Time) (*AnalyticsSummary, error) {
	return s.summarize(ctx, repository.RequestLogFilter{From: from, To: to, APIKeyID: &apiKeyID})
}

func (s *AnalyticsService) summarize(ctx context.Context, f repository.RequestLogFilter) (*AnalyticsSummary, error) {
	summary := &AnalyticsSummary{TopEndpoints: []repository.EndpointCount{}}

	total, err := s.logs.Count(ctx, f)
	if err != nil {
		return nil, err
	}
	summary.TotalRequests = total
	if total == 0 {
		return summary, nil
	}

	if summary.AvgResponseTime, err = s.logs.AverageResponseTime(ctx, f); err != nil {
		return nil, err
	}

	for _, p := range []struct {
		q   float64
		dst *int
	}{
		{0.50, &summary.P50ResponseTime},
		{0.95, &summary.P95ResponseTime},
		{0.99, &summary.P99ResponseTime},
	} {
		if *p.dst, err = s.logs.Percentile(ctx, f, p.q); err != nil {
			return nil, err
		}
	}

	clientErrors, err := s.logs.CountStatusRange(ctx, f, 400, 499)
	if err != nil {
		return nil, err
	}
	serverErrors, err := s.logs.CountStatusRange(ctx, f, 500, 599)
	if err != nil {
		return nil, err
	}
	if summary.RateLimited, err = s.logs.CountStatusRange(ctx, f, 429, 429); err != nil {
		return nil, err
	}

	summary.ClientErrorRate = percent(clientErrors, total)
	summary.ServerErrorRate = percent(serverErrors, total)
	summary.ErrorRate = percent(clientErrors+serverErrors, total)
	summary.SuccessRate = 100 - summary.ErrorRate

	top, err := s.logs.TopEndpoints(ctx, f, topEndpointLimit)
	if err != nil {
		return nil, err
	}
	if top != nil {
		summary.TopEndpoints = top
	}

	return summary, nil
}

func percent(part, total int64) float64 {
	return float64(part) / float64(total) * 100
}

// GetTimeSeriesData returns hourly request counts.
func (s *AnalyticsService) GetTimeSeriesData(ctx context.Context, from, to time.Time) ([]repository.HourlyStat, error) {
	stats, err := s.logs.HourlyStats(ctx, repository.RequestLogFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []repository.HourlyStat{}
	}
	return stats, nil
}

// GetLogs pages through the request log, optionally by status code.
func (s *AnalyticsService) GetLogs(ctx context.Context, from, to time.Time, statusCode *int, limit, offset int) ([]models.RequestLog, error) {
	return s.logs.Find(ctx, repository.RequestLogFilter{
		From: from, To: to, StatusCode: statusCode, Limit: limit, Offset: offset,
	})
}

// GetUserLogs pages through the caller's own requests.
func (s *AnalyticsService) GetUserLogs(ctx context.Context, userID uuid.UUID, from, to time.Time, limit, offset int) ([]models.RequestLog, error) {
	return s.logs.Find(ctx, repository.RequestLogFilter{
		From: from, To: to, UserID: &userID, Limit: limit, Offset: offset,
	})
}

// CleanupOldLogs deletes logs older than retentionDays.
func (s *AnalyticsService) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	return s.logs.DeleteBefore(ctx, s.now().AddDate(0, 0, -retentionDays))
}

package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestLogFilter scopes request-log queries. From and To are inclusive;
// the optional fields narrow the scope further.
type RequestLogFilter struct {
	From       time.Time
	To         time.Time
	APIKeyID   *uuid.UUID
	UserID     *uuid.UUID
	StatusCode *int
	Limit      int
	Offset     int
}

type EndpointCount struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

type HourlyStat struct {
	Hour            time.Time `json:"hour"`
	Count           int64     `json:"count"`
	AvgResponseTime float64   `json:"avg_response_time"`
}

type RequestLogRepository struct {
	db *gorm.DB
}

func NewRequestLogRepository(db *storage.Database) *RequestLogRepository {
	return &RequestLogRepository{db: db.DB}
}

func (r *RequestLogRepository) scope(ctx context.Context, f RequestLogFilter) *gorm.DB {
	q := r.db.WithContext(ctx).
		Model(&models.RequestLog{}).
		Where("timestamp BETWEEN ? AND ?", f.From, f.To)

	if f.APIKeyID != nil {
		q = q.Where("api_key_id = ?", *f.APIKeyID)
	}
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.StatusCode != nil {
		q = q.Where("status_code = ?", *f.StatusCode)
	}

	return q
}

// CreateBatch inserts buffered request logs in one statement.
func (r *RequestLogRepository) CreateBatch(ctx context.Context, logs []*models.RequestLog) error {
	if len(logs) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Create(&logs).Error
}

// Find returns matching logs, newest first.
func (r *RequestLogRepository) Find(ctx context.Context, f RequestLogFilter) ([]models.RequestLog, error) {
	var logs []models.RequestLog

	q := r.scope(ctx, f).Order("timestamp DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}

	err := q.Find(&logs).Error
	return logs, err
}

func (r *RequestLogRepository) Count(ctx context.Context, f RequestLogFilter) (int64, error) {
	var count int64
	err := r.scope(ctx, f).Count(&count).Error
	return count, err
}

// CountStatusRange counts logs whose status falls in [min, max].
func (r *RequestLogRepository) CountStatusRange(ctx context.Context, f RequestLogFilter, min, max int) (int64, error) {
	var count int64
	err := r.scope(ctx, f).
		Where("status_code BETWEEN ? AND ?", min, max).
		Count(&count).Error

	return count, err
}

func (r *RequestLogRepository) AverageResponseTime(ctx context.Context, f RequestLogFilter) (float64, error) {
	var avg sql.NullFloat64

	err := r.scope(ctx, f).
		Select("AVG(response_time_ms)").
		Row().
		Scan(&avg)

	return avg.Float64, err
}

// Percentile returns the nearest-rank percentile of response times. It runs
// as two plain queries so it works on every supported driver.
func (r *RequestLogRepository) Percentile(ctx context.Context, f RequestLogFilter, percentile float64) (int, error) {
	count, err := r.Count(ctx, f)
	if err != nil || count == 0 {
		return 0, err
	}

	rank := int(float64(count)*percentile + 0.999999)
	if rank < 1 {
		rank = 1
	}
	if int64(rank) > count {
		rank = int(count)
	}

	var result int
	err = r.scope(ctx, f).
		Select("response_time_ms").
		Order("response_time_ms ASC").
		Offset(rank - 1).
		Limit(1).
		Row().
		Scan(&result)

	return result, err
}

func (r *RequestLogRepository) TopEndpoints(ctx context.Context, f RequestLogFilter, limit int) ([]EndpointCount, error) {
	var results []EndpointCount

	err := r.scope(ctx, f).
		Select("path, COUNT(*) as count").
		Group("path").
		Order("count DESC").
		Limit(limit).
		Scan(&results).Error

	return results, err
}

// hourExpr renders the timestamp truncated to the hour as an RFC3339 string.
func (r *RequestLogRepository) hourExpr() string {
	if r.db.Dialector.Name() == "sqlite" {
		return "strftime('%Y-%m-%dT%H:00:00Z', timestamp)"
	}
	return `to_char(date_trunc('hour', timestamp AT TIME ZONE 'UTC'), 'YYYY-MM-DD"T"HH24:00:00"Z"')`
}

func (r *RequestLogRepository) HourlyStats(ctx context.Context, f RequestLogFilter) ([]HourlyStat, error) {
	rows, err := r.scope(ctx, f).
		Select(r.hourExpr() + " as hour, COUNT(*) as count, AVG(response_time_ms) as avg_response_time").
		Group("hour").
		Order("hour ASC").
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []HourlyStat
	for rows.Next() {
		var (
			raw  string
			stat HourlyStat
		)
		if err := rows.Scan(&raw, &stat.Count, &stat.AvgResponseTime); err != nil {
			return nil, err
		}
		if stat.Hour, err = time.Parse(time.RFC3339, raw); err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}

	return stats, rows.Err()
}

// DeleteBefore removes logs older than the cutoff.
func (r *RequestLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&models.RequestLog{})

	return result.RowsAffected, result.Error
}

package repository

import (
	"context"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageRepository owns the usage_logs table. Only the quota ledger writes it.
type UsageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *storage.Database) *UsageRepository {
	return &UsageRepository{db: db.DB}
}

func (r *UsageRepository) WithTx(tx *gorm.DB) *UsageRepository {
	return &UsageRepository{db: tx}
}

// EnsureRow creates the (key, day) row with a zero count if it does not exist.
func (r *UsageRepository) EnsureRow(ctx context.Context, apiKeyID uuid.UUID, day time.Time) error {
	row := models.UsageLog{APIKeyID: apiKeyID, Date: day, RequestsCount: 0}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

// IncrementBelow adds one to the counter only while it is below limit.
// The condition is evaluated by the database under the row lock, so two
// concurrent callers can never both pass the same last slot.
func (r *UsageRepository) IncrementBelow(ctx context.Context, apiKeyID uuid.UUID, day time.Time, limit int, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.UsageLog{}).
		Where("api_key_id = ? AND date = ? AND requests_count < ?", apiKeyID, day, limit).
		Updates(map[string]interface{}{
			"requests_count": gorm.Expr("requests_count + 1"),
			"updated_at":     now,
		})

	return result.RowsAffected == 1, result.Error
}

func (r *UsageRepository) Count(ctx context.Context, apiKeyID uuid.UUID, day time.Time) (int, error) {
	var row models.UsageLog
	err := r.db.WithContext(ctx).
		Where("api_key_id = ? AND date = ?", apiKeyID, day).
		First(&row).Error

	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}

	return row.RequestsCount, err
}

// ListByKey returns usage rows for a key between two days, inclusive.
func (r *UsageRepository) ListByKey(ctx context.Context, apiKeyID uuid.UUID, from, to time.Time) ([]models.UsageLog, error) {
	var rows []models.UsageLog
	err := r.db.WithContext(ctx).
		Where("api_key_id = ? AND date BETWEEN ? AND ?", apiKeyID, from, to).
		Order("date ASC").
		Find(&rows).Error

	return rows, err
}

package repository

import (
	"context"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *storage.Database) *SubscriptionRepository {
	return &SubscriptionRepository{db: db.DB}
}

func (r *SubscriptionRepository) WithTx(tx *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: tx}
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.UserSubscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *SubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&sub).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &sub, err
}

// FindActive returns the user's ACTIVE subscription, or nil.
func (r *SubscriptionRepository) FindActive(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.SubscriptionActive).
		First(&sub).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &sub, err
}

func (r *SubscriptionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error

	return subs, err
}

func (r *SubscriptionRepository) CountActive(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.UserSubscription{}).
		Where("user_id = ? AND status = ?", userID, models.SubscriptionActive).
		Count(&count).Error

	return count, err
}

// ListDue returns ACTIVE subscriptions whose period has ended.
func (r *SubscriptionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND end_at <= ?", models.SubscriptionActive, now).
		Order("end_at ASC").
		Limit(limit).
		Find(&subs).Error

	return subs, err
}

// UpdateIfStatus is a conditional write keyed on the status read before it.
func (r *SubscriptionRepository) UpdateIfStatus(ctx context.Context, id uuid.UUID, expected models.SubscriptionStatus, updates map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.UserSubscription{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)

	return result.RowsAffected == 1, result.Error
}

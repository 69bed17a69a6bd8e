package repository

import (
	"context"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *storage.Database) *UserRepository {
	return &UserRepository{db: db.DB}
}

// WithTx returns a repository bound to an open transaction.
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

// Inserts a new user into the database
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// Retrieves user by email
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("email = ?", email).
		First(&user).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &user, err
}

// Retrieves user by id
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&user).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &user, err
}

// Retrieves a page of users, newest first
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&users).Error

	return users, err
}

func (r *UserRepository) CountByRole(ctx context.Context, role models.Role) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("role = ?", role).
		Count(&count).Error

	return count, err
}

// SetPlan writes the projected plan. Only the plan projector calls this.
func (r *UserRepository) SetPlan(ctx context.Context, id uuid.UUID, plan models.Plan) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("plan", plan).Error
}

func (r *UserRepository) SetRole(ctx context.Context, id uuid.UUID, role models.Role) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("role", role).Error
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Count(&count).Error

	return count, err
}

func (r *UserRepository) SetReferralBonus(ctx context.Context, id uuid.UUID, bonus int) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("referral_bonus_daily", bonus).Error
}

// Block stores a ban. A nil until means the ban is permanent.
func (r *UserRepository) Block(ctx context.Context, id uuid.UUID, at time.Time, until *time.Time, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_blocked": true,
			"blocked_at": at,
			"ban_until":  until,
			"ban_reason": reason,
		}).Error
}

// Unblock clears every ban field unconditionally.
func (r *UserRepository) Unblock(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(clearedBan()).Error
}

// ClearExpiredBan clears a temporary ban only if it is still stored as
// blocked with a ban_until at or before now. It returns whether a row changed.
func (r *UserRepository) ClearExpiredBan(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND is_blocked = ? AND ban_until IS NOT NULL AND ban_until <= ?", id, true, now).
		Updates(clearedBan())

	return result.RowsAffected > 0, result.Error
}

func clearedBan() map[string]interface{} {
	return map[string]interface{}{
		"is_blocked": false,
		"blocked_at": nil,
		"ban_until":  nil,
		"ban_reason": nil,
	}
}

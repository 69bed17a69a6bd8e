package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/repository"
	"github.com/aman-churiwal/api-marketplace/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Consumption is the outcome of one TryConsume call.
type Consumption struct {
	Limited bool
	Used    int
	Limit   int
}

// Remaining is never negative, even if the limit was lowered below usage.
func (c Consumption) Remaining() int {
	return Remaining(c.Limit, c.Used)
}

func Remaining(limit, used int) int {
	if used >= limit {
		return 0
	}
	return limit - used
}

// EffectiveLimit is the key's base daily limit plus its owner's referral bonus.
func EffectiveLimit(key *models.APIKey, user *models.User) int {
	return key.DailyLimit + user.ReferralBonusDaily
}

// QuotaLedger is the only writer of usage_logs.
type QuotaLedger struct {
	db    *storage.Database
	usage *repository.UsageRepository
}

func NewQuotaLedger(db *storage.Database, usage *repository.UsageRepository) *QuotaLedger {
	return &QuotaLedger{db: db, usage: usage}
}

// TryConsume admits one request for the key on day if fewer than limit have
// been admitted. Row creation, the bounded increment and the read of the new
// count commit together.
func (l *QuotaLedger) TryConsume(ctx context.Context, apiKeyID uuid.UUID, day time.Time, limit int) (Consumption, error) {
	day = models.Day(day)
	result := Consumption{Limit: limit}

	err := l.db.Transaction(ctx, func(tx *gorm.DB) error {
		usage := l.usage.WithTx(tx)

		if err := usage.EnsureRow(ctx, apiKeyID, day); err != nil {
			return err
		}

		admitted, err := usage.IncrementBelow(ctx, apiKeyID, day, limit, time.Now().UTC())
		if err != nil {
			return err
		}

		used, err := usage.Count(ctx, apiKeyID, day)
		if err != nil {
			return err
		}

		result.Limited = !admitted
		result.Used = used
		return nil
	})
	if err != nil {
		return Consumption{}, fmt.Errorf("failed to consume quota: %w", err)
	}

	return result, nil
}

// Used reads the count for a key-day without consuming.
func (l *QuotaLedger) Used(ctx context.Context, apiKeyID uuid.UUID, day time.Time) (int, error) {
	return l.usage.Count(ctx, apiKeyID, models.Day(day))
}

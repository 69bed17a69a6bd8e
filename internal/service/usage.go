package service

import (
	"context"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/repository"
	"github.com/google/uuid"
)

const maxUsageRangeDays = 92

// KeyQuota is today's standing of one key.
type KeyQuota struct {
	APIKeyID       uuid.UUID        `json:"api_key_id"`
	KeyPrefix      string           `json:"key_prefix"`
	Name           string           `json:"name"`
	Status         models.KeyStatus `json:"status"`
	DailyLimit     int              `json:"daily_limit"`
	EffectiveLimit int              `json:"effective_limit"`
	Used           int              `json:"used"`
	RemainingLimit int              `json:"remaining_limit"`
}

type QuotaReport struct {
	Plan               models.Plan `json:"plan"`
	ReferralBonusDaily int         `json:"referral_bonus_daily"`
	Date               string      `json:"date"`
	Keys               []KeyQuota  `json:"keys"`
}

// UsageService answers read-only questions about the quota ledger.
type UsageService struct {
	users  *repository.UserRepository
	keys   *repository.APIKeyRepository
	usage  *repository.UsageRepository
	ledger *QuotaLedger
	now    func() time.Time
}

func NewUsageService(users *repository.UserRepository, keys *repository.APIKeyRepository, usage *repository.UsageRepository, ledger *QuotaLedger, now func() time.Time) *UsageService {
	return &UsageService{users: users, keys: keys, usage: usage, ledger: ledger, now: now}
}

// Quota reports today's usage for every key the user owns.
func (s *UsageService) Quota(ctx context.Context, userID uuid.UUID) (*QuotaReport, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	keys, err := s.keys.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := models.Day(s.now())
	report := &QuotaReport{
		Plan:               user.Plan,
		ReferralBonusDaily: user.ReferralBonusDaily,
		Date:               today.Format("2006-01-02"),
		Keys:               make([]KeyQuota, 0, len(keys)),
	}

	for i := range keys {
		key := &keys[i]
		used, err := s.ledger.Used(ctx, key.ID, today)
		if err != nil {
			return nil, err
		}

		limit := EffectiveLimit(key, user)
		remaining := Remaining(limit, used)
		if key.Status != models.KeyStatusActive {
			remaining = 0
		}

		report.Keys = append(report.Keys, KeyQuota{
			APIKeyID:       key.ID,
			KeyPrefix:      key.KeyPrefix,
			Name:           key.Name,
			Status:         key.Status,
			DailyLimit:     key.DailyLimit,
			EffectiveLimit: limit,
			Used:           used,
			RemainingLimit: remaining,
		})
	}

	return report, nil
}

// History returns the daily counters of one of the user's keys.
func (s *UsageService) History(ctx context.Context, userID, keyID uuid.UUID, from, to time.Time) ([]models.UsageLog, error) {
	key, err := s.keys.FindByID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if key == nil || key.UserID != userID {
		return nil, ErrKeyNotFound
	}

	from, to = models.Day(from), models.Day(to)
	if to.Before(from) {
		return nil, ErrInvalidInput.WithMessage("to must not be before from")
	}
	if to.Sub(from) > maxUsageRangeDays*24*time.Hour {
		return nil, ErrInvalidInput.WithMessage("range is limited to 92 days")
	}

	return s.usage.ListByKey(ctx, keyID, from, to)
}

package service

import (
	"context"
	"strings"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/repository"
	"github.com/aman-churiwal/api-marketplace/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// UserService holds the account administration actions.
type UserService struct {
	db     *storage.Database
	users  *repository.UserRepository
	audit  *AuditTrail
	now    func() time.Time
	logger zerolog.Logger
}

func NewUserService(db *storage.Database, users *repository.UserRepository, audit *AuditTrail, now func() time.Time, logger zerolog.Logger) *UserService {
	return &UserService{db: db, users: users, audit: audit, now: now, logger: logger}
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.users.List(ctx, limit, offset)
}

// BanInput describes a ban. A nil Until makes it permanent.
type BanInput struct {
	Until     *time.Time
	BanReason string
}

func (s *UserService) Ban(ctx context.Context, actorID, id uuid.UUID, in BanInput, reason string) (*models.User, error) {
	if err := ValidateJustification(reason); err != nil {
		return nil, err
	}
	if actorID == id {
		return nil, ErrInvalidInput.WithMessage("you cannot ban yourself")
	}

	now := s.now()
	if in.Until != nil {
		until := in.Until.UTC()
		if !until.After(now) {
			return nil, ErrInvalidInput.WithMessage("ban_until must be in the future")
		}
		in.Until = &until
	}
	banReason := strings.TrimSpace(in.BanReason)
	if banReason == "" {
		banReason = strings.TrimSpace(reason)
	}

	return s.mutate(ctx, actorID, id, "user.ban", reason, map[string]interface{}{
		"ban_until":  in.Until,
		"ban_reason": banReason,
	}, func(users *repository.UserRepository) error {
		return users.Block(ctx, id, now, in.Until, banReason)
	})
}

func (s *UserService) Unblock(ctx context.Context, actorID, id uuid.UUID, reason string) (*models.User, error) {
	if err := ValidateJustification(reason); err != nil {
		return nil, err
	}

	return s.mutate(ctx, actorID, id, "user.unblock", reason, nil, func(users *repository.UserRepository) error {
		return users.Unblock(ctx, id)
	})
}

func (s *UserService) SetReferralBonus(ctx context.Context, actorID, id uuid.UUID, bonus int, reason string) (*models.User, error) {
	if err := ValidateJustification(reason); err != nil {
		return nil, err
	}
	if bonus < 0 {
		return nil, ErrInvalidInput.WithMessage("referral_bonus_daily must not be negative")
	}

	return s.mutate(ctx, actorID, id, "user.referral_bonus", reason, map[string]interface{}{
		"referral_bonus_daily": bonus,
	}, func(users *repository.UserRepository) error {
		return users.SetReferralBonus(ctx, id, bonus)
	})
}

func (s *UserService) mutate(ctx context.Context, actorID, id uuid.UUID, action, reason string, details interface{}, apply func(*repository.UserRepository) error) (*models.User, error) {
	var entry *models.AuditLog
	err := s.db.Transaction(ctx, func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)

		user, err := users.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}

		if err := apply(users); err != nil {
			return err
		}

		entry, err = s.audit.Record(ctx, tx, AuditEntry{
			ActorID:    actorID,
			Action:     action,
			TargetType: "user",
			TargetID:   id.String(),
			Reason:     reason,
			Details:    details,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", id.String()).Str("action", action).Msg("account updated by admin")
	s.audit.Publish(entry)

	return s.Get(ctx, id)
}

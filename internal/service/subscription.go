package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/config"
	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/repository"
	"github.com/aman-churiwal/api-marketplace/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const sweepBatchSize = 100

// SubscriptionService owns the single-ACTIVE-row lifecycle of subscriptions.
type SubscriptionService struct {
	db        *storage.Database
	subs      *repository.SubscriptionRepository
	users     *repository.UserRepository
	projector *PlanProjector
	keys      *APIKeyService
	audit     *AuditTrail
	billing   config.BillingConfig
	now       func() time.Time
	logger    zerolog.Logger
}

func NewSubscriptionService(
	db *storage.Database,
	subs *repository.SubscriptionRepository,
	users *repository.UserRepository,
	projector *PlanProjector,
	keys *APIKeyService,
	audit *AuditTrail,
	billing config.BillingConfig,
	now func() time.Time,
	logger zerolog.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		db:        db,
		subs:      subs,
		users:     users,
		projector: projector,
		keys:      keys,
		audit:     audit,
		billing:   billing,
		now:       now,
		logger:    logger,
	}
}

// retireActive moves the user's ACTIVE row, if any, to status.
func (s *SubscriptionService) retireActive(ctx context.Context, tx *gorm.DB, userID uuid.UUID, status models.SubscriptionStatus, actorID *uuid.UUID) (*models.UserSubscription, error) {
	subs := s.subs.WithTx(tx)

	active, err := subs.FindActive(ctx, userID)
	if err != nil || active == nil {
		return nil, err
	}

	ok, err := subs.UpdateIfStatus(ctx, active.ID, models.SubscriptionActive, map[string]interface{}{
		"status":        status,
		"updated_by_id": actorID,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConcurrentUpdate
	}

	active.Status = status
	return active, nil
}

// activate retires any ACTIVE row as EXPIRED, then inserts sub as the new
// ACTIVE row.
func (s *SubscriptionService) activate(ctx context.Context, tx *gorm.DB, sub *models.UserSubscription, actorID *uuid.UUID) error {
	if _, err := s.retireActive(ctx, tx, sub.UserID, models.SubscriptionExpired, actorID); err != nil {
		return err
	}

	sub.Status = models.SubscriptionActive
	sub.UpdatedByID = actorID
	return s.insert(ctx, tx, sub)
}

func (s *SubscriptionService) insert(ctx context.Context, tx *gorm.DB, sub *models.UserSubscription) error {
	if err := s.subs.WithTx(tx).Create(ctx, sub); err != nil {
		if sub.Status == models.SubscriptionActive && repository.IsUniqueViolation(err) {
			s.logger.Error().
				Bool("alert", true).
				Str("user_id", sub.UserID.String()).
				Msg("second ACTIVE subscription rejected by storage")
			return ErrSubscriptionConflict
		}
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionService) Get(ctx context.Context, id uuid.UUID) (*models.UserSubscription, error) {
	sub, err := s.subs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *SubscriptionService) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.UserSubscription, error) {
	return s.subs.ListByUser(ctx, userID)
}

func (s *SubscriptionService) FindActive(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error) {
	return s.subs.FindActive(ctx, userID)
}

// GrantInput creates an ACTIVE subscription without an invoice.
type GrantInput struct {
	UserID          uuid.UUID
	Plan            models.Plan
	StartAt         time.Time
	EndAt           time.Time
	AutoDowngradeTo models.Plan
}

// Grant is the admin override that activates a plan directly.
func (s *SubscriptionService) Grant(ctx context.Context, actorID uuid.UUID, in GrantInput, reason string) (*models.UserSubscription, error) {
	if err := ValidateJustification(reason); err != nil {
		return nil, err
	}
	if !in.Plan.Valid() || in.Plan == models.PlanFree {
		return nil, ErrInvalidInput.WithMessage("plan must be PAID or RESELLER")
	}
	if in.AutoDowngradeTo != "" && !in.AutoDowngradeTo.Valid() {
		return nil, ErrInvalidInput.WithMessage("auto_downgrade_to is not a valid plan")
	}
	if !in.EndAt.After(in.StartAt) {
		return nil, ErrInvalidInput.WithMessage("end_at must be after start_at")
	}

	sub := &models.UserSubscription{
		UserID:          in.UserID,
		Plan:            in.Plan,
		StartAt:         in.StartAt.UTC(),
		EndAt:           in.EndAt.UTC(),
		AutoDowngradeTo: in.AutoDowngradeTo,
	}

	var projection *Projection
	var entry *models.AuditLog
	err := s.db.Transaction(ctx, func(tx *gorm.DB) error {
		user, err := s.users.WithTx(tx).FindByID(ctx, in.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}

		if err := s.activate(ctx, tx, sub, &actorID); err != nil {
			return err
		}

		projection, err = s.projector.Project(ctx, tx, in.UserID)
		if err != nil {
			return err
		}

		entry, err = s.audit.Record(ctx, tx, AuditEntry{
			ActorID:    actorID,
			Action:     "subscription.grant",
			TargetType: "subscription",
			TargetID:   sub.ID.String(),
			Reason:     reason,
			Details:    in,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, projection, entry)
	return sub, nil
}

// SubscriptionPatch is the admin override of an existing row.
type SubscriptionPatch struct {
	Plan            *models.Plan
	Status          *models.SubscriptionStatus
	StartAt         *time.Time
	EndAt           *time.Time
	AutoDowngradeTo *models.Plan
}

// Override edits a subscription directly. Promoting a row to ACTIVE retires
// the user's current ACTIVE row first.
func (s *SubscriptionService) Override(ctx context.Context, actorID, id uuid.UUID, patch SubscriptionPatch, reason string) (*models.UserSubscription, error) {
	if err := ValidateJustification(reason); err != nil {
		return nil, err
	}

	var projection *Projection
	var entry *models.AuditLog
	err := s.db.Transaction(ctx, func(tx *gorm.DB) error {
		subs := s.subs.WithTx(tx)

		sub, err := subs.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if sub == nil {
			return ErrSubscriptionNotFound
		}

		updates, next, err := applySubscriptionPatch(sub, patch)
		if err != nil {
			return err
		}
		if len(updates) == 0 {
			return ErrInvalidInput.WithMessage("nothing to update")
		}
		updates["updated_by_id"] = actorID

		previous := sub.Status
		if next.Status == models.SubscriptionActive && previous != models.SubscriptionActive {
			if _, err := s.retireActive(ctx, tx, sub.UserID, models.SubscriptionExpired, &actorID); err != nil {
				return err
			}
		}

		ok, err := subs.UpdateIfStatus(ctx, id, previous, updates)
		if err != nil {
			if next.Status == models.SubscriptionActive && repository.IsUniqueViolation(err) {
				s.logger.Error().Bool("alert", true).Str("user_id", sub.UserID.String()).Msg("second ACTIVE subscription rejected by storage")
				return ErrSubscriptionConflict
			}
			return err
		}
		if !ok {
			return ErrConcurrentUpdate
		}

		projection, err = s.projector.Project(ctx, tx, sub.UserID)
		if err != nil {
			return err
		}

		entry, err = s.audit.Record(ctx, tx, AuditEntry{
			ActorID:    actorID,
			Action:     "subscription.override",
			TargetType: "subscription",
			TargetID:   id.String(),
			Reason:     reason,
			Details:    updates,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, projection, entry)
	return s.Get(ctx, id)
}

func applySubscriptionPatch(sub *models.UserSubscription, patch SubscriptionPatch) (map[string]interface{}, models.UserSubscription, error) {
	next := *sub
	updates := map[string]interface{}{}

	if patch.Plan != nil {
		if !patch.Plan.Valid() {
			return nil, next, ErrInvalidInput.WithMessage("plan is not valid")
		}
		next.Plan = *patch.Plan
		updates["plan"] = next.Plan
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, next, ErrInvalidInput.WithMessage("status is not valid")
		}
		next.Status = *patch.Status
		updates["status"] = next.Status
	}
	if patch.StartAt != nil {
		next.StartAt = patch.StartAt.UTC()
		updates["start_at"] = next.StartAt
	}
	if patch.EndAt != nil {
		next.EndAt = patch.EndAt.UTC()
		updates["end_at"] = next.EndAt
	}
	if patch.AutoDowngradeTo != nil {
		if !patch.AutoDowngradeTo.Valid() {
			return nil, next, ErrInvalidInput.WithMessage("auto_downgrade_to is not valid")
		}
		next.AutoDowngradeTo = *patch.AutoDowngradeTo
		updates["auto_downgrade_to"] = next.AutoDowngradeTo
	}

	if !next.EndAt.After(next.StartAt) {
		return nil, next, ErrInvalidInput.WithMessage("end_at must be after start_at")
	}

	return updates, next, nil
}

// SweepReport summarizes one expiry sweep.
type SweepReport struct {
	Expired    int
	Downgraded int
	Failed     int
}

// Sweep expires ACTIVE subscriptions whose end_at has passed. A row whose
// auto_downgrade_to is a paid plan is followed by one period of that plan;
// otherwise the user falls back to FREE. Each row is its own transaction.
func (s *SubscriptionService) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := s.now()

	due, err := s.subs.ListDue(ctx, now, sweepBatchSize)
	if err != nil {
		return report, fmt.Errorf("failed to list due subscriptions: %w", err)
	}

	for _, sub := range due {
		sub := sub
		var projection *Projection
		err := s.db.Transaction(ctx, func(tx *gorm.DB) error {
			ok, err := s.subs.WithTx(tx).UpdateIfStatus(ctx, sub.ID, models.SubscriptionActive, map[string]interface{}{
				"status": models.SubscriptionExpired,
			})
			if err != nil {
				return err
			}
			if !ok {
				// Someone else already retired it.
				return nil
			}

			if sub.AutoDowngradeTo != models.PlanFree && sub.AutoDowngradeTo.Valid() {
				follow := &models.UserSubscription{
					UserID:          sub.UserID,
					Plan:            sub.AutoDowngradeTo,
					Status:          models.SubscriptionActive,
					StartAt:         sub.EndAt,
					EndAt:           sub.EndAt.Add(s.billing.Period()),
					AutoDowngradeTo: models.PlanFree,
				}
				if err := s.insert(ctx, tx, follow); err != nil {
					return err
				}
			}

			projection, err = s.projector.Project(ctx, tx, sub.UserID)
			return err
		})
		if err != nil {
			report.Failed++
			s.logger.Error().Err(err).Str("subscription_id", sub.ID.String()).Msg("failed to expire subscription")
			continue
		}
		if projection == nil {
			continue
		}

		report.Expired++
		if projection.Changed {
			report.Downgraded++
		}
		s.afterCommit(ctx, projection, nil)
	}

	if report.Expired > 0 || report.Failed > 0 {
		s.logger.Info().
			Int("expired", report.Expired).
			Int("downgraded", report.Downgraded).
			Int("failed", report.Failed).
			Msg("subscription sweep finished")
	}

	return report, nil
}

func (s *SubscriptionService) afterCommit(ctx context.Context, projection *Projection, entries ...*models.AuditLog) {
	if projection != nil && s.keys != nil {
		s.keys.Invalidate(ctx, projection.Keys...)
	}
	s.audit.Publish(entries...)
}

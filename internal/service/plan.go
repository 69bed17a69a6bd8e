package service

import (
	"context"
	"fmt"

	"github.com/aman-churiwal/api-marketplace/internal/config"
	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// PlanProjector is the only writer of User.plan. The plan is always the
// plan of the user's ACTIVE subscription, or FREE when there is none.
type PlanProjector struct {
	users   *repository.UserRepository
	subs    *repository.SubscriptionRepository
	keys    *repository.APIKeyRepository
	billing config.BillingConfig
	logger  zerolog.Logger
}

func NewPlanProjector(users *repository.UserRepository, subs *repository.SubscriptionRepository, keys *repository.APIKeyRepository, billing config.BillingConfig, logger zerolog.Logger) *PlanProjector {
	return &PlanProjector{
		users:   users,
		subs:    subs,
		keys:    keys,
		billing: billing,
		logger:  logger,
	}
}

// Projection is the result of one Project call. Keys lists the API keys
// whose daily limit was rewritten, for cache invalidation after commit.
type Projection struct {
	UserID  uuid.UUID
	From    models.Plan
	To      models.Plan
	Keys    []models.APIKey
	Changed bool
}

// Project must run inside the transaction that changed the user's
// subscriptions. When the plan changes, every ACTIVE key of the user gets
// the new plan's daily limit.
func (p *PlanProjector) Project(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*Projection, error) {
	users := p.users.WithTx(tx)

	user, err := users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	active, err := p.subs.WithTx(tx).FindActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	plan := models.PlanFree
	if active != nil {
		plan = active.Plan
	}

	projection := &Projection{UserID: userID, From: user.Plan, To: plan}
	if user.Plan == plan {
		return projection, nil
	}

	if err := users.SetPlan(ctx, userID, plan); err != nil {
		return nil, fmt.Errorf("failed to set plan: %w", err)
	}

	keys, err := p.keys.WithTx(tx).SetActiveDailyLimits(ctx, userID, p.billing.DailyLimitFor(plan))
	if err != nil {
		return nil, fmt.Errorf("failed to sync key limits: %w", err)
	}

	projection.Keys = keys
	projection.Changed = true

	p.logger.Info().
		Str("user_id", userID.String()).
		Str("from", string(user.Plan)).
		Str("to", string(plan)).
		Msg("user plan changed")

	return projection, nil
}

package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/repository"
	"github.com/rs/zerolog"
)

// KeyLookup resolves a plain secret to a key record or nil.
type KeyLookup interface {
	Lookup(ctx context.Context, key string) (*models.APIKey, error)
}

// Admission is a request the gate let through.
type Admission struct {
	APIKey         *models.APIKey
	User           *models.User
	EffectiveLimit int
	Used           int
}

func (a *Admission) Remaining() int {
	return Remaining(a.EffectiveLimit, a.Used)
}

// AccessGate is the single authorize-and-consume step in front of every
// metered endpoint.
type AccessGate struct {
	keys   KeyLookup
	users  *repository.UserRepository
	bans   *BanNormalizer
	ledger *QuotaLedger
	now    func() time.Time
	logger zerolog.Logger
}

func NewAccessGate(keys KeyLookup, users *repository.UserRepository, bans *BanNormalizer, ledger *QuotaLedger, now func() time.Time, logger zerolog.Logger) *AccessGate {
	return &AccessGate{
		keys:   keys,
		users:  users,
		bans:   bans,
		ledger: ledger,
		now:    now,
		logger: logger,
	}
}

// AuthorizeAndConsume runs lookup, status, ban and quota checks in that order.
// Nothing is written unless every earlier check passes.
func (g *AccessGate) AuthorizeAndConsume(ctx context.Context, rawKey string) (*Admission, error) {
	if rawKey == "" {
		return nil, newGateError(GateInvalidKey, http.StatusUnauthorized, "API key is required")
	}

	apiKey, err := g.keys.Lookup(ctx, rawKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	if apiKey == nil {
		return nil, newGateError(GateInvalidKey, http.StatusUnauthorized, "Invalid API key")
	}

	if apiKey.Status != models.KeyStatusActive {
		g.logger.Debug().Str("api_key_id", apiKey.ID.String()).Msg("rejected inactive key")
		return nil, newGateError(GateKeyNotActive, http.StatusForbidden, "API key is not active")
	}

	user, err := g.users.FindByID(ctx, apiKey.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load key owner: %w", err)
	}
	if user == nil {
		return nil, newGateError(GateInvalidKey, http.StatusUnauthorized, "Invalid API key")
	}

	ban, err := g.bans.Normalize(ctx, user)
	if err != nil {
		return nil, err
	}
	if ban.IsBlocked {
		g.logger.Debug().Str("user_id", user.ID.String()).Msg("rejected blocked account")
		return nil, newGateError(GateAccountBlocked, http.StatusForbidden, ban.Message())
	}

	now := g.now()
	limit := EffectiveLimit(apiKey, user)
	consumption, err := g.ledger.TryConsume(ctx, apiKey.ID, now, limit)
	if err != nil {
		return nil, err
	}
	if consumption.Limited {
		g.logger.Debug().Str("api_key_id", apiKey.ID.String()).Int("limit", limit).Msg("daily quota exceeded")
		gateErr := newGateError(GateQuotaExceeded, http.StatusTooManyRequests, "Daily request quota exceeded")
		gateErr.Limit = limit
		return nil, gateErr
	}

	return &Admission{
		APIKey:         apiKey,
		User:           user,
		EffectiveLimit: limit,
		Used:           consumption.Used,
	}, nil
}

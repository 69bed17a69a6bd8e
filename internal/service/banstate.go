package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/repository"
	"github.com/rs/zerolog"
)

// BanState is the stored ban projection of a user.
type BanState struct {
	IsBlocked bool
	BlockedAt *time.Time
	BanUntil  *time.Time
	BanReason *string
}

func BanStateOf(user *models.User) BanState {
	return BanState{
		IsBlocked: user.IsBlocked,
		BlockedAt: user.BlockedAt,
		BanUntil:  user.BanUntil,
		BanReason: user.BanReason,
	}
}

// Permanent reports a ban without an expiry.
func (s BanState) Permanent() bool {
	return s.IsBlocked && s.BanUntil == nil
}

// Message is the human-readable rejection shown to a blocked caller.
func (s BanState) Message() string {
	msg := "Account is permanently blocked"
	if !s.Permanent() && s.BanUntil != nil {
		msg = fmt.Sprintf("Account is temporarily blocked until %s", s.BanUntil.UTC().Format(time.RFC3339))
	}
	if s.BanReason != nil && *s.BanReason != "" {
		msg += ": " + *s.BanReason
	}
	return msg
}

// NormalizeBan clears a temporary ban whose expiry is at or before now.
// The second return value reports whether the state changed.
func NormalizeBan(s BanState, now time.Time) (BanState, bool) {
	if !s.IsBlocked || s.BanUntil == nil || now.Before(*s.BanUntil) {
		return s, false
	}
	return BanState{}, true
}

// BanNormalizer applies NormalizeBan to stored users and writes the cleared
// state through. It runs on both the key and the session path.
type BanNormalizer struct {
	users  *repository.UserRepository
	now    func() time.Time
	logger zerolog.Logger
}

func NewBanNormalizer(users *repository.UserRepository, now func() time.Time, logger zerolog.Logger) *BanNormalizer {
	return &BanNormalizer{users: users, now: now, logger: logger}
}

// Normalize updates user in place and returns its current ban state.
func (n *BanNormalizer) Normalize(ctx context.Context, user *models.User) (BanState, error) {
	now := n.now()
	state, changed := NormalizeBan(BanStateOf(user), now)
	if !changed {
		return state, nil
	}

	cleared, err := n.users.ClearExpiredBan(ctx, user.ID, now)
	if err != nil {
		return BanState{}, fmt.Errorf("failed to clear expired ban: %w", err)
	}
	if cleared {
		n.logger.Info().
			Str("user_id", user.ID.String()).
			Time("ban_until", *user.BanUntil).
			Msg("temporary ban expired and was cleared")
	}

	user.IsBlocked = false
	user.BlockedAt = nil
	user.BanUntil = nil
	user.BanReason = nil

	return state, nil
}

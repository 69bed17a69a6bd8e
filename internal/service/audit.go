package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/pubsub"
	"github.com/aman-churiwal/api-marketplace/internal/repository"
	"github.com/aman-churiwal/api-marketplace/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const minJustificationLength = 8

// ValidateJustification enforces the free-text reason on admin mutations.
func ValidateJustification(reason string) error {
	if utf8.RuneCountInString(strings.TrimSpace(reason)) < minJustificationLength {
		return ErrJustificationMissing
	}
	return nil
}

type AuditEntry struct {
	ActorID    uuid.UUID
	Action     string
	TargetType string
	TargetID   string
	Reason     string
	Details    interface{}
}

// AuditTrail stores admin actions alongside the mutation they justify and
// optionally fans them out to Pub/Sub after commit.
type AuditTrail struct {
	db        *storage.Database
	repo      *repository.AuditRepository
	publisher pubsub.Publisher
	topic     string
	logger    zerolog.Logger
}

// NewAuditTrail builds the audit trail. publisher may be nil.
func NewAuditTrail(db *storage.Database, repo *repository.AuditRepository, publisher pubsub.Publisher, topic string, logger zerolog.Logger) *AuditTrail {
	return &AuditTrail{
		db:        db,
		repo:      repo,
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}
}

// Record writes the entry using tx so it commits or rolls back with the mutation.
func (a *AuditTrail) Record(ctx context.Context, tx *gorm.DB, e AuditEntry) (*models.AuditLog, error) {
	if err := ValidateJustification(e.Reason); err != nil {
		return nil, err
	}

	entry := &models.AuditLog{
		ActorID:    e.ActorID,
		Action:     e.Action,
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		Reason:     strings.TrimSpace(e.Reason),
	}
	if e.Details != nil {
		details, err := json.Marshal(e.Details)
		if err != nil {
			return nil, err
		}
		entry.Details = string(details)
	}

	if err := a.repo.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// Publish sends committed entries to Pub/Sub in the background.
func (a *AuditTrail) Publish(entries ...*models.AuditLog) {
	if a.publisher == nil {
		return
	}

	for _, entry := range entries {
		if entry == nil {
			continue
		}
		payload, err := json.Marshal(entry)
		if err != nil {
			continue
		}

		go func(id uuid.UUID, payload []byte) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if _, err := a.publisher.Publish(ctx, a.topic, payload); err != nil {
				a.logger.Error().Err(err).Str("audit_id", id.String()).Msg("failed to publish audit event")
			}
		}(entry.ID, payload)
	}
}

func (a *AuditTrail) ListByTarget(ctx context.Context, targetType, targetID string) ([]models.AuditLog, error) {
	return a.repo.ListByTarget(ctx, targetType, targetID)
}

package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	keyPrefix   = "mk_"
	keyCacheTTL = 5 * time.Minute
)

// KeyCache is the subset of the Redis client used to cache key lookups.
type KeyCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type APIKeyService struct {
	repository *repository.APIKeyRepository
	audit      *AuditTrail
	cache      KeyCache
	logger     zerolog.Logger
}

// NewAPIKeyService builds the key service. cache may be nil.
func NewAPIKeyService(repo *repository.APIKeyRepository, audit *AuditTrail, cache KeyCache, logger zerolog.Logger) *APIKeyService {
	return &APIKeyService{
		repository: repo,
		audit:      audit,
		cache:      cache,
		logger:     logger,
	}
}

// HashKey is the stored form of a secret key.
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

func generateKey() (string, error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}

	return keyPrefix + base64.RawURLEncoding.EncodeToString(keyBytes), nil
}

// Create issues a new ACTIVE key and returns the plain secret. This is the
// only time it is visible.
func (s *APIKeyService) Create(ctx context.Context, userID uuid.UUID, name string, dailyLimit int) (string, *models.APIKey, error) {
	return s.create(ctx, s.repository, userID, name, dailyLimit)
}

// CreateTx is Create inside an open transaction.
func (s *APIKeyService) CreateTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID, name string, dailyLimit int) (string, *models.APIKey, error) {
	return s.create(ctx, s.repository.WithTx(tx), userID, name, dailyLimit)
}

func (s *APIKeyService) create(ctx context.Context, repo *repository.APIKeyRepository, userID uuid.UUID, name string, dailyLimit int) (string, *models.APIKey, error) {
	if dailyLimit < 0 {
		return "", nil, ErrInvalidInput.WithMessage("daily_limit must not be negative")
	}

	key, err := generateKey()
	if err != nil {
		return "", nil, err
	}

	apiKey := &models.APIKey{
		UserID:     userID,
		KeyHash:    HashKey(key),
		KeyPrefix:  key[:len(keyPrefix)+6],
		Name:       name,
		Status:     models.KeyStatusActive,
		DailyLimit: dailyLimit,
	}

	if err := repo.Create(ctx, apiKey); err != nil {
		return "", nil, fmt.Errorf("failed to create API key: %w", err)
	}

	return key, apiKey, nil
}

// AdminCreate issues a key for any user with an explicit daily limit.
func (s *APIKeyService) AdminCreate(ctx context.Context, actorID, userID uuid.UUID, name string, dailyLimit int, reason string) (string, *models.APIKey, error) {
	if err := ValidateJustification(reason); err != nil {
		return "", nil, err
	}

	var (
		secret string
		apiKey *models.APIKey
		entry  *models.AuditLog
	)
	err := s.audit.db.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		secret, apiKey, err = s.CreateTx(ctx, tx, userID, name, dailyLimit)
		if err != nil {
			return err
		}
		entry, err = s.audit.Record(ctx, tx, AuditEntry{
			ActorID:    actorID,
			Action:     "apikey.create",
			TargetType: "api_key",
			TargetID:   apiKey.ID.String(),
			Reason:     reason,
			Details:    map[string]interface{}{"user_id": userID, "daily_limit": dailyLimit},
		})
		return err
	})
	if err != nil {
		return "", nil, err
	}

	s.audit.Publish(entry)
	return secret, apiKey, nil
}

// Lookup resolves a plain secret to its key record, whatever its status.
// It returns nil when no key matches.
func (s *APIKeyService) Lookup(ctx context.Context, key string) (*models.APIKey, error) {
	keyHash := HashKey(key)
	cacheKey := cacheKeyFor(keyHash)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, cacheKey)
		if err == nil && cached != "" {
			var apiKey models.APIKey
			if err := json.Unmarshal([]byte(cached), &apiKey); err == nil {
				// KeyHash is not serialized
				apiKey.KeyHash = keyHash
				return &apiKey, nil
			}
		}
	}

	apiKey, err := s.repository.FindByHash(ctx, keyHash)
	if err != nil {
		return nil, err
	}
	if apiKey == nil {
		return nil, nil
	}

	if s.cache != nil {
		apiKeyJSON, _ := json.Marshal(apiKey)
		if err := s.cache.Set(ctx, cacheKey, apiKeyJSON, keyCacheTTL); err != nil {
			s.logger.Warn().Err(err).Msg("failed to cache api key")
		}
	}

	return apiKey, nil
}

func (s *APIKeyService) Get(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	apiKey, err := s.repository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if apiKey == nil {
		return nil, ErrKeyNotFound
	}
	return apiKey, nil
}

func (s *APIKeyService) List(ctx context.Context) ([]models.APIKey, error) {
	return s.repository.List(ctx)
}

func (s *APIKeyService) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	return s.repository.ListByUser(ctx, userID)
}

// RevokeOwn revokes a key on behalf of its owner.
func (s *APIKeyService) RevokeOwn(ctx context.Context, ownerID, id uuid.UUID) error {
	apiKey, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if apiKey.UserID != ownerID {
		return ErrKeyNotFound
	}
	if apiKey.Status == models.KeyStatusRevoked {
		return nil
	}

	if err := s.repository.Update(ctx, id, map[string]interface{}{"status": models.KeyStatusRevoked}); err != nil {
		return err
	}
	s.Invalidate(ctx, *apiKey)

	return nil
}

// AdminUpdate changes status or daily limit and leaves an audit entry.
func (s *APIKeyService) AdminUpdate(ctx context.Context, actorID, id uuid.UUID, status *models.KeyStatus, dailyLimit *int, reason string) (*models.APIKey, error) {
	if err := ValidateJustification(reason); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if status != nil {
		if *status != models.KeyStatusActive && *status != models.KeyStatusRevoked {
			return nil, ErrInvalidInput.WithMessage("status must be ACTIVE or REVOKED")
		}
		updates["status"] = *status
	}
	if dailyLimit != nil {
		if *dailyLimit < 0 {
			return nil, ErrInvalidInput.WithMessage("daily_limit must not be negative")
		}
		updates["daily_limit"] = *dailyLimit
	}
	if len(updates) == 0 {
		return nil, ErrInvalidInput.WithMessage("nothing to update")
	}

	apiKey, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var entry *models.AuditLog
	err = s.audit.db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.repository.WithTx(tx).Update(ctx, id, updates); err != nil {
			return err
		}
		entry, err = s.audit.Record(ctx, tx, AuditEntry{
			ActorID:    actorID,
			Action:     "apikey.update",
			TargetType: "api_key",
			TargetID:   id.String(),
			Reason:     reason,
			Details:    updates,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx, *apiKey)
	s.audit.Publish(entry)

	return s.Get(ctx, id)
}

// Invalidate drops cached lookups for the given keys.
func (s *APIKeyService) Invalidate(ctx context.Context, keys ...models.APIKey) {
	if s.cache == nil || len(keys) == 0 {
		return
	}

	cacheKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		cacheKeys = append(cacheKeys, cacheKeyFor(k.KeyHash))
	}
	if err := s.cache.Del(ctx, cacheKeys...); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate api key cache")
	}
}

func (s *APIKeyService) UpdateLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.repository.UpdateLastUsed(ctx, id, at)
}

func cacheKeyFor(keyHash string) string {
	return fmt.Sprintf("apikey:cache:%s", keyHash)
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// APIKey is a caller credential. Only the SHA-256 hash of the secret is stored.
// Keys are never deleted, only revoked.
type APIKey struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	KeyHash    string     `gorm:"uniqueIndex;not null" json:"-"`
	KeyPrefix  string     `gorm:"not null" json:"key_prefix"`
	Name       string     `json:"name"`
	Status     KeyStatus  `gorm:"type:varchar(16);not null;index" json:"status"`
	DailyLimit int        `gorm:"not null" json:"daily_limit"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func (a *APIKey) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = KeyStatusActive
	}
	return nil
}

func (APIKey) TableName() string {
	return "api_keys"
}

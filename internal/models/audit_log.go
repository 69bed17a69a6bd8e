package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog is the justification trail for administrative mutations.
type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ActorID    uuid.UUID `gorm:"type:uuid;index;not null" json:"actor_id"`
	Action     string    `gorm:"not null;index" json:"action"`
	TargetType string    `gorm:"not null" json:"target_type"`
	TargetID   string    `gorm:"not null;index" json:"target_id"`
	Reason     string    `gorm:"type:text;not null" json:"reason"`
	Details    string    `gorm:"type:text" json:"details,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

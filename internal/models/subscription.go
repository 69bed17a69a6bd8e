package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserSubscription is the paid period backing a user's plan.
// At most one row per user is ACTIVE at any instant.
type UserSubscription struct {
	ID              uuid.UUID          `gorm:"type:uuid;primary_key" json:"id"`
	UserID          uuid.UUID          `gorm:"type:uuid;index;not null" json:"user_id"`
	InvoiceID       *uuid.UUID         `gorm:"type:uuid;index" json:"invoice_id,omitempty"`
	Plan            Plan               `gorm:"type:varchar(16);not null" json:"plan"`
	Status          SubscriptionStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	StartAt         time.Time          `gorm:"not null" json:"start_at"`
	EndAt           time.Time          `gorm:"not null;index" json:"end_at"`
	AutoDowngradeTo Plan               `gorm:"type:varchar(16);not null" json:"auto_downgrade_to"`
	UpdatedByID     *uuid.UUID         `gorm:"type:uuid" json:"updated_by_id,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func (s *UserSubscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.AutoDowngradeTo == "" {
		s.AutoDowngradeTo = PlanFree
	}
	return nil
}

func (UserSubscription) TableName() string {
	return "user_subscriptions"
}

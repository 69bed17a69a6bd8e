package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Email              string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash       string     `gorm:"not null" json:"-"`
	Name               string     `json:"name"`
	Plan               Plan       `gorm:"type:varchar(16);not null" json:"plan"`
	Role               Role       `gorm:"type:varchar(16);not null" json:"role"`
	ReferralBonusDaily int        `gorm:"not null" json:"referral_bonus_daily"`
	IsBlocked          bool       `gorm:"not null" json:"is_blocked"`
	BlockedAt          *time.Time `json:"blocked_at,omitempty"`
	BanUntil           *time.Time `json:"ban_until,omitempty"`
	BanReason          *string    `json:"ban_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Plan == "" {
		u.Plan = PlanFree
	}
	if u.Role == "" {
		u.Role = RoleUser
	}

	return nil
}

func (User) TableName() string {
	return "users"
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageLog counts admitted requests for one key on one UTC calendar day.
type UsageLog struct {
	APIKeyID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"api_key_id"`
	Date          time.Time `gorm:"type:date;primaryKey" json:"date"`
	RequestsCount int       `gorm:"not null" json:"requests_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (UsageLog) TableName() string {
	return "usage_logs"
}

// Day truncates t to the start of its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

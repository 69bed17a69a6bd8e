package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestLog is one metered or administrative HTTP request, written asynchronously.
type RequestLog struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	RequestID      string     `gorm:"index" json:"request_id"`
	Timestamp      time.Time  `gorm:"index" json:"timestamp"`
	APIKeyID       *uuid.UUID `gorm:"type:uuid;index" json:"api_key_id,omitempty"`
	UserID         *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Method         string     `json:"method"`
	Path           string     `gorm:"index" json:"path"`
	StatusCode     int        `gorm:"index" json:"status_code"`
	ResponseTimeMs int        `json:"response_time_ms"`
	RemainingLimit *int       `json:"remaining_limit,omitempty"`
	IPAddress      string     `json:"ip_address"`
	UserAgent      string     `json:"user_agent"`
	Upstream       string     `json:"upstream,omitempty"`
}

func (RequestLog) TableName() string {
	return "request_logs"
}

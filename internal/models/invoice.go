package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BillingInvoice records an intended or completed manual plan purchase.
// Amount is in the currency's minor unit.
type BillingInvoice struct {
	ID              uuid.UUID     `gorm:"type:uuid;primary_key" json:"id"`
	UserID          uuid.UUID     `gorm:"type:uuid;index;not null" json:"user_id"`
	Plan            Plan          `gorm:"type:varchar(16);not null" json:"plan"`
	Amount          int64         `gorm:"not null" json:"amount"`
	Currency        string        `gorm:"type:varchar(8);not null" json:"currency"`
	Status          InvoiceStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	PeriodStart     time.Time     `gorm:"not null" json:"period_start"`
	PeriodEnd       time.Time     `gorm:"not null" json:"period_end"`
	PaymentMethod   string        `json:"payment_method,omitempty"`
	PaymentProofURL string        `json:"payment_proof_url,omitempty"`
	Notes           string        `gorm:"type:text" json:"notes,omitempty"`
	ApprovedByID    *uuid.UUID    `gorm:"type:uuid" json:"approved_by_id,omitempty"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (i *BillingInvoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (BillingInvoice) TableName() string {
	return "billing_invoices"
}

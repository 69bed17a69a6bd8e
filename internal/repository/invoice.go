package repository

import (
	"context"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *storage.Database) *InvoiceRepository {
	return &InvoiceRepository{db: db.DB}
}

func (r *InvoiceRepository) WithTx(tx *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: tx}
}

// Filters for listing invoices. Zero values are ignored.
type InvoiceFilter struct {
	UserID uuid.UUID
	Status models.InvoiceStatus
	Limit  int
	Offset int
}

func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.BillingInvoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *InvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.BillingInvoice, error) {
	var invoice models.BillingInvoice
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&invoice).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &invoice, err
}

func (r *InvoiceRepository) List(ctx context.Context, filter InvoiceFilter) ([]models.BillingInvoice, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if filter.UserID != uuid.Nil {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var invoices []models.BillingInvoice
	err := query.Find(&invoices).Error

	return invoices, err
}

// UpdateIfStatus applies updates only while the stored status still equals
// expected. It returns false when another writer got there first.
func (r *InvoiceRepository) UpdateIfStatus(ctx context.Context, id uuid.UUID, expected models.InvoiceStatus, updates map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.BillingInvoice{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)

	return result.RowsAffected == 1, result.Error
}

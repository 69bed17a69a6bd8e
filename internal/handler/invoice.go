package handler

import (
	"net/http"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/repository"
	"github.com/aman-churiwal/api-marketplace/internal/response"
	"github.com/aman-churiwal/api-marketplace/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// InvoiceHandler is the admin side of billing under /admin/invoices.
type InvoiceHandler struct {
	billing *service.BillingService
	logger  zerolog.Logger
}

func NewInvoiceHandler(billing *service.BillingService, logger zerolog.Logger) *InvoiceHandler {
	return &InvoiceHandler{billing: billing, logger: logger}
}

type createInvoiceRequest struct {
	UserID          uuid.UUID            `json:"user_id" binding:"required"`
	Plan            models.Plan          `json:"plan" binding:"required,plan"`
	Amount          int64                `json:"amount" binding:"required,gt=0"`
	Currency        string               `json:"currency" binding:"omitempty,len=3"`
	Status          models.InvoiceStatus `json:"status" binding:"omitempty,invoice_status"`
	PeriodStart     time.Time            `json:"period_start" binding:"required"`
	PeriodEnd       time.Time            `json:"period_end" binding:"required"`
	PaymentMethod   string               `json:"payment_method"`
	PaymentProofURL string               `json:"payment_proof_url"`
	Notes           string               `json:"notes"`
	Reason          string               `json:"reason" binding:"required"`
}

// Handles POST /admin/invoices
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req createInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}

	invoice, err := h.billing.Create(c.Request.Context(), actor(c).ID, service.InvoiceInput{
		UserID:          req.UserID,
		Plan:            req.Plan,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Status:          req.Status,
		PeriodStart:     req.PeriodStart,
		PeriodEnd:       req.PeriodEnd,
		PaymentMethod:   req.PaymentMethod,
		PaymentProofURL: req.PaymentProofURL,
		Notes:           req.Notes,
	}, req.Reason)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusCreated, invoice)
}

type patchInvoiceRequest struct {
	Plan            *models.Plan          `json:"plan" binding:"omitempty,plan"`
	Amount          *int64                `json:"amount" binding:"omitempty,gt=0"`
	Currency        *string               `json:"currency" binding:"omitempty,len=3"`
	Status          *models.InvoiceStatus `json:"status" binding:"omitempty,invoice_status"`
	PeriodStart     *time.Time            `json:"period_start"`
	PeriodEnd       *time.Time            `json:"period_end"`
	PaymentMethod   *string               `json:"payment_method"`
	PaymentProofURL *string               `json:"payment_proof_url"`
	Notes           *string               `json:"notes"`
	Reason          string                `json:"reason" binding:"required"`
}

// Handles PATCH /admin/invoices/:id
func (h *InvoiceHandler) Patch(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req patchInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}

	invoice, err := h.billing.Patch(c.Request.Context(), actor(c).ID, id, service.InvoicePatch{
		Plan:            req.Plan,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Status:          req.Status,
		PeriodStart:     req.PeriodStart,
		PeriodEnd:       req.PeriodEnd,
		PaymentMethod:   req.PaymentMethod,
		PaymentProofURL: req.PaymentProofURL,
		Notes:           req.Notes,
	}, req.Reason)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, invoice)
}

// Handles GET /admin/invoices?user_id=&status=
func (h *InvoiceHandler) List(c *gin.Context) {
	limit, offset := pagination(c, 50, 500)
	filter := repository.InvoiceFilter{Limit: limit, Offset: offset}

	if raw := c.Query("user_id"); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "Invalid user_id")
			return
		}
		filter.UserID = userID
	}
	if raw := c.Query("status"); raw != "" {
		status := models.InvoiceStatus(raw)
		if !status.Valid() {
			response.Error(c, http.StatusBadRequest, "Invalid status")
			return
		}
		filter.Status = status
	}

	invoices, err := h.billing.List(c.Request.Context(), filter)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"invoices": invoices,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *InvoiceHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	invoice, err := h.billing.Get(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}
	response.Success(c, http.StatusOK, invoice)
}

// Handles GET /admin/invoices/:id/proof with a short-lived download link
func (h *InvoiceHandler) ProofURL(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	invoice, err := h.billing.Get(ctx, id)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	url, err := h.billing.ProofURL(ctx, invoice)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"url": url})
}

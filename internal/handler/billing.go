package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/repository"
	"github.com/aman-churiwal/api-marketplace/internal/response"
	"github.com/aman-churiwal/api-marketplace/internal/service"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	maxProofBytes = 5 << 20
	// Room for the method and note fields and the multipart framing.
	maxProofFormBytes = maxProofBytes + 64<<10
)

var allowedProofTypes = []string{"image/jpeg", "image/png", "image/webp", "application/pdf"}

// sniffProofType detects the file type from its leading bytes and rewinds
// the file. The client's Content-Type header is ignored.
func sniffProofType(file io.ReadSeeker) (string, bool) {
	detected, err := mimetype.DetectReader(file)
	if err != nil {
		return "", false
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", false
	}

	for _, allowed := range allowedProofTypes {
		if detected.Is(allowed) {
			return allowed, true
		}
	}
	return detected.String(), false
}

// BillingHandler is the self-service side of billing under /me/invoices.
type BillingHandler struct {
	billing       *service.BillingService
	subscriptions *service.SubscriptionService
	logger        zerolog.Logger
}

func NewBillingHandler(billing *service.BillingService, subscriptions *service.SubscriptionService, logger zerolog.Logger) *BillingHandler {
	return &BillingHandler{billing: billing, subscriptions: subscriptions, logger: logger}
}

// Handles POST /me/invoices. The amount and period come from the plan catalogue.
func (h *BillingHandler) Create(c *gin.Context) {
	var req struct {
		Plan models.Plan `json:"plan" binding:"required,plan"`
	}
	if !bindJSON(c, &req) {
		return
	}

	invoice, err := h.billing.CreateOwn(c.Request.Context(), actor(c).ID, req.Plan)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusCreated, invoice)
}

func (h *BillingHandler) List(c *gin.Context) {
	limit, offset := pagination(c, 20, 100)

	invoices, err := h.billing.List(c.Request.Context(), repository.InvoiceFilter{
		UserID: actor(c).ID,
		Limit:  limit,
		Offset: offset,
	})
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

func (h *BillingHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	invoice, err := h.billing.GetOwn(c.Request.Context(), actor(c).ID, id)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}
	response.Success(c, http.StatusOK, invoice)
}

// Handles POST /me/invoices/:id/proof as multipart: file, method, note.
func (h *BillingHandler) SubmitProof(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if c.Request.ContentLength > maxProofFormBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, "file must be at most 5MB")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxProofFormBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, "file must be at most 5MB")
			return
		}
		response.Error(c, http.StatusBadRequest, "file is required")
		return
	}
	if fileHeader.Size > maxProofBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, "file must be at most 5MB")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, "file could not be read")
		return
	}
	defer file.Close()

	contentType, ok := sniffProofType(file)
	if !ok {
		h.logger.Debug().Str("detected", contentType).Msg("payment proof rejected by type")
		response.Error(c, http.StatusBadRequest, "file must be a JPEG, PNG, WEBP image or a PDF")
		return
	}

	invoice, err := h.billing.SubmitProof(c.Request.Context(), actor(c).ID, id, service.ProofUpload{
		Filename:    fileHeader.Filename,
		ContentType: contentType,
		Size:        fileHeader.Size,
		Body:        file,
		Method:      c.PostForm("method"),
		Note:        c.PostForm("note"),
	})
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, invoice)
}

// Handles POST /me/invoices/:id/cancel
func (h *BillingHandler) Cancel(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	invoice, err := h.billing.CancelOwn(c.Request.Context(), actor(c).ID, id)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}
	response.Success(c, http.StatusOK, invoice)
}

// Handles GET /me/subscription: the ACTIVE row (or null) plus history.
func (h *BillingHandler) Subscription(c *gin.Context) {
	ctx := c.Request.Context()
	user := actor(c)

	active, err := h.subscriptions.FindActive(ctx, user.ID)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}
	history, err := h.subscriptions.ListByUser(ctx, user.ID)
	if err != nil {
		response.Fail(c, h.logger, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"plan":    user.Plan,
		"active":  active,
		"history": history,
	})
}

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/config"
	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/repository"
	"github.com/aman-churiwal/api-marketplace/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const proofURLTTL = 15 * time.Minute

// ProofStore keeps uploaded payment proofs. storage.S3ProofStore implements it.
type ProofStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	PresignGet(ctx context.Context, uri string, ttl time.Duration) (string, error)
}

// Notifier delivers short operator messages.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type InvoiceInput struct {
	UserID          uuid.UUID
	Plan            models.Plan
	Amount          int64
	Currency        string
	Status          models.InvoiceStatus
	PeriodStart     time.Time
	PeriodEnd       time.Time
	PaymentMethod   string
	PaymentProofURL string
	Notes           string
}

// InvoicePatch holds the fields an admin may change. Nil means unchanged.
type InvoicePatch struct {
	Plan            *models.Plan
	Amount          *int64
	Currency        *string
	Status          *models.InvoiceStatus
	PeriodStart     *time.Time
	PeriodEnd       *time.Time
	PaymentMethod   *string
	PaymentProofURL *string
	Notes           *string
}

// ProofUpload is a payment proof submitted by an invoice owner.
type ProofUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	Method      string
	Note        string
}

// BillingService is the invoice state machine. Every status change commits
// together with its subscription rows and the projected plan.
type BillingService struct {
	db            *storage.Database
	invoices      *repository.InvoiceRepository
	users         *repository.UserRepository
	subscriptions *SubscriptionService
	projector     *PlanProjector
	keys          *APIKeyService
	audit         *AuditTrail
	proofs        ProofStore
	notifier      Notifier
	billing       config.BillingConfig
	now           func() time.Time
	logger        zerolog.Logger
}

// NewBillingService builds the billing service. proofs and notifier may be nil.
func NewBillingService(
	db *storage.Database,
	invoices *repository.InvoiceRepository,
	users *repository.UserRepository,
	subscriptions *SubscriptionService,
	projector *PlanProjector,
	keys *APIKeyService,
	audit *AuditTrail,
	proofs ProofStore,
	notifier Notifier,
	billing config.BillingConfig,
	now func() time.Time,
	logger zerolog.Logger,
) *BillingService {
	return &BillingService{
		db:            db,
		invoices:      invoices,
		users:         users,
		subscriptions: subscriptions,
		projector:     projector,
		keys:          keys,
		audit:         audit,
		proofs:        proofs,
		notifier:      notifier,
		billing:       billing,
		now:           now,
		logger:        logger,
	}
}

func validateInvoice(inv *models.BillingInvoice) error {
	if !inv.Plan.Valid() || inv.Plan == models.PlanFree {
		return ErrInvalidInvoiceInput.WithMessage("plan must be PAID or RESELLER")
	}
	if inv.Amount <= 0 {
		return ErrInvalidInvoiceInput.WithMessage("amount must be positive")
	}
	if !inv.PeriodEnd.After(inv.PeriodStart) {
		return ErrInvalidInvoiceInput.WithMessage("period_end must be after period_start")
	}
	if !inv.Status.Valid() {
		return ErrInvalidInvoiceInput.WithMessage("status is not valid")
	}
	return nil
}

// Create records an invoice on behalf of an admin. An invoice created as
// PAID gets the same side effects as one moved to PAID later.
func (s *BillingService) Create(ctx context.Context, actorID uuid.UUID, in InvoiceInput, reason string) (*models.BillingInvoice, error) {
	if err := ValidateJustification(reason); err != nil {
		return nil, err
	}

	invoice := &models.BillingInvoice{
		UserID:          in.UserID,
		Plan:            in.Plan,
		Amount:          in.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(in.Currency)),
		Status:          in.Status,
		PeriodStart:     in.PeriodStart.UTC(),
		PeriodEnd:       in.PeriodEnd.UTC(),
		PaymentMethod:   in.PaymentMethod,
		PaymentProofURL: in.PaymentProofURL,
		Notes:           in.Notes,
	}
	if invoice.Currency == "" {
		invoice.Currency = s.billing.DefaultCurrency
	}
	if invoice.Status == "" {
		invoice.Status = models.InvoiceUnpaid
	}
	if err := validateInvoice(invoice); err != nil {
		return nil, err
	}

	var projection *Projection
	var entry *models.AuditLog
	err := s.db.Transaction(ctx, func(tx *gorm.DB) error {
		user, err := s.users.WithTx(tx).FindByID(ctx, invoice.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}

		if invoice.Status == models.InvoicePaid {
			now := s.now()
			invoice.ApprovedByID = &actorID
			invoice.ApprovedAt = &now
		}

		if err := s.invoices.WithTx(tx).Create(ctx, invoice); err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}

		if invoice.Status == models.InvoicePaid {
			projection, err = s.applyStatus(ctx, tx, invoice, &actorID)
			if err != nil {
				return err
			}
		}

		entry, err = s.audit.Record(ctx, tx, AuditEntry{
			ActorID:    actorID,
			Action:     "invoice.create",
			TargetType: "invoice",
			TargetID:   invoice.ID.String(),
			Reason:     reason,
			Details:    invoice,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("invoice_id", invoice.ID.String()).
		Str("user_id", invoice.UserID.String()).
		Str("status", string(invoice.Status)).
		Msg("invoice created")

	s.afterCommit(ctx, projection, entry)
	return invoice, nil
}

// Patch edits an invoice as an admin. A status change must be allowed by the
// transition table, is written conditionally on the status read in the same
// transaction, and runs its side effects only if that write wins.
func (s *BillingService) Patch(ctx context.Context, actorID, id uuid.UUID, patch InvoicePatch, reason string) (*models.BillingInvoice, error) {
	if err := ValidateJustification(reason); err != nil {
		return nil, err
	}

	var invoice *models.BillingInvoice
	var projection *Projection
	var entry *models.AuditLog
	err := s.db.Transaction(ctx, func(tx *gorm.DB) error {
		current, err := s.invoices.WithTx(tx).FindByID(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrInvoiceNotFound
		}

		next, updates := mergeInvoicePatch(current, patch)
		if err := validateInvoice(next); err != nil {
			return err
		}

		statusChanged := next.Status != current.Status
		if statusChanged && !models.CanTransition(current.Status, next.Status, true) {
			return ErrInvalidTransition.WithMessage(fmt.Sprintf("cannot move invoice from %s to %s", current.Status, next.Status))
		}
		if statusChanged && next.Status == models.InvoicePaid && next.ApprovedAt == nil {
			now := s.now()
			next.ApprovedByID = &actorID
			next.ApprovedAt = &now
			updates["approved_by_id"] = actorID
			updates["approved_at"] = now
		}
		if len(updates) == 0 {
			invoice = current
			return nil
		}

		ok, err := s.invoices.WithTx(tx).UpdateIfStatus(ctx, id, current.Status, updates)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrentUpdate
		}

		switch {
		case statusChanged:
			projection, err = s.applyStatus(ctx, tx, next, &actorID)
		case current.Status == models.InvoicePaid:
			projection, err = s.resyncPaid(ctx, tx, next, &actorID)
		}
		if err != nil {
			return err
		}

		entry, err = s.audit.Record(ctx, tx, AuditEntry{
			ActorID:    actorID,
			Action:     "invoice.update",
			TargetType: "invoice",
			TargetID:   id.String(),
			Reason:     reason,
			Details:    updates,
		})
		if err != nil {
			return err
		}

		if statusChanged {
			s.logger.Info().
				Str("invoice_id", id.String()).
				Str("from", string(current.Status)).
				Str("to", string(next.Status)).
				Msg("invoice status changed")
		}

		invoice = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, projection, entry)
	return invoice, nil
}

func mergeInvoicePatch(current *models.BillingInvoice, patch InvoicePatch) (*models.BillingInvoice, map[string]interface{}) {
	next := *current
	updates := map[string]interface{}{}

	if patch.Plan != nil && *patch.Plan != current.Plan {
		next.Plan = *patch.Plan
		updates["plan"] = next.Plan
	}
	if patch.Amount != nil && *patch.Amount != current.Amount {
		next.Amount = *patch.Amount
		updates["amount"] = next.Amount
	}
	if patch.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*patch.Currency))
		if currency != "" && currency != current.Currency {
			next.Currency = currency
			updates["currency"] = next.Currency
		}
	}
	if patch.Status != nil && *patch.Status != current.Status {
		next.Status = *patch.Status
		updates["status"] = next.Status
	}
	if patch.PeriodStart != nil && !patch.PeriodStart.Equal(current.PeriodStart) {
		next.PeriodStart = patch.PeriodStart.UTC()
		updates["period_start"] = next.PeriodStart
	}
	if patch.PeriodEnd != nil && !patch.PeriodEnd.Equal(current.PeriodEnd) {
		next.PeriodEnd = patch.PeriodEnd.UTC()
		updates["period_end"] = next.PeriodEnd
	}
	if patch.PaymentMethod != nil && *patch.PaymentMethod != current.PaymentMethod {
		next.PaymentMethod = *patch.PaymentMethod
		updates["payment_method"] = next.PaymentMethod
	}
	if patch.PaymentProofURL != nil && *patch.PaymentProofURL != current.PaymentProofURL {
		next.PaymentProofURL = *patch.PaymentProofURL
		updates["payment_proof_url"] = next.PaymentProofURL
	}
	if patch.Notes != nil && *patch.Notes != current.Notes {
		next.Notes = *patch.Notes
		updates["notes"] = next.Notes
	}

	return &next, updates
}

// applyStatus runs the side effects of invoice having just entered its
// current status.
func (s *BillingService) applyStatus(ctx context.Context, tx *gorm.DB, invoice *models.BillingInvoice, actorID *uuid.UUID) (*Projection, error) {
	switch invoice.Status {
	case models.InvoicePaid:
		sub := &models.UserSubscription{
			UserID:          invoice.UserID,
			InvoiceID:       &invoice.ID,
			Plan:            invoice.Plan,
			StartAt:         invoice.PeriodStart,
			EndAt:           invoice.PeriodEnd,
			AutoDowngradeTo: models.PlanFree,
		}
		if err := s.subscriptions.activate(ctx, tx, sub, actorID); err != nil {
			return nil, err
		}

	case models.InvoiceExpired, models.InvoiceCanceled:
		status := models.SubscriptionExpired
		if invoice.Status == models.InvoiceCanceled {
			status = models.SubscriptionCanceled
		}

		if _, err := s.subscriptions.retireActive(ctx, tx, invoice.UserID, status, actorID); err != nil {
			return nil, err
		}

		history := &models.UserSubscription{
			UserID:          invoice.UserID,
			InvoiceID:       &invoice.ID,
			Plan:            invoice.Plan,
			Status:          status,
			StartAt:         invoice.PeriodStart,
			EndAt:           invoice.PeriodEnd,
			AutoDowngradeTo: models.PlanFree,
			UpdatedByID:     actorID,
		}
		if err := s.subscriptions.insert(ctx, tx, history); err != nil {
			return nil, err
		}

	default:
		return nil, nil
	}

	return s.projector.Project(ctx, tx, invoice.UserID)
}

// resyncPaid carries plan or period corrections on a PAID invoice over to the
// ACTIVE subscription it created.
func (s *BillingService) resyncPaid(ctx context.Context, tx *gorm.DB, invoice *models.BillingInvoice, actorID *uuid.UUID) (*Projection, error) {
	subs := s.subscriptions.subs.WithTx(tx)

	active, err := subs.FindActive(ctx, invoice.UserID)
	if err != nil {
		return nil, err
	}
	if active == nil || active.InvoiceID == nil || *active.InvoiceID != invoice.ID {
		return nil, nil
	}

	ok, err := subs.UpdateIfStatus(ctx, active.ID, models.SubscriptionActive, map[string]interface{}{
		"plan":          invoice.Plan,
		"start_at":      invoice.PeriodStart,
		"end_at":        invoice.PeriodEnd,
		"updated_by_id": actorID,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConcurrentUpdate
	}

	return s.projector.Project(ctx, tx, invoice.UserID)
}

func (s *BillingService) Get(ctx context.Context, id uuid.UUID) (*models.BillingInvoice, error) {
	invoice, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, ErrInvoiceNotFound
	}
	return invoice, nil
}

// GetOwn hides invoices of other users behind not-found.
func (s *BillingService) GetOwn(ctx context.Context, userID, id uuid.UUID) (*models.BillingInvoice, error) {
	invoice, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.UserID != userID {
		return nil, ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *BillingService) List(ctx context.Context, filter repository.InvoiceFilter) ([]models.BillingInvoice, error) {
	return s.invoices.List(ctx, filter)
}

// CreateOwn opens an UNPAID invoice for the catalogue price of plan.
func (s *BillingService) CreateOwn(ctx context.Context, userID uuid.UUID, plan models.Plan) (*models.BillingInvoice, error) {
	if !plan.Valid() || plan == models.PlanFree {
		return nil, ErrInvalidInvoiceInput.WithMessage("plan must be PAID or RESELLER")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.Plan.AtLeast(plan) {
		return nil, ErrPlanAlreadyHeld
	}

	price, ok := s.billing.PriceFor(plan)
	if !ok {
		return nil, ErrInvalidInvoiceInput.WithMessage("plan has no price configured")
	}

	now := s.now()
	invoice := &models.BillingInvoice{
		UserID:      userID,
		Plan:        plan,
		Amount:      price,
		Currency:    s.billing.DefaultCurrency,
		Status:      models.InvoiceUnpaid,
		PeriodStart: now,
		PeriodEnd:   now.Add(s.billing.Period()),
	}
	if err := validateInvoice(invoice); err != nil {
		return nil, err
	}

	if err := s.invoices.Create(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	s.logger.Info().
		Str("invoice_id", invoice.ID.String()).
		Str("user_id", userID.String()).
		Str("plan", string(plan)).
		Msg("self-service invoice created")

	return invoice, nil
}

// SubmitProof stores the proof file and attaches it to an UNPAID invoice.
func (s *BillingService) SubmitProof(ctx context.Context, userID, invoiceID uuid.UUID, upload ProofUpload) (*models.BillingInvoice, error) {
	if s.proofs == nil {
		return nil, ErrProofStoreDisabled
	}
	if strings.TrimSpace(upload.Method) == "" {
		return nil, ErrInvalidInput.WithMessage("payment method is required")
	}

	invoice, err := s.GetOwn(ctx, userID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != models.InvoiceUnpaid {
		return nil, ErrInvalidTransition.WithMessage("payment proof can only be submitted for an UNPAID invoice")
	}

	key := fmt.Sprintf("proofs/%s/%s/%s%s", userID, invoiceID, uuid.NewString(), strings.ToLower(filepath.Ext(upload.Filename)))
	uri, err := s.proofs.Put(ctx, key, upload.Body, upload.Size, upload.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store payment proof: %w", err)
	}

	updates := map[string]interface{}{
		"payment_method":    strings.TrimSpace(upload.Method),
		"payment_proof_url": uri,
	}
	if note := strings.TrimSpace(upload.Note); note != "" {
		updates["notes"] = note
	}

	ok, err := s.invoices.UpdateIfStatus(ctx, invoiceID, models.InvoiceUnpaid, updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConcurrentUpdate
	}

	invoice, err = s.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, fmt.Sprintf("Payment proof submitted\nInvoice: %s\nPlan: %s\nAmount: %d %s\nMethod: %s",
		invoice.ID, invoice.Plan, invoice.Amount, invoice.Currency, invoice.PaymentMethod))

	return invoice, nil
}

// CancelOwn lets an owner withdraw an UNPAID invoice. An UNPAID invoice
// never activated anything, so the user's current subscription is untouched.
func (s *BillingService) CancelOwn(ctx context.Context, userID, invoiceID uuid.UUID) (*models.BillingInvoice, error) {
	invoice, err := s.GetOwn(ctx, userID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != models.InvoiceUnpaid || !models.CanTransition(invoice.Status, models.InvoiceCanceled, false) {
		return nil, ErrInvalidTransition.WithMessage("only UNPAID invoices can be canceled")
	}

	ok, err := s.invoices.UpdateIfStatus(ctx, invoiceID, models.InvoiceUnpaid, map[string]interface{}{
		"status": models.InvoiceCanceled,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConcurrentUpdate
	}

	s.logger.Info().Str("invoice_id", invoiceID.String()).Msg("invoice canceled by owner")

	invoice.Status = models.InvoiceCanceled
	return invoice, nil
}

// ProofURL returns a short-lived download link for a stored proof.
func (s *BillingService) ProofURL(ctx context.Context, invoice *models.BillingInvoice) (string, error) {
	if invoice.PaymentProofURL == "" {
		return "", ErrInvalidInput.WithMessage("invoice has no payment proof")
	}
	if !strings.HasPrefix(invoice.PaymentProofURL, "s3://") {
		return invoice.PaymentProofURL, nil
	}
	if s.proofs == nil {
		return "", ErrProofStoreDisabled
	}

	url, err := s.proofs.PresignGet(ctx, invoice.PaymentProofURL, proofURLTTL)
	if errors.Is(err, storage.ErrForeignObject) {
		return "", ErrInvalidInput.WithMessage("payment proof is outside the proof bucket")
	}
	return url, err
}

func (s *BillingService) notify(ctx context.Context, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, text); err != nil {
		s.logger.Warn().Err(err).Msg("failed to send admin notification")
	}
}

func (s *BillingService) afterCommit(ctx context.Context, projection *Projection, entries ...*models.AuditLog) {
	if projection != nil && s.keys != nil {
		s.keys.Invalidate(ctx, projection.Keys...)
	}
	s.audit.Publish(entries...)
}

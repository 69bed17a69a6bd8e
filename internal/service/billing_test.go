package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/repository"
	"github.com/aman-churiwal/api-marketplace/internal/storage"
	"github.com/aman-churiwal/api-marketplace/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const justification = "manual bank transfer reviewed"

func statusPtr(s models.InvoiceStatus) *models.InvoiceStatus { return &s }

func (e *testEnv) newAdmin(t *testing.T) *models.User {
	t.Helper()

	admin := testutil.CreateUser(t, e.db, models.PlanFree)
	if err := e.users.SetRole(context.Background(), admin.ID, models.RoleSuperAdmin); err != nil {
		t.Fatalf("SetRole() error = %v", err)
	}
	return admin
}

func (e *testEnv) invoiceInput(userID uuid.UUID, plan models.Plan) InvoiceInput {
	start := e.clock.Now()
	return InvoiceInput{
		UserID:      userID,
		Plan:        plan,
		Amount:      5000,
		PeriodStart: start,
		PeriodEnd:   start.AddDate(0, 0, 30),
	}
}

func TestInvoiceUnpaidToPaidActivatesPlan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.newAdmin(t)
	user, key, _ := env.newCaller(t, models.PlanFree, 100)

	in := env.invoiceInput(user.ID, models.PlanPaid)
	invoice, err := env.billing.Create(ctx, admin.ID, in, justification)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if invoice.Status != models.InvoiceUnpaid || invoice.Currency != "IDR" {
		t.Fatalf("created invoice = %s %s, want UNPAID IDR", invoice.Status, invoice.Currency)
	}
	env.assertPlanInvariant(t, user.ID)

	paid, err := env.billing.Patch(ctx, admin.ID, invoice.ID, InvoicePatch{Status: statusPtr(models.InvoicePaid)}, justification)
	if err != nil {
		t.Fatalf("Patch(PAID) error = %v", err)
	}
	if paid.ApprovedByID == nil || *paid.ApprovedByID != admin.ID || paid.ApprovedAt == nil {
		t.Errorf("approval not stamped: %+v", paid)
	}

	if got := env.reloadUser(t, user.ID).Plan; got != models.PlanPaid {
		t.Errorf("user plan = %s, want PAID", got)
	}
	active, err := env.subsRepo.FindActive(ctx, user.ID)
	if err != nil || active == nil {
		t.Fatalf("FindActive() = %v, %v", active, err)
	}
	if !active.StartAt.Equal(in.PeriodStart) || !active.EndAt.Equal(in.PeriodEnd) {
		t.Errorf("subscription period = %v..%v, want %v..%v", active.StartAt, active.EndAt, in.PeriodStart, in.PeriodEnd)
	}
	env.assertPlanInvariant(t, user.ID)

	reloaded, _ := env.apiKeys.FindByID(ctx, key.ID)
	if reloaded.DailyLimit != testBilling.DailyLimitFor(models.PlanPaid) {
		t.Errorf("key daily limit = %d, want PAID quota", reloaded.DailyLimit)
	}
}

func TestInvoiceUpgradeExpiresPriorSubscription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.newAdmin(t)
	user, _, _ := env.newCaller(t, models.PlanFree, 100)

	first := env.invoiceInput(user.ID, models.PlanPaid)
	first.Status = models.InvoicePaid
	if _, err := env.billing.Create(ctx, admin.ID, first, justification); err != nil {
		t.Fatalf("Create(PAID) error = %v", err)
	}
	prior, _ := env.subsRepo.FindActive(ctx, user.ID)

	upgrade, err := env.billing.Create(ctx, admin.ID, env.invoiceInput(user.ID, models.PlanReseller), justification)
	if err != nil {
		t.Fatalf("Create(RESELLER) error = %v", err)
	}
	if _, err := env.billing.Patch(ctx, admin.ID, upgrade.ID, InvoicePatch{Status: statusPtr(models.InvoicePaid)}, justification); err != nil {
		t.Fatalf("Patch(PAID) error = %v", err)
	}

	old, _ := env.subsRepo.FindByID(ctx, prior.ID)
	if old.Status != models.SubscriptionExpired {
		t.Errorf("prior subscription status = %s, want EXPIRED", old.Status)
	}
	active, _ := env.subsRepo.FindActive(ctx, user.ID)
	if active == nil || active.Plan != models.PlanReseller {
		t.Fatalf("active subscription = %+v, want RESELLER", active)
	}
	if got := env.reloadUser(t, user.ID).Plan; got != models.PlanReseller {
		t.Errorf("user plan = %s, want RESELLER", got)
	}
	env.assertPlanInvariant(t, user.ID)
}

func TestInvoicePaidToCanceledDowngrades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.newAdmin(t)
	user, key, _ := env.newCaller(t, models.PlanFree, 100)

	in := env.invoiceInput(user.ID, models.PlanPaid)
	in.Status = models.InvoicePaid
	invoice, err := env.billing.Create(ctx, admin.ID, in, justification)
	if err != nil {
		t.Fatalf("Create(PAID) error = %v", err)
	}

	if _, err := env.billing.Patch(ctx, admin.ID, invoice.ID, InvoicePatch{Status: statusPtr(models.InvoiceCanceled)}, justification); err != nil {
		t.Fatalf("Patch(CANCELED) error = %v", err)
	}

	if got := env.reloadUser(t, user.ID).Plan; got != models.PlanFree {
		t.Errorf("user plan = %s, want FREE", got)
	}
	count, _ := env.subsRepo.CountActive(ctx, user.ID)
	if count != 0 {
		t.Errorf("ACTIVE subscriptions = %d, want 0", count)
	}

	subs, _ := env.subsRepo.ListByUser(ctx, user.ID)
	canceled := 0
	for _, s := range subs {
		if s.Status == models.SubscriptionCanceled {
			canceled++
		}
	}
	// The retired row plus the history row.
	if canceled != 2 {
		t.Errorf("CANCELED rows = %d, want 2", canceled)
	}
	env.assertPlanInvariant(t, user.ID)

	reloaded, _ := env.apiKeys.FindByID(ctx, key.ID)
	if reloaded.DailyLimit != testBilling.DailyLimitFor(models.PlanFree) {
		t.Errorf("key daily limit = %d, want FREE quota", reloaded.DailyLimit)
	}
}

func TestInvoiceExpireRetiresCurrentActiveSubscription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.newAdmin(t)
	user, _, _ := env.newCaller(t, models.PlanFree, 100)

	old := env.invoiceInput(user.ID, models.PlanPaid)
	old.Status = models.InvoicePaid
	superseded, err := env.billing.Create(ctx, admin.ID, old, justification)
	if err != nil {
		t.Fatalf("Create(PAID) error = %v", err)
	}

	upgrade := env.invoiceInput(user.ID, models.PlanReseller)
	upgrade.Status = models.InvoicePaid
	current, err := env.billing.Create(ctx, admin.ID, upgrade, justification)
	if err != nil {
		t.Fatalf("Create(RESELLER) error = %v", err)
	}
	active, _ := env.subsRepo.FindActive(ctx, user.ID)
	if active == nil || active.InvoiceID == nil || *active.InvoiceID != current.ID {
		t.Fatalf("active subscription = %+v, want the RESELLER one", active)
	}

	// The retired row is whatever is ACTIVE now, not the row the old invoice created.
	if _, err := env.billing.Patch(ctx, admin.ID, superseded.ID, InvoicePatch{Status: statusPtr(models.InvoiceExpired)}, justification); err != nil {
		t.Fatalf("Patch(EXPIRED) error = %v", err)
	}

	retired, _ := env.subsRepo.FindByID(ctx, active.ID)
	if retired.Status != models.SubscriptionExpired {
		t.Errorf("RESELLER subscription status = %s, want EXPIRED", retired.Status)
	}
	if got := env.reloadUser(t, user.ID).Plan; got != models.PlanFree {
		t.Errorf("user plan = %s, want FREE", got)
	}
	env.assertPlanInvariant(t, user.ID)
}

func TestInvoiceRejectsBadPeriodBeforePersisting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.newAdmin(t)
	user, _, _ := env.newCaller(t, models.PlanFree, 100)

	in := env.invoiceInput(user.ID, models.PlanPaid)
	in.PeriodEnd = in.PeriodStart
	_, err := env.billing.Create(ctx, admin.ID, in, justification)
	if !errors.Is(err, ErrInvalidInvoiceInput) {
		t.Fatalf("Create(end == start) error = %v, want InvalidInvoiceInput", err)
	}
	list, _ := env.invoices.List(ctx, repository.InvoiceFilter{UserID: user.ID})
	if len(list) != 0 {
		t.Fatalf("invoice persisted despite invalid input")
	}

	invoice, err := env.billing.Create(ctx, admin.ID, env.invoiceInput(user.ID, models.PlanPaid), justification)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	before := invoice.PeriodStart.Add(-time.Hour)
	_, err = env.billing.Patch(ctx, admin.ID, invoice.ID, InvoicePatch{PeriodEnd: &before}, justification)
	if !errors.Is(err, ErrInvalidInvoiceInput) {
		t.Fatalf("Patch(end < start) error = %v, want InvalidInvoiceInput", err)
	}
	stored, _ := env.invoices.FindByID(ctx, invoice.ID)
	if !stored.PeriodEnd.Equal(invoice.PeriodEnd) {
		t.Errorf("period_end changed to %v", stored.PeriodEnd)
	}

	zero := int64(0)
	if _, err := env.billing.Patch(ctx, admin.ID, invoice.ID, InvoicePatch{Amount: &zero}, justification); !errors.Is(err, ErrInvalidInvoiceInput) {
		t.Errorf("Patch(amount 0) error = %v, want InvalidInvoiceInput", err)
	}
}

func TestInvoiceCreatePaidMatchesTransition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.newAdmin(t)
	direct, _, _ := env.newCaller(t, models.PlanFree, 100)
	stepwise, _, _ := env.newCaller(t, models.PlanFree, 100)

	in := env.invoiceInput(direct.ID, models.PlanReseller)
	in.Status = models.InvoicePaid
	if _, err := env.billing.Create(ctx, admin.ID, in, justification); err != nil {
		t.Fatalf("Create(PAID) error = %v", err)
	}

	in = env.invoiceInput(stepwise.ID, models.PlanReseller)
	invoice, err := env.billing.Create(ctx, admin.ID, in, justification)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := env.billing.Patch(ctx, admin.ID, invoice.ID, InvoicePatch{Status: statusPtr(models.InvoicePaid)}, justification); err != nil {
		t.Fatalf("Patch(PAID) error = %v", err)
	}

	a, _ := env.subsRepo.FindActive(ctx, direct.ID)
	b, _ := env.subsRepo.FindActive(ctx, stepwise.ID)
	if a == nil || b == nil {
		t.Fatal("missing ACTIVE subscription")
	}
	if a.Plan != b.Plan || !a.StartAt.Equal(b.StartAt) || !a.EndAt.Equal(b.EndAt) || a.AutoDowngradeTo != b.AutoDowngradeTo {
		t.Errorf("direct %+v differs from stepwise %+v", a, b)
	}
	if env.reloadUser(t, direct.ID).Plan != env.reloadUser(t, stepwise.ID).Plan {
		t.Error("user plans differ")
	}
}

func TestInvoicePaidResaveIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.newAdmin(t)
	user, _, _ := env.newCaller(t, models.PlanFree, 100)

	in := env.invoiceInput(user.ID, models.PlanPaid)
	in.Status = models.InvoicePaid
	invoice, err := env.billing.Create(ctx, admin.ID, in, justification)
	if err != nil {
		t.Fatalf("Create(PAID) error = %v", err)
	}

	notes := "resaved"
	if _, err := env.billing.Patch(ctx, admin.ID, invoice.ID, InvoicePatch{Status: statusPtr(models.InvoicePaid), Notes: &notes}, justification); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}

	subs, _ := env.subsRepo.ListByUser(ctx, user.ID)
	if len(subs) != 1 {
		t.Errorf("subscriptions = %d, want 1 after resave", len(subs))
	}
	env.assertPlanInvariant(t, user.ID)
}

func TestInvoicePaidPlanCorrectionResyncs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.newAdmin(t)
	user, _, _ := env.newCaller(t, models.PlanFree, 100)

	in := env.invoiceInput(user.ID, models.PlanPaid)
	in.Status = models.InvoicePaid
	invoice, err := env.billing.Create(ctx, admin.ID, in, justification)
	if err != nil {
		t.Fatalf("Create(PAID) error = %v", err)
	}

	reseller := models.PlanReseller
	if _, err := env.billing.Patch(ctx, admin.ID, invoice.ID, InvoicePatch{Plan: &reseller}, justification); err != nil {
		t.Fatalf("Patch(plan) error = %v", err)
	}
	if got := env.reloadUser(t, user.ID).Plan; got != models.PlanReseller {
		t.Errorf("user plan = %s, want RESELLER", got)
	}
	env.assertPlanInvariant(t, user.ID)
}

func TestInvoiceTransitionTable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.newAdmin(t)
	user, _, _ := env.newCaller(t, models.PlanFree, 100)

	in := env.invoiceInput(user.ID, models.PlanPaid)
	in.Status = models.InvoicePaid
	invoice, err := env.billing.Create(ctx, admin.ID, in, justification)
	if err != nil {
		t.Fatalf("Create(PAID) error = %v", err)
	}

	_, err = env.billing.Patch(ctx, admin.ID, invoice.ID, InvoicePatch{Status: statusPtr(models.InvoiceUnpaid)}, justification)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Patch(PAID->UNPAID) error = %v, want InvalidTransition", err)
	}

	_, err = env.billing.Patch(ctx, admin.ID, invoice.ID, InvoicePatch{Status: statusPtr(models.InvoiceStatus("REFUNDED"))}, justification)
	if !errors.Is(err, ErrInvalidInvoiceInput) {
		t.Errorf("Patch(unknown status) error = %v, want InvalidInvoiceInput", err)
	}

	_, err = env.billing.Patch(ctx, admin.ID, invoice.ID, InvoicePatch{Status: statusPtr(models.InvoiceExpired)}, "short")
	if !errors.Is(err, ErrJustificationMissing) {
		t.Errorf("Patch(short reason) error = %v, want JustificationMissing", err)
	}

	_, err = env.billing.Patch(ctx, admin.ID, uuid.New(), InvoicePatch{Status: statusPtr(models.InvoiceExpired)}, justification)
	if !errors.Is(err, ErrInvoiceNotFound) {
		t.Errorf("Patch(missing) error = %v, want InvoiceNotFound", err)
	}
}

func TestSelfServiceInvoiceFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.newAdmin(t)
	user, _, _ := env.newCaller(t, models.PlanFree, 100)

	if _, err := env.billing.CreateOwn(ctx, user.ID, models.PlanFree); !errors.Is(err, ErrInvalidInvoiceInput) {
		t.Errorf("CreateOwn(FREE) error = %v, want InvalidInvoiceInput", err)
	}

	invoice, err := env.billing.CreateOwn(ctx, user.ID, models.PlanPaid)
	if err != nil {
		t.Fatalf("CreateOwn(PAID) error = %v", err)
	}
	if invoice.Amount != 5000 || invoice.Status != models.InvoiceUnpaid {
		t.Errorf("invoice = %d %s, want 5000 UNPAID", invoice.Amount, invoice.Status)
	}
	if got := invoice.PeriodEnd.Sub(invoice.PeriodStart); got != 30*24*time.Hour {
		t.Errorf("period = %v, want 30 days", got)
	}

	if _, err := env.billing.Patch(ctx, admin.ID, invoice.ID, InvoicePatch{Status: statusPtr(models.InvoicePaid)}, justification); err != nil {
		t.Fatalf("Patch(PAID) error = %v", err)
	}

	if _, err := env.billing.CreateOwn(ctx, user.ID, models.PlanPaid); !errors.Is(err, ErrPlanAlreadyHeld) {
		t.Errorf("CreateOwn(same plan) error = %v, want PlanAlreadyHeld", err)
	}

	upgrade, err := env.billing.CreateOwn(ctx, user.ID, models.PlanReseller)
	if err != nil {
		t.Fatalf("CreateOwn(RESELLER) error = %v", err)
	}

	other, _, _ := env.newCaller(t, models.PlanFree, 100)
	if _, err := env.billing.CancelOwn(ctx, other.ID, upgrade.ID); !errors.Is(err, ErrInvoiceNotFound) {
		t.Errorf("CancelOwn(other user) error = %v, want InvoiceNotFound", err)
	}

	canceled, err := env.billing.CancelOwn(ctx, user.ID, upgrade.ID)
	if err != nil || canceled.Status != models.InvoiceCanceled {
		t.Fatalf("CancelOwn() = %v, %v", canceled, err)
	}
	// Withdrawing an upgrade request keeps the current plan.
	if got := env.reloadUser(t, user.ID).Plan; got != models.PlanPaid {
		t.Errorf("user plan = %s, want PAID", got)
	}
	env.assertPlanInvariant(t, user.ID)

	if _, err := env.billing.CancelOwn(ctx, user.ID, upgrade.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second CancelOwn() error = %v, want InvalidTransition", err)
	}
}

func TestSubmitProofWithoutStore(t *testing.T) {
	env := newTestEnv(t)
	user, _, _ := env.newCaller(t, models.PlanFree, 100)

	_, err := env.billing.SubmitProof(context.Background(), user.ID, uuid.New(), ProofUpload{Method: "bank"})
	if !errors.Is(err, ErrProofStoreDisabled) {
		t.Errorf("SubmitProof() error = %v, want ProofStoreDisabled", err)
	}
}

type fakeProofStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	types      map[string]string
	presignErr error
}

func newFakeProofStore() *fakeProofStore {
	return &fakeProofStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeProofStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.types[key] = contentType
	return "s3://proofs/" + key, nil
}

func (f *fakeProofStore) PresignGet(ctx context.Context, uri string, ttl time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return fmt.Sprintf("https://signed.example/%s?expires=%d", strings.TrimPrefix(uri, "s3://"), int(ttl.Seconds())), nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) Notify(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return nil
}

// withProofs rebuilds the billing service around a proof store and notifier.
func (e *testEnv) withProofs(store ProofStore, notifier Notifier) {
	e.billing = NewBillingService(e.db, e.invoices, e.users, e.subscriptions, e.projector, e.keys, e.audit,
		store, notifier, testBilling, e.clock.Now, zerolog.Nop())
}

func TestSubmitProof(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	store := newFakeProofStore()
	notifier := &fakeNotifier{}
	env.withProofs(store, notifier)

	user, _, _ := env.newCaller(t, models.PlanFree, 100)
	other, _, _ := env.newCaller(t, models.PlanFree, 100)
	invoice, err := env.billing.CreateOwn(ctx, user.ID, models.PlanPaid)
	if err != nil {
		t.Fatalf("CreateOwn() error = %v", err)
	}

	png := []byte("\x89PNG\r\n\x1a\nproof")
	upload := func(method string) ProofUpload {
		return ProofUpload{
			Filename:    "Transfer.PNG",
			ContentType: "image/png",
			Size:        int64(len(png)),
			Body:        bytes.NewReader(png),
			Method:      method,
			Note:        " paid from BCA ",
		}
	}

	if _, err := env.billing.SubmitProof(ctx, user.ID, invoice.ID, upload("  ")); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("SubmitProof(no method) error = %v, want InvalidInput", err)
	}
	if _, err := env.billing.SubmitProof(ctx, other.ID, invoice.ID, upload("bank")); !errors.Is(err, ErrInvoiceNotFound) {
		t.Errorf("SubmitProof(other user) error = %v, want InvoiceNotFound", err)
	}
	if len(store.objects) != 0 || len(notifier.messages) != 0 {
		t.Fatalf("rejected submissions stored %d objects and sent %d notifications", len(store.objects), len(notifier.messages))
	}

	got, err := env.billing.SubmitProof(ctx, user.ID, invoice.ID, upload("bank"))
	if err != nil {
		t.Fatalf("SubmitProof() error = %v", err)
	}
	if got.Status != models.InvoiceUnpaid {
		t.Errorf("status = %s, want UNPAID until an admin approves", got.Status)
	}
	if got.PaymentMethod != "bank" || got.Notes != "paid from BCA" {
		t.Errorf("method, note = %q, %q", got.PaymentMethod, got.Notes)
	}

	prefix := fmt.Sprintf("s3://proofs/proofs/%s/%s/", user.ID, invoice.ID)
	if !strings.HasPrefix(got.PaymentProofURL, prefix) || !strings.HasSuffix(got.PaymentProofURL, ".png") {
		t.Errorf("proof url = %q, want %s<uuid>.png", got.PaymentProofURL, prefix)
	}
	key := strings.TrimPrefix(got.PaymentProofURL, "s3://proofs/")
	if !bytes.Equal(store.objects[key], png) || store.types[key] != "image/png" {
		t.Errorf("stored object = %q (%s)", store.objects[key], store.types[key])
	}

	if len(notifier.messages) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.messages))
	}
	if msg := notifier.messages[0]; !strings.Contains(msg, invoice.ID.String()) || !strings.Contains(msg, "Method: bank") {
		t.Errorf("notification = %q", msg)
	}

	link, err := env.billing.ProofURL(ctx, got)
	if err != nil {
		t.Fatalf("ProofURL() error = %v", err)
	}
	if want := "https://signed.example/proofs/" + key + "?expires=900"; link != want {
		t.Errorf("ProofURL() = %q, want %q", link, want)
	}

	if _, err := env.billing.CancelOwn(ctx, user.ID, invoice.ID); err != nil {
		t.Fatalf("CancelOwn() error = %v", err)
	}
	if _, err := env.billing.SubmitProof(ctx, user.ID, invoice.ID, upload("bank")); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("SubmitProof(CANCELED) error = %v, want InvalidTransition", err)
	}
	if len(store.objects) != 1 {
		t.Errorf("stored objects = %d, want 1", len(store.objects))
	}
}

func TestProofURL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	store := newFakeProofStore()
	env.withProofs(store, nil)

	if _, err := env.billing.ProofURL(ctx, &models.BillingInvoice{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ProofURL(no proof) error = %v, want InvalidInput", err)
	}

	external := &models.BillingInvoice{PaymentProofURL: "https://bank.example/receipt/42"}
	if link, err := env.billing.ProofURL(ctx, external); err != nil || link != external.PaymentProofURL {
		t.Errorf("ProofURL(external) = %q, %v", link, err)
	}

	store.presignErr = fmt.Errorf("%w: s3://other/x", storage.ErrForeignObject)
	foreign := &models.BillingInvoice{PaymentProofURL: "s3://other/x"}
	if _, err := env.billing.ProofURL(ctx, foreign); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ProofURL(foreign bucket) error = %v, want InvalidInput", err)
	}
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/config"
	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/repository"
	"github.com/aman-churiwal/api-marketplace/internal/storage"
	"github.com/aman-churiwal/api-marketplace/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var testBilling = config.BillingConfig{
	DefaultCurrency: "IDR",
	PeriodDays:      30,
	PlanPrices:      map[string]int64{"PAID": 5000, "RESELLER": 15000},
	PlanDailyLimits: map[string]int{"FREE": 100, "PAID": 5000, "RESELLER": 50000},
}

type testEnv struct {
	db    *storage.Database
	clock *testutil.Clock

	users    *repository.UserRepository
	apiKeys  *repository.APIKeyRepository
	subsRepo *repository.SubscriptionRepository
	invoices *repository.InvoiceRepository

	keys          *APIKeyService
	ledger        *QuotaLedger
	bans          *BanNormalizer
	gate          *AccessGate
	projector     *PlanProjector
	subscriptions *SubscriptionService
	billing       *BillingService
	accounts      *UserService
	auth          *AuthService
	usage         *UsageService
	audit         *AuditTrail
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewDatabase(t)
	clock := testutil.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	logger := zerolog.Nop()

	env := &testEnv{
		db:       db,
		clock:    clock,
		users:    repository.NewUserRepository(db),
		apiKeys:  repository.NewAPIKeyRepository(db),
		subsRepo: repository.NewSubscriptionRepository(db),
		invoices: repository.NewInvoiceRepository(db),
	}
	usage := repository.NewUsageRepository(db)

	env.audit = NewAuditTrail(db, repository.NewAuditRepository(db), nil, "", logger)
	env.keys = NewAPIKeyService(env.apiKeys, env.audit, nil, logger)
	env.ledger = NewQuotaLedger(db, usage)
	env.bans = NewBanNormalizer(env.users, clock.Now, logger)
	env.gate = NewAccessGate(env.keys, env.users, env.bans, env.ledger, clock.Now, logger)
	env.projector = NewPlanProjector(env.users, env.subsRepo, env.apiKeys, testBilling, logger)
	env.subscriptions = NewSubscriptionService(db, env.subsRepo, env.users, env.projector, env.keys, env.audit, testBilling, clock.Now, logger)
	env.billing = NewBillingService(db, env.invoices, env.users, env.subscriptions, env.projector, env.keys, env.audit, nil, nil, testBilling, clock.Now, logger)
	env.accounts = NewUserService(db, env.users, env.audit, clock.Now, logger)
	env.auth = NewAuthService(db, env.users, env.keys, env.bans, testBilling, config.JWTConfig{Secret: "test-secret", ExpiryHours: 1}, clock.Now, logger)
	env.usage = NewUsageService(env.users, env.apiKeys, usage, env.ledger, clock.Now)

	return env
}

// newCaller creates a user with one key and returns the plain secret.
func (e *testEnv) newCaller(t *testing.T, plan models.Plan, dailyLimit int) (*models.User, *models.APIKey, string) {
	t.Helper()

	user := testutil.CreateUser(t, e.db, plan)
	secret, key, err := e.keys.Create(context.Background(), user.ID, "default", dailyLimit)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}

	return user, key, secret
}

func (e *testEnv) reloadUser(t *testing.T, id uuid.UUID) *models.User {
	t.Helper()

	user, err := e.users.FindByID(context.Background(), id)
	if err != nil || user == nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	return user
}

// assertPlanInvariant checks that at most one subscription is ACTIVE and
// that User.plan matches it.
func (e *testEnv) assertPlanInvariant(t *testing.T, userID uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	count, err := e.subsRepo.CountActive(ctx, userID)
	if err != nil {
		t.Fatalf("CountActive() error = %v", err)
	}
	if count > 1 {
		t.Fatalf("user has %d ACTIVE subscriptions", count)
	}

	want := models.PlanFree
	active, err := e.subsRepo.FindActive(ctx, userID)
	if err != nil {
		t.Fatalf("FindActive() error = %v", err)
	}
	if active != nil {
		want = active.Plan
	}

	if got := e.reloadUser(t, userID).Plan; got != want {
		t.Fatalf("user plan = %s, want %s", got, want)
	}
}

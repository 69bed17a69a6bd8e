package config

import (
	"testing"

	"github.com/aman-churiwal/api-marketplace/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Billing.DefaultCurrency != "IDR" {
		t.Errorf("Billing.DefaultCurrency = %q, want IDR", cfg.Billing.DefaultCurrency)
	}
	if got := cfg.Billing.DailyLimitFor(models.PlanPaid); got != 5000 {
		t.Errorf("DailyLimitFor(PAID) = %d, want 5000", got)
	}
	if cfg.Server.AuthBurstAlgorithm != "fixed_window" {
		t.Errorf("Server.AuthBurstAlgorithm = %q, want fixed_window", cfg.Server.AuthBurstAlgorithm)
	}
	if cfg.Redis.Enabled() {
		t.Error("Redis should be disabled without REDIS_HOST")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("SERVER_AUTH_BURST_ALGORITHM", "sliding_window")
	t.Setenv("BILLING_PLAN_DAILY_LIMITS", "FREE:10,PAID:20")
	t.Setenv("UPSTREAMS", "/v1/video=http://a:9001|http://b:9001,broken")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Server.AuthBurstAlgorithm != "sliding_window" {
		t.Errorf("Server.AuthBurstAlgorithm = %q, want sliding_window", cfg.Server.AuthBurstAlgorithm)
	}
	if got := cfg.Redis.GetRedisAddr(); got != "cache:6379" {
		t.Errorf("GetRedisAddr() = %q, want cache:6379", got)
	}
	if got := cfg.Billing.DailyLimitFor(models.PlanReseller); got != 10 {
		t.Errorf("DailyLimitFor(RESELLER) falls back to FREE, got %d want 10", got)
	}

	ups := cfg.UpstreamList()
	if len(ups) != 1 || ups[0].Path != "/v1/video" || len(ups[0].Targets) != 2 {
		t.Fatalf("UpstreamList() = %+v", ups)
	}
	if ups[0].Targets[1] != "http://b:9001" {
		t.Errorf("second target = %q", ups[0].Targets[1])
	}
}

func TestLoadRejectsUnknownPlan(t *testing.T) {
	t.Setenv("BILLING_PLAN_PRICES", "GOLD:100")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown plan in BILLING_PLAN_PRICES")
	}
}

func TestLoadRejectsUnknownBurstAlgorithm(t *testing.T) {
	t.Setenv("SERVER_AUTH_BURST_ALGORITHM", "leaky_bucket")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown SERVER_AUTH_BURST_ALGORITHM")
	}
}

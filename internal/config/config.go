package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server    ServerConfig    `envconfig:"SERVER"`
	Database  DatabaseConfig  `envconfig:"DB"`
	Redis     RedisConfig     `envconfig:"REDIS"`
	JWT       JWTConfig       `envconfig:"JWT"`
	Billing   BillingConfig   `envconfig:"BILLING"`
	Scheduler SchedulerConfig `envconfig:"SCHEDULER"`
	Storage   StorageConfig   `envconfig:"S3"`
	Audit     AuditConfig     `envconfig:"AUDIT"`
	Notify    NotifyConfig    `envconfig:"TELEGRAM"`
	Bootstrap BootstrapConfig `envconfig:"BOOTSTRAP"`

	// Comma-separated "prefix=target|target" entries, e.g. "/v1/video=http://a:9001|http://b:9001"
	Upstreams []string `envconfig:"UPSTREAMS"`
	// Load balancing strategy applied to every upstream
	UpstreamStrategy string `envconfig:"UPSTREAM_STRATEGY" default:"round-robin"`
}

type ServerConfig struct {
	Port        string   `envconfig:"PORT" default:"8080"`
	Environment string   `envconfig:"ENV" default:"development"`
	LogLevel    string   `envconfig:"LOG_LEVEL" default:"info"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
	// Requests per minute per client IP on /auth endpoints
	AuthBurstLimit int `envconfig:"AUTH_BURST_LIMIT" default:"20"`
	// fixed_window, sliding_window or token_bucket
	AuthBurstAlgorithm string `envconfig:"AUTH_BURST_ALGORITHM" default:"fixed_window"`
}

var burstAlgorithms = map[string]bool{
	"fixed_window":   true,
	"sliding_window": true,
	"token_bucket":   true,
}

type DatabaseConfig struct {
	Driver       string `envconfig:"DRIVER" default:"postgres"`
	DSN          string `envconfig:"DSN" default:"host=localhost user=postgres password=postgres dbname=marketplace port=5432 sslmode=disable TimeZone=UTC"`
	MaxIdleConns int    `envconfig:"MAX_IDLE_CONNS" default:"10"`
	MaxOpenConns int    `envconfig:"MAX_OPEN_CONNS" default:"100"`
}

type RedisConfig struct {
	Host     string `envconfig:"HOST"`
	Port     int    `envconfig:"PORT" default:"6379"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`
}

// Enabled reports whether a Redis host is configured. Redis is optional.
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

func (r RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret      string `envconfig:"SECRET" default:"change-me-in-production"`
	ExpiryHours int    `envconfig:"EXPIRY_HOURS" default:"24"`
}

type BillingConfig struct {
	DefaultCurrency string `envconfig:"DEFAULT_CURRENCY" default:"IDR"`
	PeriodDays      int    `envconfig:"PERIOD_DAYS" default:"30"`
	// Price per period in minor units
	PlanPrices map[string]int64 `envconfig:"PLAN_PRICES" default:"PAID:5000,RESELLER:15000"`
	// Default ApiKey.dailyLimit per plan
	PlanDailyLimits map[string]int `envconfig:"PLAN_DAILY_LIMITS" default:"FREE:100,PAID:5000,RESELLER:50000"`
}

func (b BillingConfig) PriceFor(plan models.Plan) (int64, bool) {
	price, ok := b.PlanPrices[string(plan)]
	return price, ok && price > 0
}

func (b BillingConfig) DailyLimitFor(plan models.Plan) int {
	if limit, ok := b.PlanDailyLimits[string(plan)]; ok && limit >= 0 {
		return limit
	}
	return b.PlanDailyLimits[string(models.PlanFree)]
}

func (b BillingConfig) Period() time.Duration {
	return time.Duration(b.PeriodDays) * 24 * time.Hour
}

type SchedulerConfig struct {
	SubscriptionSweep string `envconfig:"SUBSCRIPTION_SWEEP" default:"*/15 * * * *"`
	LogCleanup        string `envconfig:"LOG_CLEANUP" default:"30 3 * * *"`
	LogRetentionDays  int    `envconfig:"LOG_RETENTION_DAYS" default:"30"`
}

type StorageConfig struct {
	Endpoint  string `envconfig:"ENDPOINT"`
	Bucket    string `envconfig:"BUCKET"`
	Region    string `envconfig:"REGION" default:"us-east-1"`
	AccessKey string `envconfig:"ACCESS_KEY"`
	SecretKey string `envconfig:"SECRET_KEY"`
}

func (s StorageConfig) Enabled() bool {
	return s.Bucket != ""
}

type AuditConfig struct {
	GCPProjectID string `envconfig:"GCP_PROJECT_ID"`
	Topic        string `envconfig:"TOPIC" default:"marketplace-audit"`
}

type NotifyConfig struct {
	BotToken    string `envconfig:"BOT_TOKEN"`
	AdminChatID int64  `envconfig:"ADMIN_CHAT_ID"`
}

type BootstrapConfig struct {
	AdminEmail    string `envconfig:"ADMIN_EMAIL"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`
}

// Upstream is one metered adapter service mounted under a path prefix.
type Upstream struct {
	Path    string
	Targets []string
}

func (c *Config) UpstreamList() []Upstream {
	list := make([]Upstream, 0, len(c.Upstreams))
	for _, entry := range c.Upstreams {
		path, raw, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		var targets []string
		for _, t := range strings.Split(raw, "|") {
			if t = strings.TrimSpace(t); t != "" {
				targets = append(targets, t)
			}
		}
		list = append(list, Upstream{Path: strings.TrimSpace(path), Targets: targets})
	}
	return list
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if !burstAlgorithms[cfg.Server.AuthBurstAlgorithm] {
		return nil, fmt.Errorf("SERVER_AUTH_BURST_ALGORITHM: unknown algorithm %q", cfg.Server.AuthBurstAlgorithm)
	}
	if cfg.Billing.PeriodDays <= 0 {
		return nil, fmt.Errorf("BILLING_PERIOD_DAYS must be positive, got %d", cfg.Billing.PeriodDays)
	}
	for name := range cfg.Billing.PlanDailyLimits {
		if _, err := models.ParsePlan(name); err != nil {
			return nil, fmt.Errorf("BILLING_PLAN_DAILY_LIMITS: %w", err)
		}
	}
	for name := range cfg.Billing.PlanPrices {
		if _, err := models.ParsePlan(name); err != nil {
			return nil, fmt.Errorf("BILLING_PLAN_PRICES: %w", err)
		}
	}

	return &cfg, nil
}

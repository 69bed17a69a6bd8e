package storage

import (
	"fmt"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"golang.org/x/net/context"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the gorm handle shared by every repository.
type Database struct {
	DB *gorm.DB
}

func gormConfig(level logger.LogLevel) *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(level),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// dsn - Data Source Name
func NewPostgres(dsn string, maxIdle, maxOpen int) (*Database, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig(logger.Warn))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &Database{DB: db}, nil
}

// NewSQLite opens a SQLite database for local development and tests.
// SQLite has a single writer, so the pool is pinned to one connection and
// transactions serialize.
func NewSQLite(dsn string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(logger.Silent))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return &Database{DB: db}, nil
}

// Open picks the driver named in configuration.
func Open(driver, dsn string, maxIdle, maxOpen int) (*Database, error) {
	switch driver {
	case "postgres", "":
		return NewPostgres(dsn, maxIdle, maxOpen)
	case "sqlite":
		return NewSQLite(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}

func (d *Database) AutoMigrate() error {
	err := d.DB.AutoMigrate(
		&models.User{},
		&models.APIKey{},
		&models.UsageLog{},
		&models.BillingInvoice{},
		&models.UserSubscription{},
		&models.AuditLog{},
		&models.RequestLog{},
	)
	if err != nil {
		return err
	}

	// Partial unique index backs the one-ACTIVE-subscription-per-user invariant.
	// Both Postgres and SQLite support it.
	return d.DB.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_user_subscriptions_one_active
		ON user_subscriptions (user_id) WHERE status = 'ACTIVE'`).Error
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// Transaction runs fn inside one database transaction bound to ctx.
func (d *Database) Transaction(ctx context.Context, fn func(*gorm.DB) error) error {
	return d.DB.WithContext(ctx).Transaction(fn)
}

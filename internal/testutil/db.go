// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/storage"
	"github.com/google/uuid"
)

// NewDatabase opens a private in-memory SQLite database with the full schema.
func NewDatabase(t testing.TB) *storage.Database {
	t.Helper()

	db, err := storage.NewSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

// CreateUser inserts a user on the given plan.
func CreateUser(t testing.TB, db *storage.Database, plan models.Plan) *models.User {
	t.Helper()

	user := &models.User{
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "x",
		Name:         "test",
		Plan:         plan,
	}
	if err := db.DB.WithContext(context.Background()).Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	return user
}

// CreateKey inserts an API key whose hash is the given value.
func CreateKey(t testing.TB, db *storage.Database, userID uuid.UUID, hash string, limit int) *models.APIKey {
	t.Helper()

	key := &models.APIKey{
		UserID:     userID,
		KeyHash:    hash,
		KeyPrefix:  "mk_test",
		Name:       "default",
		DailyLimit: limit,
	}
	if err := db.DB.WithContext(context.Background()).Create(key).Error; err != nil {
		t.Fatalf("failed to create api key: %v", err)
	}

	return key
}

// Clock is a settable time source for services that take func() time.Time.
type Clock struct {
	T time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{T: t.UTC()}
}

func (c *Clock) Now() time.Time {
	return c.T
}

func (c *Clock) Advance(d time.Duration) {
	c.T = c.T.Add(d)
}

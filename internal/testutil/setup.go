// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/db"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens a private in-memory SQLite database with all tables migrated.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.Migrate(database); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return database
}

// SeedUser creates a user with a linked Google account carrying refreshToken.
// An empty refreshToken still creates the account row.
func SeedUser(t *testing.T, database *gorm.DB, id, refreshToken string) models.User {
	t.Helper()

	user := models.User{
		ID:    id,
		Email: id + "@example.com",
		Name:  "User " + id,
		Image: "https://example.com/" + id + ".png",
	}
	account := models.Account{
		Provider:          models.ProviderGoogle,
		ProviderAccountID: id,
		UserID:            id,
		Type:              "oauth",
		AccessToken:       "access-" + id,
		RefreshToken:      refreshToken,
		ExpiresAt:         time.Now().Add(time.Hour).Unix(),
		TokenType:         "Bearer",
	}
	if err := db.UpsertLogin(database, &user, &account, nil); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return user
}

// SeedUserWithoutAccount creates a user that never linked a Google account.
func SeedUserWithoutAccount(t *testing.T, database *gorm.DB, id string) models.User {
	t.Helper()

	user := models.User{ID: id, Email: id + "@example.com", Name: "User " + id}
	if err := database.Create(&user).Error; err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return user
}

// SeedSession creates a session for userID expiring at expires.
func SeedSession(t *testing.T, database *gorm.DB, userID string, expires time.Time) string {
	t.Helper()

	token := uuid.NewString()
	if err := database.Create(&models.Session{
		SessionToken: token,
		UserID:       userID,
		Expires:      expires.UTC(),
	}).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return token
}

// SeedConfig creates an active monitor config for userID.
func SeedConfig(t *testing.T, database *gorm.DB, userID, scriptID, webhookURL string) models.MonitorConfig {
	t.Helper()

	cfg := models.MonitorConfig{
		ID:         uuid.NewString(),
		UserID:     userID,
		ScriptID:   scriptID,
		WebhookURL: webhookURL,
		IsActive:   true,
	}
	if err := db.CreateConfig(database, &cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	return cfg
}

package db

import (
	"fmt"
	"time"

	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertLogin replaces the user and account rows and records the new session.
// The three writes share one transaction so a failed login leaves no partial state.
func UpsertLogin(db *gorm.DB, user *models.User, account *models.Account, session *models.Session) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(user).Error; err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(account).Error; err != nil {
			return fmt.Errorf("upsert account: %w", err)
		}
		if session == nil {
			return nil
		}
		if err := tx.Create(session).Error; err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	})
}

// FindSessionUser returns the user owning an unexpired session token.
func FindSessionUser(db *gorm.DB, token string, now time.Time) (*models.User, error) {
	var user models.User
	err := db.Model(&models.User{}).
		Joins("JOIN sessions ON sessions.user_id = users.id").
		Where("sessions.session_token = ? AND sessions.expires > ?", token, now.UTC()).
		Take(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// DeleteSession removes a session row. Deleting an absent token is not an error.
func DeleteSession(db *gorm.DB, token string) error {
	return db.Where("session_token = ?", token).Delete(&models.Session{}).Error
}

// DeleteExpiredSessions purges sessions whose expiry has passed.
func DeleteExpiredSessions(db *gorm.DB, now time.Time) (int64, error) {
	res := db.Where("expires <= ?", now.UTC()).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

// FindAccount loads the account row of a user for one provider.
func FindAccount(db *gorm.DB, userID, provider string) (*models.Account, error) {
	var account models.Account
	if err := db.Where("user_id = ? AND provider = ?", userID, provider).Take(&account).Error; err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

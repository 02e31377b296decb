package state

import (
	"context"
	"fmt"
	"time"

	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/db/models"
	"gorm.io/gorm"
)

// GormStore keeps state values in the oauth_states table.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ Store = (*GormStore)(nil)

// NewGormStore constructs a database-backed state store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

func (s *GormStore) Save(ctx context.Context, state string, ttl time.Duration) error {
	now := s.now().UTC()
	row := models.OAuthState{State: state, ExpiresAt: now.Add(ttl), CreatedAt: now}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	// Opportunistic cleanup of abandoned sign-ins.
	s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.OAuthState{})
	return nil
}

func (s *GormStore) Consume(ctx context.Context, state string) (bool, error) {
	if state == "" {
		return false, nil
	}
	res := s.db.WithContext(ctx).
		Where("state = ? AND expires_at > ?", state, s.now().UTC()).
		Delete(&models.OAuthState{})
	if res.Error != nil {
		return false, fmt.Errorf("consume state: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

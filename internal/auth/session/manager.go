// Package session turns a completed Google sign-in into an opaque,
// server-side session and resolves session tokens back to users.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/auth/google"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/auth/state"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/db"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/db/models"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

var (
	// ErrMissingCode is returned when the callback carries no authorization code.
	ErrMissingCode = errors.New("authorization code not found")
	// ErrInvalidState is returned when the callback state was never issued,
	// was already used or has expired.
	ErrInvalidState = errors.New("invalid oauth state")
)

// AuthError wraps the sign-in step that failed.
type AuthError struct {
	Step string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed during %s: %v", e.Step, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IdentityProvider is the part of the Google client the manager needs.
type IdentityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, accessToken string) (*google.Profile, error)
}

// Manager handles the sign-in lifecycle.
type Manager struct {
	db       *gorm.DB
	provider IdentityProvider
	states   state.Store
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewManager creates a session manager. Sessions live for ttl.
func NewManager(database *gorm.DB, provider IdentityProvider, states state.Store, ttl time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		db:       database,
		provider: provider,
		states:   states,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.Named("session"),
	}
}

// TTL returns the lifetime of new sessions.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// BeginLogin issues a fresh state value and returns the consent page URL for it.
func (m *Manager) BeginLogin(ctx context.Context) (authURL, stateValue string, err error) {
	stateValue, err = state.Generate()
	if err != nil {
		return "", "", err
	}
	if err := m.states.Save(ctx, stateValue, state.TTL); err != nil {
		return "", "", err
	}
	return m.provider.AuthURL(stateValue), stateValue, nil
}

// CompleteLogin redeems the callback, persists the user and account, and
// returns the new session.
func (m *Manager) CompleteLogin(ctx context.Context, code, stateValue string) (*models.Session, error) {
	if code == "" {
		return nil, ErrMissingCode
	}

	ok, err := m.states.Consume(ctx, stateValue)
	if err != nil {
		return nil, &AuthError{Step: "state", Err: err}
	}
	if !ok {
		return nil, ErrInvalidState
	}

	token, err := m.provider.Exchange(ctx, code)
	if err != nil {
		return nil, &AuthError{Step: "token exchange", Err: err}
	}

	profile, err := m.provider.FetchProfile(ctx, token.AccessToken)
	if err != nil {
		return nil, &AuthError{Step: "profile", Err: err}
	}

	now := m.now().UTC()
	user := models.User{
		ID:    profile.ID,
		Email: profile.Email,
		Name:  profile.Name,
		Image: profile.Picture,
	}
	account := models.Account{
		Provider:          models.ProviderGoogle,
		ProviderAccountID: profile.ID,
		UserID:            profile.ID,
		Type:              "oauth",
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		ExpiresAt:         tokenExpiry(token, now),
		TokenType:         "Bearer",
		Scope:             strings.Join(google.Scopes, " "),
	}
	session := models.Session{
		SessionToken: uuid.NewString(),
		UserID:       profile.ID,
		Expires:      now.Add(m.ttl),
	}

	if err := db.UpsertLogin(m.db.WithContext(ctx), &user, &account, &session); err != nil {
		return nil, &AuthError{Step: "persist", Err: err}
	}

	m.logger.Info("user signed in",
		zap.String("user_id", user.ID),
		zap.Bool("refresh_token", token.RefreshToken != ""),
	)
	return &session, nil
}

// ResolveSession returns the user behind token, or nil when the token is
// empty, unknown, expired, or points at an incomplete user row.
func (m *Manager) ResolveSession(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	user, err := db.FindSessionUser(m.db.WithContext(ctx), token, m.now())
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if user.ID == "" || user.Email == "" {
		return nil, nil
	}
	return user, nil
}

// EndLogin deletes the session. Unknown tokens are ignored.
func (m *Manager) EndLogin(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := db.DeleteSession(m.db.WithContext(ctx), token); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

func tokenExpiry(token *oauth2.Token, now time.Time) int64 {
	if token.Expiry.IsZero() {
		return now.Unix()
	}
	return token.Expiry.Unix()
}

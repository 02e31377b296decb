package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// ErrEmptyAccessToken is returned when a refresh yields no access token.
var ErrEmptyAccessToken = errors.New("invalid response format from OAuth API: missing access_token")

// TokenRefresher trades stored refresh tokens for fresh access tokens.
type TokenRefresher struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewTokenRefresher creates a refresher using config's token endpoint.
func NewTokenRefresher(config *oauth2.Config, httpClient *http.Client) *TokenRefresher {
	return &TokenRefresher{config: config, httpClient: httpClient}
}

// Refresh exchanges refreshToken for a new access token.
func (r *TokenRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if r.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	}

	token, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	if token.AccessToken == "" {
		return nil, ErrEmptyAccessToken
	}
	return token, nil
}

// IsPermanentRefreshError reports whether err means the grant is gone and the
// user has to sign in again.
func IsPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch retrieveErr.ErrorCode {
		case "invalid_grant", "invalid_client", "unauthorized_client":
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"invalid_grant", "token has been expired or revoked", "revoked"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Package google talks to Google's OAuth 2.0 and userinfo endpoints.
package google

import (
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/config"
	"golang.org/x/oauth2"
	googleOAuth "golang.org/x/oauth2/google"
)

// Scopes requested at sign-in. script.metrics is what the monitor needs;
// the rest identify the user.
var Scopes = []string{
	"openid",
	"email",
	"profile",
	"https://www.googleapis.com/auth/script.metrics",
}

// NewOAuthConfig builds the OAuth client config from relay settings.
// Endpoint URLs fall back to Google's production endpoints.
func NewOAuthConfig(cfg config.Config) *oauth2.Config {
	endpoint := googleOAuth.Endpoint
	if cfg.GoogleAuthURL != "" {
		endpoint.AuthURL = cfg.GoogleAuthURL
	}
	if cfg.GoogleTokenURL != "" {
		endpoint.TokenURL = cfg.GoogleTokenURL
	}

	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.OAuthRedirectURL,
		Scopes:       Scopes,
		Endpoint:     endpoint,
	}
}

package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/util"
	"golang.org/x/oauth2"
)

// ErrIncompleteProfile is returned when userinfo lacks an id or email.
var ErrIncompleteProfile = errors.New("userinfo response missing id or email")

// Profile is the subset of the userinfo v2 document the relay stores.
type Profile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Provider runs the authorization code flow against Google.
type Provider struct {
	config      *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// NewProvider creates a Provider. httpClient is used for the code exchange
// and the userinfo call; nil means http.DefaultClient.
func NewProvider(config *oauth2.Config, userInfoURL string, httpClient *http.Client) *Provider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Provider{config: config, userInfoURL: userInfoURL, httpClient: httpClient}
}

// Config exposes the underlying OAuth config, shared with the token refresher.
func (p *Provider) Config() *oauth2.Config {
	return p.config
}

// AuthURL returns the consent page URL. Offline access with forced consent
// makes Google issue a refresh token on every sign-in.
func (p *Provider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return token, nil
}

// FetchProfile loads the signed-in user's profile with the access token.
func (p *Provider) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read userinfo response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("userinfo request failed with status %d: %s", resp.StatusCode, util.TruncateBytes(body))
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if profile.ID == "" || profile.Email == "" {
		return nil, ErrIncompleteProfile
	}
	return &profile, nil
}

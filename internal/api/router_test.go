package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/auth/google"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/auth/session"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/auth/state"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/config"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/db"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/db/models"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/monitor"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/testutil"
	"github.com/hrdtbs/gas-metrics-subscription-demo/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const frontend = "https://app.example.com"

// fakeGoogle serves the token, userinfo and metrics endpoints plus a webhook.
type fakeGoogle struct {
	mu           sync.Mutex
	refreshFails bool
	webhookHits  []upstream.Notification
}

func (g *fakeGoogle) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			io.WriteString(w, `{"access_token":"access-login","refresh_token":"refresh-login","token_type":"Bearer","expires_in":3600}`)
		case "refresh_token":
			g.mu.Lock()
			fail := g.refreshFails
			g.mu.Unlock()
			if fail {
				w.WriteHeader(http.StatusBadRequest)
				io.WriteString(w, `{"error":"invalid_grant"}`)
				return
			}
			io.WriteString(w, `{"access_token":"access-fresh","token_type":"Bearer","expires_in":3600}`)
		}
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"g-1","email":"alice@example.com","name":"Alice","picture":"https://example.com/alice.png"}`)
	})
	mux.HandleFunc("/v1/projects/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-fresh", r.Header.Get("Authorization"))
		io.WriteString(w, `{"activeUsers":[{"value":"1","startTime":"a","endTime":"b"}],"totalExecutions":[{"value":"5","startTime":"a","endTime":"b"}],"failedExecutions":[]}`)
	})
	mux.HandleFunc("/hook", func(w http.ResponseWriter, r *http.Request) {
		var n upstream.Notification
		require.NoError(t, json.NewDecoder(r.Body).Decode(&n))
		g.mu.Lock()
		g.webhookHits = append(g.webhookHits, n)
		g.mu.Unlock()
	})
	return mux
}

func (g *fakeGoogle) failRefresh() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refreshFails = true
}

func (g *fakeGoogle) hits() []upstream.Notification {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]upstream.Notification(nil), g.webhookHits...)
}

type testEnv struct {
	router http.Handler
	db     *gorm.DB
	google *fakeGoogle
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := &fakeGoogle{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	database := testutil.SetupTestDB(t)
	cfg := config.Config{
		GoogleClientID:     "client-id",
		GoogleClientSecret: "client-secret",
		OAuthRedirectURL:   "https://relay.example.com/auth/callback",
		GoogleAuthURL:      srv.URL + "/auth",
		GoogleTokenURL:     srv.URL + "/token",
	}
	oauthConfig := google.NewOAuthConfig(cfg)
	provider := google.NewProvider(oauthConfig, srv.URL+"/userinfo", srv.Client())
	sessions := session.NewManager(database, provider, state.NewGormStore(database), config.SessionTTL, zap.NewNop())

	client := upstream.NewClient(srv.Client(), srv.URL)
	runner := monitor.NewRunner(database, upstream.NewTokenRefresher(oauthConfig, srv.Client()), client, client, zap.NewNop())

	router := NewRouter(Deps{
		DB:             database,
		Sessions:       sessions,
		Checker:        runner,
		FrontendOrigin: frontend,
		Logger:         zap.NewNop(),
	})
	return &testEnv{router: router, db: database, google: fake, server: srv}
}

func (e *testEnv) do(t *testing.T, method, path, body, sessionToken string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: "session", Value: sessionToken})
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// signIn walks signin -> callback and returns the session token.
func (e *testEnv) signIn(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/auth/signin", "", "")
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	stateValue := location.Query().Get("state")
	require.NotEmpty(t, stateValue)

	stateCookie := cookieNamed(rec, "oauth_state")
	require.NotNil(t, stateCookie)
	assert.Equal(t, stateValue, stateCookie.Value)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=the-code&state="+stateValue, nil)
	req.AddCookie(stateCookie)
	cb := httptest.NewRecorder()
	e.router.ServeHTTP(cb, req)
	require.Equal(t, http.StatusFound, cb.Code, cb.Body.String())
	assert.Equal(t, frontend, cb.Header().Get("Location"))

	sessionCookie := cookieNamed(cb, "session")
	require.NotNil(t, sessionCookie)
	assert.True(t, sessionCookie.HttpOnly)
	assert.True(t, sessionCookie.Secure)
	assert.Equal(t, http.SameSiteNoneMode, sessionCookie.SameSite)
	assert.Equal(t, "/", sessionCookie.Path)
	assert.Equal(t, 2592000, sessionCookie.MaxAge)
	return sessionCookie.Value
}

func TestSignInRedirect(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/auth/signin", "", "")
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	q := location.Query()
	assert.Equal(t, env.server.URL+"/auth", location.Scheme+"://"+location.Host+location.Path)
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "openid email profile https://www.googleapis.com/auth/script.metrics", q.Get("scope"))
}

func TestCallbackRejections(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/auth/callback", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Authorization code not found"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/auth/callback?code=x&state=forged", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid state"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=x&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "forged"})
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "state never issued by the store")

	var sessions int64
	require.NoError(t, env.db.Model(&models.Session{}).Count(&sessions).Error)
	assert.Zero(t, sessions)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/session", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"session":null}`, rec.Body.String())

	token := env.signIn(t)

	rec = env.do(t, http.MethodGet, "/api/session", "", token)
	assert.JSONEq(t, `{"session":{"user":{"id":"g-1","email":"alice@example.com","name":"Alice","image":"https://example.com/alice.png"}}}`, rec.Body.String())

	account, err := db.FindAccount(env.db, "g-1", models.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "refresh-login", account.RefreshToken)

	rec = env.do(t, http.MethodPost, "/auth/signout", "", token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	cleared := cookieNamed(rec, "session")
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	rec = env.do(t, http.MethodGet, "/api/session", "", token)
	assert.JSONEq(t, `{"session":null}`, rec.Body.String())
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)
	testutil.SeedUser(t, env.db, "u1", "r")
	expired := testutil.SeedSession(t, env.db, "u1", time.Now().Add(-time.Minute))

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/configs"},
		{http.MethodPost, "/api/configs"},
		{http.MethodPost, "/api/configs/abc/test"},
		{http.MethodGet, "/api/logs"},
		{http.MethodGet, "/api/unknown"},
	}
	for _, rt := range routes {
		for _, token := range []string{"", "garbage", expired} {
			rec := env.do(t, rt.method, rt.path, "", token)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s token=%q", rt.method, rt.path, token)
			assert.JSONEq(t, `{"error":"Authentication required"}`, rec.Body.String())
		}
	}
}

func TestConfigsAndTestRun(t *testing.T) {
	env := newTestEnv(t)
	token := env.signIn(t)
	hook := env.server.URL + "/hook"

	rec := env.do(t, http.MethodPost, "/api/configs", `{"script_id":"abc"}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing required fields: script_id, webhook_url"}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/configs", `{"script_id":"abc","webhook_url":"ftp://x"}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid webhook_url"}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/configs", `{not json`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/configs", `{"script_id":"abc","webhook_url":"`+hook+`"}`, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var created struct {
		Success  bool   `json:"success"`
		ConfigID string `json:"config_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.Success)
	require.NotEmpty(t, created.ConfigID)

	rec = env.do(t, http.MethodGet, "/api/configs", "", token)
	var listed struct {
		Configs []models.MonitorConfig `json:"configs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Configs, 1)
	assert.Equal(t, created.ConfigID, listed.Configs[0].ID)
	assert.Equal(t, "abc", listed.Configs[0].ScriptID)
	assert.True(t, listed.Configs[0].IsActive)

	rec = env.do(t, http.MethodPost, "/api/configs/"+created.ConfigID+"/test", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Test completed"}`, rec.Body.String())
	hits := env.google.hits()
	require.Len(t, hits, 1)
	assert.Equal(t, "abc", hits[0].ScriptID)

	env.google.failRefresh()
	rec = env.do(t, http.MethodPost, "/api/configs/"+created.ConfigID+"/test", "", token)
	require.Equal(t, http.StatusOK, rec.Code, "upstream failures are recorded, not surfaced")
	assert.Len(t, env.google.hits(), 1)

	rec = env.do(t, http.MethodGet, "/api/logs?limit=1", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Logs       []db.LogEntry `json:"logs"`
		Pagination struct {
			Limit  int   `json:"limit"`
			Offset int   `json:"offset"`
			Total  int64 `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Pagination.Limit)
	assert.Equal(t, 0, page.Pagination.Offset)
	assert.Equal(t, int64(2), page.Pagination.Total)
	require.Len(t, page.Logs, 1)
	assert.Equal(t, "abc", page.Logs[0].ScriptID)
}

func TestTestRunNotFound(t *testing.T) {
	env := newTestEnv(t)
	token := env.signIn(t)
	testutil.SeedUser(t, env.db, "other", "r")
	theirs := testutil.SeedConfig(t, env.db, "other", "script-x", "https://example.com/x")

	for _, id := range []string{"missing", theirs.ID} {
		rec := env.do(t, http.MethodPost, "/api/configs/"+id+"/test", "", token)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"Config not found"}`, rec.Body.String())
	}

	var rows int64
	require.NoError(t, env.db.Model(&models.MonitorLog{}).Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestLogsPaginationDefaults(t *testing.T) {
	env := newTestEnv(t)
	token := env.signIn(t)

	for _, q := range []string{"", "?limit=abc&offset=-3", "?limit=0"} {
		rec := env.do(t, http.MethodGet, "/api/logs"+q, "", token)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"logs":[],"pagination":{"limit":50,"offset":0,"total":0}}`, rec.Body.String(), q)
	}

	rec := env.do(t, http.MethodGet, "/api/logs?limit=1000&offset=5", "", token)
	assert.JSONEq(t, `{"logs":[],"pagination":{"limit":200,"offset":5,"total":0}}`, rec.Body.String())
}

func TestMiscRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	_, err := time.Parse(time.RFC3339, health["timestamp"])
	assert.NoError(t, err)
	assert.Equal(t, frontend, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = env.do(t, http.MethodGet, "/", "", "")
	assert.Equal(t, "Gas Metrics API Server", rec.Body.String())

	rec = env.do(t, http.MethodOptions, "/api/configs", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	token := env.signIn(t)
	rec = env.do(t, http.MethodGet, "/api/unknown", "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Route not found"}`, rec.Body.String())
}

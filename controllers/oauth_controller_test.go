package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/cppla/aiblog/config"
	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/services"
)

func newOAuthFixture(t *testing.T, provider *httptest.Server) (*OAuthController, *services.MemberService, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	cfg := &config.AppConfig{
		JWTSecret:          "test-secret",
		SiteBackURL:        "http://localhost:8080",
		SiteFrontURL:       "http://localhost:3000",
		OAuthRedirectBase:  "http://localhost:8080",
		CookieDomain:       "localhost",
		GitHubClientID:     "client",
		GitHubClientSecret: "secret",
		DBDriver:           "sqlite",
		DatabaseURI:        filepath.Join(dir, "test.db"),
		LogLevel:           "silent",
	}
	db, err := config.InitDatabase(cfg, &models.Member{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	members := services.NewMemberService(db, cfg, services.NewAuthTokenService(cfg))
	c := NewOAuthController(cfg, members)
	if provider != nil {
		c.providers = map[string]oauthProvider{
			"github": {
				endpoint:    oauth2.Endpoint{AuthURL: provider.URL + "/authorize", TokenURL: provider.URL + "/token"},
				userInfoURL: provider.URL + "/user",
			},
		}
		c.client = provider.Client()
	}

	r := gin.New()
	r.GET("/oauth/:provider/login", c.Login)
	r.GET("/oauth/:provider/callback", c.Callback)
	return c, members, r
}

func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"provider-token","token_type":"bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer provider-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":4242,"login":"octo","name":"","avatar_url":"https://avatars.example.com/octo.png"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOAuthLoginAndCallback(t *testing.T) {
	_, members, r := newOAuthFixture(t, fakeGitHub(t))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth/github/login?redirectUrl="+url.QueryEscape("http://localhost:3000/posts/1"), nil))
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, "client", loc.Query().Get("client_id"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth/github/callback?code=abc&state="+state, nil))
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, "http://localhost:3000/posts/1", w.Header().Get("Location"))
	assert.Len(t, w.Result().Cookies(), 2)

	m, err := members.FindByUsername(context.Background(), "GITHUB__4242")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "octo", m.Nickname)
	assert.Equal(t, "https://avatars.example.com/octo.png", m.ProfileImgURL)

	// a state is single use
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth/github/callback?code=abc&state="+state, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOAuthUnknownProvider(t *testing.T) {
	_, _, r := newOAuthFixture(t, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/oauth/kakao/login", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSafeRedirect(t *testing.T) {
	c, _, _ := newOAuthFixture(t, nil)
	assert.Equal(t, "http://localhost:3000", c.safeRedirect(""))
	assert.Equal(t, "http://localhost:3000/me", c.safeRedirect("http://localhost:3000/me"))
	assert.Equal(t, "http://localhost:3000", c.safeRedirect("http://localhost:3000.evil.com/"))
	assert.Equal(t, "http://localhost:3000", c.safeRedirect("https://evil.com"))
}

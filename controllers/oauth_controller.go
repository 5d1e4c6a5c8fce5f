package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/cppla/aiblog/config"
	"github.com/cppla/aiblog/middleware"
	"github.com/cppla/aiblog/services"
	"github.com/cppla/aiblog/utils"
)

const oauthStateTTL = 10 * time.Minute

type oauthProvider struct {
	endpoint    oauth2.Endpoint
	userInfoURL string
	scopes      []string
}

var defaultOAuthProviders = map[string]oauthProvider{
	"github": {endpoint: github.Endpoint, userInfoURL: "https://api.github.com/user", scopes: []string{"read:user"}},
	"google": {endpoint: google.Endpoint, userInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo", scopes: []string{"openid", "profile"}},
}

// OAuthController signs members in through GitHub or Google. Accounts are
// keyed by "<PROVIDER>__<provider id>" usernames.
type OAuthController struct {
	cfg       *config.AppConfig
	members   *services.MemberService
	providers map[string]oauthProvider
	client    *http.Client
}

func NewOAuthController(cfg *config.AppConfig, members *services.MemberService) *OAuthController {
	return &OAuthController{
		cfg:       cfg,
		members:   members,
		providers: defaultOAuthProviders,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type oauthUser struct {
	ID          string
	DisplayName string
	AvatarURL   string
}

// Login redirects to the provider's consent page.
func (c *OAuthController) Login(ctx *gin.Context) {
	provider := strings.ToLower(ctx.Param("provider"))
	cfg, err := c.oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, err.Error())
		return
	}

	state := uuid.NewString()
	utils.SaveState(state, c.safeRedirect(ctx.Query("redirectUrl")), oauthStateTTL)
	ctx.Redirect(http.StatusFound, cfg.AuthCodeURL(state))
}

// Callback exchanges the code, joins or updates the member and returns to the front end.
func (c *OAuthController) Callback(ctx *gin.Context) {
	provider := strings.ToLower(ctx.Param("provider"))
	code := ctx.Query("code")
	state := ctx.Query("state")
	if code == "" || state == "" {
		utils.Error(ctx, http.StatusBadRequest, 40041, "missing code or state")
		return
	}

	redirectURL, ok := utils.ConsumeState(state)
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40042, "invalid or expired state")
		return
	}

	cfg, err := c.oauthConfig(provider)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, err.Error())
		return
	}

	reqCtx := context.WithValue(ctx.Request.Context(), oauth2.HTTPClient, c.client)
	token, err := cfg.Exchange(reqCtx, code)
	if err != nil {
		utils.Logger.Warn("oauth exchange failed", zap.String("provider", provider), zap.Error(err))
		utils.Error(ctx, http.StatusBadRequest, 40043, "failed to exchange code")
		return
	}

	user, err := c.fetchUser(reqCtx, provider, token)
	if err != nil {
		utils.Logger.Error("oauth profile fetch failed", zap.String("provider", provider), zap.Error(err))
		utils.Error(ctx, http.StatusBadGateway, 50240, "failed to load profile")
		return
	}

	username := strings.ToUpper(provider) + "__" + user.ID
	m, err := c.members.ModifyOrJoin(ctx.Request.Context(), username, user.DisplayName, user.AvatarURL)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	accessToken, err := c.members.AccessToken(m)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	middleware.SetAuthCookie(ctx, c.cfg, middleware.APIKeyCookie, m.APIKey)
	middleware.SetAuthCookie(ctx, c.cfg, middleware.AccessTokenCookie, accessToken)
	ctx.Redirect(http.StatusFound, redirectURL)
}

func (c *OAuthController) oauthConfig(provider string) (*oauth2.Config, error) {
	p, ok := c.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
	var id, secret string
	switch provider {
	case "github":
		id, secret = c.cfg.GitHubClientID, c.cfg.GitHubClientSecret
	case "google":
		id, secret = c.cfg.GoogleClientID, c.cfg.GoogleClientSecret
	}
	if id == "" || secret == "" {
		return nil, fmt.Errorf("%s oauth not configured", provider)
	}
	return &oauth2.Config{
		ClientID:     id,
		ClientSecret: secret,
		RedirectURL:  fmt.Sprintf("%s/api/v1/members/oauth/%s/callback", c.cfg.OAuthRedirectBase, provider),
		Scopes:       p.scopes,
		Endpoint:     p.endpoint,
	}, nil
}

func (c *OAuthController) fetchUser(ctx context.Context, provider string, token *oauth2.Token) (*oauthUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.providers[provider].userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s user info request failed: %s", provider, resp.Status)
	}

	switch provider {
	case "github":
		var payload struct {
			ID        int64  `json:"id"`
			Login     string `json:"login"`
			Name      string `json:"name"`
			AvatarURL string `json:"avatar_url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, err
		}
		return &oauthUser{
			ID:          strconv.FormatInt(payload.ID, 10),
			DisplayName: fallback(payload.Name, payload.Login),
			AvatarURL:   payload.AvatarURL,
		}, nil
	default:
		var payload struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Picture string `json:"picture"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, err
		}
		return &oauthUser{ID: payload.ID, DisplayName: payload.Name, AvatarURL: payload.Picture}, nil
	}
}

// safeRedirect only allows returning to the configured front end.
func (c *OAuthController) safeRedirect(u string) string {
	if u != "" && c.cfg.SiteFrontURL != "" && (u == c.cfg.SiteFrontURL || strings.HasPrefix(u, c.cfg.SiteFrontURL+"/")) {
		return u
	}
	if c.cfg.SiteFrontURL != "" {
		return c.cfg.SiteFrontURL
	}
	return "/"
}

func fallback(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

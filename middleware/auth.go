package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/aiblog/config"
	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/services"
	"github.com/cppla/aiblog/utils"
)

const (
	// ContextMemberKey stores the authenticated *models.Member.
	ContextMemberKey = "member"
	// ContextAdminKey stores whether the member is an administrator.
	ContextAdminKey = "isAdmin"
	// ContextAccessTokenKey stores the access token used by the request.
	ContextAccessTokenKey = "accessToken"

	APIKeyCookie      = "apiKey"
	AccessTokenCookie = "accessToken"
)

// Paths that authenticate on their own.
var selfAuthPaths = map[string]bool{
	"/api/v1/members/login":  true,
	"/api/v1/members/logout": true,
	"/api/v1/members/join":   true,
}

// Authenticate resolves the caller from "Authorization: Bearer <apiKey> <accessToken>"
// or the apiKey/accessToken cookies. A valid access token is trusted as is;
// otherwise the API key is looked up and a fresh access token is handed back
// in the Authorization response header and the accessToken cookie.
// Requests without credentials pass through anonymously.
func Authenticate(cfg *config.AppConfig, members *services.MemberService) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		path := ctx.Request.URL.Path
		if !strings.HasPrefix(path, "/api/") || selfAuthPaths[path] {
			ctx.Next()
			return
		}

		apiKey, accessToken, ok := authTokens(ctx)
		if !ok {
			ctx.Next()
			return
		}

		if !utils.IsTokenRevoked(accessToken) {
			if claims, err := members.Tokens().Parse(accessToken); err == nil {
				setActor(ctx, claims.Member(), claims.IsAdmin(), accessToken)
				ctx.Next()
				return
			}
		}

		m, err := members.FindByAPIKey(ctx.Request.Context(), apiKey)
		if err != nil {
			utils.Fail(ctx, err)
			ctx.Abort()
			return
		}
		if m == nil {
			utils.Error(ctx, http.StatusUnauthorized, 40120, "invalid api key")
			ctx.Abort()
			return
		}
		token, err := members.AccessToken(m)
		if err != nil {
			utils.Fail(ctx, err)
			ctx.Abort()
			return
		}
		ctx.Header("Authorization", "Bearer "+m.APIKey+" "+token)
		SetAuthCookie(ctx, cfg, AccessTokenCookie, token)
		setActor(ctx, m, members.IsAdmin(m), token)
		ctx.Next()
	}
}

// ParseBearer splits "Bearer <apiKey> <accessToken>".
func ParseBearer(header string) (apiKey, accessToken string, ok bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", "", false
	}
	bits := strings.SplitN(strings.TrimPrefix(header, "Bearer "), " ", 2)
	if len(bits) != 2 || bits[0] == "" || bits[1] == "" {
		return "", "", false
	}
	return bits[0], bits[1], true
}

func authTokens(ctx *gin.Context) (apiKey, accessToken string, ok bool) {
	if apiKey, accessToken, ok = ParseBearer(ctx.GetHeader("Authorization")); ok {
		return apiKey, accessToken, true
	}
	apiKey, _ = ctx.Cookie(APIKeyCookie)
	accessToken, _ = ctx.Cookie(AccessTokenCookie)
	return apiKey, accessToken, apiKey != "" && accessToken != ""
}

func setActor(ctx *gin.Context, m *models.Member, admin bool, accessToken string) {
	ctx.Set(ContextMemberKey, m)
	ctx.Set(ContextAdminKey, admin)
	ctx.Set(ContextAccessTokenKey, accessToken)
}

// Actor returns the authenticated member, or nil for anonymous requests.
func Actor(ctx *gin.Context) *models.Member {
	v, ok := ctx.Get(ContextMemberKey)
	if !ok {
		return nil
	}
	m, _ := v.(*models.Member)
	return m
}

// IsAdmin reports whether the caller is an administrator.
func IsAdmin(ctx *gin.Context) bool {
	return ctx.GetBool(ContextAdminKey)
}

// AuthRequired rejects anonymous requests.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if Actor(ctx) == nil {
			utils.Error(ctx, http.StatusUnauthorized, 40110, "login required")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// AdminRequired rejects callers that are not administrators.
func AdminRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if Actor(ctx) == nil {
			utils.Error(ctx, http.StatusUnauthorized, 40110, "login required")
			ctx.Abort()
			return
		}
		if !IsAdmin(ctx) {
			utils.Error(ctx, http.StatusForbidden, 40310, "admin only")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// SetAuthCookie writes an http-only, strict same-site cookie for the site domain.
func SetAuthCookie(ctx *gin.Context, cfg *config.AppConfig, name, value string) {
	writeAuthCookie(ctx, cfg, name, value, int((365 * 24 * time.Hour).Seconds()))
}

// DeleteAuthCookie expires the cookie.
func DeleteAuthCookie(ctx *gin.Context, cfg *config.AppConfig, name string) {
	writeAuthCookie(ctx, cfg, name, "", -1)
}

func writeAuthCookie(ctx *gin.Context, cfg *config.AppConfig, name, value string, maxAge int) {
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(name, value, maxAge, "/", cookieDomain(cfg.CookieDomain), true, true)
}

func cookieDomain(domain string) string {
	if domain == "" || domain == "localhost" {
		return domain
	}
	return "." + strings.TrimPrefix(domain, ".")
}

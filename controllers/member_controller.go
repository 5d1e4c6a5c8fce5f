package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/aiblog/config"
	"github.com/cppla/aiblog/middleware"
	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/services"
	"github.com/cppla/aiblog/utils"
)

// MemberController handles sign up, sign in and the caller's profile.
type MemberController struct {
	cfg     *config.AppConfig
	members *services.MemberService
}

func NewMemberController(cfg *config.AppConfig, members *services.MemberService) *MemberController {
	return &MemberController{cfg: cfg, members: members}
}

type joinRequest struct {
	Username string `json:"username" binding:"required,min=2,max=30"`
	Password string `json:"password" binding:"required,min=2,max=50"`
	Nickname string `json:"nickname" binding:"required,min=2,max=30"`
}

// Join registers a member.
func (c *MemberController) Join(ctx *gin.Context) {
	var req joinRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Fail(ctx, errInvalidPayload)
		return
	}
	m, err := c.members.Join(ctx.Request.Context(), req.Username, req.Password, req.Nickname, "")
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Created(ctx, "welcome, "+m.Name(), newMemberDto(c.members, m))
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials and sets the apiKey and accessToken cookies.
func (c *MemberController) Login(ctx *gin.Context) {
	var req loginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Fail(ctx, errInvalidPayload)
		return
	}
	m, err := c.members.Login(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	token, err := c.setAuthCookies(ctx, m)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Respond(ctx, http.StatusOK, 0, "welcome back, "+m.Name(), gin.H{
		"item":        newMemberDto(c.members, m),
		"apiKey":      m.APIKey,
		"accessToken": token,
	})
}

// Logout expires the auth cookies and revokes the access token in use.
func (c *MemberController) Logout(ctx *gin.Context) {
	token, _ := ctx.Cookie(middleware.AccessTokenCookie)
	if token == "" {
		if _, t, ok := middleware.ParseBearer(ctx.GetHeader("Authorization")); ok {
			token = t
		}
	}
	if token != "" {
		if claims, err := c.members.Tokens().Parse(token); err == nil && claims.ExpiresAt != nil {
			utils.RevokeToken(token, claims.ExpiresAt.Time)
		}
	}
	middleware.DeleteAuthCookie(ctx, c.cfg, middleware.APIKeyCookie)
	middleware.DeleteAuthCookie(ctx, c.cfg, middleware.AccessTokenCookie)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the caller's profile.
func (c *MemberController) Me(ctx *gin.Context) {
	m, ok := me(ctx, c.members)
	if !ok {
		return
	}
	utils.Success(ctx, newMemberWithUsernameDto(c.members, m))
}

type modifyMeRequest struct {
	Nickname      string `json:"nickname" binding:"required,min=2,max=30"`
	ProfileImgURL string `json:"profileImgUrl" binding:"omitempty,url"`
}

// ModifyMe updates the caller's profile. The access token is reissued so it
// carries the new nickname.
func (c *MemberController) ModifyMe(ctx *gin.Context) {
	var req modifyMeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Fail(ctx, errInvalidPayload)
		return
	}
	m, ok := me(ctx, c.members)
	if !ok {
		return
	}
	if err := c.members.Modify(ctx.Request.Context(), m, req.Nickname, req.ProfileImgURL); err != nil {
		utils.Fail(ctx, err)
		return
	}
	token, err := c.members.AccessToken(m)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	middleware.SetAuthCookie(ctx, c.cfg, middleware.AccessTokenCookie, token)
	ctx.Header("Authorization", "Bearer "+m.APIKey+" "+token)
	utils.Success(ctx, newMemberWithUsernameDto(c.members, m))
}

func (c *MemberController) setAuthCookies(ctx *gin.Context, m *models.Member) (string, error) {
	token, err := c.members.AccessToken(m)
	if err != nil {
		return "", err
	}
	middleware.SetAuthCookie(ctx, c.cfg, middleware.APIKeyCookie, m.APIKey)
	middleware.SetAuthCookie(ctx, c.cfg, middleware.AccessTokenCookie, token)
	return token, nil
}

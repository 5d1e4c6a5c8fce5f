package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/aiblog/genfile"
	"github.com/cppla/aiblog/middleware"
	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/services"
	"github.com/cppla/aiblog/utils"
)

// Cached public post listings; invalidated whenever a post or its thumbnail changes.
const postListCachePrefix = "cache:posts:list:"

var (
	errInvalidID      = utils.BadRequest(40001, "invalid id")
	errInvalidPayload = utils.BadRequest(40002, "invalid request payload")
	errFileMissing    = utils.BadRequest(40036, "no file uploaded")
	errMetaStr        = utils.BadRequest(40035, "metaStr is too long or contains reserved characters")
	errFileTooLarge   = utils.NewServiceError(http.StatusRequestEntityTooLarge, 41301, "file exceeds the upload size limit")
)

func parsePagination(ctx *gin.Context) (int, int) {
	page, _ := strconv.Atoi(ctx.Query("page"))
	pageSize, _ := strconv.Atoi(ctx.Query("pageSize"))
	return services.NormalizePaging(page, pageSize)
}

func parseID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.Fail(ctx, errInvalidID)
		return 0, false
	}
	return uint(id), true
}

// actor returns the caller as recorded by the auth middleware, possibly nil.
func actor(ctx *gin.Context) *models.Member {
	return middleware.Actor(ctx)
}

// me loads the caller's full record.
func me(ctx *gin.Context, members *services.MemberService) (*models.Member, bool) {
	a := actor(ctx)
	if a == nil {
		utils.Fail(ctx, services.ErrLoginRequired)
		return nil, false
	}
	m, err := members.FindByID(ctx.Request.Context(), a.ID)
	if err != nil {
		utils.Fail(ctx, err)
		return nil, false
	}
	if m == nil {
		utils.Fail(ctx, services.ErrLoginRequired)
		return nil, false
	}
	return m, true
}

func loadPost(ctx *gin.Context, posts *services.PostService, param string) (*models.Post, bool) {
	id, ok := parseID(ctx, param)
	if !ok {
		return nil, false
	}
	p, err := posts.Get(ctx.Request.Context(), id)
	if err != nil {
		utils.Fail(ctx, err)
		return nil, false
	}
	return p, true
}

func stageError(err error) error {
	switch {
	case errors.Is(err, genfile.ErrTooLarge):
		return errFileTooLarge
	case errors.Is(err, genfile.ErrInvalidMetaStr):
		return errMetaStr
	}
	return err
}

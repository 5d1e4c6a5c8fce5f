package controllers

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/aiblog/config"
	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/services"
	"github.com/cppla/aiblog/utils"
)

var errInvalidModifyDate = utils.BadRequest(40003, "invalid lastModifyDateAfter")

// PostController manages posts.
type PostController struct {
	cfg      *config.AppConfig
	posts    *services.PostService
	members  *services.MemberService
	genFiles *services.GenFileService
}

// NewPostController creates a new PostController instance.
func NewPostController(cfg *config.AppConfig, posts *services.PostService, members *services.MemberService, genFiles *services.GenFileService) *PostController {
	return &PostController{cfg: cfg, posts: posts, members: members, genFiles: genFiles}
}

type writePostRequest struct {
	Title     string `json:"title" binding:"required"`
	Content   string `json:"content"`
	Published bool   `json:"published"`
	Listed    bool   `json:"listed"`
}

// Items returns listed posts, newest first.
func (c *PostController) Items(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx)
	kwType := ctx.DefaultQuery("searchKeywordType", services.PostKwAll)
	kw := strings.TrimSpace(ctx.Query("searchKeyword"))

	// Only keyword-free listings are cached to keep the key space small
	cacheKey := ""
	if kw == "" {
		cacheKey = fmt.Sprintf("%spage=%d:size=%d", postListCachePrefix, page, pageSize)
		var cached services.Page[PostDto]
		if utils.CacheGetJSON(ctx.Request.Context(), cacheKey, &cached) {
			utils.Success(ctx, cached)
			return
		}
	}

	result, err := c.posts.Search(ctx.Request.Context(), services.PostQuery{KwType: kwType, Kw: kw, Page: page, PageSize: pageSize})
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	dto, err := c.pageDto(ctx, result)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	if cacheKey != "" {
		utils.CacheSetJSON(ctx.Request.Context(), cacheKey, dto, 5*time.Minute)
	}
	utils.Success(ctx, dto)
}

// Mine returns the caller's posts including drafts and unlisted ones.
func (c *PostController) Mine(ctx *gin.Context) {
	a := actor(ctx)
	page, pageSize := parsePagination(ctx)
	result, err := c.posts.Search(ctx.Request.Context(), services.PostQuery{
		KwType:   ctx.DefaultQuery("searchKeywordType", services.PostKwAll),
		Kw:       ctx.Query("searchKeyword"),
		Page:     page,
		PageSize: pageSize,
		AuthorID: a.ID,
	})
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	dto, err := c.pageDto(ctx, result)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, dto)
}

// Item returns one post. With lastModifyDateAfter it fails with 412 unless
// the post changed after that moment.
func (c *PostController) Item(ctx *gin.Context) {
	p, ok := loadPost(ctx, c.posts, "id")
	if !ok {
		return
	}
	if err := c.posts.CheckCanRead(actor(ctx), p); err != nil {
		utils.Fail(ctx, err)
		return
	}
	if raw := ctx.Query("lastModifyDateAfter"); raw != "" {
		after, err := parseDateTime(raw)
		if err != nil {
			utils.Fail(ctx, errInvalidModifyDate)
			return
		}
		if !p.UpdatedAt.After(after) {
			utils.Fail(ctx, services.ErrPostNotModified)
			return
		}
	}
	dto, err := c.withContentDto(ctx, p)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, dto)
}

// Temp returns the caller's upload draft, creating it on first use.
func (c *PostController) Temp(ctx *gin.Context) {
	m, ok := me(ctx, c.members)
	if !ok {
		return
	}
	p, created, err := c.posts.FindTempOrMake(ctx.Request.Context(), m)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	dto, err := c.withContentDto(ctx, p)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	if created {
		utils.Created(ctx, fmt.Sprintf("post %d created as a temporary draft", p.ID), dto)
		return
	}
	utils.Success(ctx, dto)
}

// Write creates a post.
func (c *PostController) Write(ctx *gin.Context) {
	var req writePostRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Fail(ctx, errInvalidPayload)
		return
	}
	m, ok := me(ctx, c.members)
	if !ok {
		return
	}
	p, err := c.posts.Write(ctx.Request.Context(), m, req.Title, req.Content, req.Published, req.Listed)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.InvalidateByPrefix(ctx.Request.Context(), postListCachePrefix)

	dto, err := c.withContentDto(ctx, p)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Created(ctx, fmt.Sprintf("post %d created", p.ID), dto)
}

// Modify rewrites a post. Author only.
func (c *PostController) Modify(ctx *gin.Context) {
	var req writePostRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Fail(ctx, errInvalidPayload)
		return
	}
	p, ok := loadPost(ctx, c.posts, "id")
	if !ok {
		return
	}
	if err := c.posts.CheckCanModify(actor(ctx), p); err != nil {
		utils.Fail(ctx, err)
		return
	}
	if err := c.posts.Modify(ctx.Request.Context(), p, req.Title, req.Content, req.Published, req.Listed); err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.InvalidateByPrefix(ctx.Request.Context(), postListCachePrefix)

	dto, err := c.withContentDto(ctx, p)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, dto)
}

// Delete removes a post with its comments and files. Author or admin.
func (c *PostController) Delete(ctx *gin.Context) {
	p, ok := loadPost(ctx, c.posts, "id")
	if !ok {
		return
	}
	if err := c.posts.CheckCanDelete(actor(ctx), p); err != nil {
		utils.Fail(ctx, err)
		return
	}
	if err := c.posts.Delete(ctx.Request.Context(), p); err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.InvalidateByPrefix(ctx.Request.Context(), postListCachePrefix)
	utils.Success(ctx, gin.H{"message": fmt.Sprintf("post %d deleted", p.ID)})
}

// Statistics summarizes site content for administrators.
func (c *PostController) Statistics(ctx *gin.Context) {
	st, err := c.posts.Statistics(ctx.Request.Context())
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, st)
}

func (c *PostController) postDto(p *models.Post, thumbnail *models.PostGenFile) PostDto {
	thumbURL := c.cfg.DefaultImgURL
	if thumbnail != nil {
		thumbURL = c.genFiles.PublicURL(thumbnail)
	}
	return PostDto{
		ID:                  p.ID,
		CreateDate:          p.CreatedAt,
		ModifyDate:          p.UpdatedAt,
		AuthorID:            p.AuthorID,
		AuthorName:          p.Author.Name(),
		AuthorProfileImgURL: c.members.ProfileImgURLOrDefault(&p.Author),
		Title:               p.Title,
		Published:           p.Published,
		Listed:              p.Listed,
		ThumbnailImgURL:     thumbURL,
	}
}

func (c *PostController) withContentDto(ctx *gin.Context, p *models.Post) (PostWithContentDto, error) {
	thumbnail, err := c.posts.Thumbnail(ctx.Request.Context(), p)
	if err != nil {
		return PostWithContentDto{}, err
	}
	a := actor(ctx)
	canModify := c.posts.CheckCanModify(a, p) == nil
	return PostWithContentDto{
		PostDto:                   c.postDto(p, thumbnail),
		Content:                   p.Content,
		ActorCanModify:            canModify,
		ActorCanDelete:            c.posts.CheckCanDelete(a, p) == nil,
		ActorCanManageAttachments: canModify,
	}, nil
}

func (c *PostController) pageDto(ctx *gin.Context, page *services.Page[models.Post]) (*services.Page[PostDto], error) {
	var ids []uint
	for _, p := range page.Items {
		if p.ThumbnailGenFileID != nil {
			ids = append(ids, *p.ThumbnailGenFileID)
		}
	}
	thumbnails, err := c.genFiles.FindByIDs(ctx.Request.Context(), ids)
	if err != nil {
		return nil, err
	}
	return services.MapPage(page, func(p *models.Post) PostDto {
		var thumbnail *models.PostGenFile
		if p.ThumbnailGenFileID != nil {
			thumbnail = thumbnails[*p.ThumbnailGenFileID]
		}
		return c.postDto(p, thumbnail)
	}), nil
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseDateTime accepts RFC 3339 or a zone-less local date time.
func parseDateTime(s string) (time.Time, error) {
	var err error
	for _, layout := range dateTimeLayouts {
		var t time.Time
		if t, err = time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

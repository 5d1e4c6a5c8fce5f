package controllers

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/aiblog/genfile"
	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/services"
	"github.com/cppla/aiblog/utils"
)

// GenFileController exposes the numbered file slots of a post.
type GenFileController struct {
	posts    *services.PostService
	genFiles *services.GenFileService
	stage    *genfile.Materializer
}

func NewGenFileController(posts *services.PostService, genFiles *services.GenFileService, stage *genfile.Materializer) *GenFileController {
	return &GenFileController{posts: posts, genFiles: genFiles, stage: stage}
}

// MakeNewItems stores every uploaded "files" part in new slots of the type named by :target.
func (c *GenFileController) MakeNewItems(ctx *gin.Context) {
	p, ok := c.writablePost(ctx)
	if !ok {
		return
	}
	typeCode := ctx.Param("target")
	if !models.IsGenFileType(typeCode) {
		utils.Fail(ctx, services.ErrGenFileType)
		return
	}
	form, err := ctx.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		utils.Fail(ctx, errFileMissing)
		return
	}

	staged, err := c.stageAll(form.File["files"], ctx.Query("metaStr"))
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	files, err := c.genFiles.AddMany(ctx.Request.Context(), p, typeCode, staged)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	c.touched(ctx, typeCode)

	out := make([]PostGenFileDto, 0, len(files))
	for _, g := range files {
		out = append(out, newPostGenFileDto(c.genFiles, g))
	}
	utils.Created(ctx, fmt.Sprintf("%d files created", len(out)), out)
}

// Items lists the post's files.
func (c *GenFileController) Items(ctx *gin.Context) {
	p, ok := c.readablePost(ctx)
	if !ok {
		return
	}
	files, err := c.genFiles.List(ctx.Request.Context(), p.ID)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	out := make([]PostGenFileDto, 0, len(files))
	for i := range files {
		out = append(out, newPostGenFileDto(c.genFiles, &files[i]))
	}
	utils.Success(ctx, out)
}

// Item returns the file whose id is :target.
func (c *GenFileController) Item(ctx *gin.Context) {
	p, ok := c.readablePost(ctx)
	if !ok {
		return
	}
	g, ok := c.find(ctx, p)
	if !ok {
		return
	}
	utils.Success(ctx, newPostGenFileDto(c.genFiles, g))
}

// Delete removes the file whose id is :target.
func (c *GenFileController) Delete(ctx *gin.Context) {
	p, ok := c.writablePost(ctx)
	if !ok {
		return
	}
	g, ok := c.find(ctx, p)
	if !ok {
		return
	}
	if err := c.genFiles.Delete(ctx.Request.Context(), p, g); err != nil {
		utils.Fail(ctx, err)
		return
	}
	c.touched(ctx, g.TypeCode)
	utils.Success(ctx, gin.H{"message": fmt.Sprintf("file %d deleted", g.ID)})
}

// Modify replaces the bytes of the file whose id is :target with the "file" part.
func (c *GenFileController) Modify(ctx *gin.Context) {
	p, ok := c.writablePost(ctx)
	if !ok {
		return
	}
	g, ok := c.find(ctx, p)
	if !ok {
		return
	}
	staged, ok := c.stageOne(ctx)
	if !ok {
		return
	}
	g, err := c.genFiles.Modify(ctx.Request.Context(), p, g, staged)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	c.touched(ctx, g.TypeCode)
	utils.Respond(ctx, http.StatusOK, 0, fmt.Sprintf("file %d modified", g.ID), newPostGenFileDto(c.genFiles, g))
}

// Put writes the "file" part into slot :fileNo of type :target, creating or
// replacing it. The metaStr query travels with the stored file.
func (c *GenFileController) Put(ctx *gin.Context) {
	typeCode := ctx.Param("target")
	fileNo, err := strconv.Atoi(ctx.Param("fileNo"))
	if err != nil {
		utils.Fail(ctx, services.ErrGenFileNo)
		return
	}
	if typeCode == models.GenFileTypeThumbnail && fileNo > 1 {
		utils.Fail(ctx, services.ErrThumbnailSlot)
		return
	}
	p, ok := c.writablePost(ctx)
	if !ok {
		return
	}
	staged, ok := c.stageOne(ctx)
	if !ok {
		return
	}
	g, created, err := c.genFiles.Put(ctx.Request.Context(), p, typeCode, fileNo, staged)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	c.touched(ctx, typeCode)
	dto := newPostGenFileDto(c.genFiles, g)
	if created {
		utils.Created(ctx, fmt.Sprintf("file %d created", g.ID), dto)
		return
	}
	utils.Respond(ctx, http.StatusOK, 0, fmt.Sprintf("file %d modified", g.ID), dto)
}

func (c *GenFileController) readablePost(ctx *gin.Context) (*models.Post, bool) {
	p, ok := loadPost(ctx, c.posts, "id")
	if !ok {
		return nil, false
	}
	if err := c.posts.CheckCanRead(actor(ctx), p); err != nil {
		utils.Fail(ctx, err)
		return nil, false
	}
	return p, true
}

func (c *GenFileController) writablePost(ctx *gin.Context) (*models.Post, bool) {
	p, ok := loadPost(ctx, c.posts, "id")
	if !ok {
		return nil, false
	}
	if err := c.posts.CheckCanModify(actor(ctx), p); err != nil {
		utils.Fail(ctx, err)
		return nil, false
	}
	return p, true
}

func (c *GenFileController) find(ctx *gin.Context, p *models.Post) (*models.PostGenFile, bool) {
	id, ok := parseID(ctx, "target")
	if !ok {
		return nil, false
	}
	g, err := c.genFiles.FindByID(ctx.Request.Context(), p.ID, id)
	if err != nil {
		utils.Fail(ctx, err)
		return nil, false
	}
	if g == nil {
		utils.Fail(ctx, services.ErrGenFileNotFound)
		return nil, false
	}
	return g, true
}

func (c *GenFileController) stageOne(ctx *gin.Context) (string, bool) {
	fh, err := ctx.FormFile("file")
	if err != nil {
		utils.Fail(ctx, errFileMissing)
		return "", false
	}
	staged, err := c.stage.StageMultipart(fh, ctx.Query("metaStr"))
	if err != nil {
		utils.Fail(ctx, stageError(err))
		return "", false
	}
	if staged == "" {
		utils.Fail(ctx, services.ErrGenFileEmpty)
		return "", false
	}
	return staged, true
}

// stageAll stages every part; on failure the ones already staged are removed.
func (c *GenFileController) stageAll(parts []*multipart.FileHeader, metaStr string) ([]string, error) {
	staged := make([]string, 0, len(parts))
	for _, fh := range parts {
		path, err := c.stage.StageMultipart(fh, metaStr)
		if err != nil {
			c.genFiles.Discard(staged)
			return nil, stageError(err)
		}
		staged = append(staged, path)
	}
	return staged, nil
}

// touched drops cached listings when a thumbnail changed.
func (c *GenFileController) touched(ctx *gin.Context, typeCode string) {
	if typeCode == models.GenFileTypeThumbnail {
		utils.InvalidateByPrefix(ctx.Request.Context(), postListCachePrefix)
	}
}

package controllers

import (
	"net/url"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/aiblog/genfile"
	"github.com/cppla/aiblog/services"
	"github.com/cppla/aiblog/utils"
)

var errGenFileBytesMissing = utils.NotFound(40432, "file content is missing")

// GenFileDownloadController serves stored files as attachments under their original names.
type GenFileDownloadController struct {
	posts    *services.PostService
	genFiles *services.GenFileService
}

func NewGenFileDownloadController(posts *services.PostService, genFiles *services.GenFileService) *GenFileDownloadController {
	return &GenFileDownloadController{posts: posts, genFiles: genFiles}
}

// Download handles GET /post/genFile/download/:postId/:fileName.
func (c *GenFileDownloadController) Download(ctx *gin.Context) {
	p, ok := loadPost(ctx, c.posts, "postId")
	if !ok {
		return
	}
	g, err := c.genFiles.FindByFileName(ctx.Request.Context(), p.ID, ctx.Param("fileName"))
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	if g == nil {
		utils.Fail(ctx, services.ErrGenFileNotFound)
		return
	}
	path := c.genFiles.Path(g)
	if _, err := os.Stat(path); err != nil {
		utils.Fail(ctx, errGenFileBytesMissing)
		return
	}

	ctx.Header("Content-Type", genfile.ContentType(g.FileExt))
	ctx.Header("Content-Disposition", contentDisposition(g.OriginalFileName))
	ctx.File(path)
}

// contentDisposition percent-encodes the name, keeping spaces readable.
func contentDisposition(name string) string {
	escaped := url.PathEscape(name)
	return `attachment; filename="` + strings.ReplaceAll(escaped, "%20", " ") + `"; filename*=UTF-8''` + escaped
}

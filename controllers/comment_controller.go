package controllers

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/services"
	"github.com/cppla/aiblog/utils"
)

// CommentController manages comments below a post.
type CommentController struct {
	posts    *services.PostService
	comments *services.CommentService
	members  *services.MemberService
}

func NewCommentController(posts *services.PostService, comments *services.CommentService, members *services.MemberService) *CommentController {
	return &CommentController{posts: posts, comments: comments, members: members}
}

type commentRequest struct {
	Content string `json:"content" binding:"required"`
}

func (c *CommentController) dto(pc *models.PostComment) PostCommentDto {
	return PostCommentDto{
		ID:                  pc.ID,
		CreateDate:          pc.CreatedAt,
		ModifyDate:          pc.UpdatedAt,
		PostID:              pc.PostID,
		AuthorID:            pc.AuthorID,
		AuthorName:          pc.Author.Name(),
		AuthorProfileImgURL: c.members.ProfileImgURLOrDefault(&pc.Author),
		Content:             pc.Content,
	}
}

// readablePost loads the post and checks that the caller may see it.
func (c *CommentController) readablePost(ctx *gin.Context) (*models.Post, bool) {
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

func (c *CommentController) Items(ctx *gin.Context) {
	p, ok := c.readablePost(ctx)
	if !ok {
		return
	}
	list, err := c.comments.List(ctx.Request.Context(), p.ID)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	out := make([]PostCommentDto, 0, len(list))
	for i := range list {
		out = append(out, c.dto(&list[i]))
	}
	utils.Success(ctx, out)
}

func (c *CommentController) Write(ctx *gin.Context) {
	var req commentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Fail(ctx, errInvalidPayload)
		return
	}
	p, ok := c.readablePost(ctx)
	if !ok {
		return
	}
	m, ok := me(ctx, c.members)
	if !ok {
		return
	}
	pc, err := c.comments.Write(ctx.Request.Context(), m, p, req.Content)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Created(ctx, fmt.Sprintf("comment %d created", pc.ID), c.dto(pc))
}

func (c *CommentController) Modify(ctx *gin.Context) {
	var req commentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Fail(ctx, errInvalidPayload)
		return
	}
	pc, ok := c.load(ctx)
	if !ok {
		return
	}
	if err := c.comments.CheckCanModify(actor(ctx), pc); err != nil {
		utils.Fail(ctx, err)
		return
	}
	if err := c.comments.Modify(ctx.Request.Context(), pc, req.Content); err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, c.dto(pc))
}

func (c *CommentController) Delete(ctx *gin.Context) {
	pc, ok := c.load(ctx)
	if !ok {
		return
	}
	if err := c.comments.CheckCanDelete(actor(ctx), pc); err != nil {
		utils.Fail(ctx, err)
		return
	}
	if err := c.comments.Delete(ctx.Request.Context(), pc); err != nil {
		utils.Fail(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": fmt.Sprintf("comment %d deleted", pc.ID)})
}

func (c *CommentController) load(ctx *gin.Context) (*models.PostComment, bool) {
	p, ok := c.readablePost(ctx)
	if !ok {
		return nil, false
	}
	commentID, ok := parseID(ctx, "commentId")
	if !ok {
		return nil, false
	}
	pc, err := c.comments.Get(ctx.Request.Context(), p.ID, commentID)
	if err != nil {
		utils.Fail(ctx, err)
		return nil, false
	}
	return pc, true
}

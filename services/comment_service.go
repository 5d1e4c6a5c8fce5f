package services

import (
	"context"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/utils"
)

const (
	commentMinLen = 2
	commentMaxLen = 100
)

var (
	ErrCommentNotFound        = utils.NotFound(40402, "comment not found")
	ErrCommentLength          = utils.BadRequest(40020, "comment must be 2 to 100 characters")
	ErrCommentModifyForbidden = utils.Forbidden(40311, "only the author can modify the comment")
	ErrCommentDeleteForbidden = utils.Forbidden(40312, "only the author or an admin can delete the comment")
)

type CommentService struct {
	db      *gorm.DB
	members *MemberService
}

func NewCommentService(db *gorm.DB, members *MemberService) *CommentService {
	return &CommentService{db: db, members: members}
}

// List returns the post's comments, newest first.
func (s *CommentService) List(ctx context.Context, postID uint) ([]models.PostComment, error) {
	var comments []models.PostComment
	err := s.db.WithContext(ctx).Preload("Author").
		Where("post_id = ?", postID).
		Order("id DESC").
		Find(&comments).Error
	return comments, err
}

// Get returns the comment of the post or ErrCommentNotFound.
func (s *CommentService) Get(ctx context.Context, postID, id uint) (*models.PostComment, error) {
	var c models.PostComment
	got, err := found(&c, s.db.WithContext(ctx).Preload("Author").Where("post_id = ?", postID).First(&c, id).Error)
	if err != nil {
		return nil, err
	}
	if got == nil {
		return nil, ErrCommentNotFound
	}
	return got, nil
}

func (s *CommentService) Write(ctx context.Context, author *models.Member, post *models.Post, content string) (*models.PostComment, error) {
	content, err := cleanComment(content)
	if err != nil {
		return nil, err
	}
	c := &models.PostComment{PostID: post.ID, AuthorID: author.ID, Content: content, Author: *author}
	if err := s.db.WithContext(ctx).Omit("Author").Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CommentService) Modify(ctx context.Context, c *models.PostComment, content string) error {
	content, err := cleanComment(content)
	if err != nil {
		return err
	}
	c.Content = content
	return s.db.WithContext(ctx).Model(c).Update("content", content).Error
}

func (s *CommentService) Delete(ctx context.Context, c *models.PostComment) error {
	return s.db.WithContext(ctx).Delete(&models.PostComment{}, c.ID).Error
}

func (s *CommentService) CheckCanModify(actor *models.Member, c *models.PostComment) error {
	if actor == nil {
		return ErrLoginRequired
	}
	if actor.ID != c.AuthorID {
		return ErrCommentModifyForbidden
	}
	return nil
}

func (s *CommentService) CheckCanDelete(actor *models.Member, c *models.PostComment) error {
	if actor == nil {
		return ErrLoginRequired
	}
	if actor.ID != c.AuthorID && !s.members.IsAdmin(actor) {
		return ErrCommentDeleteForbidden
	}
	return nil
}

func cleanComment(content string) (string, error) {
	content = utils.PlainText(content)
	if n := utf8.RuneCountInString(content); n < commentMinLen || n > commentMaxLen {
		return "", ErrCommentLength
	}
	return content, nil
}

package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/aiblog/genfile"
	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/utils"
)

var (
	ErrPostNotFound        = utils.NotFound(40401, "post not found")
	ErrPostNotModified     = utils.NewServiceError(412, 41201, "post not modified since the given date")
	ErrLoginRequired       = utils.Unauthorized(40110, "login required")
	ErrPostReadForbidden   = utils.Forbidden(40301, "only the author can read an unpublished post")
	ErrPostModifyForbidden = utils.Forbidden(40302, "only the author can modify the post")
	ErrPostDeleteForbidden = utils.Forbidden(40303, "only the author or an admin can delete the post")
	ErrPostTitleRequired   = utils.BadRequest(40010, "title is required")
	ErrPostTitleTooLong    = utils.BadRequest(40011, "title must be at most 100 characters")
)

const postTitleMaxLen = 100

// Post search keyword types.
const (
	PostKwAll     = "all"
	PostKwTitle   = "title"
	PostKwContent = "content"
	PostKwAuthor  = "author"
)

// PostQuery selects a page of posts.
type PostQuery struct {
	KwType   string
	Kw       string
	Page     int
	PageSize int
	// AuthorID limits results to one author and includes unlisted posts.
	AuthorID uint
}

// PostStatistics summarizes the site for administrators.
type PostStatistics struct {
	TotalPostCount     int64 `json:"totalPostCount"`
	TotalMemberCount   int64 `json:"totalMemberCount"`
	TotalCommentCount  int64 `json:"totalCommentCount"`
	TotalGenFileCount  int64 `json:"totalGenFileCount"`
	TotalGenFileBytes  int64 `json:"totalGenFileBytes"`
	PublishedPostCount int64 `json:"publishedPostCount"`
}

type PostService struct {
	db       *gorm.DB
	members  *MemberService
	genFiles *GenFileService
	now      func() time.Time
}

// NewPostService creates a PostService.
func NewPostService(db *gorm.DB, members *MemberService, genFiles *GenFileService) *PostService {
	return &PostService{db: db, members: members, genFiles: genFiles, now: time.Now}
}

// Write creates a post. A post is only listed when it is published.
func (s *PostService) Write(ctx context.Context, author *models.Member, title, content string, published, listed bool) (*models.Post, error) {
	title, err := cleanTitle(title)
	if err != nil {
		return nil, err
	}
	p := &models.Post{
		AuthorID:  author.ID,
		Title:     title,
		Content:   utils.Sanitize(content),
		Published: published,
		Listed:    published && listed,
		Author:    *author,
	}
	if err := s.db.WithContext(ctx).Omit("Author").Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// FindTempOrMake returns the author's upload draft, creating it when missing.
// created reports whether a new draft was made.
func (s *PostService) FindTempOrMake(ctx context.Context, author *models.Member) (p *models.Post, created bool, err error) {
	var existing models.Post
	err = s.db.WithContext(ctx).
		Where("author_id = ? AND published = ? AND title = ?", author.ID, false, models.TempPostTitle).
		Order("id").
		First(&existing).Error
	temp, err := found(&existing, err)
	if err != nil {
		return nil, false, err
	}
	if temp != nil {
		temp.Author = *author
		return temp, false, nil
	}
	p, err = s.Write(ctx, author, models.TempPostTitle, "", false, false)
	return p, err == nil, err
}

// Modify rewrites the post. A draft turning into a real post gets a fresh creation date.
func (s *PostService) Modify(ctx context.Context, p *models.Post, title, content string, published, listed bool) error {
	title, err := cleanTitle(title)
	if err != nil {
		return err
	}
	wasTemp := p.IsTemp()
	p.Title = title
	p.Content = utils.Sanitize(content)
	p.Published = published
	p.Listed = published && listed

	updates := map[string]interface{}{
		"title":     p.Title,
		"content":   p.Content,
		"published": p.Published,
		"listed":    p.Listed,
	}
	if wasTemp && !p.IsTemp() {
		p.CreatedAt = s.now()
		updates["created_at"] = p.CreatedAt
	}
	return s.db.WithContext(ctx).Model(p).Updates(updates).Error
}

// Delete removes the post with its comments and generated files.
func (s *PostService) Delete(ctx context.Context, p *models.Post) error {
	unlock := s.genFiles.LockPost(p.ID)
	defer unlock()

	c := genfile.NewCommit()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", p.ID).Delete(&models.PostComment{}).Error; err != nil {
			return err
		}
		if err := s.genFiles.DeleteAllForPost(tx, p, c); err != nil {
			return err
		}
		return tx.Delete(&models.Post{}, p.ID).Error
	})
	if err != nil {
		c.Discard()
		return err
	}
	if err := c.Apply(); err != nil {
		utils.Logger.Error("remove files of deleted post", zap.Uint("postId", p.ID), zap.Error(err))
	}
	return nil
}

// FindByID loads the post with its author, or nil.
func (s *PostService) FindByID(ctx context.Context, id uint) (*models.Post, error) {
	var p models.Post
	return found(&p, s.db.WithContext(ctx).Preload("Author").First(&p, id).Error)
}

// Get loads the post or fails with ErrPostNotFound.
func (s *PostService) Get(ctx context.Context, id uint) (*models.Post, error) {
	p, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPostNotFound
	}
	return p, nil
}

// Search pages through listed posts, or through one author's posts when
// q.AuthorID is set. Newest first.
func (s *PostService) Search(ctx context.Context, q PostQuery) (*Page[models.Post], error) {
	page, pageSize := NormalizePaging(q.Page, q.PageSize)
	db := s.db.WithContext(ctx).Model(&models.Post{})
	if q.AuthorID != 0 {
		db = db.Where("author_id = ?", q.AuthorID)
	} else {
		db = db.Where("listed = ?", true)
	}
	if kw := strings.TrimSpace(q.Kw); kw != "" {
		like := "%" + kw + "%"
		authors := s.db.Model(&models.Member{}).Select("id").Where("nickname LIKE ?", like)
		switch q.KwType {
		case PostKwTitle:
			db = db.Where("title LIKE ?", like)
		case PostKwContent:
			db = db.Where("content LIKE ?", like)
		case PostKwAuthor:
			db = db.Where("author_id IN (?)", authors)
		default:
			db = db.Where("title LIKE ? OR content LIKE ? OR author_id IN (?)", like, like, authors)
		}
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, err
	}
	var items []models.Post
	err := db.Preload("Author").
		Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return NewPage(items, page, pageSize, total), nil
}

// Statistics counts posts, members, comments and stored files.
func (s *PostService) Statistics(ctx context.Context) (*PostStatistics, error) {
	db := s.db.WithContext(ctx)
	var st PostStatistics
	if err := db.Model(&models.Post{}).Count(&st.TotalPostCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Post{}).Where("published = ?", true).Count(&st.PublishedPostCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Member{}).Count(&st.TotalMemberCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.PostComment{}).Count(&st.TotalCommentCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.PostGenFile{}).Count(&st.TotalGenFileCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.PostGenFile{}).Select("COALESCE(SUM(file_size), 0)").Scan(&st.TotalGenFileBytes).Error; err != nil {
		return nil, err
	}
	return &st, nil
}

// Thumbnail returns the post's thumbnail record, or nil.
func (s *PostService) Thumbnail(ctx context.Context, p *models.Post) (*models.PostGenFile, error) {
	if p.ThumbnailGenFileID == nil {
		return nil, nil
	}
	return s.genFiles.FindByID(ctx, p.ID, *p.ThumbnailGenFileID)
}

// CheckCanRead allows everyone to read published posts; drafts only their author or an admin.
func (s *PostService) CheckCanRead(actor *models.Member, p *models.Post) error {
	if p.Published {
		return nil
	}
	if actor == nil {
		return ErrLoginRequired
	}
	if actor.ID == p.AuthorID || s.members.IsAdmin(actor) {
		return nil
	}
	return ErrPostReadForbidden
}

// CheckCanModify allows only the author. Generated file writes follow the same rule.
func (s *PostService) CheckCanModify(actor *models.Member, p *models.Post) error {
	if actor == nil {
		return ErrLoginRequired
	}
	if actor.ID != p.AuthorID {
		return ErrPostModifyForbidden
	}
	return nil
}

// CheckCanDelete allows the author and admins.
func (s *PostService) CheckCanDelete(actor *models.Member, p *models.Post) error {
	if actor == nil {
		return ErrLoginRequired
	}
	if actor.ID != p.AuthorID && !s.members.IsAdmin(actor) {
		return ErrPostDeleteForbidden
	}
	return nil
}

func cleanTitle(title string) (string, error) {
	title = utils.PlainText(title)
	if title == "" {
		return "", ErrPostTitleRequired
	}
	if utf8.RuneCountInString(title) > postTitleMaxLen {
		return "", ErrPostTitleTooLong
	}
	return title, nil
}

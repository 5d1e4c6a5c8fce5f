package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/cppla/aiblog/config"
	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/utils"
)

var (
	ErrUsernameTaken   = utils.Conflict(40901, "username already exists")
	ErrUnknownUsername = utils.Unauthorized(40101, "username does not exist")
	ErrWrongPassword   = utils.Unauthorized(40102, "password does not match")
)

// Member search keyword types.
const (
	MemberKwAll      = "all"
	MemberKwUsername = "username"
	MemberKwNickname = "nickname"
)

// MemberService handles accounts and credentials.
type MemberService struct {
	db     *gorm.DB
	cfg    *config.AppConfig
	tokens *AuthTokenService
}

// NewMemberService creates a MemberService.
func NewMemberService(db *gorm.DB, cfg *config.AppConfig, tokens *AuthTokenService) *MemberService {
	return &MemberService{db: db, cfg: cfg, tokens: tokens}
}

// Join registers a new member with a fresh API key.
func (s *MemberService) Join(ctx context.Context, username, password, nickname, profileImgURL string) (*models.Member, error) {
	return s.join(ctx, username, password, nickname, profileImgURL, uuid.NewString())
}

func (s *MemberService) join(ctx context.Context, username, password, nickname, profileImgURL, apiKey string) (*models.Member, error) {
	username = strings.TrimSpace(username)
	existing, err := s.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	m := &models.Member{
		Username:      username,
		Nickname:      utils.PlainText(nickname),
		APIKey:        apiKey,
		ProfileImgURL: profileImgURL,
	}
	if m.Nickname == "" {
		m.Nickname = username
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		m.PasswordHash = string(hash)
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return m, nil
}

// Login verifies the credentials.
func (s *MemberService) Login(ctx context.Context, username, password string) (*models.Member, error) {
	m, err := s.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrUnknownUsername
	}
	if m.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)) != nil {
		return nil, ErrWrongPassword
	}
	return m, nil
}

// ModifyOrJoin updates the profile of username, registering it first when unknown.
// Used for members that sign in through an OAuth provider.
func (s *MemberService) ModifyOrJoin(ctx context.Context, username, nickname, profileImgURL string) (*models.Member, error) {
	m, err := s.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return s.Join(ctx, username, "", nickname, profileImgURL)
	}
	if err := s.Modify(ctx, m, nickname, profileImgURL); err != nil {
		return nil, err
	}
	return m, nil
}

// Modify updates nickname and, when given, the profile image.
func (s *MemberService) Modify(ctx context.Context, m *models.Member, nickname, profileImgURL string) error {
	if nick := utils.PlainText(nickname); nick != "" {
		m.Nickname = nick
	}
	if profileImgURL != "" {
		m.ProfileImgURL = profileImgURL
	}
	return s.db.WithContext(ctx).Model(m).Updates(map[string]interface{}{
		"nickname":        m.Nickname,
		"profile_img_url": m.ProfileImgURL,
	}).Error
}

// FindByID returns nil when the member does not exist.
func (s *MemberService) FindByID(ctx context.Context, id uint) (*models.Member, error) {
	var m models.Member
	return found(&m, s.db.WithContext(ctx).First(&m, id).Error)
}

// FindByUsername returns nil when the member does not exist.
func (s *MemberService) FindByUsername(ctx context.Context, username string) (*models.Member, error) {
	var m models.Member
	return found(&m, s.db.WithContext(ctx).Where("username = ?", username).First(&m).Error)
}

// FindByAPIKey returns nil when no member owns apiKey.
func (s *MemberService) FindByAPIKey(ctx context.Context, apiKey string) (*models.Member, error) {
	if apiKey == "" {
		return nil, nil
	}
	var m models.Member
	return found(&m, s.db.WithContext(ctx).Where("api_key = ?", apiKey).First(&m).Error)
}

// Search pages through members, newest first.
func (s *MemberService) Search(ctx context.Context, kwType, kw string, page, pageSize int) (*Page[models.Member], error) {
	page, pageSize = NormalizePaging(page, pageSize)
	q := s.db.WithContext(ctx).Model(&models.Member{})
	if kw = strings.TrimSpace(kw); kw != "" {
		like := "%" + kw + "%"
		switch kwType {
		case MemberKwUsername:
			q = q.Where("username LIKE ?", like)
		case MemberKwNickname:
			q = q.Where("nickname LIKE ?", like)
		default:
			q = q.Where("username LIKE ? OR nickname LIKE ?", like, like)
		}
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}
	var items []models.Member
	if err := q.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&items).Error; err != nil {
		return nil, err
	}
	return NewPage(items, page, pageSize, total), nil
}

// Count returns the number of members.
func (s *MemberService) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Member{}).Count(&n).Error
	return n, err
}

// IsAdmin reports whether m is a configured administrator.
func (s *MemberService) IsAdmin(m *models.Member) bool {
	return m != nil && s.cfg.IsAdminUsername(m.Username)
}

// AccessToken issues an access token for m.
func (s *MemberService) AccessToken(m *models.Member) (string, error) {
	return s.tokens.Issue(m, s.IsAdmin(m))
}

// Tokens exposes the token service.
func (s *MemberService) Tokens() *AuthTokenService {
	return s.tokens
}

// ProfileImgURLOrDefault falls back to the site placeholder image.
func (s *MemberService) ProfileImgURLOrDefault(m *models.Member) string {
	if m.ProfileImgURL != "" {
		return m.ProfileImgURL
	}
	return s.cfg.DefaultImgURL
}

package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cppla/aiblog/config"
	"github.com/cppla/aiblog/models"
)

const (
	AuthorityMember = "ROLE_MEMBER"
	AuthorityAdmin  = "ROLE_ADMIN"
)

// Claims defines JWT claims carried by access tokens.
type Claims struct {
	ID          uint     `json:"id"`
	Username    string   `json:"username"`
	Nickname    string   `json:"nickname"`
	Authorities []string `json:"authorities"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token grants administrator rights.
func (c *Claims) IsAdmin() bool {
	for _, a := range c.Authorities {
		if a == AuthorityAdmin {
			return true
		}
	}
	return false
}

// AuthTokenService issues and validates short-lived access tokens.
// Long-lived identity is the member's API key.
type AuthTokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewAuthTokenService creates an AuthTokenService from the configured secret and lifetime.
func NewAuthTokenService(cfg *config.AppConfig) *AuthTokenService {
	return &AuthTokenService{secret: []byte(cfg.JWTSecret), ttl: cfg.AccessTokenTTL()}
}

// TTL returns the access token lifetime.
func (s *AuthTokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs an access token for m.
func (s *AuthTokenService) Issue(m *models.Member, admin bool) (string, error) {
	authorities := []string{AuthorityMember}
	if admin {
		authorities = append(authorities, AuthorityAdmin)
	}
	now := time.Now()
	claims := Claims{
		ID:          m.ID,
		Username:    m.Username,
		Nickname:    m.Nickname,
		Authorities: authorities,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse validates a token and returns its claims.
func (s *AuthTokenService) Parse(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.ID == 0 {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Member rebuilds the member identity carried by the claims without a database read.
func (c *Claims) Member() *models.Member {
	return &models.Member{ID: c.ID, Username: c.Username, Nickname: c.Nickname}
}

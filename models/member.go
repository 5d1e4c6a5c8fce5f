package models

import (
	"time"

	"gorm.io/gorm"
)

// Member is a registered account. Passwords are stored as bcrypt hashes only;
// members created through OAuth have none.
type Member struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Username      string    `gorm:"size:100;not null;uniqueIndex" json:"username"`
	PasswordHash  string    `gorm:"size:255" json:"-"`
	Nickname      string    `gorm:"size:100;not null" json:"nickname"`
	APIKey        string    `gorm:"column:api_key;size:64;not null;uniqueIndex" json:"-"`
	ProfileImgURL string    `gorm:"size:1024" json:"-"`
	CreatedAt     time.Time `json:"createDate"`
	UpdatedAt     time.Time `json:"modifyDate"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (m *Member) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}
	return nil
}

// Name is shown to other users.
func (m *Member) Name() string {
	return m.Nickname
}

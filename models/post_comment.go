package models

import "time"

// PostComment is a reply to a post.
type PostComment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"index;not null" json:"postId"`
	AuthorID  uint      `gorm:"index;not null" json:"authorId"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"createDate"`
	UpdatedAt time.Time `json:"modifyDate"`
	Author    Member    `gorm:"foreignKey:AuthorID" json:"-"`
}

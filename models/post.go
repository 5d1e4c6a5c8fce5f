package models

import "time"

// TempPostTitle marks the single draft a member keeps for uploading files
// before the post is written.
const TempPostTitle = "임시글"

// Post is a blog entry. ThumbnailGenFileID points at the post's thumbnail
// generated file, when one exists.
type Post struct {
	ID                 uint          `gorm:"primaryKey" json:"id"`
	AuthorID           uint          `gorm:"index;not null" json:"authorId"`
	Title              string        `gorm:"size:255;not null" json:"title"`
	Content            string        `gorm:"type:text;not null" json:"-"`
	Published          bool          `gorm:"not null;default:false;index" json:"published"`
	Listed             bool          `gorm:"not null;default:false;index" json:"listed"`
	ThumbnailGenFileID *uint         `json:"-"`
	CreatedAt          time.Time     `json:"createDate"`
	UpdatedAt          time.Time     `json:"modifyDate"`
	Author             Member        `gorm:"foreignKey:AuthorID" json:"-"`
	Comments           []PostComment `json:"-"`
	GenFiles           []PostGenFile `json:"-"`
}

// IsTemp reports whether the post is still a member's upload draft.
func (p *Post) IsTemp() bool {
	return !p.Published && p.Title == TempPostTitle
}

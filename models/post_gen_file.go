package models

import "time"

// Generated file types attached to a post.
const (
	GenFileTypeAttachment = "attachment"
	GenFileTypeThumbnail  = "thumbnail"
)

// IsGenFileType reports whether s names a known type.
func IsGenFileType(s string) bool {
	return s == GenFileTypeAttachment || s == GenFileTypeThumbnail
}

// PostGenFile is a file attached to a post. A post holds at most one record
// per (type, file number) slot; replacing a slot keeps the record and its
// FileName stem.
type PostGenFile struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	PostID           uint      `gorm:"not null;uniqueIndex:uk_post_gen_file_slot,priority:1" json:"postId"`
	TypeCode         string    `gorm:"size:20;not null;uniqueIndex:uk_post_gen_file_slot,priority:2" json:"typeCode"`
	FileNo           int       `gorm:"not null;uniqueIndex:uk_post_gen_file_slot,priority:3" json:"fileNo"`
	OriginalFileName string    `gorm:"size:255;not null" json:"originalFileName"`
	Metadata         string    `gorm:"size:1024;not null;default:''" json:"metadata"`
	FileDateDir      string    `gorm:"size:10;not null" json:"fileDateDir"`
	FileExt          string    `gorm:"size:20;not null" json:"fileExt"`
	FileExtTypeCode  string    `gorm:"size:10;not null" json:"fileExtTypeCode"`
	FileExtType2Code string    `gorm:"size:20;not null" json:"fileExtType2Code"`
	FileName         string    `gorm:"size:100;not null" json:"fileName"`
	FileSize         int64     `gorm:"not null" json:"fileSize"`
	CreatedAt        time.Time `json:"createDate"`
	UpdatedAt        time.Time `json:"modifyDate"`
}

// OwnerModelName is the storage directory and URL segment for post files.
const OwnerModelName = "post"

// RelPath is the file's location below the generated file root.
func (g *PostGenFile) RelPath() string {
	return OwnerModelName + "/" + g.TypeCode + "/" + g.FileDateDir + "/" + g.FileName
}

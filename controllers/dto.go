package controllers

import (
	"time"

	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/services"
)

type MemberDto struct {
	ID              uint      `json:"id"`
	CreateDate      time.Time `json:"createDate"`
	ModifyDate      time.Time `json:"modifyDate"`
	Name            string    `json:"name"`
	ProfileImageURL string    `json:"profileImageUrl"`
	IsAdmin         bool      `json:"isAdmin"`
}

type MemberWithUsernameDto struct {
	MemberDto
	Username string `json:"username"`
}

func newMemberDto(members *services.MemberService, m *models.Member) MemberDto {
	return MemberDto{
		ID:              m.ID,
		CreateDate:      m.CreatedAt,
		ModifyDate:      m.UpdatedAt,
		Name:            m.Name(),
		ProfileImageURL: members.ProfileImgURLOrDefault(m),
		IsAdmin:         members.IsAdmin(m),
	}
}

func newMemberWithUsernameDto(members *services.MemberService, m *models.Member) MemberWithUsernameDto {
	return MemberWithUsernameDto{MemberDto: newMemberDto(members, m), Username: m.Username}
}

type PostDto struct {
	ID                  uint      `json:"id"`
	CreateDate          time.Time `json:"createDate"`
	ModifyDate          time.Time `json:"modifyDate"`
	AuthorID            uint      `json:"authorId"`
	AuthorName          string    `json:"authorName"`
	AuthorProfileImgURL string    `json:"authorProfileImgUrl"`
	Title               string    `json:"title"`
	Published           bool      `json:"published"`
	Listed              bool      `json:"listed"`
	ThumbnailImgURL     string    `json:"thumbnailImgUrl"`
}

type PostWithContentDto struct {
	PostDto
	Content                   string `json:"content"`
	ActorCanModify            bool   `json:"actorCanModify"`
	ActorCanDelete            bool   `json:"actorCanDelete"`
	ActorCanManageAttachments bool   `json:"actorCanManageAttachments"`
}

type PostCommentDto struct {
	ID                  uint      `json:"id"`
	CreateDate          time.Time `json:"createDate"`
	ModifyDate          time.Time `json:"modifyDate"`
	PostID              uint      `json:"postId"`
	AuthorID            uint      `json:"authorId"`
	AuthorName          string    `json:"authorName"`
	AuthorProfileImgURL string    `json:"authorProfileImgUrl"`
	Content             string    `json:"content"`
}

type PostGenFileDto struct {
	ID               uint      `json:"id"`
	CreateDate       time.Time `json:"createDate"`
	ModifyDate       time.Time `json:"modifyDate"`
	PostID           uint      `json:"postId"`
	FileName         string    `json:"fileName"`
	TypeCode         string    `json:"typeCode"`
	FileExtTypeCode  string    `json:"fileExtTypeCode"`
	FileExtType2Code string    `json:"fileExtType2Code"`
	FileSize         int64     `json:"fileSize"`
	FileNo           int       `json:"fileNo"`
	FileExt          string    `json:"fileExt"`
	FileDateDir      string    `json:"fileDateDir"`
	OriginalFileName string    `json:"originalFileName"`
	Metadata         string    `json:"metadata"`
	DownloadURL      string    `json:"downloadUrl"`
	PublicURL        string    `json:"publicUrl"`
}

func newPostGenFileDto(genFiles *services.GenFileService, g *models.PostGenFile) PostGenFileDto {
	return PostGenFileDto{
		ID:               g.ID,
		CreateDate:       g.CreatedAt,
		ModifyDate:       g.UpdatedAt,
		PostID:           g.PostID,
		FileName:         g.FileName,
		TypeCode:         g.TypeCode,
		FileExtTypeCode:  g.FileExtTypeCode,
		FileExtType2Code: g.FileExtType2Code,
		FileSize:         g.FileSize,
		FileNo:           g.FileNo,
		FileExt:          g.FileExt,
		FileDateDir:      g.FileDateDir,
		OriginalFileName: g.OriginalFileName,
		Metadata:         g.Metadata,
		DownloadURL:      genFiles.DownloadURL(g),
		PublicURL:        genFiles.PublicURL(g),
	}
}

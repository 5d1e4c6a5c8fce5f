package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cppla/aiblog/config"
	"github.com/cppla/aiblog/genfile"
	"github.com/cppla/aiblog/models"
)

type fixture struct {
	cfg      *config.AppConfig
	db       *gorm.DB
	stage    *genfile.Materializer
	members  *MemberService
	genFiles *GenFileService
	posts    *PostService
	comments *CommentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.AppConfig{
		JWTSecret:      "test-secret",
		AdminUsernames: []string{"admin"},
		SiteBackURL:    "http://localhost:8080",
		DefaultImgURL:  "http://localhost:8080/default.png",
		GenFileDir:     filepath.Join(dir, "gen"),
		TempDir:        filepath.Join(dir, "tmp"),
		DBDriver:       "sqlite",
		DatabaseURI:    filepath.Join(dir, "test.db"),
		LogLevel:       "silent",
	}
	db, err := config.InitDatabase(cfg, &models.Member{}, &models.Post{}, &models.PostComment{}, &models.PostGenFile{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	members := NewMemberService(db, cfg, NewAuthTokenService(cfg))
	genFiles := NewGenFileService(db, cfg)
	return &fixture{
		cfg:      cfg,
		db:       db,
		stage:    genfile.NewMaterializer(cfg.TempDir, 0),
		members:  members,
		genFiles: genFiles,
		posts:    NewPostService(db, members, genFiles),
		comments: NewCommentService(db, members),
	}
}

func (f *fixture) member(t *testing.T, username string) *models.Member {
	t.Helper()
	m, err := f.members.Join(context.Background(), username, "1234", username, "")
	require.NoError(t, err)
	return m
}

func (f *fixture) post(t *testing.T, author *models.Member) *models.Post {
	t.Helper()
	p, err := f.posts.Write(context.Background(), author, "title", "content", true, true)
	require.NoError(t, err)
	return p
}

func (f *fixture) stagePNG(t *testing.T, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path, err := f.stage.Stage(&buf, name, "")
	require.NoError(t, err)
	return path
}

func (f *fixture) stageText(t *testing.T, name, body string) string {
	t.Helper()
	path, err := f.stage.Stage(bytes.NewBufferString(body), name, "")
	require.NoError(t, err)
	return path
}

func readPNG(t *testing.T, f *fixture) []byte {
	t.Helper()
	path := f.stagePNG(t, "sample.png", 3, 3)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))
	return b
}

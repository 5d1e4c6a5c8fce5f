package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/aiblog/config"
	"github.com/cppla/aiblog/genfile"
	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/services"
)

const backURL = "http://localhost:8080"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t    *testing.T
	r    *gin.Engine
	deps Deps
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.AppConfig{
		JWTSecret:          "test-secret",
		AdminUsernames:     []string{"admin"},
		RateLimitPerMinute: 10000,
		SiteBackURL:        backURL,
		SiteFrontURL:       "http://localhost:3000",
		CookieDomain:       "localhost",
		DefaultImgURL:      backURL + "/default.png",
		GenFileDir:         filepath.Join(dir, "gen"),
		TempDir:            filepath.Join(dir, "tmp"),
		MaxUploadSizeMB:    1,
		DBDriver:           "sqlite",
		DatabaseURI:        filepath.Join(dir, "test.db"),
		GinMode:            "test",
		LogLevel:           "silent",
	}
	db, err := config.InitDatabase(cfg, &models.Member{}, &models.Post{}, &models.PostComment{}, &models.PostGenFile{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	members := services.NewMemberService(db, cfg, services.NewAuthTokenService(cfg))
	genFiles := services.NewGenFileService(db, cfg)
	deps := Deps{
		Members:  members,
		Posts:    services.NewPostService(db, members, genFiles),
		Comments: services.NewCommentService(db, members),
		GenFiles: genFiles,
		Stage:    genfile.NewMaterializer(cfg.TempDir, cfg.MaxUploadBytes()),
	}
	return &testServer{t: t, r: SetupRouter(cfg, deps), deps: deps}
}

func (s *testServer) join(username string) *models.Member {
	s.t.Helper()
	m, err := s.deps.Members.Join(context.Background(), username, "1234", username, "")
	require.NoError(s.t, err)
	return m
}

func (s *testServer) do(method, target string, body io.Reader, contentType string, as *models.Member) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if as != nil {
		// an unusable access token makes the API key authenticate the request
		req.Header.Set("Authorization", "Bearer "+as.APIKey+" stale")
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func (s *testServer) json(method, target string, payload interface{}, as *models.Member) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(s.t, err)
		body = bytes.NewReader(b)
	}
	w := s.do(method, target, body, "application/json", as)
	return w, decode(s.t, w)
}

func (s *testServer) upload(method, target, field string, files map[string][]byte, as *models.Member) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(s.t, err)
		_, err = fw.Write(data)
		require.NoError(s.t, err)
	}
	require.NoError(s.t, mw.Close())
	w := s.do(method, target, &buf, mw.FormDataContentType(), as)
	return w, decode(s.t, w)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return env
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestJoinLoginMe(t *testing.T) {
	s := newTestServer(t)

	w, env := s.json(http.MethodPost, "/api/v1/members/join", gin.H{"username": "user1", "password": "1234", "nickname": "User1"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Zero(t, env.Code)

	w, env = s.json(http.MethodPost, "/api/v1/members/join", gin.H{"username": "user1", "password": "1234", "nickname": "User1"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 40901, env.Code)

	w, env = s.json(http.MethodPost, "/api/v1/members/login", gin.H{"username": "user1", "password": "1234"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		APIKey      string `json:"apiKey"`
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	assert.NotEmpty(t, login.APIKey)
	assert.NotEmpty(t, login.AccessToken)
	assert.Len(t, w.Result().Cookies(), 2)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/members/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.APIKey+" "+login.AccessToken)
	rec := httptest.NewRecorder()
	s.r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var me struct {
		Username string `json:"username"`
		Name     string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &me))
	assert.Equal(t, "user1", me.Username)
	assert.Equal(t, "User1", me.Name)

	w, env = s.json(http.MethodPost, "/api/v1/members/login", gin.H{"username": "user1", "password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 40102, env.Code)

	w, _ = s.json(http.MethodDelete, "/api/v1/members/logout", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPostsFlow(t *testing.T) {
	s := newTestServer(t)
	author := s.join("user1")
	other := s.join("user2")

	w, env := s.json(http.MethodPost, "/api/v1/posts", gin.H{"title": "Hello", "content": "world", "published": true, "listed": true}, author)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		ID              uint   `json:"id"`
		ThumbnailImgURL string `json:"thumbnailImgUrl"`
		ActorCanModify  bool   `json:"actorCanModify"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, backURL+"/default.png", created.ThumbnailImgURL)
	assert.True(t, created.ActorCanModify)
	postPath := "/api/v1/posts/" + itoa(created.ID)

	w, env = s.json(http.MethodGet, "/api/v1/posts", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page services.Page[json.RawMessage]
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.EqualValues(t, 1, page.TotalItems)
	assert.Equal(t, services.DefaultPageSize, page.PageSize)

	future := url.QueryEscape(time.Now().Add(time.Hour).Format(time.RFC3339))
	w, env = s.json(http.MethodGet, postPath+"?lastModifyDateAfter="+future, nil, nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Equal(t, 41201, env.Code)

	w, _ = s.json(http.MethodPut, postPath, gin.H{"title": "Hijack", "content": "x"}, other)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.json(http.MethodPut, postPath, gin.H{"title": "Hidden", "content": "x", "published": false}, author)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.json(http.MethodGet, postPath, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = s.json(http.MethodGet, postPath, nil, other)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.json(http.MethodPost, postPath+"/comments", gin.H{"content": "nice post"}, author)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, _ = s.json(http.MethodGet, "/api/v1/posts/statistics", nil, author)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = s.json(http.MethodGet, "/api/v1/posts/statistics", nil, s.join("admin"))
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.json(http.MethodDelete, postPath, nil, author)
	assert.Equal(t, http.StatusOK, w.Code)
	w, env = s.json(http.MethodGet, postPath, nil, author)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40401, env.Code)
}

type genFileResp struct {
	ID               uint   `json:"id"`
	FileNo           int    `json:"fileNo"`
	TypeCode         string `json:"typeCode"`
	FileName         string `json:"fileName"`
	OriginalFileName string `json:"originalFileName"`
	Metadata         string `json:"metadata"`
	PublicURL        string `json:"publicUrl"`
	DownloadURL      string `json:"downloadUrl"`
}

func TestGenFilesFlow(t *testing.T) {
	s := newTestServer(t)
	author := s.join("user1")
	other := s.join("user2")

	w, env := s.json(http.MethodPost, "/api/v1/posts/temp", nil, author)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var post struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &post))
	base := "/api/v1/posts/" + itoa(post.ID) + "/genFiles"

	w, _ = s.json(http.MethodPost, "/api/v1/posts/temp", nil, author)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = s.upload(http.MethodPost, base+"/attachment", "files", map[string][]byte{"my notes.txt": []byte("hello world")}, author)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var added []genFileResp
	require.NoError(t, json.Unmarshal(env.Data, &added))
	require.Len(t, added, 1)
	assert.Equal(t, 1, added[0].FileNo)
	assert.Equal(t, "my notes.txt", added[0].OriginalFileName)

	w, _ = s.upload(http.MethodPost, base+"/attachment", "files", map[string][]byte{"x.txt": []byte("x")}, other)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.upload(http.MethodPut, base+"/thumbnail/1", "file", map[string][]byte{"notimage.txt": []byte("text")}, author)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40034, env.Code)

	w, env = s.upload(http.MethodPut, base+"/thumbnail/2", "file", map[string][]byte{"t.png": pngBytes(t, 2, 2)}, author)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40033, env.Code)

	w, env = s.upload(http.MethodPut, base+"/thumbnail/1", "file", map[string][]byte{"t.png": pngBytes(t, 4, 3)}, author)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var thumb genFileResp
	require.NoError(t, json.Unmarshal(env.Data, &thumb))
	assert.Equal(t, "width=4&height=3", thumb.Metadata)

	w, env = s.upload(http.MethodPut, base+"/thumbnail/1", "file", map[string][]byte{"t2.png": pngBytes(t, 5, 5)}, author)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var thumb2 genFileResp
	require.NoError(t, json.Unmarshal(env.Data, &thumb2))
	assert.Equal(t, thumb.ID, thumb2.ID)
	assert.Equal(t, "width=5&height=5", thumb2.Metadata)

	// static file from the public URL
	u, err := url.Parse(thumb2.PublicURL)
	require.NoError(t, err)
	w = s.do(http.MethodGet, u.Path, nil, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pngBytes(t, 5, 5), w.Body.Bytes())

	w = s.do(http.MethodGet, strings.TrimPrefix(added[0].DownloadURL, backURL), nil, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello world", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="my notes.txt"`)

	w, env = s.json(http.MethodGet, base, nil, author)
	require.Equal(t, http.StatusOK, w.Code)
	var list []genFileResp
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 2)

	w, _ = s.json(http.MethodDelete, base+"/"+itoa(added[0].ID), nil, author)
	assert.Equal(t, http.StatusOK, w.Code)
	w, env = s.json(http.MethodGet, base+"/"+itoa(added[0].ID), nil, author)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40430, env.Code)
}

func TestUploadTooLarge(t *testing.T) {
	s := newTestServer(t)
	author := s.join("user1")
	p, err := s.deps.Posts.Write(context.Background(), author, "t", "c", true, true)
	require.NoError(t, err)

	big := bytes.Repeat([]byte("a"), 1<<20+1)
	w, env := s.upload(http.MethodPost, "/api/v1/posts/"+itoa(p.ID)+"/genFiles/attachment", "files", map[string][]byte{"big.txt": big}, author)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, 41301, env.Code)
}

func TestNoRouteAndHealth(t *testing.T) {
	s := newTestServer(t)
	w, env := s.json(http.MethodGet, "/api/v1/nothing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40400, env.Code)

	w, _ = s.json(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/metrics", nil, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "blog_http_requests_total")
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestSite(t *testing.T) {
	s := newTestServer(t)
	w, env := s.json(http.MethodGet, "/api/v1/site", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var site struct {
		BackURL         string   `json:"backUrl"`
		MaxUploadSizeMB int      `json:"maxUploadSizeMb"`
		GenFileTypes    []string `json:"genFileTypes"`
		OAuthProviders  []string `json:"oauthProviders"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &site))
	assert.Equal(t, backURL, site.BackURL)
	assert.Equal(t, 1, site.MaxUploadSizeMB)
	assert.Equal(t, []string{models.GenFileTypeAttachment, models.GenFileTypeThumbnail}, site.GenFileTypes)
	assert.Empty(t, site.OAuthProviders)
}

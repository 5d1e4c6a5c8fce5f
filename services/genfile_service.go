package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/aiblog/config"
	"github.com/cppla/aiblog/genfile"
	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/utils"
)

const (
	fileDateDirLayout = "2006_01_02"
	modifyDateLayout  = "2006-01-02--15-04-05"
	// slot allocation retries after losing a race on the unique slot index
	maxSlotAttempts = 3
)

var (
	ErrGenFileType        = utils.BadRequest(40030, "unknown generated file type")
	ErrGenFileNo          = utils.BadRequest(40031, "file number must be positive")
	ErrGenFileEmpty       = utils.BadRequest(40032, "no file to store")
	ErrThumbnailSlot      = utils.BadRequest(40033, "thumbnail only uses file number 1")
	ErrThumbnailNotImage  = utils.BadRequest(40034, "thumbnail must be an image")
	ErrThumbnailExists    = utils.Conflict(40930, "post already has a thumbnail")
	ErrGenFileNotFound    = utils.NotFound(40430, "generated file not found")
	ErrGenFileOwnerAbsent = utils.NotFound(40431, "post not found")
)

// GenFileService manages the numbered file slots of posts. Every write runs
// in a database transaction; files move into storage only after it commits.
type GenFileService struct {
	db      *gorm.DB
	rootDir string
	backURL string
	locks   *keyedMutex
	now     func() time.Time
}

// NewGenFileService creates a GenFileService storing files below cfg.GenFileDir.
func NewGenFileService(db *gorm.DB, cfg *config.AppConfig) *GenFileService {
	return &GenFileService{
		db:      db,
		rootDir: cfg.GenFileDir,
		backURL: cfg.SiteBackURL,
		locks:   newKeyedMutex(),
		now:     time.Now,
	}
}

// RootDir is the directory served under /gen.
func (s *GenFileService) RootDir() string {
	return s.rootDir
}

// Path is the absolute location of the record's bytes.
func (s *GenFileService) Path(g *models.PostGenFile) string {
	return filepath.Join(s.rootDir, filepath.FromSlash(g.RelPath()))
}

// PublicURL is the static URL of the file. The query busts caches and carries metadata.
func (s *GenFileService) PublicURL(g *models.PostGenFile) string {
	u := s.backURL + "/gen/" + g.RelPath() + "?modifyDate=" + g.UpdatedAt.Format(modifyDateLayout)
	if g.Metadata != "" {
		u += "&" + g.Metadata
	}
	return u
}

// DownloadURL is served with Content-Disposition: attachment.
func (s *GenFileService) DownloadURL(g *models.PostGenFile) string {
	return s.backURL + "/" + models.OwnerModelName + "/genFile/download/" + strconv.FormatUint(uint64(g.PostID), 10) + "/" + g.FileName
}

// List returns the post's files ordered by type and number.
func (s *GenFileService) List(ctx context.Context, postID uint) ([]models.PostGenFile, error) {
	var files []models.PostGenFile
	err := s.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("type_code").Order("file_no").
		Find(&files).Error
	return files, err
}

// FindByID returns nil when the post has no such file.
func (s *GenFileService) FindByID(ctx context.Context, postID, id uint) (*models.PostGenFile, error) {
	var g models.PostGenFile
	err := s.db.WithContext(ctx).Where("post_id = ? AND id = ?", postID, id).First(&g).Error
	return found(&g, err)
}

// FindByIDs loads records by id, keyed by id. Used to resolve post thumbnails in bulk.
func (s *GenFileService) FindByIDs(ctx context.Context, ids []uint) (map[uint]*models.PostGenFile, error) {
	ids = utils.Unique(ids)
	out := make(map[uint]*models.PostGenFile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var files []models.PostGenFile
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&files).Error; err != nil {
		return nil, err
	}
	for i := range files {
		out[files[i].ID] = &files[i]
	}
	return out, nil
}

// FindByFileName returns nil when the post has no file stored under fileName.
func (s *GenFileService) FindByFileName(ctx context.Context, postID uint, fileName string) (*models.PostGenFile, error) {
	var g models.PostGenFile
	err := s.db.WithContext(ctx).Where("post_id = ? AND file_name = ?", postID, fileName).First(&g).Error
	return found(&g, err)
}

// FindBySlot returns nil when the slot is empty.
func (s *GenFileService) FindBySlot(ctx context.Context, postID uint, typeCode string, fileNo int) (*models.PostGenFile, error) {
	return findSlot(s.db.WithContext(ctx), postID, typeCode, fileNo)
}

func findSlot(tx *gorm.DB, postID uint, typeCode string, fileNo int) (*models.PostGenFile, error) {
	var g models.PostGenFile
	err := tx.Where("post_id = ? AND type_code = ? AND file_no = ?", postID, typeCode, fileNo).First(&g).Error
	return found(&g, err)
}

func found[T any](v *T, err error) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Add stores the staged file in the next free slot (highest number + 1).
func (s *GenFileService) Add(ctx context.Context, post *models.Post, typeCode, stagedPath string) (*models.PostGenFile, error) {
	files, err := s.AddMany(ctx, post, typeCode, []string{stagedPath})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrGenFileEmpty
	}
	return files[0], nil
}

// AddMany stores several staged files in consecutive new slots within one
// transaction. Empty paths are skipped.
func (s *GenFileService) AddMany(ctx context.Context, post *models.Post, typeCode string, stagedPaths []string) ([]*models.PostGenFile, error) {
	staged := nonEmpty(stagedPaths)
	if err := checkType(typeCode); err != nil {
		removeStaged(staged)
		return nil, err
	}
	if len(staged) == 0 {
		return nil, nil
	}
	if typeCode == models.GenFileTypeThumbnail && len(staged) > 1 {
		removeStaged(staged)
		return nil, ErrThumbnailExists
	}

	var out []*models.PostGenFile
	err := s.write(ctx, "add", post, typeCode, staged, func(tx *gorm.DB, c *genfile.Commit) error {
		out = out[:0]
		next, err := nextFileNo(tx, post.ID, typeCode)
		if err != nil {
			return err
		}
		if typeCode == models.GenFileTypeThumbnail && next > 1 {
			return ErrThumbnailExists
		}
		for i, path := range staged {
			g, err := s.create(tx, c, post, typeCode, next+i, path)
			if err != nil {
				return err
			}
			out = append(out, g)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put writes the staged file into the given slot, modifying the record in
// place when the slot is taken. created reports whether a new record was made.
func (s *GenFileService) Put(ctx context.Context, post *models.Post, typeCode string, fileNo int, stagedPath string) (g *models.PostGenFile, created bool, err error) {
	staged := nonEmpty([]string{stagedPath})
	if err := checkSlot(typeCode, fileNo); err != nil {
		removeStaged(staged)
		return nil, false, err
	}
	if len(staged) == 0 {
		return nil, false, ErrGenFileEmpty
	}

	err = s.write(ctx, "put", post, typeCode, staged, func(tx *gorm.DB, c *genfile.Commit) error {
		existing, err := findSlot(tx, post.ID, typeCode, fileNo)
		if err != nil {
			return err
		}
		if existing != nil {
			created = false
			g, err = s.modify(tx, c, post, existing, stagedPath)
			return err
		}
		created = true
		g, err = s.create(tx, c, post, typeCode, fileNo, stagedPath)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return g, created, nil
}

// Modify replaces the bytes of an existing record. The record keeps its slot
// and FileName stem; the extension follows the new file.
func (s *GenFileService) Modify(ctx context.Context, post *models.Post, g *models.PostGenFile, stagedPath string) (*models.PostGenFile, error) {
	if g == nil {
		removeStaged(nonEmpty([]string{stagedPath}))
		return nil, ErrGenFileNotFound
	}
	return s.ModifySlot(ctx, post, g.TypeCode, g.FileNo, stagedPath)
}

// ModifySlot replaces the bytes in an existing slot.
func (s *GenFileService) ModifySlot(ctx context.Context, post *models.Post, typeCode string, fileNo int, stagedPath string) (*models.PostGenFile, error) {
	staged := nonEmpty([]string{stagedPath})
	if err := checkSlot(typeCode, fileNo); err != nil {
		removeStaged(staged)
		return nil, err
	}
	if len(staged) == 0 {
		return nil, ErrGenFileEmpty
	}

	var g *models.PostGenFile
	err := s.write(ctx, "modify", post, typeCode, staged, func(tx *gorm.DB, c *genfile.Commit) error {
		existing, err := findSlot(tx, post.ID, typeCode, fileNo)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrGenFileNotFound
		}
		g, err = s.modify(tx, c, post, existing, stagedPath)
		return err
	})
	return g, err
}

// Delete removes the record and its bytes.
func (s *GenFileService) Delete(ctx context.Context, post *models.Post, g *models.PostGenFile) error {
	if g == nil {
		return nil
	}
	return s.DeleteSlot(ctx, post, g.TypeCode, g.FileNo)
}

// DeleteSlot empties a slot. An empty slot is left alone without error.
func (s *GenFileService) DeleteSlot(ctx context.Context, post *models.Post, typeCode string, fileNo int) error {
	if err := checkType(typeCode); err != nil {
		return err
	}
	return s.write(ctx, "delete", post, typeCode, nil, func(tx *gorm.DB, c *genfile.Commit) error {
		existing, err := findSlot(tx, post.ID, typeCode, fileNo)
		if err != nil || existing == nil {
			return err
		}
		return s.remove(tx, c, post, existing)
	})
}

// DeleteAllForPost removes every file of the post inside tx. The byte removals
// are scheduled on c. Callers hold LockPost.
func (s *GenFileService) DeleteAllForPost(tx *gorm.DB, post *models.Post, c *genfile.Commit) error {
	var files []models.PostGenFile
	if err := tx.Where("post_id = ?", post.ID).Find(&files).Error; err != nil {
		return err
	}
	for i := range files {
		c.Remove(s.Path(&files[i]))
	}
	if len(files) == 0 {
		return nil
	}
	if err := tx.Model(&models.Post{}).Where("id = ?", post.ID).Update("thumbnail_gen_file_id", nil).Error; err != nil {
		return err
	}
	post.ThumbnailGenFileID = nil
	return tx.Where("post_id = ?", post.ID).Delete(&models.PostGenFile{}).Error
}

// LockPost blocks every writer of the post's files until unlock is called.
// Locks are taken in a fixed type order.
func (s *GenFileService) LockPost(postID uint) (unlock func()) {
	unlockAttachments := s.locks.lock(slotKey(postID, models.GenFileTypeAttachment))
	unlockThumbnails := s.locks.lock(slotKey(postID, models.GenFileTypeThumbnail))
	return func() {
		unlockThumbnails()
		unlockAttachments()
	}
}

func slotKey(postID uint, typeCode string) string {
	return strconv.FormatUint(uint64(postID), 10) + ":" + typeCode
}

// write serializes writers of one (post, type), runs fn in a transaction and
// applies the scheduled file operations once it committed. On failure the
// staged files are deleted.
func (s *GenFileService) write(ctx context.Context, op string, post *models.Post, typeCode string, staged []string, fn func(tx *gorm.DB, c *genfile.Commit) error) error {
	if post == nil || post.ID == 0 {
		removeStaged(staged)
		return ErrGenFileOwnerAbsent
	}
	unlock := s.locks.lock(slotKey(post.ID, typeCode))
	defer unlock()

	thumbnailID := post.ThumbnailGenFileID
	for attempt := 1; ; attempt++ {
		c := genfile.NewCommit()
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// the post may have been deleted while this writer waited for the lock
			var n int64
			if err := tx.Model(&models.Post{}).Where("id = ?", post.ID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return ErrGenFileOwnerAbsent
			}
			return fn(tx, c)
		})
		if err == nil {
			genfile.OperationsTotal.WithLabelValues(op, typeCode, "ok").Inc()
			if err := c.Apply(); err != nil {
				return fmt.Errorf("store generated files of post %d: %w", post.ID, err)
			}
			return nil
		}
		post.ThumbnailGenFileID = thumbnailID
		if errors.Is(err, gorm.ErrDuplicatedKey) && attempt < maxSlotAttempts {
			utils.Logger.Warn("genfile slot taken concurrently, retrying",
				zap.Uint("postId", post.ID), zap.String("type", typeCode), zap.Int("attempt", attempt))
			continue
		}
		genfile.OperationsTotal.WithLabelValues(op, typeCode, "error").Inc()
		c.Discard()
		removeStaged(staged)
		return err
	}
}

type stagedInfo struct {
	originalFileName string
	ext              string
	extTypeCode      string
	metadata         string
	size             int64
}

func describe(stagedPath string) (stagedInfo, error) {
	st, err := os.Stat(stagedPath)
	if err != nil {
		return stagedInfo{}, err
	}
	ext := genfile.FileExt(stagedPath)
	if ext == "" || len(ext) > genfile.MaxExtLen {
		ext = genfile.UnknownExt
	}
	return stagedInfo{
		originalFileName: genfile.OriginalFileName(stagedPath),
		ext:              ext,
		extTypeCode:      genfile.ExtTypeCode(ext),
		metadata:         genfile.MetadataString(genfile.ExtractMetadata(stagedPath), genfile.MetaStr(stagedPath)),
		size:             st.Size(),
	}, nil
}

func (s *GenFileService) create(tx *gorm.DB, c *genfile.Commit, post *models.Post, typeCode string, fileNo int, stagedPath string) (*models.PostGenFile, error) {
	info, err := describe(stagedPath)
	if err != nil {
		return nil, err
	}
	if typeCode == models.GenFileTypeThumbnail && info.extTypeCode != genfile.ExtTypeImg {
		return nil, ErrThumbnailNotImage
	}

	g := &models.PostGenFile{
		PostID:      post.ID,
		TypeCode:    typeCode,
		FileNo:      fileNo,
		FileDateDir: s.now().Format(fileDateDirLayout),
		FileName:    uuid.NewString() + "." + info.ext,
	}
	fill(g, info)
	if err := tx.Create(g).Error; err != nil {
		return nil, err
	}
	if err := s.linkThumbnail(tx, post, g); err != nil {
		return nil, err
	}
	c.Move(stagedPath, s.Path(g))
	genfile.StagedBytes.Observe(float64(info.size))
	return g, nil
}

func (s *GenFileService) modify(tx *gorm.DB, c *genfile.Commit, post *models.Post, g *models.PostGenFile, stagedPath string) (*models.PostGenFile, error) {
	info, err := describe(stagedPath)
	if err != nil {
		return nil, err
	}
	if g.TypeCode == models.GenFileTypeThumbnail && info.extTypeCode != genfile.ExtTypeImg {
		return nil, ErrThumbnailNotImage
	}

	oldPath := s.Path(g)
	g.FileName = genfile.WithNewExt(g.FileName, info.ext)
	fill(g, info)
	if err := tx.Save(g).Error; err != nil {
		return nil, err
	}
	if err := s.linkThumbnail(tx, post, g); err != nil {
		return nil, err
	}
	c.Remove(oldPath)
	c.Move(stagedPath, s.Path(g))
	genfile.StagedBytes.Observe(float64(info.size))
	return g, nil
}

func (s *GenFileService) remove(tx *gorm.DB, c *genfile.Commit, post *models.Post, g *models.PostGenFile) error {
	if g.TypeCode == models.GenFileTypeThumbnail {
		err := tx.Model(&models.Post{}).
			Where("id = ? AND thumbnail_gen_file_id = ?", post.ID, g.ID).
			Update("thumbnail_gen_file_id", nil).Error
		if err != nil {
			return err
		}
		if post.ThumbnailGenFileID != nil && *post.ThumbnailGenFileID == g.ID {
			post.ThumbnailGenFileID = nil
		}
	}
	if err := tx.Delete(g).Error; err != nil {
		return err
	}
	c.Remove(s.Path(g))
	return nil
}

func (s *GenFileService) linkThumbnail(tx *gorm.DB, post *models.Post, g *models.PostGenFile) error {
	if g.TypeCode != models.GenFileTypeThumbnail {
		return nil
	}
	if err := tx.Model(&models.Post{}).Where("id = ?", post.ID).Update("thumbnail_gen_file_id", g.ID).Error; err != nil {
		return err
	}
	id := g.ID
	post.ThumbnailGenFileID = &id
	return nil
}

func fill(g *models.PostGenFile, info stagedInfo) {
	g.OriginalFileName = info.originalFileName
	g.Metadata = info.metadata
	g.FileExt = info.ext
	g.FileExtTypeCode = info.extTypeCode
	g.FileExtType2Code = genfile.ExtType2Code(info.ext)
	g.FileSize = info.size
}

func nextFileNo(tx *gorm.DB, postID uint, typeCode string) (int, error) {
	var max int
	err := tx.Model(&models.PostGenFile{}).
		Where("post_id = ? AND type_code = ?", postID, typeCode).
		Select("COALESCE(MAX(file_no), 0)").
		Scan(&max).Error
	return max + 1, err
}

func checkType(typeCode string) error {
	if !models.IsGenFileType(typeCode) {
		return ErrGenFileType
	}
	return nil
}

func checkSlot(typeCode string, fileNo int) error {
	if err := checkType(typeCode); err != nil {
		return err
	}
	if fileNo < 1 {
		return ErrGenFileNo
	}
	if typeCode == models.GenFileTypeThumbnail && fileNo != 1 {
		return ErrThumbnailSlot
	}
	return nil
}

// Discard deletes staged files that will not be stored.
func (s *GenFileService) Discard(staged []string) {
	removeStaged(nonEmpty(staged))
}

func nonEmpty(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func removeStaged(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			utils.Logger.Warn("remove staged file failed", zap.String("path", p), zap.Error(err))
		}
	}
}

type refMutex struct {
	sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*refMutex{}}
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

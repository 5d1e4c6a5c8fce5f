package services

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/aiblog/models"
)

func TestGenFileAddUsesNextNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t, f.member(t, "user1"))

	var nos []int
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		g, err := f.genFiles.Add(ctx, p, models.GenFileTypeAttachment, f.stageText(t, name, "hello "+name))
		require.NoError(t, err)
		nos = append(nos, g.FileNo)
	}
	assert.Equal(t, []int{1, 2, 3}, nos)

	require.NoError(t, f.genFiles.DeleteSlot(ctx, p, models.GenFileTypeAttachment, 2))
	g, err := f.genFiles.Add(ctx, p, models.GenFileTypeAttachment, f.stageText(t, "d.txt", "hello d"))
	require.NoError(t, err)
	assert.Equal(t, 4, g.FileNo)

	files, err := f.genFiles.List(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, []int{1, 3, 4}, []int{files[0].FileNo, files[1].FileNo, files[2].FileNo})
}

func TestGenFileAddStoresRecordAndBytes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t, f.member(t, "user1"))

	staged := f.stagePNG(t, "photo.PNG", 10, 10)
	g, err := f.genFiles.Add(ctx, p, models.GenFileTypeAttachment, staged)
	require.NoError(t, err)

	assert.Equal(t, "photo.PNG", g.OriginalFileName)
	assert.Equal(t, "png", g.FileExt)
	assert.Equal(t, "img", g.FileExtTypeCode)
	assert.Equal(t, "png", g.FileExtType2Code)
	assert.Equal(t, "width=10&height=10", g.Metadata)
	assert.True(t, strings.HasSuffix(g.FileName, ".png"))
	assert.Len(t, g.FileDateDir, len("2006_01_02"))

	st, err := os.Stat(f.genFiles.Path(g))
	require.NoError(t, err)
	assert.Equal(t, g.FileSize, st.Size())
	assert.NoFileExists(t, staged)

	assert.True(t, strings.HasPrefix(f.genFiles.PublicURL(g), "http://localhost:8080/gen/post/attachment/"+g.FileDateDir+"/"+g.FileName+"?modifyDate="))
	assert.True(t, strings.HasSuffix(f.genFiles.PublicURL(g), "&width=10&height=10"))
	assert.Contains(t, f.genFiles.DownloadURL(g), "/post/genFile/download/")
}

func TestGenFileAddManyConsecutive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t, f.member(t, "user1"))

	_, err := f.genFiles.Add(ctx, p, models.GenFileTypeAttachment, f.stageText(t, "a.txt", "a"))
	require.NoError(t, err)

	files, err := f.genFiles.AddMany(ctx, p, models.GenFileTypeAttachment, []string{
		f.stageText(t, "b.txt", "b"), "", f.stageText(t, "c.txt", "c"),
	})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, 2, files[0].FileNo)
	assert.Equal(t, 3, files[1].FileNo)
}

func TestGenFileAddRejectsEmptyAndUnknownType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t, f.member(t, "user1"))

	_, err := f.genFiles.Add(ctx, p, models.GenFileTypeAttachment, "")
	assert.ErrorIs(t, err, ErrGenFileEmpty)

	staged := f.stageText(t, "a.txt", "a")
	_, err = f.genFiles.Add(ctx, p, "banner", staged)
	assert.ErrorIs(t, err, ErrGenFileType)
	assert.NoFileExists(t, staged)
}

func TestGenFilePutCreatesThenModifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t, f.member(t, "user1"))

	g, created, err := f.genFiles.Put(ctx, p, models.GenFileTypeThumbnail, 1, f.stagePNG(t, "first.png", 4, 4))
	require.NoError(t, err)
	assert.True(t, created)
	firstPath := f.genFiles.Path(g)
	stem := strings.TrimSuffix(g.FileName, ".png")

	require.NotNil(t, p.ThumbnailGenFileID)
	assert.Equal(t, g.ID, *p.ThumbnailGenFileID)

	g2, created, err := f.genFiles.Put(ctx, p, models.GenFileTypeThumbnail, 1, f.stagePNG(t, "second.png", 8, 6))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, g.ID, g2.ID)
	assert.Equal(t, stem+".png", g2.FileName)
	assert.Equal(t, "second.png", g2.OriginalFileName)
	assert.Equal(t, "width=8&height=6", g2.Metadata)
	assert.FileExists(t, firstPath)

	files, err := f.genFiles.List(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestGenFileModifyKeepsStemAndChangesExt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t, f.member(t, "user1"))

	g, err := f.genFiles.Add(ctx, p, models.GenFileTypeAttachment, f.stageText(t, "notes.txt", "v1"))
	require.NoError(t, err)
	oldPath := f.genFiles.Path(g)
	stem := strings.TrimSuffix(g.FileName, ".txt")

	m, err := f.genFiles.Modify(ctx, p, g, f.stagePNG(t, "notes.png", 2, 2))
	require.NoError(t, err)
	assert.Equal(t, g.ID, m.ID)
	assert.Equal(t, 1, m.FileNo)
	assert.Equal(t, stem+".png", m.FileName)
	assert.Equal(t, "png", m.FileExt)
	assert.NoFileExists(t, oldPath)
	assert.FileExists(t, f.genFiles.Path(m))
}

func TestGenFileModifySameContentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t, f.member(t, "user1"))

	g, err := f.genFiles.Add(ctx, p, models.GenFileTypeAttachment, f.stageText(t, "same.txt", "same body"))
	require.NoError(t, err)
	m, err := f.genFiles.ModifySlot(ctx, p, models.GenFileTypeAttachment, 1, f.stageText(t, "same.txt", "same body"))
	require.NoError(t, err)

	assert.Equal(t, g.FileName, m.FileName)
	assert.Equal(t, g.FileSize, m.FileSize)
	assert.Equal(t, g.OriginalFileName, m.OriginalFileName)
	body, err := os.ReadFile(f.genFiles.Path(m))
	require.NoError(t, err)
	assert.Equal(t, "same body", string(body))
}

func TestGenFileModifyMissingSlot(t *testing.T) {
	f := newFixture(t)
	p := f.post(t, f.member(t, "user1"))

	staged := f.stageText(t, "a.txt", "a")
	_, err := f.genFiles.ModifySlot(context.Background(), p, models.GenFileTypeAttachment, 7, staged)
	assert.ErrorIs(t, err, ErrGenFileNotFound)
	assert.NoFileExists(t, staged)
}

func TestGenFileDeleteMissingSlotIsNoop(t *testing.T) {
	f := newFixture(t)
	p := f.post(t, f.member(t, "user1"))
	assert.NoError(t, f.genFiles.DeleteSlot(context.Background(), p, models.GenFileTypeAttachment, 3))
	assert.NoError(t, f.genFiles.Delete(context.Background(), p, nil))
}

func TestGenFileThumbnailPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t, f.member(t, "user1"))

	staged := f.stageText(t, "readme.txt", "not an image")
	_, err := f.genFiles.Add(ctx, p, models.GenFileTypeThumbnail, staged)
	assert.ErrorIs(t, err, ErrThumbnailNotImage)
	assert.NoFileExists(t, staged)
	assert.Nil(t, p.ThumbnailGenFileID)

	_, _, err = f.genFiles.Put(ctx, p, models.GenFileTypeThumbnail, 2, f.stagePNG(t, "t.png", 2, 2))
	assert.ErrorIs(t, err, ErrThumbnailSlot)

	g, err := f.genFiles.Add(ctx, p, models.GenFileTypeThumbnail, f.stagePNG(t, "t.png", 2, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, g.FileNo)

	_, err = f.genFiles.Add(ctx, p, models.GenFileTypeThumbnail, f.stagePNG(t, "t2.png", 2, 2))
	assert.ErrorIs(t, err, ErrThumbnailExists)

	var stored models.Post
	require.NoError(t, f.db.First(&stored, p.ID).Error)
	require.NotNil(t, stored.ThumbnailGenFileID)
	assert.Equal(t, g.ID, *stored.ThumbnailGenFileID)

	require.NoError(t, f.genFiles.Delete(ctx, p, g))
	assert.Nil(t, p.ThumbnailGenFileID)
	require.NoError(t, f.db.First(&stored, p.ID).Error)
	assert.Nil(t, stored.ThumbnailGenFileID)
	assert.NoFileExists(t, f.genFiles.Path(g))
}

func TestGenFileOwnerRequired(t *testing.T) {
	f := newFixture(t)
	staged := f.stageText(t, "a.txt", "a")
	_, err := f.genFiles.Add(context.Background(), &models.Post{}, models.GenFileTypeAttachment, staged)
	assert.ErrorIs(t, err, ErrGenFileOwnerAbsent)
	assert.NoFileExists(t, staged)
}

func TestGenFileLongExtensionIsUnknown(t *testing.T) {
	f := newFixture(t)
	p := f.post(t, f.member(t, "user1"))

	g, err := f.genFiles.Add(context.Background(), p, models.GenFileTypeAttachment,
		f.stageText(t, "a."+strings.Repeat("e", 25), "body"))
	require.NoError(t, err)
	assert.Equal(t, "unknown", g.FileExt)
	assert.Equal(t, "etc", g.FileExtTypeCode)
	assert.True(t, strings.HasSuffix(g.FileName, ".unknown"))
	assert.Equal(t, "a."+strings.Repeat("e", 25), g.OriginalFileName)
}

func TestGenFileAddAfterPostDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t, f.member(t, "user1"))
	staged := f.stageText(t, "late.txt", "late")

	unlock := f.genFiles.LockPost(p.ID)
	done := make(chan error, 1)
	go func() {
		post := *p
		_, err := f.genFiles.Add(ctx, &post, models.GenFileTypeAttachment, staged)
		done <- err
	}()
	require.NoError(t, f.db.Delete(&models.Post{}, p.ID).Error)
	unlock()

	assert.ErrorIs(t, <-done, ErrGenFileOwnerAbsent)
	assert.NoFileExists(t, staged)
	var n int64
	require.NoError(t, f.db.Model(&models.PostGenFile{}).Where("post_id = ?", p.ID).Count(&n).Error)
	assert.Zero(t, n)
}

func TestPostDeleteWaitsForFileWriters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t, f.member(t, "user1"))

	unlock := f.genFiles.LockPost(p.ID)
	done := make(chan error, 1)
	go func() { done <- f.posts.Delete(ctx, p) }()

	select {
	case <-done:
		t.Fatal("post deleted while its files were locked")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	require.NoError(t, <-done)

	got, err := f.posts.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGenFileDeleteAllForPost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t, f.member(t, "user1"))

	a, err := f.genFiles.Add(ctx, p, models.GenFileTypeAttachment, f.stageText(t, "a.txt", "a"))
	require.NoError(t, err)
	th, err := f.genFiles.Add(ctx, p, models.GenFileTypeThumbnail, f.stagePNG(t, "t.png", 2, 2))
	require.NoError(t, err)

	require.NoError(t, f.posts.Delete(ctx, p))

	assert.NoFileExists(t, f.genFiles.Path(a))
	assert.NoFileExists(t, f.genFiles.Path(th))
	var n int64
	require.NoError(t, f.db.Model(&models.PostGenFile{}).Where("post_id = ?", p.ID).Count(&n).Error)
	assert.Zero(t, n)
}

func TestGenFileConcurrentAddsGetDistinctSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t, f.member(t, "user1"))

	const n = 5
	staged := make([]string, n)
	for i := range staged {
		staged[i] = f.stageText(t, "c.txt", strings.Repeat("x", i+1))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			post := *p
			_, errs[i] = f.genFiles.Add(ctx, &post, models.GenFileTypeAttachment, staged[i])
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	files, err := f.genFiles.List(ctx, p.ID)
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, g := range files {
		seen[g.FileNo] = true
	}
	assert.Len(t, seen, n)
}
